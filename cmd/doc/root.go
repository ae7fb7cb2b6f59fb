package doc

import (
	"github.com/dylan-green/promise-idb/cmd/util"
	"github.com/dylan-green/promise-idb/lib/orchestrator"
	"github.com/dylan-green/promise-idb/lib/platform"
	"github.com/spf13/cobra"
)

var (
	env  platform.Environment
	orch orchestrator.IOrchestrator

	// DocCommands represents the doc command group
	DocCommands = &cobra.Command{
		Use:                "doc",
		Short:              "Perform record operations on a collection",
		PersistentPreRunE:  setupOrchestrator,
		PersistentPostRunE: teardownOrchestrator,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common engine flags to the doc command
	util.SetupEngineFlags(DocCommands)

	// Keys are string-typed by default; numeric keys are opt-in.
	DocCommands.PersistentFlags().Bool("numeric-key", false, util.WrapString("parse the key argument as a number instead of a string"))

	// Add subcommands
	DocCommands.AddCommand(addCmd)
	DocCommands.AddCommand(putCmd)
	DocCommands.AddCommand(getCmd)
	DocCommands.AddCommand(getKeyCmd)
	DocCommands.AddCommand(delCmd)
	DocCommands.AddCommand(clearCmd)
	DocCommands.AddCommand(countCmd)
	DocCommands.AddCommand(getAllCmd)
	DocCommands.AddCommand(getAllKeysCmd)
}

// setupOrchestrator initializes the engine and the orchestrator facade
func setupOrchestrator(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	env, err = util.GetEnvironment()
	if err != nil {
		return err
	}

	orch = orchestrator.New(env)
	return nil
}

func teardownOrchestrator(_ *cobra.Command, _ []string) error {
	if orch != nil {
		if err := orch.Close(); err != nil {
			return err
		}
	}
	if env != nil {
		return env.Close()
	}
	return nil
}
