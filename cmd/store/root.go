package store

import (
	"github.com/dylan-green/promise-idb/cmd/util"
	"github.com/dylan-green/promise-idb/lib/orchestrator"
	"github.com/dylan-green/promise-idb/lib/platform"
	"github.com/spf13/cobra"
)

var (
	env  platform.Environment
	orch orchestrator.IOrchestrator

	// StoreCommands represents the store command group
	StoreCommands = &cobra.Command{
		Use:                "store",
		Short:              "Perform store and schema operations",
		PersistentPreRunE:  setupOrchestrator,
		PersistentPostRunE: teardownOrchestrator,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common engine flags to the store command
	util.SetupEngineFlags(StoreCommands)

	// Add subcommands
	StoreCommands.AddCommand(infoCmd)
	StoreCommands.AddCommand(getVersionCmd)
	StoreCommands.AddCommand(createCollectionCmd)
	StoreCommands.AddCommand(deleteCollectionCmd)
	StoreCommands.AddCommand(createIndexCmd)
	StoreCommands.AddCommand(deleteIndexCmd)
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
