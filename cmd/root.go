package cmd

import (
	"fmt"
	"os"

	"github.com/dylan-green/promise-idb/cmd/doc"
	"github.com/dylan-green/promise-idb/cmd/store"
	"github.com/dylan-green/promise-idb/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "pidb",
		Short: "versioned embedded document store",
		Long: fmt.Sprintf(`pidb (v%s)

An embedded, versioned document store with named stores, schema-carrying
collections and secondary indexes, backed by an in-memory or a durable
pebble engine.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pidb",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pidb v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(store.StoreCommands)
	RootCmd.AddCommand(doc.DocCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "codec"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("document codec to use (json, gob)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("log level (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
