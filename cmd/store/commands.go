package store

import (
	"fmt"

	"github.com/dylan-green/promise-idb/cmd/util"
	"github.com/dylan-green/promise-idb/lib/orchestrator"
	"github.com/dylan-green/promise-idb/lib/platform"
	"github.com/spf13/cobra"
)

var (
	infoCmd = &cobra.Command{
		Use:   "info [store]",
		Short: "Shows the version and collections of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			name := args[0]
			h, err := orch.Open(name, 0, orchestrator.OpenHooks{}).Await(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("store=%s, version=%d\n", name, h.Version())
			for _, coll := range h.Collections() {
				info, _ := h.Info(coll)
				fmt.Printf("  collection=%s, keyPath=%q, indexes=%d\n",
					coll, info.KeyPath, len(info.Indexes))
				for _, idx := range info.Indexes {
					fmt.Printf("    index=%s, keyPaths=%v, unique=%t, multiEntry=%t\n",
						idx.Name, idx.KeyPaths, idx.Unique, idx.MultiEntry)
				}
			}
			return nil
		},
	}
	getVersionCmd = &cobra.Command{
		Use:   "get-version [store]",
		Short: "Prints the current version of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			v, err := orch.GetVersion(args[0]).Await(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("store=%s, version=%d\n", args[0], v)
			return nil
		},
	}
	createCollectionCmd = &cobra.Command{
		Use:   "create-collection [store] [collection]",
		Short: "Creates a collection (bumps the store version)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			keyPath, _ := cmd.Flags().GetString("key-path")
			h, err := orch.CreateCollection(args[0], args[1],
				platform.CollectionOptions{KeyPath: keyPath}).Await(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("created collection %s (store now at version %d)\n", args[1], h.Version())
			return nil
		},
	}
	deleteCollectionCmd = &cobra.Command{
		Use:   "delete-collection [store] [collection]",
		Short: "Deletes a collection and all its records (bumps the store version)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			h, err := orch.DeleteCollection(args[0], args[1]).Await(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("deleted collection %s (store now at version %d)\n", args[1], h.Version())
			return nil
		},
	}
	createIndexCmd = &cobra.Command{
		Use:   "create-index [store] [collection] [index] [keyPath...]",
		Short: "Creates a secondary index on a collection (bumps the store version)",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			unique, _ := cmd.Flags().GetBool("unique")
			multiEntry, _ := cmd.Flags().GetBool("multi-entry")

			h, err := orch.CreateIndex(args[0], args[1], platform.IndexSpec{
				Name:       args[2],
				KeyPaths:   args[3:],
				Unique:     unique,
				MultiEntry: multiEntry,
			}).Await(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("created index %s (store now at version %d)\n", args[2], h.Version())
			return nil
		},
	}
	deleteIndexCmd = &cobra.Command{
		Use:   "delete-index [store] [collection] [index]",
		Short: "Deletes a secondary index (bumps the store version)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			h, err := orch.DeleteIndex(args[0], args[1], args[2]).Await(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("deleted index %s (store now at version %d)\n", args[2], h.Version())
			return nil
		},
	}
)

func init() {
	createCollectionCmd.Flags().String("key-path", "", util.WrapString("dotted path inside a document under which the record key is inlined"))
	createIndexCmd.Flags().Bool("unique", false, util.WrapString("reject writes that would duplicate an indexed value"))
	createIndexCmd.Flags().Bool("multi-entry", false, util.WrapString("index each element of an array value separately"))
}
