package doc

import (
	"encoding/json"
	"fmt"

	"github.com/dylan-green/promise-idb/cmd/util"
	"github.com/dylan-green/promise-idb/lib/platform"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// parseArgs converts the common [store] [collection] [key] argument triple.
func parseArgs(args []string) (store, coll string, key platform.Key, err error) {
	key, err = util.ParseKey(args[2], viper.GetBool("numeric-key"))
	return args[0], args[1], key, err
}

// parseDoc decodes a JSON document argument.
func parseDoc(arg string) (platform.Document, error) {
	var doc platform.Document
	if err := json.Unmarshal([]byte(arg), &doc); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	return doc, nil
}

// printDoc renders a document as compact JSON.
func printDoc(doc platform.Document) {
	if doc == nil {
		fmt.Println("document not found")
		return
	}
	b, err := json.Marshal(doc)
	if err != nil {
		fmt.Printf("%v\n", doc)
		return
	}
	fmt.Println(string(b))
}

var (
	addCmd = &cobra.Command{
		Use:   "add [store] [collection] [key] [document]",
		Short: "Inserts a document, fails if the key already exists",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			store, coll, key, err := parseArgs(args)
			if err != nil {
				return err
			}
			doc, err := parseDoc(args[3])
			if err != nil {
				return err
			}
			if key, err := orch.Add(store, coll, key, doc).Await(ctx); err != nil {
				return err
			} else {
				fmt.Printf("added key=%v\n", key)
			}
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [store] [collection] [key] [document]",
		Short: "Inserts or replaces a document",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			store, coll, key, err := parseArgs(args)
			if err != nil {
				return err
			}
			doc, err := parseDoc(args[3])
			if err != nil {
				return err
			}
			if key, err := orch.Put(store, coll, key, doc).Await(ctx); err != nil {
				return err
			} else {
				fmt.Printf("put key=%v\n", key)
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [store] [collection] [key]",
		Short: "Reads the document for a key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			store, coll, key, err := parseArgs(args)
			if err != nil {
				return err
			}
			doc, err := orch.Get(store, coll, key).Await(ctx)
			if err != nil {
				return err
			}
			printDoc(doc)
			return nil
		},
	}
	getKeyCmd = &cobra.Command{
		Use:   "get-key [store] [collection] [key]",
		Short: "Checks whether a record exists, printing its stored key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			store, coll, key, err := parseArgs(args)
			if err != nil {
				return err
			}
			stored, err := orch.GetKey(store, coll, key).Await(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("key=%v, found=%t\n", key, stored != nil)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [store] [collection] [key]",
		Short: "Deletes a record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			store, coll, key, err := parseArgs(args)
			if err != nil {
				return err
			}
			if _, err := orch.Delete(store, coll, key).Await(ctx); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear [store] [collection]",
		Short: "Removes every record in a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			if _, err := orch.Clear(args[0], args[1]).Await(ctx); err != nil {
				return err
			}
			fmt.Println("clear successfully")
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count [store] [collection]",
		Short: "Counts the records in a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			n, err := orch.Count(args[0], args[1]).Await(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("count=%d\n", n)
			return nil
		},
	}
	getAllCmd = &cobra.Command{
		Use:   "get-all [store] [collection]",
		Short: "Reads all documents in key order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			limit, _ := cmd.Flags().GetInt("limit")
			docs, err := orch.GetAll(args[0], args[1], limit).Await(ctx)
			if err != nil {
				return err
			}
			for _, doc := range docs {
				printDoc(doc)
			}
			return nil
		},
	}
	getAllKeysCmd = &cobra.Command{
		Use:   "get-all-keys [store] [collection]",
		Short: "Reads all record keys in order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Timeout()
			defer cancel()

			limit, _ := cmd.Flags().GetInt("limit")
			keys, err := orch.GetAllKeys(args[0], args[1], limit).Await(ctx)
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Printf("%v\n", key)
			}
			return nil
		},
	}
)

func init() {
	getAllCmd.Flags().Int("limit", 0, util.WrapString("maximum number of records to return (0 = no limit)"))
	getAllKeysCmd.Flags().Int("limit", 0, util.WrapString("maximum number of records to return (0 = no limit)"))
}
