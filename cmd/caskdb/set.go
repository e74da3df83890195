package main

import "github.com/spf13/cobra"

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store value under key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			if err := withBucket(db); err != nil {
				return err
			}
			return db.Set([]byte(args[0]), []byte(args[1]))
		},
	}
}
