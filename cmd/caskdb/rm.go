package main

import "github.com/spf13/cobra"

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			if err := withBucket(db); err != nil {
				return err
			}
			return db.Remove([]byte(args[0]))
		},
	}
}
