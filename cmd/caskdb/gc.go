package main

import "github.com/spf13/cobra"

func newGCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc <bucket>",
		Short: "Compact a bucket, reclaiming space held by superseded or deleted records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			return db.GC(args[0])
		},
	}
}
