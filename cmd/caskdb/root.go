package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nyasuto/caskdb"
	"github.com/nyasuto/caskdb/internal/config"
)

var (
	flagDir      string
	flagFileSize int64
	flagConfig   string
	flagBucket   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "caskdb",
		Short: "A Bitcask-style embedded key/value store",
	}

	root.PersistentFlags().StringVar(&flagDir, "dir", "", "database root directory (required)")
	root.PersistentFlags().Int64Var(&flagFileSize, "file-size", 0, "active file rotation threshold in bytes")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a config file")
	root.PersistentFlags().StringVar(&flagBucket, "bucket", "", "bucket to operate against (defaults to the database's current bucket)")

	root.AddCommand(newGetCmd())
	root.AddCommand(newSetCmd())
	root.AddCommand(newRmCmd())
	root.AddCommand(newGCCmd())
	root.AddCommand(newBucketsCmd())
	root.AddCommand(newKeysCmd())

	return root
}

// openDB builds a Config from the bound flags/environment and opens the
// façade with a no-op zap logger.
func openDB() (*caskdb.DB, error) {
	cfg, err := config.Load(flagConfig, flagDir)
	if err != nil {
		return nil, err
	}
	if flagFileSize > 0 {
		cfg.FileSize = flagFileSize
	}
	return caskdb.Open(cfg, zap.NewNop())
}

// withBucket switches db to --bucket when one was given.
func withBucket(db *caskdb.DB) error {
	if flagBucket == "" {
		return nil
	}
	return db.ChangeBucket(flagBucket)
}
