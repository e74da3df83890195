// Package config loads the database's configuration (root directory and
// active-file size threshold) via viper, layering a config file,
// environment variable overrides, and an explicit default.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultFileSize is the active-file rotation threshold used when neither
// a config file nor the environment supplies one: 64 MiB.
const DefaultFileSize int64 = 64 * 1024 * 1024

// EnvPrefix is the prefix applied to environment variable overrides, e.g.
// CASKDB_DIR and CASKDB_FILE_SIZE.
const EnvPrefix = "caskdb"

// ErrMissingDir is returned when no database directory was configured.
var ErrMissingDir = errors.New("config: dir is required")

// Config is the façade's required configuration.
type Config struct {
	Dir      string
	FileSize int64
}

// Load builds a Config from, in increasing priority: defaults, an optional
// config file at configFile (skipped if empty), and CASKDB_-prefixed
// environment variables. dir, if non-empty, overrides everything else —
// it is the direct equivalent of passing config.dir to the façade's Open.
func Load(configFile, dir string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("file_size", DefaultFileSize)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	if dir != "" {
		v.Set("dir", dir)
	}

	cfg := Config{
		Dir:      v.GetString("dir"),
		FileSize: v.GetInt64("file_size"),
	}
	if cfg.FileSize <= 0 {
		cfg.FileSize = DefaultFileSize
	}
	if cfg.Dir == "" {
		return Config{}, ErrMissingDir
	}
	return cfg, nil
}
