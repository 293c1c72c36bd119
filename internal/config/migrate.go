package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// MigrateConfig holds configuration for the migrate command.
type MigrateConfig struct {
	Store      string
	PGDSN      string
	SQLitePath string
	LogLevel   string
}

// LoadMigrate merges config file, environment variables, and flags into MigrateConfig.
func LoadMigrate(cfgFile string, flags *pflag.FlagSet) (MigrateConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{
		"store":       StoreSQLite,
		"sqlite-path": "./data/stake.db",
		"log-level":   "info",
	})
	if err != nil {
		return MigrateConfig{}, err
	}

	return MigrateConfig{
		Store:      strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		PGDSN:      v.GetString("pg-dsn"),
		SQLitePath: v.GetString("sqlite-path"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}

// Validate accepts only backends with a schema.
func (c MigrateConfig) Validate() error {
	if c.Store != StorePostgres && c.Store != StoreSQLite {
		return fmt.Errorf("migrate supports postgres or sqlite, got %q", c.Store)
	}
	return validateStore(c.Store, c.PGDSN, c.SQLitePath, "")
}
