package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store backends selectable with --store.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

// load merges defaults, config file, INDEXER_* environment variables and
// flags, in increasing order of precedence.
func load(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func validateStore(store, pgDSN, sqlitePath, redisURL string) error {
	switch store {
	case StoreMemory:
		return nil
	case StorePostgres:
		if pgDSN == "" {
			return fmt.Errorf("pg dsn is required for store %q", store)
		}
	case StoreSQLite:
		if strings.TrimSpace(sqlitePath) == "" {
			return fmt.Errorf("sqlite path is required for store %q", store)
		}
	case StoreRedis:
		if redisURL == "" {
			return fmt.Errorf("redis url is required for store %q", store)
		}
	default:
		return fmt.Errorf("unknown store %q (want memory, postgres, sqlite or redis)", store)
	}
	return nil
}

// addressList reads key as a list. Each item may itself be a comma-separated
// list, as environment variables are.
func addressList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
