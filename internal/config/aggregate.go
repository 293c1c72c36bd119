package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// AggregateConfig holds configuration for the aggregate command.
type AggregateConfig struct {
	Input           string
	Store           string
	PGDSN           string
	SQLitePath      string
	RedisURL        string
	RedisPrefix     string
	Addresses       []string
	SummaryID       string
	StateFile       string
	CheckpointEvery int
	MaxRetries      int
	RetryBackoff    time.Duration
	Rejects         string
	MetricsAddr     string
	LogLevel        string
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{
		"store":            StoreSQLite,
		"sqlite-path":      "./data/stake.db",
		"redis-prefix":     "stakescope",
		"checkpoint-every": 100,
		"max-retries":      5,
		"retry-backoff":    500 * time.Millisecond,
		"rejects":          "./data/rejected_events.jsonl",
		"log-level":        "info",
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	cfg := AggregateConfig{
		Input:           v.GetString("in"),
		Store:           strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		PGDSN:           v.GetString("pg-dsn"),
		SQLitePath:      v.GetString("sqlite-path"),
		RedisURL:        v.GetString("redis-url"),
		RedisPrefix:     v.GetString("redis-prefix"),
		Addresses:       addressList(v, "address"),
		SummaryID:       v.GetString("summary-id"),
		StateFile:       v.GetString("state-file"),
		CheckpointEvery: v.GetInt("checkpoint-every"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		Rejects:         v.GetString("rejects"),
		MetricsAddr:     v.GetString("metrics-addr"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c AggregateConfig) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if c.CheckpointEvery <= 0 {
		return fmt.Errorf("checkpoint-every must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must be >= 0")
	}
	return validateStore(c.Store, c.PGDSN, c.SQLitePath, c.RedisURL)
}
