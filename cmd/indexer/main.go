package main

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("load .env: " + err.Error() + "\n")
	}

	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Staking contract event aggregator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Apply decoded staking events to the entity store",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input decoded events JSONL (- for stdin)")
	aggregateCmd.Flags().String("store", "sqlite", "entity store (memory, postgres, sqlite, redis)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().String("sqlite-path", "./data/stake.db", "SQLite database path")
	aggregateCmd.Flags().String("redis-url", "", "Redis URL (redis://host:port/db)")
	aggregateCmd.Flags().String("redis-prefix", "stakescope", "Redis key prefix")
	aggregateCmd.Flags().StringSlice("address", nil, "staking contract addresses to accept (comma-separated, empty accepts all)")
	aggregateCmd.Flags().String("summary-id", "", "stake summary key (default is the built-in summary id)")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().Int("checkpoint-every", 100, "save progress every N applied events")
	aggregateCmd.Flags().Int("max-retries", 5, "maximum retry attempts when the store is unavailable")
	aggregateCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	aggregateCmd.Flags().String("rejects", "./data/rejected_events.jsonl", "rejected events JSONL")
	aggregateCmd.Flags().String("metrics-addr", "", "serve /metrics on this address (empty disables)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("store", "sqlite", "entity store (postgres, sqlite)")
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("sqlite-path", "./data/stake.db", "SQLite database path")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
