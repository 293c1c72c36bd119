package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakeScope/internal/config"
	"stakeScope/internal/ingest"
	"stakeScope/internal/metrics"
	"stakeScope/internal/staking"
	"stakeScope/internal/storage"
	"stakeScope/internal/storage/memory"
	"stakeScope/internal/storage/postgres"
	"stakeScope/internal/storage/redis"
	"stakeScope/internal/storage/sqlite"
)

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	contracts, err := ingest.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	input, closeInput, err := openInput(cfg.Input)
	if err != nil {
		return err
	}
	defer closeInput()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var stateStore ingest.StateStore
	if cfg.StateFile != "" {
		stateStore = &ingest.FileStateStore{Path: cfg.StateFile}
	} else {
		stateStore = &ingest.DBStateStore{Store: store, Name: ingest.DefaultStateName}
	}

	var rejects *ingest.JSONLWriter
	if cfg.Rejects != "" {
		rejects, err = ingest.NewJSONLWriter(cfg.Rejects, true)
		if err != nil {
			return fmt.Errorf("open rejects: %w", err)
		}
		defer func() {
			if err := rejects.Close(); err != nil {
				logger.Warn("close rejects", zap.Error(err))
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	agg := staking.NewAggregator(staking.Config{SummaryID: cfg.SummaryID, Stream: ingest.DefaultStateName}, store)

	runCfg := ingest.Config{
		Contracts:       contracts,
		CheckpointEvery: cfg.CheckpointEvery,
		MaxRetries:      cfg.MaxRetries,
		RetryBackoff:    cfg.RetryBackoff,
		StateStore:      stateStore,
	}
	if rejects != nil {
		runCfg.Rejects = rejects
	}
	runner := ingest.NewRunner(runCfg, agg, logger)

	logger.Info("aggregate start",
		zap.String("input", cfg.Input),
		zap.String("store", cfg.Store),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("redis_url", redactDSN(cfg.RedisURL)),
		zap.String("sqlite_path", cfg.SQLitePath),
		zap.String("summary_id", agg.SummaryID()),
		zap.Int("contracts", len(contracts)),
		zap.String("state_file", cfg.StateFile),
		zap.Int("checkpoint_every", cfg.CheckpointEvery),
		zap.String("rejects", cfg.Rejects),
	)

	return runner.Run(ctx, input)
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return file, func() { file.Close() }, nil
}

func openStore(ctx context.Context, cfg config.AggregateConfig) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.NewStore(), nil
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return store, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	case config.StoreRedis:
		store, err := redis.NewStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// redactDSN keeps scheme and host so logs stay useful without credentials.
func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "***"
	}
	return u.Scheme + "://***@" + u.Host
}
