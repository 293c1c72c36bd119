package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakeScope/internal/config"
	"stakeScope/internal/ingest"
	"stakeScope/internal/staking"
	"stakeScope/internal/storage"
)

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "", redactDSN(""))
	assert.Equal(t, "postgres://***@db:5432", redactDSN("postgres://user:secret@db:5432/stake?sslmode=disable"))
	assert.Equal(t, "redis://***@localhost:6379", redactDSN("redis://:pw@localhost:6379/0"))
	assert.Equal(t, "***", redactDSN("host=db user=u password=p"))
}

func TestOpenStoreBackends(t *testing.T) {
	ctx := context.Background()

	store, err := openStore(ctx, config.AggregateConfig{Store: config.StoreMemory})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = openStore(ctx, config.AggregateConfig{Store: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "stake.db")})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = openStore(ctx, config.AggregateConfig{Store: "mongo"})
	require.Error(t, err)
}

func TestAggregatePipelineOnSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := openStore(ctx, config.AggregateConfig{Store: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "stake.db")})
	require.NoError(t, err)
	defer store.Close()

	input := strings.Join([]string{
		`{"block_number":1,"tx_hash":"0x0000000000000000000000000000000000000000000000000000000000000001","log_index":0,"address":"0x1111111111111111111111111111111111111111","event_name":"StakeCompleted","timestamp":1700000000,"decoded":{"staker":"0x000000000000000000000000000000000000000a","alt_quantity":"100","reward_amount":"10"}}`,
		`{"block_number":2,"tx_hash":"0x0000000000000000000000000000000000000000000000000000000000000002","log_index":0,"address":"0x1111111111111111111111111111111111111111","event_name":"Unstake","timestamp":1700000010,"decoded":{"staker":"0x000000000000000000000000000000000000000a","alt_quantity":"40"}}`,
	}, "\n")

	agg := staking.NewAggregator(staking.Config{Stream: ingest.DefaultStateName}, store)
	runner := ingest.NewRunner(ingest.Config{StateStore: &ingest.DBStateStore{Store: store}}, agg, nil)
	require.NoError(t, runner.Run(ctx, strings.NewReader(input)))

	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		b, ok, err := tx.UserBalances().Get(ctx, "0x000000000000000000000000000000000000000a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "40", b.StakedAmount.String())

		s, ok, err := tx.StakeSummaries().Get(ctx, staking.DefaultSummaryID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "60", s.TotalStakedAmount.String())
		assert.Equal(t, "10", s.TotalRewardAmount.String())
		return nil
	}))

	pos, ok, err := storage.LoadPosition(ctx, store, ingest.DefaultStateName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), pos.BlockNumber)
}

func TestOpenInput(t *testing.T) {
	r, closeFn, err := openInput("-")
	require.NoError(t, err)
	assert.Equal(t, os.Stdin, r)
	closeFn()

	_, _, err = openInput(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
}
