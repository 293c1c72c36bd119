package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
	"stakeScope/internal/storage/storagetest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, _ := newTestStore(t)
		return store
	})
}


func TestNewStoreParsesURL(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewStore(context.Background(), "redis://"+mr.Addr()+"/0", "")
	require.NoError(t, err)
	defer store.Close()
	require.Equal(t, DefaultPrefix, store.prefix)

	_, err = NewStore(context.Background(), "not a url", "")
	require.Error(t, err)
}

func TestKeysUsePrefixedHashes(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		return tx.StakeSummaries().Put(ctx, "0xfa70", model.StakeSummary{
			ID:                "0xfa70",
			TotalStakedAmount: storagetest.Amount("10"),
			TotalRewardAmount: storagetest.Amount("2"),
		})
	}))

	require.True(t, mr.Exists("test:summary:0xfa70"))
	require.Equal(t, "10", mr.HGet("test:summary:0xfa70", "total_staked_amount"))
	require.Equal(t, "2", mr.HGet("test:summary:0xfa70", "total_reward_amount"))
}

func TestUpdateAbortsWhenWatchedKeyChanges(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, func(tx storage.Tx) error {
		if _, _, err := tx.UserBalances().Get(ctx, "0xa"); err != nil {
			return err
		}
		mr.HSet("test:balance:0xa", "id", "0xa", "account_address", "0xA", "staked_amount", "7")
		return tx.UserBalances().Put(ctx, "0xa", model.UserBalance{ID: "0xa", AccountAddress: "0xA", StakedAmount: storagetest.Amount("1")})
	})
	require.ErrorIs(t, err, redis.TxFailedErr)
	require.Equal(t, "7", mr.HGet("test:balance:0xa", "staked_amount"))
}

func TestPositionCommitsWithEntities(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.UserBalances().Put(ctx, "0xa", model.UserBalance{ID: "0xa", AccountAddress: "0xA", StakedAmount: storagetest.Amount("3")}); err != nil {
			return err
		}
		return tx.Positions().Put(ctx, "stakes", model.Position{BlockNumber: 7, LogIndex: 1})
	}))
	require.Equal(t, "7", mr.HGet("test:state:stakes", "last_block"))
	require.Equal(t, "1", mr.HGet("test:state:stakes", "last_log_index"))

	err := store.Update(ctx, func(tx storage.Tx) error {
		if _, _, err := tx.Positions().Get(ctx, "stakes"); err != nil {
			return err
		}
		mr.HSet("test:state:stakes", "last_block", "9")
		if err := tx.UserBalances().Put(ctx, "0xa", model.UserBalance{ID: "0xa", AccountAddress: "0xA", StakedAmount: storagetest.Amount("4")}); err != nil {
			return err
		}
		return tx.Positions().Put(ctx, "stakes", model.Position{BlockNumber: 8})
	})
	require.ErrorIs(t, err, redis.TxFailedErr)
	require.Equal(t, "9", mr.HGet("test:state:stakes", "last_block"))
	require.Equal(t, "3", mr.HGet("test:balance:0xa", "staked_amount"))
}
