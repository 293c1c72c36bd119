package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
	"stakeScope/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "stake.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return newTestStore(t) })
}


func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestReopenKeepsDataAndSkipsAppliedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stake.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		return tx.AuditRecords().Put(ctx, "0xabc", model.AuditRecord{ID: "0xabc", ActorAddress: "0x1", MethodLabel: "Pause", Timestamp: 1, BlockNumber: 1})
	}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.View(ctx, func(tx storage.Tx) error {
		rec, ok, err := tx.AuditRecords().Get(ctx, "0xabc")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "Pause", rec.MethodLabel)
		return nil
	}))
}

func TestPutRejectsNilAmounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, func(tx storage.Tx) error {
		return tx.UserBalances().Put(ctx, "0xa", model.UserBalance{ID: "0xa", AccountAddress: "0xA"})
	})
	require.ErrorIs(t, err, storage.ErrNilAmount)

	err = store.Update(ctx, func(tx storage.Tx) error {
		return tx.StakeSummaries().Put(ctx, "s", model.StakeSummary{ID: "s"})
	})
	require.ErrorIs(t, err, storage.ErrNilAmount)
}

func TestPutRejectsValuesOutsideInt64(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, func(tx storage.Tx) error {
		return tx.AuditRecords().Put(ctx, "0xbig", model.AuditRecord{ID: "0xbig", ActorAddress: "0x1", MethodLabel: "Pause", Timestamp: 1, BlockNumber: 1 << 63})
	})
	require.ErrorIs(t, err, storage.ErrInvalidValue)

	err = store.Update(ctx, func(tx storage.Tx) error {
		return tx.Positions().Put(ctx, "stakes", model.Position{BlockNumber: 1, LogIndex: 1 << 63})
	})
	require.ErrorIs(t, err, storage.ErrInvalidValue)
}
