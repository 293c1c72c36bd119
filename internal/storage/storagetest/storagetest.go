// Package storagetest holds the behavior every storage.Store backend must share.
package storagetest

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) storage.Store

var errAbort = errors.New("abort unit")

// Run exercises the storage.Store contract against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("Missing", func(t *testing.T) { testMissing(t, newStore(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("ViewDiscardsWrites", func(t *testing.T) { testViewDiscardsWrites(t, newStore(t)) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, newStore(t)) })
	t.Run("GetReturnsCopy", func(t *testing.T) { testGetReturnsCopy(t, newStore(t)) })
	t.Run("WideAmounts", func(t *testing.T) { testWideAmounts(t, newStore(t)) })
	t.Run("Upsert", func(t *testing.T) { testUpsert(t, newStore(t)) })
	t.Run("Positions", func(t *testing.T) { testPositions(t, newStore(t)) })
	t.Run("PositionRollsBackWithEntities", func(t *testing.T) { testPositionRollback(t, newStore(t)) })
}

// RequireAmount asserts that got equals the base-10 value want.
func RequireAmount(t *testing.T, want string, got *big.Int) {
	t.Helper()
	require.NotNil(t, got, "amount is nil, want %s", want)
	require.Equal(t, want, got.String())
}

// Amount parses a base-10 literal, panicking on malformed input.
func Amount(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("bad amount " + value)
	}
	return v
}

func testRoundTrip(t *testing.T, store storage.Store) {
	ctx := context.Background()
	audit := model.AuditRecord{
		ID:           "0xaaa1",
		ActorAddress: "0x1111111111111111111111111111111111111111",
		MethodLabel:  "StakeComplete",
		Amount:       Amount("10"),
		Timestamp:    1700000000,
		BlockNumber:  100,
	}
	pause := model.AuditRecord{
		ID:           "0xaaa2",
		ActorAddress: "0x2222222222222222222222222222222222222222",
		MethodLabel:  "Pause",
		Timestamp:    1700000100,
		BlockNumber:  101,
	}
	balance := model.UserBalance{
		ID:             "0x1111111111111111111111111111111111111111",
		AccountAddress: "0x1111111111111111111111111111111111111111",
		StakedAmount:   Amount("10"),
	}
	summary := model.StakeSummary{ID: "summary", TotalStakedAmount: Amount("100"), TotalRewardAmount: Amount("10")}

	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.AuditRecords().Put(ctx, audit.ID, audit); err != nil {
			return err
		}
		if err := tx.AuditRecords().Put(ctx, pause.ID, pause); err != nil {
			return err
		}
		if err := tx.UserBalances().Put(ctx, balance.ID, balance); err != nil {
			return err
		}
		return tx.StakeSummaries().Put(ctx, summary.ID, summary)
	}))

	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		got, ok, err := tx.AuditRecords().Get(ctx, audit.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, audit.ID, got.ID)
		require.Equal(t, audit.ActorAddress, got.ActorAddress)
		require.Equal(t, audit.MethodLabel, got.MethodLabel)
		require.Equal(t, audit.Timestamp, got.Timestamp)
		require.Equal(t, audit.BlockNumber, got.BlockNumber)
		RequireAmount(t, "10", got.Amount)

		got, ok, err = tx.AuditRecords().Get(ctx, pause.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Nil(t, got.Amount)
		require.Equal(t, "Pause", got.MethodLabel)

		gotBalance, ok, err := tx.UserBalances().Get(ctx, balance.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, balance.AccountAddress, gotBalance.AccountAddress)
		RequireAmount(t, "10", gotBalance.StakedAmount)

		gotSummary, ok, err := tx.StakeSummaries().Get(ctx, summary.ID)
		require.NoError(t, err)
		require.True(t, ok)
		RequireAmount(t, "100", gotSummary.TotalStakedAmount)
		RequireAmount(t, "10", gotSummary.TotalRewardAmount)
		return nil
	}))
}

func testMissing(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		_, ok, err := tx.AuditRecords().Get(ctx, "0xnone")
		require.NoError(t, err)
		require.False(t, ok)
		_, ok, err = tx.UserBalances().Get(ctx, "0xnone")
		require.NoError(t, err)
		require.False(t, ok)
		_, ok, err = tx.StakeSummaries().Get(ctx, "0xnone")
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func testOverwrite(t *testing.T, store storage.Store) {
	ctx := context.Background()
	first := model.AuditRecord{ID: "0xdup", ActorAddress: "0x1", MethodLabel: "StakeComplete", Amount: Amount("5"), Timestamp: 1, BlockNumber: 1}
	second := model.AuditRecord{ID: "0xdup", ActorAddress: "0x2", MethodLabel: "Pause", Timestamp: 2, BlockNumber: 2}

	for _, rec := range []model.AuditRecord{first, second} {
		rec := rec
		require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
			return tx.AuditRecords().Put(ctx, rec.ID, rec)
		}))
	}

	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		got, ok, err := tx.AuditRecords().Get(ctx, "0xdup")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "0x2", got.ActorAddress)
		require.Equal(t, "Pause", got.MethodLabel)
		require.Nil(t, got.Amount)
		require.Equal(t, uint64(2), got.BlockNumber)
		return nil
	}))
}

func testRollback(t *testing.T, store storage.Store) {
	ctx := context.Background()
	err := store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.AuditRecords().Put(ctx, "0xrb", model.AuditRecord{ID: "0xrb", ActorAddress: "0x1", MethodLabel: "UnStake", Amount: Amount("1"), Timestamp: 1, BlockNumber: 1}); err != nil {
			return err
		}
		if err := tx.UserBalances().Put(ctx, "0x1", model.UserBalance{ID: "0x1", AccountAddress: "0x1", StakedAmount: Amount("1")}); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		_, ok, err := tx.AuditRecords().Get(ctx, "0xrb")
		require.NoError(t, err)
		require.False(t, ok)
		_, ok, err = tx.UserBalances().Get(ctx, "0x1")
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func testViewDiscardsWrites(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		return tx.StakeSummaries().Put(ctx, "summary", model.StakeSummary{ID: "summary", TotalStakedAmount: Amount("1"), TotalRewardAmount: Amount("1")})
	}))
	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		_, ok, err := tx.StakeSummaries().Get(ctx, "summary")
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func testReadYourWrites(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.UserBalances().Put(ctx, "0xa", model.UserBalance{ID: "0xa", AccountAddress: "0xA", StakedAmount: Amount("7")}); err != nil {
			return err
		}
		got, ok, err := tx.UserBalances().Get(ctx, "0xa")
		require.NoError(t, err)
		require.True(t, ok)
		RequireAmount(t, "7", got.StakedAmount)
		return nil
	}))
}

func testGetReturnsCopy(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		return tx.UserBalances().Put(ctx, "0xa", model.UserBalance{ID: "0xa", AccountAddress: "0xA", StakedAmount: Amount("7")})
	}))
	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		got, _, err := tx.UserBalances().Get(ctx, "0xa")
		require.NoError(t, err)
		got.StakedAmount.SetInt64(1000)
		return nil
	}))
	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		got, _, err := tx.UserBalances().Get(ctx, "0xa")
		require.NoError(t, err)
		RequireAmount(t, "7", got.StakedAmount)
		return nil
	}))
}

func testWideAmounts(t *testing.T, store storage.Store) {
	ctx := context.Background()
	maxUint256 := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	// Accumulated totals may outgrow uint256.
	huge := maxUint256 + "000000000000000000000000"
	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.UserBalances().Put(ctx, "0xa", model.UserBalance{ID: "0xa", AccountAddress: "0xA", StakedAmount: Amount(huge)}); err != nil {
			return err
		}
		return tx.StakeSummaries().Put(ctx, "summary", model.StakeSummary{
			ID:                "summary",
			TotalStakedAmount: Amount("-30"),
			TotalRewardAmount: Amount(maxUint256),
		})
	}))
	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		got, ok, err := tx.StakeSummaries().Get(ctx, "summary")
		require.NoError(t, err)
		require.True(t, ok)
		RequireAmount(t, "-30", got.TotalStakedAmount)
		RequireAmount(t, maxUint256, got.TotalRewardAmount)

		balance, ok, err := tx.UserBalances().Get(ctx, "0xa")
		require.NoError(t, err)
		require.True(t, ok)
		RequireAmount(t, huge, balance.StakedAmount)
		return nil
	}))
}

func testUpsert(t *testing.T, store storage.Store) {
	ctx := context.Background()
	create := func() model.UserBalance {
		return model.UserBalance{ID: "0xa", AccountAddress: "0xA", StakedAmount: Amount("10")}
	}
	add := func(b *model.UserBalance) { b.StakedAmount.Add(b.StakedAmount, big.NewInt(5)) }

	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		written, err := storage.Upsert(ctx, tx.UserBalances(), "0xb", nil, add)
		require.NoError(t, err)
		require.False(t, written)

		written, err = storage.Upsert(ctx, tx.UserBalances(), "0xa", create, add)
		require.NoError(t, err)
		require.True(t, written)
		return nil
	}))
	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		written, err := storage.Upsert(ctx, tx.UserBalances(), "0xa", create, add)
		require.NoError(t, err)
		require.True(t, written)
		return nil
	}))
	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		got, ok, err := tx.UserBalances().Get(ctx, "0xa")
		require.NoError(t, err)
		require.True(t, ok)
		RequireAmount(t, "15", got.StakedAmount)
		_, ok, err = tx.UserBalances().Get(ctx, "0xb")
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func testPositions(t *testing.T, store storage.Store) {
	ctx := context.Background()

	_, ok, err := storage.LoadPosition(ctx, store, "aggregator")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, storage.SavePosition(ctx, store, "aggregator", model.Position{BlockNumber: 10, LogIndex: 2}))
	require.NoError(t, storage.SavePosition(ctx, store, "other", model.Position{BlockNumber: 1}))
	require.NoError(t, storage.SavePosition(ctx, store, "aggregator", model.Position{BlockNumber: 12}))

	pos, ok, err := storage.LoadPosition(ctx, store, "aggregator")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Position{BlockNumber: 12}, pos)

	pos, ok, err = storage.LoadPosition(ctx, store, "other")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Position{BlockNumber: 1}, pos)

	require.Error(t, storage.SavePosition(ctx, store, "", model.Position{}))
}

func testPositionRollback(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, storage.SavePosition(ctx, store, "aggregator", model.Position{BlockNumber: 5}))

	err := store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.UserBalances().Put(ctx, "0xa", model.UserBalance{ID: "0xa", AccountAddress: "0xA", StakedAmount: Amount("1")}); err != nil {
			return err
		}
		if err := tx.Positions().Put(ctx, "aggregator", model.Position{BlockNumber: 6}); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	pos, ok, err := storage.LoadPosition(ctx, store, "aggregator")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Position{BlockNumber: 5}, pos)
}
