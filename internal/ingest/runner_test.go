package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakeScope/internal/model"
	"stakeScope/internal/staking"
	"stakeScope/internal/storage"
	"stakeScope/internal/storage/memory"
	"stakeScope/internal/storage/storagetest"
)

const (
	contract = "0x1111111111111111111111111111111111111111"
	stakerA  = "0x000000000000000000000000000000000000000a"
	stakerB  = "0x000000000000000000000000000000000000000b"
)

func txHash(n int) string {
	return common.BigToHash(big.NewInt(int64(n))).Hex()
}

func line(t *testing.T, block, logIndex uint64, name string, decoded any) string {
	t.Helper()
	raw, err := json.Marshal(decoded)
	require.NoError(t, err)
	rec := model.EventRecord{
		ChainID:     56,
		BlockNumber: block,
		TxHash:      txHash(int(block*100 + logIndex)),
		LogIndex:    logIndex,
		Address:     contract,
		EventName:   name,
		Timestamp:   1_700_000_000 + block,
		Decoded:     raw,
	}
	out, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(out)
}

func stakeLine(t *testing.T, block, logIndex uint64, staker, quantity, reward string) string {
	return line(t, block, logIndex, "StakeCompleted", model.StakeCompletedData{Staker: staker, AltQuantity: quantity, RewardAmount: reward})
}

func unstakeLine(t *testing.T, block, logIndex uint64, staker, quantity string) string {
	return line(t, block, logIndex, "Unstake", model.UnstakeData{Staker: staker, AltQuantity: quantity})
}

type memorySink struct {
	rejected []model.RejectedEvent
}

func (s *memorySink) Write(value any) error {
	s.rejected = append(s.rejected, value.(model.RejectedEvent))
	return nil
}

type memoryState struct {
	pos   model.Position
	ok    bool
	saves []model.Position
}

func (s *memoryState) Load(context.Context) (model.Position, bool, error) { return s.pos, s.ok, nil }

func (s *memoryState) Save(_ context.Context, pos model.Position) error {
	s.pos, s.ok = pos, true
	s.saves = append(s.saves, pos)
	return nil
}

func summary(t *testing.T, store storage.Store) model.StakeSummary {
	t.Helper()
	ctx := context.Background()
	var out model.StakeSummary
	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		s, ok, err := tx.StakeSummaries().Get(ctx, staking.DefaultSummaryID)
		require.NoError(t, err)
		require.True(t, ok)
		out = s
		return nil
	}))
	return out
}

func TestRunAppliesStream(t *testing.T) {
	store := memory.NewStore()
	sink := &memorySink{}
	state := &memoryState{}
	runner := NewRunner(Config{StateStore: state, Rejects: sink}, staking.NewAggregator(staking.Config{}, store), nil)

	input := strings.Join([]string{
		stakeLine(t, 10, 0, stakerA, "100", "10"),
		"",
		"{not json",
		stakeLine(t, 10, 0, stakerA, "100", "10"),
		line(t, 10, 1, "Stake", map[string]string{"staker": stakerA}),
		line(t, 11, 0, "Paused", model.PausedData{}),
		stakeLine(t, 11, 1, stakerA, "50", "5"),
		unstakeLine(t, 12, 0, stakerA, "40"),
	}, "\n")

	require.NoError(t, runner.Run(context.Background(), strings.NewReader(input)))

	stats := runner.Stats()
	assert.Equal(t, 7, stats.Total)
	assert.Equal(t, 3, stats.Applied)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 2, stats.Rejected)

	got := summary(t, store)
	storagetest.RequireAmount(t, "110", got.TotalStakedAmount)
	storagetest.RequireAmount(t, "15", got.TotalRewardAmount)

	require.Len(t, sink.rejected, 2)
	assert.Equal(t, ReasonMalformed, sink.rejected[0].Reason)
	assert.Equal(t, ReasonInvalid, sink.rejected[1].Reason)
	assert.Equal(t, "Paused", sink.rejected[1].EventName)
	assert.NotEmpty(t, sink.rejected[1].Error)

	assert.Equal(t, model.Position{BlockNumber: 12, LogIndex: 0}, state.pos)
	assert.Len(t, state.saves, 1)
}

func TestRunResumesAfterCheckpoint(t *testing.T) {
	store := memory.NewStore()
	state := &memoryState{pos: model.Position{BlockNumber: 10, LogIndex: 1}, ok: true}
	runner := NewRunner(Config{StateStore: state}, staking.NewAggregator(staking.Config{}, store), nil)

	input := strings.Join([]string{
		stakeLine(t, 10, 0, stakerA, "100", "10"),
		stakeLine(t, 10, 1, stakerA, "100", "10"),
		stakeLine(t, 10, 2, stakerA, "7", "1"),
		stakeLine(t, 11, 0, stakerB, "3", "2"),
	}, "\n")

	require.NoError(t, runner.Run(context.Background(), strings.NewReader(input)))
	assert.Equal(t, 2, runner.Stats().Skipped)
	assert.Equal(t, 2, runner.Stats().Applied)

	got := summary(t, store)
	storagetest.RequireAmount(t, "10", got.TotalStakedAmount)
	storagetest.RequireAmount(t, "3", got.TotalRewardAmount)
	assert.Equal(t, model.Position{BlockNumber: 11}, state.pos)
}

func TestRunRejectsOutOfOrder(t *testing.T) {
	store := memory.NewStore()
	sink := &memorySink{}
	runner := NewRunner(Config{Rejects: sink}, staking.NewAggregator(staking.Config{}, store), nil)

	input := strings.Join([]string{
		stakeLine(t, 20, 3, stakerA, "100", "10"),
		stakeLine(t, 20, 2, stakerA, "100", "10"),
		stakeLine(t, 19, 9, stakerB, "100", "10"),
		stakeLine(t, 21, 0, stakerB, "1", "1"),
	}, "\n")

	require.NoError(t, runner.Run(context.Background(), strings.NewReader(input)))
	require.Len(t, sink.rejected, 2)
	for _, rej := range sink.rejected {
		assert.Equal(t, ReasonOutOfOrder, rej.Reason)
	}
	storagetest.RequireAmount(t, "101", summary(t, store).TotalStakedAmount)
}

func TestRunFiltersContracts(t *testing.T) {
	store := memory.NewStore()
	other := common.HexToAddress("0x9999999999999999999999999999999999999999")
	runner := NewRunner(Config{Contracts: []common.Address{other}}, staking.NewAggregator(staking.Config{}, store), nil)

	require.NoError(t, runner.Run(context.Background(), strings.NewReader(stakeLine(t, 1, 0, stakerA, "1", "1"))))
	assert.Equal(t, 1, runner.Stats().Skipped)
	assert.Equal(t, 0, runner.Stats().Applied)

	runner = NewRunner(Config{Contracts: []common.Address{common.HexToAddress(contract)}}, staking.NewAggregator(staking.Config{}, store), nil)
	require.NoError(t, runner.Run(context.Background(), strings.NewReader(stakeLine(t, 1, 0, stakerA, "1", "1"))))
	assert.Equal(t, 1, runner.Stats().Applied)
}

func TestRunCheckpointsEveryN(t *testing.T) {
	state := &memoryState{}
	runner := NewRunner(Config{StateStore: state, CheckpointEvery: 2}, staking.NewAggregator(staking.Config{}, memory.NewStore()), nil)

	lines := make([]string, 0, 5)
	for i := uint64(1); i <= 5; i++ {
		lines = append(lines, stakeLine(t, i, 0, stakerA, "1", "1"))
	}
	require.NoError(t, runner.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n"))))

	assert.Equal(t, []model.Position{{BlockNumber: 2}, {BlockNumber: 4}, {BlockNumber: 5}}, state.saves)
}

type flakyApplier struct {
	next     Applier
	failures int
	calls    int
}

func (f *flakyApplier) Apply(ctx context.Context, ev staking.Event) error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return &staking.ApplyError{Kind: staking.ErrStoreUnavailable, Event: staking.Kind(ev), TxHash: ev.Meta().TxHash, Err: errors.New("connection reset")}
	}
	return f.next.Apply(ctx, ev)
}

func TestRunRetriesStoreUnavailable(t *testing.T) {
	store := memory.NewStore()
	applier := &flakyApplier{next: staking.NewAggregator(staking.Config{}, store), failures: 2}
	runner := NewRunner(Config{MaxRetries: 3, RetryBackoff: time.Millisecond}, applier, nil)

	require.NoError(t, runner.Run(context.Background(), strings.NewReader(stakeLine(t, 1, 0, stakerA, "5", "1"))))
	assert.Equal(t, 3, applier.calls)
	storagetest.RequireAmount(t, "5", summary(t, store).TotalStakedAmount)
}

func TestRunAbortsWhenRetriesExhausted(t *testing.T) {
	store := memory.NewStore()
	state := &memoryState{}
	agg := staking.NewAggregator(staking.Config{}, store)

	calls := 0
	applier := applierFunc(func(ctx context.Context, ev staking.Event) error {
		calls++
		if ev.Meta().BlockNumber == 2 {
			return &staking.ApplyError{Kind: staking.ErrStoreUnavailable, Err: errors.New("down")}
		}
		return agg.Apply(ctx, ev)
	})
	runner := NewRunner(Config{StateStore: state, MaxRetries: 1, RetryBackoff: time.Millisecond}, applier, nil)

	var input strings.Builder
	for block := uint64(1); block <= 3; block++ {
		fmt.Fprintln(&input, stakeLine(t, block, 0, stakerA, "5", "1"))
	}

	err := runner.Run(context.Background(), strings.NewReader(input.String()))
	require.ErrorIs(t, err, staking.ErrStoreUnavailable)
	assert.Equal(t, 3, calls)
	assert.Equal(t, model.Position{BlockNumber: 1}, state.pos)
	assert.Equal(t, 1, runner.Stats().Applied)
}

type applierFunc func(ctx context.Context, ev staking.Event) error

func (f applierFunc) Apply(ctx context.Context, ev staking.Event) error { return f(ctx, ev) }

func TestRunStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(Config{}, staking.NewAggregator(staking.Config{}, memory.NewStore()), nil)
	err := runner.Run(ctx, strings.NewReader(stakeLine(t, 1, 0, stakerA, "1", "1")))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunWithDBStateStore(t *testing.T) {
	store := memory.NewStore()
	state := &DBStateStore{Store: store}
	agg := staking.NewAggregator(staking.Config{Stream: DefaultStateName}, store)
	input := strings.Join([]string{
		stakeLine(t, 1, 0, stakerA, "1", "1"),
		stakeLine(t, 2, 0, stakerA, "1", "1"),
	}, "\n")

	require.NoError(t, NewRunner(Config{StateStore: state}, agg, nil).Run(context.Background(), strings.NewReader(input)))

	second := NewRunner(Config{StateStore: state}, agg, nil)
	require.NoError(t, second.Run(context.Background(), strings.NewReader(input)))
	assert.Equal(t, 2, second.Stats().Skipped)
	storagetest.RequireAmount(t, "2", summary(t, store).TotalStakedAmount)

	pos, ok, err := storage.LoadPosition(context.Background(), store, DefaultStateName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.Position{BlockNumber: 2}, pos)
}

type failOnceState struct {
	memoryState
	failed bool
}

func (s *failOnceState) Save(ctx context.Context, pos model.Position) error {
	if !s.failed {
		s.failed = true
		return errors.New("state backend down")
	}
	return s.memoryState.Save(ctx, pos)
}

func TestRunReplayAfterLostCheckpointKeepsTotals(t *testing.T) {
	store := memory.NewStore()
	state := &failOnceState{}
	agg := staking.NewAggregator(staking.Config{Stream: DefaultStateName}, store)
	input := strings.Join([]string{
		stakeLine(t, 1, 0, stakerA, "100", "10"),
		stakeLine(t, 2, 0, stakerA, "100", "10"),
	}, "\n")

	err := NewRunner(Config{StateStore: state}, agg, nil).Run(context.Background(), strings.NewReader(input))
	require.ErrorContains(t, err, "state backend down")
	assert.False(t, state.ok)

	restarted := NewRunner(Config{StateStore: state}, agg, nil)
	require.NoError(t, restarted.Run(context.Background(), strings.NewReader(input)))
	assert.Equal(t, 0, restarted.Stats().Applied)
	assert.Equal(t, 2, restarted.Stats().Skipped)

	got := summary(t, store)
	storagetest.RequireAmount(t, "200", got.TotalStakedAmount)
	storagetest.RequireAmount(t, "20", got.TotalRewardAmount)

	pos, ok, err := storage.LoadPosition(context.Background(), store, DefaultStateName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.Position{BlockNumber: 2}, pos)
}

func TestRunRejectsValuesTheStoreRefuses(t *testing.T) {
	calls := 0
	applier := applierFunc(func(ctx context.Context, ev staking.Event) error {
		calls++
		return &staking.ApplyError{Kind: staking.ErrInvalidEvent, Err: storage.ErrNilAmount}
	})
	sink := &memorySink{}
	runner := NewRunner(Config{MaxRetries: 3, RetryBackoff: time.Millisecond, Rejects: sink}, applier, nil)

	require.NoError(t, runner.Run(context.Background(), strings.NewReader(stakeLine(t, 1, 0, stakerA, "1", "1"))))
	assert.Equal(t, 1, calls)
	require.Len(t, sink.rejected, 1)
	assert.Equal(t, ReasonInvalid, sink.rejected[0].Reason)
}

func TestRunRequiresApplier(t *testing.T) {
	err := NewRunner(Config{}, nil, nil).Run(context.Background(), strings.NewReader(""))
	require.Error(t, err)
}
