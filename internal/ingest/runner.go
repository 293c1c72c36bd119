// Package ingest feeds decoded staking events from a JSONL stream into the
// aggregator, with resume, dedupe, retries and a reject sink around it.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stakeScope/internal/metrics"
	"stakeScope/internal/model"
	"stakeScope/internal/staking"
)

// Reject and skip reasons, used as metric labels and in the reject sink.
const (
	ReasonMalformed   = "malformed"
	ReasonInvalid     = "invalid"
	ReasonOutOfOrder  = "out_of_order"
	ReasonCheckpoint  = "checkpoint"
	ReasonDuplicate   = "duplicate"
	ReasonContract    = "contract"
	ReasonUnsupported = "unsupported"
)

const maxLineBytes = 10 * 1024 * 1024

// Applier applies one event. *staking.Aggregator implements it.
type Applier interface {
	Apply(ctx context.Context, ev staking.Event) error
}

// Config controls the ingestion loop.
type Config struct {
	// Contracts limits processing to these emitting contracts. Empty accepts all.
	Contracts       []common.Address
	CheckpointEvery int
	MaxRetries      int
	RetryBackoff    time.Duration
	StateStore      StateStore
	Rejects         RejectSink
}

// Stats counts what happened to the records of one Run.
type Stats struct {
	Total    int
	Applied  int
	Skipped  int
	Rejected int
}

// Runner reads decoded events and applies them in stream order.
type Runner struct {
	cfg       Config
	applier   Applier
	logger    *zap.Logger
	contracts map[common.Address]struct{}
	seen      map[string]struct{}
	stats     Stats

	last        model.Position
	hasLast     bool
	unsaved     int
	checkpoint  model.Position
	hasResumeAt bool
}

func NewRunner(cfg Config, applier Applier, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 100
	}
	contracts := make(map[common.Address]struct{}, len(cfg.Contracts))
	for _, addr := range cfg.Contracts {
		contracts[addr] = struct{}{}
	}
	return &Runner{
		cfg:       cfg,
		applier:   applier,
		logger:    logger,
		contracts: contracts,
		seen:      make(map[string]struct{}),
	}
}

// Stats returns the counters of the last Run.
func (r *Runner) Stats() Stats {
	return r.stats
}

// Run processes every line of input. It stops on the first error that is not
// attributable to a single record, saving the last applied position first.
func (r *Runner) Run(ctx context.Context, input io.Reader) error {
	if r.applier == nil {
		return fmt.Errorf("applier is nil")
	}
	if input == nil {
		return fmt.Errorf("input is nil")
	}
	r.stats = Stats{}

	if err := r.loadCheckpoint(ctx); err != nil {
		return err
	}

	scanner := bufio.NewScanner(input)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return r.abort(ctx, err)
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		r.stats.Total++

		if err := r.handleLine(ctx, line); err != nil {
			return r.abort(ctx, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return r.abort(ctx, fmt.Errorf("scan input: %w", err))
	}

	if err := r.saveCheckpoint(ctx); err != nil {
		return err
	}

	r.logger.Info("aggregate complete",
		zap.Int("total", r.stats.Total),
		zap.Int("applied", r.stats.Applied),
		zap.Int("skipped", r.stats.Skipped),
		zap.Int("rejected", r.stats.Rejected),
	)
	return nil
}

func (r *Runner) handleLine(ctx context.Context, line []byte) error {
	var record model.EventRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return r.reject(record, ReasonMalformed, err)
	}

	if len(r.contracts) > 0 && !r.acceptsContract(record.Address) {
		r.skip(record, ReasonContract)
		return nil
	}

	pos := record.Position()
	if r.hasResumeAt && !pos.After(r.checkpoint) {
		r.skip(record, ReasonCheckpoint)
		return nil
	}
	if r.isDuplicate(record) {
		r.skip(record, ReasonDuplicate)
		return nil
	}

	ev, err := staking.FromRecord(record)
	if err != nil {
		if errors.Is(err, staking.ErrUnsupportedEvent) {
			r.skip(record, ReasonUnsupported)
			return nil
		}
		return r.reject(record, ReasonInvalid, err)
	}

	if r.hasLast && !pos.After(r.last) {
		return r.reject(record, ReasonOutOfOrder, fmt.Errorf("position %s not after %s", pos, r.last))
	}

	kind := staking.Kind(ev)
	started := time.Now()
	err = r.applyWithRetry(ctx, ev)
	metrics.ApplyDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
	if err != nil {
		if errors.Is(err, staking.ErrAlreadyApplied) {
			r.skip(record, ReasonCheckpoint)
			return nil
		}
		if errors.Is(err, staking.ErrInvalidEvent) {
			return r.reject(record, ReasonInvalid, err)
		}
		return fmt.Errorf("apply %s at %s: %w", kind, pos, err)
	}

	r.stats.Applied++
	r.last = pos
	r.hasLast = true
	r.unsaved++
	metrics.EventsApplied.WithLabelValues(kind).Inc()
	metrics.LastAppliedBlock.Set(float64(pos.BlockNumber))

	if r.unsaved >= r.cfg.CheckpointEvery {
		return r.saveCheckpoint(ctx)
	}
	return nil
}

func (r *Runner) applyWithRetry(ctx context.Context, ev staking.Event) error {
	policy := retryPolicy{
		maxRetries: r.cfg.MaxRetries,
		baseDelay:  r.cfg.RetryBackoff,
		retryable: func(err error) bool {
			return errors.Is(err, staking.ErrStoreUnavailable)
		},
		onRetry: func(attempt int, delay time.Duration, err error) {
			metrics.ApplyRetries.Inc()
			r.logger.Warn("apply failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.String("tx", ev.Meta().TxHash.Hex()),
				zap.Error(err),
			)
		},
	}
	return policy.do(ctx, func(ctx context.Context) error {
		return r.applier.Apply(ctx, ev)
	})
}

func (r *Runner) acceptsContract(address string) bool {
	if !common.IsHexAddress(address) {
		return false
	}
	_, ok := r.contracts[common.HexToAddress(address)]
	return ok
}

func (r *Runner) isDuplicate(record model.EventRecord) bool {
	id := fmt.Sprintf("%d:%s:%d", record.BlockNumber, strings.ToLower(record.TxHash), record.LogIndex)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}

func (r *Runner) skip(record model.EventRecord, reason string) {
	r.stats.Skipped++
	metrics.EventsSkipped.WithLabelValues(reason).Inc()
	r.logger.Debug("skip event",
		zap.String("reason", reason),
		zap.String("event", record.EventName),
		zap.String("tx", record.TxHash),
		zap.Uint64("block", record.BlockNumber),
	)
}

func (r *Runner) reject(record model.EventRecord, reason string, cause error) error {
	r.stats.Rejected++
	metrics.EventsRejected.WithLabelValues(reason).Inc()
	r.logger.Warn("reject event",
		zap.String("reason", reason),
		zap.String("event", record.EventName),
		zap.String("tx", record.TxHash),
		zap.Uint64("block", record.BlockNumber),
		zap.Error(cause),
	)
	if r.cfg.Rejects == nil {
		return nil
	}
	if err := r.cfg.Rejects.Write(model.RejectedFromRecord(record, reason, cause)); err != nil {
		return fmt.Errorf("write reject: %w", err)
	}
	return nil
}

func (r *Runner) loadCheckpoint(ctx context.Context) error {
	r.hasResumeAt = false
	r.hasLast = false
	r.unsaved = 0
	if r.cfg.StateStore == nil {
		return nil
	}
	pos, ok, err := r.cfg.StateStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return nil
	}
	r.checkpoint = pos
	r.hasResumeAt = true
	r.last = pos
	r.hasLast = true
	r.logger.Info("resume from checkpoint", zap.Stringer("position", pos))
	return nil
}

func (r *Runner) saveCheckpoint(ctx context.Context) error {
	if r.cfg.StateStore == nil || r.unsaved == 0 {
		return nil
	}
	if err := r.cfg.StateStore.Save(ctx, r.last); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	r.unsaved = 0
	return nil
}

// abort keeps the progress made so far before returning cause.
func (r *Runner) abort(ctx context.Context, cause error) error {
	if err := r.saveCheckpoint(context.WithoutCancel(ctx)); err != nil {
		r.logger.Error("save state on abort", zap.Error(err))
	}
	r.logger.Error("aggregate aborted",
		zap.Int("total", r.stats.Total),
		zap.Int("applied", r.stats.Applied),
		zap.Int("skipped", r.stats.Skipped),
		zap.Int("rejected", r.stats.Rejected),
		zap.Error(cause),
	)
	return cause
}
