package staking

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

// DefaultSummaryID is the key of the contract-wide StakeSummary.
const DefaultSummaryID = "0xfa70f492d9f4fc28c8d6b9e65eac0b0aa363af7f"

// Method labels written to AuditRecord.MethodLabel.
const (
	MethodBaseInterestUpdate   = "HandleBaseInterestUpdate"
	MethodOwnershipTransferred = "OwnershipTransferred"
	MethodPause                = "Pause"
	MethodUnpause              = "UnPause"
	MethodStakeComplete        = "StakeComplete"
	MethodUnstake              = "UnStake"
)

// Config controls aggregation behavior.
type Config struct {
	// SummaryID overrides DefaultSummaryID when set.
	SummaryID string
	// Stream names a position row written in the same unit of work as every
	// applied event. Events at or before it fail with ErrAlreadyApplied.
	// Empty disables position tracking.
	Stream string
}

// Aggregator applies events to a storage.Store. It keeps no state between calls.
type Aggregator struct {
	store     storage.Store
	summaryID string
	stream    string
}

func NewAggregator(cfg Config, store storage.Store) *Aggregator {
	summaryID := strings.TrimSpace(cfg.SummaryID)
	if summaryID == "" {
		summaryID = DefaultSummaryID
	}
	return &Aggregator{store: store, summaryID: summaryID, stream: strings.TrimSpace(cfg.Stream)}
}

// SummaryID returns the key the stake summary is stored under.
func (a *Aggregator) SummaryID() string {
	return a.summaryID
}

// Apply validates ev and writes its audit record and entity updates in one
// store unit of work. On error nothing from ev is visible.
func (a *Aggregator) Apply(ctx context.Context, ev Event) error {
	if err := Validate(ev); err != nil {
		return newApplyError(ErrInvalidEvent, ev, err)
	}
	if a.store == nil {
		return newApplyError(ErrStoreUnavailable, ev, errors.New("store is nil"))
	}

	err := a.store.Update(ctx, func(tx storage.Tx) error {
		if a.stream == "" {
			return a.apply(ctx, tx, ev)
		}
		return a.applyTracked(ctx, tx, ev)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAlreadyApplied):
		return newApplyError(ErrAlreadyApplied, ev, err)
	case errors.Is(err, storage.ErrInvalidValue):
		return newApplyError(ErrInvalidEvent, ev, err)
	default:
		return newApplyError(ErrStoreUnavailable, ev, err)
	}
}

func (a *Aggregator) applyTracked(ctx context.Context, tx storage.Tx, ev Event) error {
	meta := ev.Meta()
	pos := model.Position{BlockNumber: meta.BlockNumber, LogIndex: meta.LogIndex}
	last, ok, err := tx.Positions().Get(ctx, a.stream)
	if err != nil {
		return fmt.Errorf("get position %s: %w", a.stream, err)
	}
	if ok && !pos.After(last) {
		return fmt.Errorf("%w: %s not after %s", ErrAlreadyApplied, pos, last)
	}
	if err := a.apply(ctx, tx, ev); err != nil {
		return err
	}
	if err := tx.Positions().Put(ctx, a.stream, pos); err != nil {
		return fmt.Errorf("put position %s: %w", a.stream, err)
	}
	return nil
}

func newApplyError(kind error, ev Event, err error) *ApplyError {
	applyErr := &ApplyError{Kind: kind, Event: kindUnknown, Err: err}
	if ev != nil {
		applyErr.Event = Kind(ev)
		applyErr.TxHash = ev.Meta().TxHash
	}
	return applyErr
}

func (a *Aggregator) apply(ctx context.Context, tx storage.Tx, ev Event) error {
	switch e := ev.(type) {
	case BaseInterestUpdated:
		return writeAudit(ctx, tx, e.EventMeta, e.Contract, MethodBaseInterestUpdate, nil)
	case OwnershipTransferred:
		return writeAudit(ctx, tx, e.EventMeta, e.NewOwner, MethodOwnershipTransferred, nil)
	case Paused:
		return writeAudit(ctx, tx, e.EventMeta, e.Account, MethodPause, nil)
	case Unpaused:
		return writeAudit(ctx, tx, e.EventMeta, e.Account, MethodUnpause, nil)
	case StakeCompleted:
		return a.applyStake(ctx, tx, e)
	case Unstake:
		return a.applyUnstake(ctx, tx, e)
	default:
		return fmt.Errorf("unsupported event type %T", ev)
	}
}

func (a *Aggregator) applyStake(ctx context.Context, tx storage.Tx, e StakeCompleted) error {
	if err := writeAudit(ctx, tx, e.EventMeta, e.Staker, MethodStakeComplete, e.RewardAmount); err != nil {
		return err
	}

	key := BalanceKey(e.Staker)
	_, err := storage.Upsert(ctx, tx.UserBalances(), key,
		func() model.UserBalance {
			return model.UserBalance{ID: key, AccountAddress: e.Staker.Hex(), StakedAmount: model.CloneAmount(e.RewardAmount)}
		},
		func(b *model.UserBalance) {
			b.StakedAmount = add(b.StakedAmount, e.RewardAmount)
		},
	)
	if err != nil {
		return fmt.Errorf("upsert balance %s: %w", key, err)
	}

	_, err = storage.Upsert(ctx, tx.StakeSummaries(), a.summaryID,
		func() model.StakeSummary {
			return model.StakeSummary{
				ID:                a.summaryID,
				TotalStakedAmount: model.CloneAmount(e.AltQuantity),
				TotalRewardAmount: model.CloneAmount(e.RewardAmount),
			}
		},
		func(s *model.StakeSummary) {
			s.TotalStakedAmount = add(s.TotalStakedAmount, e.AltQuantity)
			s.TotalRewardAmount = add(s.TotalRewardAmount, e.RewardAmount)
		},
	)
	if err != nil {
		return fmt.Errorf("upsert summary %s: %w", a.summaryID, err)
	}
	return nil
}

// applyUnstake overwrites the staker balance with the event quantity while the
// summary total is decremented. Both are no-ops when the entity is absent.
func (a *Aggregator) applyUnstake(ctx context.Context, tx storage.Tx, e Unstake) error {
	if err := writeAudit(ctx, tx, e.EventMeta, e.Staker, MethodUnstake, e.AltQuantity); err != nil {
		return err
	}

	key := BalanceKey(e.Staker)
	_, err := storage.Upsert(ctx, tx.UserBalances(), key, nil, func(b *model.UserBalance) {
		b.StakedAmount = model.CloneAmount(e.AltQuantity)
	})
	if err != nil {
		return fmt.Errorf("update balance %s: %w", key, err)
	}

	_, err = storage.Upsert(ctx, tx.StakeSummaries(), a.summaryID, nil, func(s *model.StakeSummary) {
		s.TotalStakedAmount = sub(s.TotalStakedAmount, e.AltQuantity)
	})
	if err != nil {
		return fmt.Errorf("update summary %s: %w", a.summaryID, err)
	}
	return nil
}

func writeAudit(ctx context.Context, tx storage.Tx, meta EventMeta, actor common.Address, method string, amount *big.Int) error {
	key := AuditKey(meta.TxHash)
	err := tx.AuditRecords().Put(ctx, key, model.AuditRecord{
		ID:           key,
		ActorAddress: actor.Hex(),
		MethodLabel:  method,
		Amount:       model.CloneAmount(amount),
		Timestamp:    meta.Timestamp,
		BlockNumber:  meta.BlockNumber,
	})
	if err != nil {
		return fmt.Errorf("put audit %s: %w", key, err)
	}
	return nil
}

// AuditKey is the AuditRecord key for a transaction.
func AuditKey(txHash common.Hash) string {
	return txHash.Hex()
}

// BalanceKey is the UserBalance key for an account.
func BalanceKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func add(total, delta *big.Int) *big.Int {
	out := new(big.Int)
	if total != nil {
		out.Set(total)
	}
	return out.Add(out, delta)
}

func sub(total, delta *big.Int) *big.Int {
	out := new(big.Int)
	if total != nil {
		out.Set(total)
	}
	return out.Sub(out, delta)
}
