package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"stakeScope/internal/model"
)

var (
	// ErrInvalidValue marks a write the backend refuses for the value itself.
	// Retrying it cannot succeed.
	ErrInvalidValue = errors.New("invalid value")
	// ErrNilAmount is returned when a required amount is missing on write.
	ErrNilAmount = fmt.Errorf("%w: nil amount", ErrInvalidValue)
)

// Table is a keyed entity collection inside a unit of work.
// Get returns a copy; changes are only persisted through Put.
type Table[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Put(ctx context.Context, key string, value T) error
}

// Tx exposes the entity tables of one unit of work.
type Tx interface {
	AuditRecords() Table[model.AuditRecord]
	UserBalances() Table[model.UserBalance]
	StakeSummaries() Table[model.StakeSummary]
	// Positions holds named stream positions, committed together with the
	// entity writes of the same unit.
	Positions() Table[model.Position]
}

// Store persists derived staking entities.
type Store interface {
	// Update runs fn in a unit of work. Writes become visible only if fn
	// returns nil and the commit succeeds.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a consistent read; any writes are discarded.
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// LoadPosition reads the named stream position in its own unit of work.
func LoadPosition(ctx context.Context, store Store, name string) (model.Position, bool, error) {
	if name == "" {
		return model.Position{}, false, fmt.Errorf("position name required")
	}
	var (
		pos model.Position
		ok  bool
	)
	err := store.View(ctx, func(tx Tx) error {
		var err error
		pos, ok, err = tx.Positions().Get(ctx, name)
		return err
	})
	return pos, ok, err
}

// SavePosition stores the named stream position in its own unit of work.
func SavePosition(ctx context.Context, store Store, name string, pos model.Position) error {
	if name == "" {
		return fmt.Errorf("position name required")
	}
	return store.Update(ctx, func(tx Tx) error {
		return tx.Positions().Put(ctx, name, pos)
	})
}

// Upsert loads key from table. When it exists, mutate is applied and the
// result stored. When it is absent, create() is stored as-is, or nothing
// happens if create is nil. It reports whether a write was made.
func Upsert[T any](ctx context.Context, table Table[T], key string, create func() T, mutate func(*T)) (bool, error) {
	value, ok, err := table.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		if create == nil {
			return false, nil
		}
		return true, table.Put(ctx, key, create())
	}
	if mutate != nil {
		mutate(&value)
	}
	return true, table.Put(ctx, key, value)
}

// Int64 converts v for backends with signed 64-bit integer columns.
func Int64(field string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %s %d overflows int64", ErrInvalidValue, field, v)
	}
	return int64(v), nil
}
