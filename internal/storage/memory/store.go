package memory

import (
	"context"
	"sync"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

// Store keeps entities in process memory. Units of work are serialized and
// staged writes are merged only when the unit succeeds.
type Store struct {
	mu        sync.Mutex
	audits    map[string]model.AuditRecord
	balances  map[string]model.UserBalance
	summaries map[string]model.StakeSummary
	states    map[string]model.Position
}

func NewStore() *Store {
	return &Store{
		audits:    make(map[string]model.AuditRecord),
		balances:  make(map[string]model.UserBalance),
		summaries: make(map[string]model.StakeSummary),
		states:    make(map[string]model.Position),
	}
}

func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, fn, true)
}

func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, fn, false)
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) run(ctx context.Context, fn func(tx storage.Tx) error, commit bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		audits:    newTable(s.audits, model.AuditRecord.Clone),
		balances:  newTable(s.balances, model.UserBalance.Clone),
		summaries: newTable(s.summaries, model.StakeSummary.Clone),
		positions: newTable(s.states, func(p model.Position) model.Position { return p }),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if commit {
		tx.audits.commit()
		tx.balances.commit()
		tx.summaries.commit()
		tx.positions.commit()
	}
	return nil
}

type memTx struct {
	audits    *table[model.AuditRecord]
	balances  *table[model.UserBalance]
	summaries *table[model.StakeSummary]
	positions *table[model.Position]
}

func (t *memTx) AuditRecords() storage.Table[model.AuditRecord]   { return t.audits }
func (t *memTx) UserBalances() storage.Table[model.UserBalance]   { return t.balances }
func (t *memTx) StakeSummaries() storage.Table[model.StakeSummary] { return t.summaries }
func (t *memTx) Positions() storage.Table[model.Position]          { return t.positions }

type table[T any] struct {
	base    map[string]T
	pending map[string]T
	clone   func(T) T
}

func newTable[T any](base map[string]T, clone func(T) T) *table[T] {
	return &table[T]{base: base, pending: make(map[string]T), clone: clone}
}

func (t *table[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if value, ok := t.pending[key]; ok {
		return t.clone(value), true, nil
	}
	if value, ok := t.base[key]; ok {
		return t.clone(value), true, nil
	}
	return zero, false, nil
}

func (t *table[T]) Put(ctx context.Context, key string, value T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.pending[key] = t.clone(value)
	return nil
}

func (t *table[T]) commit() {
	for key, value := range t.pending {
		t.base[key] = value
	}
}
