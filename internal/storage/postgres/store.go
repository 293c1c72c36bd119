package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
	"stakeScope/internal/storage/postgres/migrations"
)

// Store provides Postgres persistence for staking entities.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

// Update runs fn inside a single database transaction.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newTx(tx))
	})
}

// View runs fn inside a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	return fn(newTx(tx))
}

type pgTx struct {
	audits    auditTable
	balances  balanceTable
	summaries summaryTable
	positions positionTable
}

func newTx(tx pgx.Tx) *pgTx {
	return &pgTx{
		audits:    auditTable{tx: tx},
		balances:  balanceTable{tx: tx},
		summaries: summaryTable{tx: tx},
		positions: positionTable{tx: tx},
	}
}

func (t *pgTx) AuditRecords() storage.Table[model.AuditRecord]   { return t.audits }
func (t *pgTx) UserBalances() storage.Table[model.UserBalance]   { return t.balances }
func (t *pgTx) StakeSummaries() storage.Table[model.StakeSummary] { return t.summaries }
func (t *pgTx) Positions() storage.Table[model.Position]          { return t.positions }

type auditTable struct {
	tx pgx.Tx
}

func (t auditTable) Get(ctx context.Context, key string) (model.AuditRecord, bool, error) {
	var rec model.AuditRecord
	var amount *string
	var ts, block int64
	row := t.tx.QueryRow(ctx, `
		SELECT id, actor_address, method_label, amount::text, block_timestamp, block_number
		FROM audit_records WHERE id=$1 FOR UPDATE
	`, key)
	if err := row.Scan(&rec.ID, &rec.ActorAddress, &rec.MethodLabel, &amount, &ts, &block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AuditRecord{}, false, nil
		}
		return model.AuditRecord{}, false, err
	}
	if amount != nil {
		v, err := parseAmount(*amount)
		if err != nil {
			return model.AuditRecord{}, false, err
		}
		rec.Amount = v
	}
	rec.Timestamp = uint64(ts)
	rec.BlockNumber = uint64(block)
	return rec, true, nil
}

func (t auditTable) Put(ctx context.Context, key string, rec model.AuditRecord) error {
	var amount *string
	if rec.Amount != nil {
		v := rec.Amount.String()
		amount = &v
	}
	ts, err := storage.Int64("block_timestamp", rec.Timestamp)
	if err != nil {
		return err
	}
	block, err := storage.Int64("block_number", rec.BlockNumber)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO audit_records (
			id, actor_address, method_label, amount, block_timestamp, block_number, created_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, now(), now())
		ON CONFLICT (id)
		DO UPDATE SET
			actor_address = EXCLUDED.actor_address,
			method_label = EXCLUDED.method_label,
			amount = EXCLUDED.amount,
			block_timestamp = EXCLUDED.block_timestamp,
			block_number = EXCLUDED.block_number,
			updated_at = now()
	`,
		key,
		rec.ActorAddress,
		rec.MethodLabel,
		amount,
		ts,
		block,
	)
	return classify(err)
}

type balanceTable struct {
	tx pgx.Tx
}

func (t balanceTable) Get(ctx context.Context, key string) (model.UserBalance, bool, error) {
	var b model.UserBalance
	var staked string
	row := t.tx.QueryRow(ctx, `
		SELECT id, account_address, staked_amount::text FROM user_balances WHERE id=$1 FOR UPDATE
	`, key)
	if err := row.Scan(&b.ID, &b.AccountAddress, &staked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.UserBalance{}, false, nil
		}
		return model.UserBalance{}, false, err
	}
	v, err := parseAmount(staked)
	if err != nil {
		return model.UserBalance{}, false, err
	}
	b.StakedAmount = v
	return b, true, nil
}

func (t balanceTable) Put(ctx context.Context, key string, b model.UserBalance) error {
	if b.StakedAmount == nil {
		return fmt.Errorf("user balance %s: %w", key, storage.ErrNilAmount)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO user_balances (id, account_address, staked_amount, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, now(), now())
		ON CONFLICT (id)
		DO UPDATE SET
			account_address = EXCLUDED.account_address,
			staked_amount = EXCLUDED.staked_amount,
			updated_at = now()
	`, key, b.AccountAddress, b.StakedAmount.String())
	return classify(err)
}

type summaryTable struct {
	tx pgx.Tx
}

func (t summaryTable) Get(ctx context.Context, key string) (model.StakeSummary, bool, error) {
	var s model.StakeSummary
	var staked, reward string
	row := t.tx.QueryRow(ctx, `
		SELECT id, total_staked_amount::text, total_reward_amount::text
		FROM stake_summaries WHERE id=$1 FOR UPDATE
	`, key)
	if err := row.Scan(&s.ID, &staked, &reward); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.StakeSummary{}, false, nil
		}
		return model.StakeSummary{}, false, err
	}
	var err error
	if s.TotalStakedAmount, err = parseAmount(staked); err != nil {
		return model.StakeSummary{}, false, err
	}
	if s.TotalRewardAmount, err = parseAmount(reward); err != nil {
		return model.StakeSummary{}, false, err
	}
	return s, true, nil
}

func (t summaryTable) Put(ctx context.Context, key string, s model.StakeSummary) error {
	if s.TotalStakedAmount == nil || s.TotalRewardAmount == nil {
		return fmt.Errorf("stake summary %s: %w", key, storage.ErrNilAmount)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stake_summaries (id, total_staked_amount, total_reward_amount, created_at, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, now(), now())
		ON CONFLICT (id)
		DO UPDATE SET
			total_staked_amount = EXCLUDED.total_staked_amount,
			total_reward_amount = EXCLUDED.total_reward_amount,
			updated_at = now()
	`, key, s.TotalStakedAmount.String(), s.TotalRewardAmount.String())
	return classify(err)
}

type positionTable struct {
	tx pgx.Tx
}

func (t positionTable) Get(ctx context.Context, name string) (model.Position, bool, error) {
	var block, logIndex int64
	row := t.tx.QueryRow(ctx, `SELECT last_block, last_log_index FROM indexer_state WHERE name=$1 FOR UPDATE`, name)
	if err := row.Scan(&block, &logIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Position{}, false, nil
		}
		return model.Position{}, false, err
	}
	return model.Position{BlockNumber: uint64(block), LogIndex: uint64(logIndex)}, true, nil
}

func (t positionTable) Put(ctx context.Context, name string, pos model.Position) error {
	block, err := storage.Int64("last_block", pos.BlockNumber)
	if err != nil {
		return err
	}
	logIndex, err := storage.Int64("last_log_index", pos.LogIndex)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO indexer_state (name, last_block, last_log_index, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET last_block = EXCLUDED.last_block, last_log_index = EXCLUDED.last_log_index, updated_at = now()
	`, name, block, logIndex)
	return err
}

// classify marks Postgres data exceptions (SQLSTATE class 22) as invalid
// values. Anything else is left for the caller to treat as unavailable.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "22") {
		return fmt.Errorf("%w: %w", storage.ErrInvalidValue, err)
	}
	return err
}

func parseAmount(value string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric: %s", value)
	}
	return v, nil
}
