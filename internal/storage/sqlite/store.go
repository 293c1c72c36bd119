// Package sqlite provides a SQLite-backed staking entity store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
	"stakeScope/internal/storage/sqlite/migrations"
)

// Store persists staking entities in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; also keeps units of work from interleaving.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func migrate(sqlDB *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(sqlDB, ".")
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Update runs fn inside a single SQLite transaction.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(newTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// View runs fn inside a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	return fn(newTx(tx))
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

type sqliteTx struct {
	audits    auditTable
	balances  balanceTable
	summaries summaryTable
	positions positionTable
}

func newTx(tx *sql.Tx) *sqliteTx {
	return &sqliteTx{
		audits:    auditTable{tx: tx},
		balances:  balanceTable{tx: tx},
		summaries: summaryTable{tx: tx},
		positions: positionTable{tx: tx},
	}
}

func (t *sqliteTx) AuditRecords() storage.Table[model.AuditRecord]   { return t.audits }
func (t *sqliteTx) UserBalances() storage.Table[model.UserBalance]   { return t.balances }
func (t *sqliteTx) StakeSummaries() storage.Table[model.StakeSummary] { return t.summaries }
func (t *sqliteTx) Positions() storage.Table[model.Position]          { return t.positions }

type auditTable struct {
	tx *sql.Tx
}

func (t auditTable) Get(ctx context.Context, key string) (model.AuditRecord, bool, error) {
	var rec model.AuditRecord
	var amount sql.NullString
	var ts, block int64
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, actor_address, method_label, amount, block_timestamp, block_number
		FROM audit_records WHERE id = ?
	`, key)
	if err := row.Scan(&rec.ID, &rec.ActorAddress, &rec.MethodLabel, &amount, &ts, &block); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AuditRecord{}, false, nil
		}
		return model.AuditRecord{}, false, err
	}
	if amount.Valid {
		v, err := parseAmount(amount.String)
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
	var amount sql.NullString
	if rec.Amount != nil {
		amount = sql.NullString{String: rec.Amount.String(), Valid: true}
	}
	ts, err := storage.Int64("block_timestamp", rec.Timestamp)
	if err != nil {
		return err
	}
	block, err := storage.Int64("block_number", rec.BlockNumber)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO audit_records (id, actor_address, method_label, amount, block_timestamp, block_number, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			actor_address = excluded.actor_address,
			method_label = excluded.method_label,
			amount = excluded.amount,
			block_timestamp = excluded.block_timestamp,
			block_number = excluded.block_number,
			updated_at = excluded.updated_at
	`, key, rec.ActorAddress, rec.MethodLabel, amount, ts, block, nowMillis())
	return err
}

type balanceTable struct {
	tx *sql.Tx
}

func (t balanceTable) Get(ctx context.Context, key string) (model.UserBalance, bool, error) {
	var b model.UserBalance
	var staked string
	row := t.tx.QueryRowContext(ctx, `SELECT id, account_address, staked_amount FROM user_balances WHERE id = ?`, key)
	if err := row.Scan(&b.ID, &b.AccountAddress, &staked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO user_balances (id, account_address, staked_amount, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			account_address = excluded.account_address,
			staked_amount = excluded.staked_amount,
			updated_at = excluded.updated_at
	`, key, b.AccountAddress, b.StakedAmount.String(), nowMillis())
	return err
}

type summaryTable struct {
	tx *sql.Tx
}

func (t summaryTable) Get(ctx context.Context, key string) (model.StakeSummary, bool, error) {
	var s model.StakeSummary
	var staked, reward string
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, total_staked_amount, total_reward_amount FROM stake_summaries WHERE id = ?
	`, key)
	if err := row.Scan(&s.ID, &staked, &reward); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stake_summaries (id, total_staked_amount, total_reward_amount, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			total_staked_amount = excluded.total_staked_amount,
			total_reward_amount = excluded.total_reward_amount,
			updated_at = excluded.updated_at
	`, key, s.TotalStakedAmount.String(), s.TotalRewardAmount.String(), nowMillis())
	return err
}

type positionTable struct {
	tx *sql.Tx
}

func (t positionTable) Get(ctx context.Context, name string) (model.Position, bool, error) {
	var block, logIndex int64
	row := t.tx.QueryRowContext(ctx, `SELECT last_block, last_log_index FROM indexer_state WHERE name = ?`, name)
	if err := row.Scan(&block, &logIndex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO indexer_state (name, last_block, last_log_index, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			last_block = excluded.last_block,
			last_log_index = excluded.last_log_index,
			updated_at = excluded.updated_at
	`, name, block, logIndex, nowMillis())
	return err
}

func parseAmount(value string) (*big.Int, error) {
	v, ok := model.ParseAmount(value)
	if !ok || v == nil {
		return nil, fmt.Errorf("invalid amount: %q", value)
	}
	return v, nil
}
