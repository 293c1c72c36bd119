package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

const DefaultPrefix = "stakescope"

// Store keeps each entity as a Redis hash under <prefix>:<table>:<key>.
// A unit of work watches every key it reads and commits its staged writes in
// one MULTI/EXEC, so a concurrent writer aborts the unit instead of racing it.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// NewStore connects to the Redis server at url.
func NewStore(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewStoreFromClient(rdb, prefix), nil
}

// NewStoreFromClient wraps an existing client. An empty prefix uses DefaultPrefix.
func NewStoreFromClient(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, fn, true)
}

func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, fn, false)
}

func (s *Store) run(ctx context.Context, fn func(tx storage.Tx) error, commit bool) error {
	return s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
		tx := s.newTx(rtx)
		if err := fn(tx); err != nil {
			return err
		}
		if !commit || len(tx.writes) == 0 {
			return nil
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range tx.writes {
				pipe.Del(ctx, w.key)
				pipe.HSet(ctx, w.key, w.values())
			}
			return nil
		})
		return err
	})
}

func (s *Store) key(table, id string) string {
	return s.prefix + ":" + table + ":" + id
}

type write struct {
	key    string
	fields map[string]string
}

func (w write) values() map[string]interface{} {
	out := make(map[string]interface{}, len(w.fields))
	for k, v := range w.fields {
		out[k] = v
	}
	return out
}

type redisTx struct {
	rtx    *redis.Tx
	writes []write
	staged map[string]map[string]string

	audits    *hashTable[model.AuditRecord]
	balances  *hashTable[model.UserBalance]
	summaries *hashTable[model.StakeSummary]
	positions *hashTable[model.Position]
}

func (s *Store) newTx(rtx *redis.Tx) *redisTx {
	tx := &redisTx{rtx: rtx, staged: make(map[string]map[string]string)}
	tx.audits = &hashTable[model.AuditRecord]{tx: tx, keyFn: func(id string) string { return s.key("audit", id) }, encode: encodeAudit, decode: decodeAudit}
	tx.balances = &hashTable[model.UserBalance]{tx: tx, keyFn: func(id string) string { return s.key("balance", id) }, encode: encodeBalance, decode: decodeBalance}
	tx.summaries = &hashTable[model.StakeSummary]{tx: tx, keyFn: func(id string) string { return s.key("summary", id) }, encode: encodeSummary, decode: decodeSummary}
	tx.positions = &hashTable[model.Position]{tx: tx, keyFn: func(name string) string { return s.key("state", name) }, encode: encodePosition, decode: decodePosition}
	return tx
}

func (t *redisTx) AuditRecords() storage.Table[model.AuditRecord]   { return t.audits }
func (t *redisTx) UserBalances() storage.Table[model.UserBalance]   { return t.balances }
func (t *redisTx) StakeSummaries() storage.Table[model.StakeSummary] { return t.summaries }
func (t *redisTx) Positions() storage.Table[model.Position]          { return t.positions }

type hashTable[T any] struct {
	tx     *redisTx
	keyFn  func(id string) string
	encode func(id string, value T) (map[string]string, error)
	decode func(fields map[string]string) (T, error)
}

func (h *hashTable[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	key := h.keyFn(id)
	if fields, ok := h.tx.staged[key]; ok {
		value, err := h.decode(fields)
		return value, err == nil, err
	}
	if err := h.tx.rtx.Watch(ctx, key).Err(); err != nil {
		return zero, false, err
	}
	fields, err := h.tx.rtx.HGetAll(ctx, key).Result()
	if err != nil {
		return zero, false, err
	}
	if len(fields) == 0 {
		return zero, false, nil
	}
	value, err := h.decode(fields)
	if err != nil {
		return zero, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return value, true, nil
}

func (h *hashTable[T]) Put(ctx context.Context, id string, value T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fields, err := h.encode(id, value)
	if err != nil {
		return err
	}
	key := h.keyFn(id)
	h.tx.staged[key] = fields
	h.tx.writes = append(h.tx.writes, write{key: key, fields: fields})
	return nil
}

func encodeAudit(id string, rec model.AuditRecord) (map[string]string, error) {
	fields := map[string]string{
		"id":              id,
		"actor_address":   rec.ActorAddress,
		"method_label":    rec.MethodLabel,
		"block_timestamp": strconv.FormatUint(rec.Timestamp, 10),
		"block_number":    strconv.FormatUint(rec.BlockNumber, 10),
	}
	if rec.Amount != nil {
		fields["amount"] = rec.Amount.String()
	}
	return fields, nil
}

func decodeAudit(fields map[string]string) (model.AuditRecord, error) {
	rec := model.AuditRecord{
		ID:           fields["id"],
		ActorAddress: fields["actor_address"],
		MethodLabel:  fields["method_label"],
	}
	var err error
	if rec.Timestamp, err = parseUint(fields, "block_timestamp"); err != nil {
		return model.AuditRecord{}, err
	}
	if rec.BlockNumber, err = parseUint(fields, "block_number"); err != nil {
		return model.AuditRecord{}, err
	}
	if raw, ok := fields["amount"]; ok {
		if rec.Amount, err = parseAmount(raw); err != nil {
			return model.AuditRecord{}, err
		}
	}
	return rec, nil
}

func encodeBalance(id string, b model.UserBalance) (map[string]string, error) {
	if b.StakedAmount == nil {
		return nil, fmt.Errorf("user balance %s: %w", id, storage.ErrNilAmount)
	}
	return map[string]string{
		"id":              id,
		"account_address": b.AccountAddress,
		"staked_amount":   b.StakedAmount.String(),
	}, nil
}

func decodeBalance(fields map[string]string) (model.UserBalance, error) {
	staked, err := parseAmount(fields["staked_amount"])
	if err != nil {
		return model.UserBalance{}, err
	}
	return model.UserBalance{
		ID:             fields["id"],
		AccountAddress: fields["account_address"],
		StakedAmount:   staked,
	}, nil
}

func encodeSummary(id string, s model.StakeSummary) (map[string]string, error) {
	if s.TotalStakedAmount == nil || s.TotalRewardAmount == nil {
		return nil, fmt.Errorf("stake summary %s: %w", id, storage.ErrNilAmount)
	}
	return map[string]string{
		"id":                  id,
		"total_staked_amount": s.TotalStakedAmount.String(),
		"total_reward_amount": s.TotalRewardAmount.String(),
	}, nil
}

func decodeSummary(fields map[string]string) (model.StakeSummary, error) {
	staked, err := parseAmount(fields["total_staked_amount"])
	if err != nil {
		return model.StakeSummary{}, err
	}
	reward, err := parseAmount(fields["total_reward_amount"])
	if err != nil {
		return model.StakeSummary{}, err
	}
	return model.StakeSummary{ID: fields["id"], TotalStakedAmount: staked, TotalRewardAmount: reward}, nil
}

func encodePosition(_ string, pos model.Position) (map[string]string, error) {
	return map[string]string{
		"last_block":     strconv.FormatUint(pos.BlockNumber, 10),
		"last_log_index": strconv.FormatUint(pos.LogIndex, 10),
	}, nil
}

func decodePosition(fields map[string]string) (model.Position, error) {
	block, err := parseUint(fields, "last_block")
	if err != nil {
		return model.Position{}, err
	}
	logIndex, err := parseUint(fields, "last_log_index")
	if err != nil {
		return model.Position{}, err
	}
	return model.Position{BlockNumber: block, LogIndex: logIndex}, nil
}

func parseUint(fields map[string]string, name string) (uint64, error) {
	v, err := strconv.ParseUint(fields[name], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return v, nil
}

func parseAmount(value string) (*big.Int, error) {
	v, ok := model.ParseAmount(value)
	if !ok || v == nil {
		return nil, fmt.Errorf("invalid amount: %q", value)
	}
	return v, nil
}
