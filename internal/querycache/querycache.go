// Package querycache maps canonical query and aggregation signatures to cached
// results.
//
// A query entry holds only the ordered ids of the result; entities are resolved
// through the object store at read time. An aggregation entry holds the raw
// result value. A put replaces the prior entry for a signature wholesale.
package querycache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/offcache/internal/store"
)

// Kind selects the cache table.
type Kind string

const (
	KindQuery       Kind = "query"
	KindAggregation Kind = "aggregation"
)

func (k Kind) table() (string, error) {
	switch k {
	case KindQuery:
		return "query_cache", nil
	case KindAggregation:
		return "aggregation_cache", nil
	default:
		return "", fmt.Errorf("unknown cache kind %q", k)
	}
}

// PutIDs caches the ordered ids for a query signature.
func PutIDs(ctx context.Context, q store.DBTX, key string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("put query cache: %w", err)
	}
	return put(ctx, q, KindQuery, key, data)
}

// GetIDs returns the cached ids for a query signature. ok is false on a miss.
func GetIDs(ctx context.Context, q store.DBTX, key string) (ids []string, ok bool, err error) {
	data, ok, err := get(ctx, q, KindQuery, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, false, fmt.Errorf("decode query cache: %w", err)
	}
	return ids, true, nil
}

// PutValue caches a raw JSON aggregation result.
func PutValue(ctx context.Context, q store.DBTX, key string, value json.RawMessage) error {
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	if !json.Valid(value) {
		return fmt.Errorf("put aggregation cache: value is not valid JSON")
	}
	return put(ctx, q, KindAggregation, key, value)
}

// GetValue returns the cached aggregation result. ok is false on a miss.
func GetValue(ctx context.Context, q store.DBTX, key string) (json.RawMessage, bool, error) {
	data, ok, err := get(ctx, q, KindAggregation, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return json.RawMessage(data), true, nil
}

// Evict removes a signature's entry. Evicting a missing entry is not an error.
func Evict(ctx context.Context, q store.DBTX, kind Kind, key string) error {
	table, err := kind.table()
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE key = ?", key); err != nil {
		return fmt.Errorf("evict %s cache: %w", kind, err)
	}
	return nil
}

// Count returns the number of entries of a kind.
func Count(ctx context.Context, q store.DBTX, kind Kind) (int, error) {
	table, err := kind.table()
	if err != nil {
		return 0, err
	}
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s cache: %w", kind, err)
	}
	return n, nil
}

func put(ctx context.Context, q store.DBTX, kind Kind, key string, data []byte) error {
	table, err := kind.table()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO `+table+` (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, string(data))
	if err != nil {
		return fmt.Errorf("put %s cache: %w", kind, err)
	}
	return nil
}

func get(ctx context.Context, q store.DBTX, kind Kind, key string) ([]byte, bool, error) {
	table, err := kind.table()
	if err != nil {
		return nil, false, err
	}
	var data string
	err = q.QueryRowContext(ctx, "SELECT value FROM "+table+" WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s cache: %w", kind, err)
	}
	return []byte(data), true, nil
}
