// Package txlog is the per-collection log of local mutations awaiting sync.
//
// Each collection has at most one pending changeset mapping entity id to the
// last-modified timestamp recorded with the first mutation of that id since the
// previous sync. Later mutations of the same id do not touch the entry.
//
// All functions take a store.DBTX so appends can share the transaction that
// mutates the record.
package txlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/offcache/internal/store"
)

// Change is one pending mutation. TS is nil when the record carried no
// last-modified timestamp.
type Change struct {
	TS *string `json:"ts"`
}

// Changeset maps entity id to its pending change.
type Changeset map[string]Change

// IDs returns the changeset's ids in ascending order.
func (c Changeset) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Entry is a collection's pending changeset.
type Entry struct {
	Collection string    `json:"collection"`
	Changeset  Changeset `json:"changeset"`
}

// Append records a mutation of id unless id is already pending.
// Returns true if a new change was recorded.
func Append(ctx context.Context, q store.DBTX, collection, id string, ts *string) (bool, error) {
	cs, err := load(ctx, q, collection)
	if err != nil {
		return false, err
	}
	if cs == nil {
		cs = Changeset{}
	}
	if _, pending := cs[id]; pending {
		return false, nil
	}
	cs[id] = Change{TS: ts}

	data, err := json.Marshal(cs)
	if err != nil {
		return false, fmt.Errorf("append log %q: %w", collection, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO transaction_log (collection, changeset) VALUES (?, ?)
		ON CONFLICT(collection) DO UPDATE SET changeset = excluded.changeset
	`, collection, string(data))
	if err != nil {
		return false, fmt.Errorf("append log %q: %w", collection, err)
	}
	return true, nil
}

// Peek returns the collection's pending entry without consuming it.
// Returns nil if nothing is pending.
func Peek(ctx context.Context, q store.DBTX, collection string) (*Entry, error) {
	cs, err := load(ctx, q, collection)
	if err != nil || cs == nil {
		return nil, err
	}
	return &Entry{Collection: collection, Changeset: cs}, nil
}

// Dequeue reads and deletes the collection's entry in one transaction.
// Returns nil if nothing is pending.
func Dequeue(ctx context.Context, db *sql.DB, collection string) (*Entry, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dequeue log %q: %w", collection, err)
	}
	defer tx.Rollback()

	cs, err := load(ctx, tx, collection)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transaction_log WHERE collection = ?`, collection); err != nil {
		return nil, fmt.Errorf("dequeue log %q: %w", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dequeue log %q: %w", collection, err)
	}
	return &Entry{Collection: collection, Changeset: cs}, nil
}

// Collections returns the collections with a pending entry, ascending.
func Collections(ctx context.Context, q store.DBTX) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT collection FROM transaction_log ORDER BY collection ASC`)
	if err != nil {
		return nil, fmt.Errorf("list log collections: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("list log collections: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list log collections: %w", err)
	}
	return out, nil
}

func load(ctx context.Context, q store.DBTX, collection string) (Changeset, error) {
	var data string
	err := q.QueryRowContext(ctx,
		`SELECT changeset FROM transaction_log WHERE collection = ?`, collection,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log %q: %w", collection, err)
	}

	var cs Changeset
	if err := json.Unmarshal([]byte(data), &cs); err != nil {
		return nil, fmt.Errorf("decode log %q: %w", collection, err)
	}
	if cs == nil {
		cs = Changeset{}
	}
	return cs, nil
}
