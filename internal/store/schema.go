package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const collectionPrefix = "col_"

// ValidateCollection rejects names that cannot back a table.
func ValidateCollection(name string) error {
	if name == "" {
		return InvalidArgument("collection name is required")
	}
	if strings.ContainsRune(name, 0) {
		return InvalidArgument("collection name %q contains NUL", name)
	}
	return nil
}

// CollectionTable returns the quoted table name backing a collection.
func CollectionTable(collection string) string {
	return quoteIdent(collectionPrefix + collection)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// HasCollection reports whether the collection's table exists.
func HasCollection(ctx context.Context, q DBTX, collection string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		collectionPrefix+collection,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("look up collection %q: %w", collection, err)
	}
	return n > 0, nil
}

// CreateCollection returns an upgrade that creates the collection's table.
func CreateCollection(collection string) UpgradeFunc {
	return func(ctx context.Context, tx *sql.Tx, _, _ int) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id       TEXT PRIMARY KEY,
				document TEXT NOT NULL,
				lmt      TEXT
			) WITHOUT ROWID`, CollectionTable(collection)))
		if err != nil {
			return fmt.Errorf("create collection %q: %w", collection, err)
		}
		return nil
	}
}

// DropAll is an upgrade that drops every table, collections and auxiliary
// tables alike. The base layout is recreated empty by the same mutation.
func DropAll(ctx context.Context, tx *sql.Tx, _, _ int) error {
	names, err := tableNames(ctx, tx, "")
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(name)); err != nil {
			return fmt.Errorf("drop table %q: %w", name, err)
		}
	}
	return nil
}

// ListCollections returns collection names in ascending order.
func ListCollections(ctx context.Context, q DBTX) ([]string, error) {
	names, err := tableNames(ctx, q, collectionPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.TrimPrefix(n, collectionPrefix)
	}
	return out, nil
}

func tableNames(ctx context.Context, q DBTX, prefix string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}
