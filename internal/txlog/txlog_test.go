package txlog

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offcache/internal/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	m := store.NewManager(filepath.Join(t.TempDir(), "test.db"),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { m.Close() })
	h, err := m.Open(context.Background())
	require.NoError(t, err)
	return h.DB()
}

func ts(s string) *string { return &s }

func TestAppend_FirstWriteWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	added, err := Append(ctx, db, "books", "k1", ts("2024-01-01T00:00:00Z"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = Append(ctx, db, "books", "k1", ts("2024-06-01T00:00:00Z"))
	require.NoError(t, err)
	assert.False(t, added)

	added, err = Append(ctx, db, "books", "k1", nil)
	require.NoError(t, err)
	assert.False(t, added)

	e, err := Peek(ctx, db, "books")
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Len(t, e.Changeset, 1)
	require.NotNil(t, e.Changeset["k1"].TS)
	assert.Equal(t, "2024-01-01T00:00:00Z", *e.Changeset["k1"].TS)
}

func TestAppend_NilTimestamp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := Append(ctx, db, "books", "k1", nil)
	require.NoError(t, err)

	e, err := Peek(ctx, db, "books")
	require.NoError(t, err)
	assert.Nil(t, e.Changeset["k1"].TS)
}

func TestAppend_CollectionsAreIndependent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := Append(ctx, db, "books", "k1", nil)
	require.NoError(t, err)
	_, err = Append(ctx, db, "films", "k1", nil)
	require.NoError(t, err)
	_, err = Append(ctx, db, "books", "k2", nil)
	require.NoError(t, err)

	books, err := Peek(ctx, db, "books")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, books.Changeset.IDs())

	films, err := Peek(ctx, db, "films")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, films.Changeset.IDs())

	cols, err := Collections(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"books", "films"}, cols)
}

func TestAppend_RollsBackWithTransaction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = Append(ctx, tx, "books", "k1", nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	e, err := Peek(ctx, db, "books")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestDequeue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := Append(ctx, db, "books", "b", ts("t2"))
	require.NoError(t, err)
	_, err = Append(ctx, db, "books", "a", ts("t1"))
	require.NoError(t, err)

	e, err := Dequeue(ctx, db, "books")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "books", e.Collection)
	assert.Equal(t, []string{"a", "b"}, e.Changeset.IDs())

	again, err := Dequeue(ctx, db, "books")
	require.NoError(t, err)
	assert.Nil(t, again)

	// A new interval starts fresh: the id records its new timestamp.
	_, err = Append(ctx, db, "books", "a", ts("t3"))
	require.NoError(t, err)
	e, err = Peek(ctx, db, "books")
	require.NoError(t, err)
	assert.Equal(t, "t3", *e.Changeset["a"].TS)
}

func TestDequeue_Absent(t *testing.T) {
	db := newTestDB(t)

	e, err := Dequeue(context.Background(), db, "nothing")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestChangeset_JSONShape(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := Append(ctx, db, "books", "k1", ts("t1"))
	require.NoError(t, err)
	_, err = Append(ctx, db, "books", "k2", nil)
	require.NoError(t, err)

	var raw string
	require.NoError(t, db.QueryRow(`SELECT changeset FROM transaction_log WHERE collection = 'books'`).Scan(&raw))
	assert.JSONEq(t, `{"k1":{"ts":"t1"},"k2":{"ts":null}}`, raw)
}
