package querycache

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offcache/internal/store"
)

func newTestDB(t *testing.T) store.DBTX {
	t.Helper()
	m := store.NewManager(filepath.Join(t.TempDir(), "test.db"),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { m.Close() })
	h, err := m.Open(context.Background())
	require.NoError(t, err)
	return h.DB()
}

func TestIDs_PutReplacesWholesale(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, PutIDs(ctx, db, "sig", []string{"a", "b", "c"}))
	require.NoError(t, PutIDs(ctx, db, "sig", []string{"d"}))

	ids, ok, err := GetIDs(ctx, db, "sig")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"d"}, ids)
}

func TestIDs_OrderPreserved(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, PutIDs(ctx, db, "sig", []string{"c", "a", "b"}))
	ids, _, err := GetIDs(ctx, db, "sig")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestIDs_EmptyIsAHit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, PutIDs(ctx, db, "sig", nil))
	ids, ok, err := GetIDs(ctx, db, "sig")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, ids)
}

func TestMiss(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, ok, err := GetIDs(ctx, db, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = GetValue(ctx, db, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValue_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, PutValue(ctx, db, "agg", json.RawMessage(`[{"genre":"sf","count":2}]`)))
	v, ok, err := GetValue(ctx, db, "agg")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"genre":"sf","count":2}]`, string(v))

	assert.Error(t, PutValue(ctx, db, "agg", json.RawMessage(`{oops`)))
}

func TestKindsAreSeparate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, PutIDs(ctx, db, "same", []string{"a"}))
	require.NoError(t, PutValue(ctx, db, "same", json.RawMessage(`42`)))

	ids, _, err := GetIDs(ctx, db, "same")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	v, _, err := GetValue(ctx, db, "same")
	require.NoError(t, err)
	assert.Equal(t, "42", string(v))
}

func TestEvict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, PutIDs(ctx, db, "sig", []string{"a"}))
	require.NoError(t, Evict(ctx, db, KindQuery, "sig"))
	require.NoError(t, Evict(ctx, db, KindQuery, "sig"))

	_, ok, err := GetIDs(ctx, db, "sig")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := Count(ctx, db, KindQuery)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Error(t, Evict(ctx, db, Kind("bogus"), "sig"))
}
