package local

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/engine"
	"github.com/roach88/offcache/internal/objectstore"
	"github.com/roach88/offcache/internal/query"
	"github.com/roach88/offcache/internal/remote"
	"github.com/roach88/offcache/internal/store"
	"github.com/roach88/offcache/internal/txlog"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEngineOptions(engine.WithPassTokens(engine.NewFixedGenerator("p1", "p2", "p3"))),
	}
	s := New(filepath.Join(t.TempDir(), "cache.db"), append(base, opts...)...)
	t.Cleanup(func() { s.Close() })
	return s
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	var er *ErrorResponse
	require.True(t, errors.As(err, &er), "expected ErrorResponse, got %v", err)
	return er.Code
}

func TestSave_WithoutIDThenSync(t *testing.T) {
	s := newTestStore(t, WithIDGenerator(objectstore.NewFixedGenerator("1700000000000")))
	ctx := context.Background()

	resp, err := s.Save(ctx, "books", doc.Document{"name": "x"})
	require.NoError(t, err)
	assert.True(t, resp.Meta.Cache)
	assert.Equal(t, "1700000000000", resp.Payload.(doc.Document).ID())

	resp, err = s.Pending(ctx, "books")
	require.NoError(t, err)
	assert.Equal(t, []string{"1700000000000"}, resp.Payload.(*txlog.Entry).Changeset.IDs())

	target := remote.NewMemory()
	resp, err = s.Sync(ctx, "books", target)
	require.NoError(t, err)
	res := resp.Payload.(*engine.Result)
	assert.Equal(t, []string{"1700000000000"}, res.Commit)
	assert.Empty(t, res.Cancel)
	assert.Equal(t, []string{"1700000000000"}, target.IDs("books"))
}

func TestSync_EmptyLog(t *testing.T) {
	s := newTestStore(t)

	resp, err := s.Sync(context.Background(), "books", remote.NewMemory())
	require.NoError(t, err)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"payload":{"collection":"books","pass":"p1","seq":1,"commit":[],"cancel":[]},"meta":{"cache":true}}`,
		string(data))
}

func TestSync_PartialFailureIsSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"k1", "k2"} {
		_, err := s.Save(ctx, "books", doc.Document{"_id": id})
		require.NoError(t, err)
	}

	target := remote.NewMemory()
	target.FailSave("k2")
	resp, err := s.Sync(ctx, "books", target)
	require.NoError(t, err)
	res := resp.Payload.(*engine.Result)
	assert.Equal(t, []string{"k1"}, res.Commit)
	assert.Equal(t, []string{"k2"}, res.Cancel)
}

func TestErrors_UniformShape(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Query(ctx, "books", "missing")
	assert.Equal(t, "NOT_FOUND", errorCode(t, err))
	assert.True(t, IsNotFound(err))

	_, err = s.RemoveWithQuery(ctx, "books", query.New())
	assert.Equal(t, "UNSUPPORTED_OPERATION", errorCode(t, err))

	_, err = s.Remove(ctx, "books", doc.Document{})
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, err))

	_, err = s.QueryWithQuery(ctx, "books", query.New())
	assert.Equal(t, "NOT_FOUND", errorCode(t, err))

	_, err = s.Aggregate(ctx, "books", &query.Aggregation{Reduce: "r"})
	assert.Equal(t, "NOT_FOUND", errorCode(t, err))

	data, err := json.Marshal(&ErrorResponse{Code: "NOT_FOUND", Msg: "books/x not found"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"NOT_FOUND","msg":"books/x not found"}`, string(data))
}

func TestQueryCache_StaleIDsDropped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := `{"filter":{"shelf":"top"}}`

	_, err := s.Put(ctx, objectstore.PutQueryWithQuery, "books", key,
		json.RawMessage(`[{"_id":"a"},{"_id":"b"},{"_id":"c"}]`))
	require.NoError(t, err)
	_, err = s.Remove(ctx, "books", doc.Document{"_id": "b"})
	require.NoError(t, err)

	q, err := query.Parse([]byte(key))
	require.NoError(t, err)
	resp, err := s.QueryWithQuery(ctx, "books", q)
	require.NoError(t, err)
	docs := resp.Payload.([]doc.Document)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID())
	assert.Equal(t, "c", docs[1].ID())
}

func TestAggregate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := `{"key":{"genre":true},"initial":{"count":0},"reduce":"function(d,o){o.count++}"}`

	_, err := s.Put(ctx, objectstore.PutAggregation, "books", key, json.RawMessage(`[{"genre":"sf","count":2}]`))
	require.NoError(t, err)

	a, err := query.ParseAggregation([]byte(key))
	require.NoError(t, err)
	resp, err := s.Aggregate(ctx, "books", a)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"genre":"sf","count":2}]`, string(resp.Payload.(json.RawMessage)))
}

func TestPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "books", doc.Document{"_id": "k1"})
	require.NoError(t, err)
	_, err = s.Purge(ctx)
	require.NoError(t, err)

	_, err = s.Query(ctx, "books", "k1")
	assert.True(t, IsNotFound(err))

	resp, err := s.SyncAll(ctx, remote.NewMemory())
	require.NoError(t, err)
	assert.Empty(t, resp.Payload)
}

func TestSignalingVariantsBehaveAlike(t *testing.T) {
	for _, sig := range []string{"upgrade-event", "set-version"} {
		t.Run(sig, func(t *testing.T) {
			signaling, err := store.ParseSignaling(sig)
			require.NoError(t, err)
			s := newTestStore(t, WithSignaling(signaling))
			ctx := context.Background()

			_, err = s.Save(ctx, "books", doc.Document{"_id": "b1"})
			require.NoError(t, err)
			_, err = s.Save(ctx, "films", doc.Document{"_id": "f1"})
			require.NoError(t, err)

			resp, err := s.SyncAll(ctx, remote.NewMemory())
			require.NoError(t, err)
			assert.Len(t, resp.Payload, 2)
		})
	}
}
