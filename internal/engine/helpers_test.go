package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/objectstore"
	"github.com/roach88/offcache/internal/query"
	"github.com/roach88/offcache/internal/store"
	"github.com/roach88/offcache/internal/txlog"
)

var errRemote = errors.New("remote unavailable")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLocal(t *testing.T) *objectstore.Store {
	t.Helper()
	mgr := store.NewManager(filepath.Join(t.TempDir(), "test.db"), store.WithLogger(quietLogger()))
	t.Cleanup(func() { mgr.Close() })
	return objectstore.New(mgr, objectstore.WithLogger(quietLogger()))
}

func newTestEngine(local LocalStore, opts ...EngineOption) *Engine {
	return New(local, append([]EngineOption{
		WithLogger(quietLogger()),
		WithPassTokens(NewFixedGenerator("pass-1", "pass-2", "pass-3", "pass-4")),
	}, opts...)...)
}

// fakeTarget records pushes and fails the ones it is told to.
type fakeTarget struct {
	mu         sync.Mutex
	failSave   map[string]bool
	failDelete bool
	echo       func(doc.Document) doc.Document
	saved      []string
	deleted    [][]string
}

func (f *fakeTarget) Save(ctx context.Context, collection string, d doc.Document) (doc.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, d.ID())
	if f.failSave[d.ID()] {
		return nil, errRemote
	}
	if f.echo != nil {
		return f.echo(d), nil
	}
	return d, nil
}

func (f *fakeTarget) Delete(ctx context.Context, collection string, q *query.Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, inIDs(q))
	if f.failDelete {
		return errRemote
	}
	return nil
}

func inIDs(q *query.Query) []string {
	cond, _ := q.Filter[doc.FieldID].(map[string]any)
	vals, _ := cond["$in"].([]any)
	ids := make([]string, 0, len(vals))
	for _, v := range vals {
		ids = append(ids, v.(string))
	}
	return ids
}

// flakyLocal wraps a LocalStore with injected failures.
type flakyLocal struct {
	LocalStore
	failGet     map[string]bool
	failPut     bool
	failDequeue bool
}

func (l *flakyLocal) Dequeue(ctx context.Context, collection string) (*txlog.Entry, error) {
	if l.failDequeue {
		return nil, errors.New("disk I/O error")
	}
	return l.LocalStore.Dequeue(ctx, collection)
}

func (l *flakyLocal) Get(ctx context.Context, collection, id string) (doc.Document, error) {
	if l.failGet[id] {
		return nil, store.TransactionFailure(errors.New("database is locked"))
	}
	return l.LocalStore.Get(ctx, collection, id)
}

func (l *flakyLocal) Refresh(ctx context.Context, collection, id string, d doc.Document) (bool, error) {
	if l.failPut {
		return false, store.TransactionFailure(errors.New("disk full"))
	}
	return l.LocalStore.Refresh(ctx, collection, id, d)
}
