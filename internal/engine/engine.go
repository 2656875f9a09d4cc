package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/query"
	"github.com/roach88/offcache/internal/txlog"
)

// Target is the remote a pass pushes to.
type Target interface {
	// Save pushes one record and returns the remote's authoritative
	// representation, which may differ from what was pushed.
	Save(ctx context.Context, collection string, d doc.Document) (doc.Document, error)

	// Delete removes every record matching q, atomically over the whole set.
	Delete(ctx context.Context, collection string, q *query.Query) error
}

// LocalStore is the local side of a pass. Implemented by objectstore.Store.
type LocalStore interface {
	Dequeue(ctx context.Context, collection string) (*txlog.Entry, error)
	Get(ctx context.Context, collection, id string) (doc.Document, error)
	Pending(ctx context.Context, collection string) (*txlog.Entry, error)
	PendingCollections(ctx context.Context) ([]string, error)

	// Refresh writes a remote echo back unless id has been logged again
	// since dequeue, and reports whether it wrote.
	Refresh(ctx context.Context, collection, id string, d doc.Document) (bool, error)
}

// Status is the engine's coarse state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusFailed  Status = "failed"
)

// Engine runs sync passes against a local store.
//
// Thread-safety: passes for different collections may run concurrently;
// a second pass for a collection already syncing is refused with
// ErrCodeSyncInProgress.
type Engine struct {
	local   LocalStore
	clock   *Clock
	passGen PassTokenGenerator
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	active   map[string]bool
	lastSync *time.Time
	lastErr  error
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger for pass events.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithPassTokens sets the pass token generator.
//
// Default: UUIDv7Generator
func WithPassTokens(g PassTokenGenerator) EngineOption {
	return func(e *Engine) {
		e.passGen = g
	}
}

// WithClock sets the logical clock stamping passes.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithNow sets the wall clock used for LastSync and pass durations.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine over local.
func New(local LocalStore, opts ...EngineOption) *Engine {
	e := &Engine{
		local:   local,
		clock:   NewClock(),
		passGen: UUIDv7Generator{},
		logger:  slog.Default(),
		now:     time.Now,
		active:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status reports whether a pass is running, or whether the last pass failed.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.active) > 0 {
		return StatusSyncing
	}
	if e.lastErr != nil {
		return StatusFailed
	}
	return StatusIdle
}

// LastSync returns when the last pass completed without a SyncError.
func (e *Engine) LastSync() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastSync == nil {
		return nil
	}
	t := *e.lastSync
	return &t
}

// LastError returns the error of the last pass, or nil if it succeeded.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) begin(collection string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[collection] {
		return false
	}
	e.active[collection] = true
	return true
}

func (e *Engine) end(collection string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, collection)
	e.lastErr = err
	if err == nil {
		t := e.now()
		e.lastSync = &t
	}
}
