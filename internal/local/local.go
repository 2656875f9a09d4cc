// Package local is the public surface of the offline cache: every operation
// returns a Response carrying the payload and {cache: true}, or an
// ErrorResponse {error, msg}.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/engine"
	"github.com/roach88/offcache/internal/objectstore"
	"github.com/roach88/offcache/internal/query"
	"github.com/roach88/offcache/internal/store"
)

// Meta marks a response as served from the local cache.
type Meta struct {
	Cache bool `json:"cache"`
}

// Response is a successful result.
type Response struct {
	Payload any  `json:"payload"`
	Meta    Meta `json:"meta"`
}

// ErrorResponse is a failed result. It implements error.
type ErrorResponse struct {
	Code string `json:"error"`
	Msg  string `json:"msg"`
}

func (e *ErrorResponse) Error() string {
	return e.Code + ": " + e.Msg
}

// IsNotFound reports whether err is a not-found response.
func IsNotFound(err error) bool {
	var er *ErrorResponse
	return errors.As(err, &er) && er.Code == string(store.ErrCodeNotFound)
}

// toErrorResponse maps any error onto the uniform error shape. Store errors
// keep their message verbatim.
func toErrorResponse(err error) *ErrorResponse {
	var er *ErrorResponse
	if errors.As(err, &er) {
		return er
	}
	var se *store.Error
	if errors.As(err, &se) {
		return &ErrorResponse{Code: string(se.Code), Msg: se.Message}
	}
	var ye *engine.SyncError
	if errors.As(err, &ye) {
		return &ErrorResponse{Code: string(ye.Code), Msg: err.Error()}
	}
	return &ErrorResponse{Code: string(store.ErrCodeTransaction), Msg: err.Error()}
}

func ok(payload any) *Response {
	return &Response{Payload: payload, Meta: Meta{Cache: true}}
}

// Store wires the handle manager, object store, and sync engine.
type Store struct {
	mgr     *store.Manager
	objects *objectstore.Store
	engine  *engine.Engine
}

type options struct {
	signaling store.Signaling
	ids       objectstore.IDGenerator
	logger    *slog.Logger
	engine    []engine.EngineOption
}

// Option configures a Store.
type Option func(*options)

// WithSignaling selects the schema version signaling variant.
func WithSignaling(s store.Signaling) Option {
	return func(o *options) {
		o.signaling = s
	}
}

// WithIDGenerator sets the generator for records saved without an id.
func WithIDGenerator(g objectstore.IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithLogger sets the logger for every layer.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithEngineOptions passes options through to the sync engine.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(o *options) {
		o.engine = append(o.engine, opts...)
	}
}

// New creates a Store over the database at path. The database is opened
// lazily by the first operation.
func New(path string, opts ...Option) *Store {
	o := options{
		signaling: store.SignalUpgradeEvent,
		ids:       objectstore.TimestampGenerator{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	mgr := store.NewManager(path, store.WithSignaling(o.signaling), store.WithLogger(o.logger))
	objects := objectstore.New(mgr, objectstore.WithIDGenerator(o.ids), objectstore.WithLogger(o.logger))
	engOpts := append([]engine.EngineOption{engine.WithLogger(o.logger)}, o.engine...)
	return &Store{
		mgr:     mgr,
		objects: objects,
		engine:  engine.New(objects, engOpts...),
	}
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.mgr.Close()
}

// Engine returns the sync engine, for status inspection.
func (s *Store) Engine() *engine.Engine {
	return s.engine
}

// Put writes to the aggregation cache, the query cache, or the record
// refresh path depending on kind. Null data on the query paths evicts.
func (s *Store) Put(ctx context.Context, kind objectstore.PutKind, collection, key string, data json.RawMessage) (*Response, error) {
	if err := s.objects.Put(ctx, kind, collection, key, data); err != nil {
		return nil, toErrorResponse(err)
	}
	return ok(nil), nil
}

// Query reads one record by id.
func (s *Store) Query(ctx context.Context, collection, id string) (*Response, error) {
	d, err := s.objects.Get(ctx, collection, id)
	if err != nil {
		return nil, toErrorResponse(err)
	}
	return ok(d), nil
}

// QueryWithQuery answers a query from the query cache.
func (s *Store) QueryWithQuery(ctx context.Context, collection string, q *query.Query) (*Response, error) {
	docs, err := s.objects.Find(ctx, collection, q)
	if err != nil {
		return nil, toErrorResponse(err)
	}
	return ok(docs), nil
}

// Save upserts a record and queues it for sync.
func (s *Store) Save(ctx context.Context, collection string, d doc.Document) (*Response, error) {
	saved, err := s.objects.Save(ctx, collection, d)
	if err != nil {
		return nil, toErrorResponse(err)
	}
	return ok(saved), nil
}

// Remove deletes a record and queues the deletion for sync.
func (s *Store) Remove(ctx context.Context, collection string, d doc.Document) (*Response, error) {
	if err := s.objects.Remove(ctx, collection, d); err != nil {
		return nil, toErrorResponse(err)
	}
	return ok(map[string]any{doc.FieldID: d.ID()}), nil
}

// RemoveWithQuery always fails with UNSUPPORTED_OPERATION.
func (s *Store) RemoveWithQuery(ctx context.Context, collection string, q *query.Query) (*Response, error) {
	if err := s.objects.RemoveWithQuery(ctx, collection, q); err != nil {
		return nil, toErrorResponse(err)
	}
	return ok(nil), nil
}

// Aggregate answers an aggregation from the aggregation cache.
func (s *Store) Aggregate(ctx context.Context, collection string, a *query.Aggregation) (*Response, error) {
	v, err := s.objects.Aggregate(ctx, collection, a)
	if err != nil {
		return nil, toErrorResponse(err)
	}
	return ok(v), nil
}

// Purge drops all local data. Irreversible.
func (s *Store) Purge(ctx context.Context) (*Response, error) {
	if err := s.objects.Purge(ctx); err != nil {
		return nil, toErrorResponse(err)
	}
	return ok(nil), nil
}

// Pending returns the collection's pending changeset without consuming it.
// The payload is an empty changeset when nothing is pending.
func (s *Store) Pending(ctx context.Context, collection string) (*Response, error) {
	e, err := s.objects.Pending(ctx, collection)
	if err != nil {
		return nil, toErrorResponse(err)
	}
	if e == nil {
		return ok(map[string]any{"collection": collection, "changeset": map[string]any{}}), nil
	}
	return ok(e), nil
}

// Sync runs one pass for collection against target. The payload is the
// engine.Result; partial failure is a successful response.
func (s *Store) Sync(ctx context.Context, collection string, target engine.Target) (*Response, error) {
	res, err := s.engine.Sync(ctx, collection, target)
	if err != nil {
		return nil, toErrorResponse(err)
	}
	return ok(res), nil
}

// SyncAll syncs every collection with pending changes. Results of passes
// that ran are returned even when another pass failed.
func (s *Store) SyncAll(ctx context.Context, target engine.Target) (*Response, error) {
	results, err := s.engine.SyncAll(ctx, target)
	if results == nil {
		results = []*engine.Result{}
	}
	if err != nil {
		return ok(results), toErrorResponse(err)
	}
	return ok(results), nil
}

// Preview reports how a pass over collection would classify its pending ids.
// Nothing is consumed, written, or sent.
func (s *Store) Preview(ctx context.Context, collection string) (*Response, error) {
	plan, err := s.engine.Preview(ctx, collection)
	if err != nil {
		return nil, toErrorResponse(err)
	}
	return ok(plan), nil
}

// PreviewAll previews every collection with pending changes.
func (s *Store) PreviewAll(ctx context.Context) (*Response, error) {
	plans, err := s.engine.PreviewAll(ctx)
	if err != nil {
		return nil, toErrorResponse(err)
	}
	return ok(plans), nil
}
