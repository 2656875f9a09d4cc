// Package objectstore is per-collection CRUD over entity records, backed by the
// handle manager, plus the query and aggregation caches.
//
// Every save or remove writes the record and appends to the transaction log in
// one local transaction. Cache refreshes (PutEntity, PutQuery) write records
// without logging: they mirror the remote, they are not local mutations.
//
// Queries are never executed against stored records. Find and Aggregate answer
// only from a prior put of the same signature.
package objectstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/query"
	"github.com/roach88/offcache/internal/querycache"
	"github.com/roach88/offcache/internal/store"
	"github.com/roach88/offcache/internal/txlog"
)

// Store is the local object store.
type Store struct {
	mgr    *store.Manager
	ids    IDGenerator
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator for records saved without an id.
//
// Default: TimestampGenerator
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates an object store over mgr.
func New(mgr *store.Manager, opts ...Option) *Store {
	s := &Store{
		mgr:    mgr,
		ids:    TimestampGenerator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Manager returns the handle manager backing the store.
func (s *Store) Manager() *store.Manager {
	return s.mgr
}

// Get reads one record. A missing record is a not-found error.
func (s *Store) Get(ctx context.Context, collection, id string) (doc.Document, error) {
	if err := store.ValidateCollection(collection); err != nil {
		return nil, err
	}
	h, err := s.mgr.Open(ctx)
	if err != nil {
		return nil, err
	}
	d, err := getRecord(ctx, h.DB(), collection, id)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if d == nil {
		return nil, store.NotFound("%s/%s not found", collection, id)
	}
	return d, nil
}

// Find answers a query from the query cache. Cached ids that no longer
// resolve are skipped, so the result may be shorter than what was put.
// A signature with no cache entry is a not-found error.
func (s *Store) Find(ctx context.Context, collection string, q *query.Query) ([]doc.Document, error) {
	if err := store.ValidateCollection(collection); err != nil {
		return nil, err
	}
	sig, err := q.Signature(collection)
	if err != nil {
		return nil, store.InvalidArgument("%v", err)
	}
	h, err := s.mgr.Open(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := h.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ids, ok, err := querycache.GetIDs(ctx, tx, sig)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, store.TransactionFailure(err))
	}
	if !ok {
		return nil, store.NotFound("no cached result for query on %s", collection)
	}

	docs := make([]doc.Document, 0, len(ids))
	for _, id := range ids {
		d, err := getRecord(ctx, tx, collection, id)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", collection, err)
		}
		if d == nil {
			continue
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Save upserts a record and logs its id for sync. A record without an id
// gets one from the id generator. Returns the stored record.
func (s *Store) Save(ctx context.Context, collection string, d doc.Document) (doc.Document, error) {
	if err := store.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if d == nil {
		return nil, store.InvalidArgument("save %s: document is required", collection)
	}
	d = d.Clone()
	if d.ID() == "" {
		d.SetID(s.ids.Generate())
	}
	id := d.ID()

	h, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	tx, err := h.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := putRecord(ctx, tx, collection, d); err != nil {
		return nil, fmt.Errorf("save %s/%s: %w", collection, id, err)
	}
	if _, err := txlog.Append(ctx, tx, collection, id, lastModified(d)); err != nil {
		return nil, fmt.Errorf("save %s/%s: %w", collection, id, store.TransactionFailure(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save %s/%s: %w", collection, id, store.TransactionFailure(err))
	}

	s.logger.Debug("record saved", "collection", collection, "id", id)
	return d, nil
}

// Remove deletes a record by id and logs the id for sync. The id is logged
// even when no record exists locally; an unresolvable logged id is a delete
// intent for the remote.
func (s *Store) Remove(ctx context.Context, collection string, d doc.Document) error {
	if err := store.ValidateCollection(collection); err != nil {
		return err
	}
	id := d.ID()
	if id == "" {
		return store.InvalidArgument("remove %s: document has no %s", collection, doc.FieldID)
	}

	h, err := s.mgr.Open(ctx)
	if err != nil {
		return err
	}
	tx, err := h.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteRecord(ctx, tx, collection, id); err != nil {
		return fmt.Errorf("remove %s/%s: %w", collection, id, err)
	}
	if _, err := txlog.Append(ctx, tx, collection, id, lastModified(d)); err != nil {
		return fmt.Errorf("remove %s/%s: %w", collection, id, store.TransactionFailure(err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("remove %s/%s: %w", collection, id, store.TransactionFailure(err))
	}

	s.logger.Debug("record removed", "collection", collection, "id", id)
	return nil
}

// RemoveWithQuery always fails. Bulk deletion by query is only meaningful at
// the remote, through the sync engine's delete path.
func (s *Store) RemoveWithQuery(ctx context.Context, collection string, q *query.Query) error {
	return store.Unsupported("removeWithQuery is not supported by the local store")
}

// PutEntity writes a record as a cache refresh, without logging it.
// A nil document evicts the record.
func (s *Store) PutEntity(ctx context.Context, collection, id string, d doc.Document) error {
	if err := store.ValidateCollection(collection); err != nil {
		return err
	}
	if id == "" {
		return store.InvalidArgument("put %s: id is required", collection)
	}

	if d == nil {
		h, err := s.mgr.Open(ctx)
		if err != nil {
			return err
		}
		if err := deleteRecord(ctx, h.DB(), collection, id); err != nil {
			return fmt.Errorf("evict %s/%s: %w", collection, id, err)
		}
		return nil
	}

	d = d.Clone()
	d.SetID(id)
	h, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}
	if err := putRecord(ctx, h.DB(), collection, d); err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

// Refresh writes a remote echo of a record back locally, unless the id has
// been logged again since its changeset was dequeued. A newer local mutation
// wins over the echo; it is pushed by the next pass. Returns whether the echo
// was written.
func (s *Store) Refresh(ctx context.Context, collection, id string, d doc.Document) (bool, error) {
	if err := store.ValidateCollection(collection); err != nil {
		return false, err
	}
	if id == "" {
		return false, store.InvalidArgument("refresh %s: id is required", collection)
	}
	d = d.Clone()
	d.SetID(id)

	h, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return false, err
	}
	tx, err := h.BeginTx(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	e, err := txlog.Peek(ctx, tx, collection)
	if err != nil {
		return false, fmt.Errorf("refresh %s/%s: %w", collection, id, store.TransactionFailure(err))
	}
	if e != nil {
		if _, pending := e.Changeset[id]; pending {
			return false, nil
		}
	}
	if err := putRecord(ctx, tx, collection, d); err != nil {
		return false, fmt.Errorf("refresh %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("refresh %s/%s: %w", collection, id, store.TransactionFailure(err))
	}
	return true, nil
}

// PutQuery caches a query result: each record is written as a cache refresh
// and the ordered ids are stored under the query's signature, replacing any
// prior entry. A nil result evicts the cache entry.
func (s *Store) PutQuery(ctx context.Context, collection string, q *query.Query, docs []doc.Document) error {
	if err := store.ValidateCollection(collection); err != nil {
		return err
	}
	sig, err := q.Signature(collection)
	if err != nil {
		return store.InvalidArgument("%v", err)
	}

	if docs == nil {
		h, err := s.mgr.Open(ctx)
		if err != nil {
			return err
		}
		if err := querycache.Evict(ctx, h.DB(), querycache.KindQuery, sig); err != nil {
			return fmt.Errorf("put query %s: %w", collection, store.TransactionFailure(err))
		}
		return nil
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		if d.ID() == "" {
			return store.InvalidArgument("put query %s: result [%d] has no %s", collection, i, doc.FieldID)
		}
		ids[i] = d.ID()
	}

	h, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}
	tx, err := h.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range docs {
		if err := putRecord(ctx, tx, collection, d); err != nil {
			return fmt.Errorf("put query %s: %w", collection, err)
		}
	}
	if err := querycache.PutIDs(ctx, tx, sig, ids); err != nil {
		return fmt.Errorf("put query %s: %w", collection, store.TransactionFailure(err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put query %s: %w", collection, store.TransactionFailure(err))
	}
	return nil
}

// PutAggregation caches a raw aggregation result, replacing any prior entry.
func (s *Store) PutAggregation(ctx context.Context, collection string, a *query.Aggregation, value json.RawMessage) error {
	if err := store.ValidateCollection(collection); err != nil {
		return err
	}
	sig, err := a.Signature(collection)
	if err != nil {
		return store.InvalidArgument("%v", err)
	}
	if len(value) > 0 && !json.Valid(value) {
		return store.InvalidArgument("put aggregation %s: value is not valid JSON", collection)
	}
	h, err := s.mgr.Open(ctx)
	if err != nil {
		return err
	}
	if err := querycache.PutValue(ctx, h.DB(), sig, value); err != nil {
		return fmt.Errorf("put aggregation %s: %w", collection, store.TransactionFailure(err))
	}
	return nil
}

// Aggregate answers an aggregation from the cache. A miss is not-found.
func (s *Store) Aggregate(ctx context.Context, collection string, a *query.Aggregation) (json.RawMessage, error) {
	if err := store.ValidateCollection(collection); err != nil {
		return nil, err
	}
	sig, err := a.Signature(collection)
	if err != nil {
		return nil, store.InvalidArgument("%v", err)
	}
	h, err := s.mgr.Open(ctx)
	if err != nil {
		return nil, err
	}
	v, ok, err := querycache.GetValue(ctx, h.DB(), sig)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, store.TransactionFailure(err))
	}
	if !ok {
		return nil, store.NotFound("no cached result for aggregation on %s", collection)
	}
	return v, nil
}

// Purge drops every collection, both caches, and the transaction log.
// Irreversible.
func (s *Store) Purge(ctx context.Context) error {
	if _, err := s.mgr.Mutate(ctx, store.DropAll); err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	s.logger.Info("store purged", "path", s.mgr.Path())
	return nil
}

// Dequeue consumes the collection's pending changeset. Returns nil when
// nothing is pending.
func (s *Store) Dequeue(ctx context.Context, collection string) (*txlog.Entry, error) {
	h, err := s.mgr.Open(ctx)
	if err != nil {
		return nil, err
	}
	e, err := txlog.Dequeue(ctx, h.DB(), collection)
	if err != nil {
		return nil, store.TransactionFailure(err)
	}
	return e, nil
}

// Pending returns the collection's pending changeset without consuming it.
func (s *Store) Pending(ctx context.Context, collection string) (*txlog.Entry, error) {
	h, err := s.mgr.Open(ctx)
	if err != nil {
		return nil, err
	}
	e, err := txlog.Peek(ctx, h.DB(), collection)
	if err != nil {
		return nil, store.TransactionFailure(err)
	}
	return e, nil
}

// PendingCollections lists collections with a pending changeset, ascending.
func (s *Store) PendingCollections(ctx context.Context) ([]string, error) {
	h, err := s.mgr.Open(ctx)
	if err != nil {
		return nil, err
	}
	cols, err := txlog.Collections(ctx, h.DB())
	if err != nil {
		return nil, store.TransactionFailure(err)
	}
	return cols, nil
}

// Collections lists collections that have a table, ascending.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	h, err := s.mgr.Open(ctx)
	if err != nil {
		return nil, err
	}
	cols, err := store.ListCollections(ctx, h.DB())
	if err != nil {
		return nil, store.TransactionFailure(err)
	}
	return cols, nil
}

// ensureCollection returns a handle on which the collection's table exists,
// creating it with a schema mutation if needed. Must not be called with a
// transaction open.
func (s *Store) ensureCollection(ctx context.Context, collection string) (*store.Handle, error) {
	h, err := s.mgr.Open(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := store.HasCollection(ctx, h.DB(), collection)
	if err != nil {
		return nil, store.TransactionFailure(err)
	}
	if ok {
		return h, nil
	}
	h, err = s.mgr.Mutate(ctx, store.CreateCollection(collection))
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", collection, err)
	}
	s.logger.Info("collection created", "collection", collection, "version", h.Version())
	return h, nil
}

func lastModified(d doc.Document) *string {
	if lmt, ok := d.LastModified(); ok {
		return &lmt
	}
	return nil
}

// getRecord returns nil, nil when the record or its collection is missing.
func getRecord(ctx context.Context, q store.DBTX, collection, id string) (doc.Document, error) {
	ok, err := store.HasCollection(ctx, q, collection)
	if err != nil {
		return nil, store.TransactionFailure(err)
	}
	if !ok {
		return nil, nil
	}

	var data string
	err = q.QueryRowContext(ctx,
		"SELECT document FROM "+store.CollectionTable(collection)+" WHERE id = ?", id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.TransactionFailure(err)
	}
	d, err := doc.Decode([]byte(data))
	if err != nil {
		return nil, store.TransactionFailure(err)
	}
	return d, nil
}

func putRecord(ctx context.Context, q store.DBTX, collection string, d doc.Document) error {
	data, err := d.Encode()
	if err != nil {
		return store.InvalidArgument("%v", err)
	}
	var lmt any
	if v, ok := d.LastModified(); ok {
		lmt = v
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO `+store.CollectionTable(collection)+` (id, document, lmt) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, lmt = excluded.lmt
	`, d.ID(), string(data), lmt)
	if err != nil {
		return store.TransactionFailure(err)
	}
	return nil
}

// deleteRecord is a no-op when the collection has no table.
func deleteRecord(ctx context.Context, q store.DBTX, collection, id string) error {
	ok, err := store.HasCollection(ctx, q, collection)
	if err != nil {
		return store.TransactionFailure(err)
	}
	if !ok {
		return nil
	}
	if _, err := q.ExecContext(ctx,
		"DELETE FROM "+store.CollectionTable(collection)+" WHERE id = ?", id,
	); err != nil {
		return store.TransactionFailure(err)
	}
	return nil
}
