package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/query"
	"github.com/roach88/offcache/internal/store"
)

// Result is the outcome of one pass: the dequeued ids partitioned into those
// reconciled with the remote and those that failed at any stage.
type Result struct {
	Collection string   `json:"collection"`
	Pass       string   `json:"pass"`
	Seq        int64    `json:"seq"`
	Commit     []string `json:"commit"`
	Cancel     []string `json:"cancel"`
}

// Outcome classifies the result for metrics and logs.
func (r *Result) Outcome() string {
	switch {
	case len(r.Commit) == 0 && len(r.Cancel) == 0:
		return OutcomeEmpty
	case len(r.Cancel) == 0:
		return OutcomeOK
	case len(r.Commit) == 0:
		return OutcomeCancelled
	default:
		return OutcomePartial
	}
}

// Sync runs one pass over collection against target.
//
// Returns an error only when the pass could not start (another pass running)
// or the changeset could not be dequeued. Every other failure is reported
// through Result.Cancel.
func (e *Engine) Sync(ctx context.Context, collection string, target Target) (*Result, error) {
	if !e.begin(collection) {
		return nil, &SyncError{Code: ErrCodeSyncInProgress, Collection: collection}
	}

	res, err := e.sync(ctx, collection, target)
	e.end(collection, err)
	return res, err
}

func (e *Engine) sync(ctx context.Context, collection string, target Target) (*Result, error) {
	start := e.now()
	res := &Result{
		Collection: collection,
		Pass:       e.passGen.Generate(),
		Seq:        e.clock.Next(),
		Commit:     []string{},
		Cancel:     []string{},
	}
	log := e.logger.With("collection", collection, "pass", res.Pass, "seq", res.Seq)

	defer func() {
		SyncPassDuration.WithLabelValues(collection).Observe(e.now().Sub(start).Seconds())
	}()

	// Step 1: dequeue. From here on the changeset exists only in memory.
	entry, err := e.local.Dequeue(ctx, collection)
	if err != nil {
		SyncPasses.WithLabelValues(collection, OutcomeFailed).Inc()
		log.Error("dequeue failed", "error", err)
		return nil, &SyncError{Code: ErrCodeDequeueFailed, Collection: collection, Pass: res.Pass, Err: err}
	}
	if entry == nil || len(entry.Changeset) == 0 {
		SyncPasses.WithLabelValues(collection, OutcomeEmpty).Inc()
		log.Debug("nothing pending")
		return res, nil
	}

	log.Info("sync pass started", "pending", len(entry.Changeset))

	// Step 2: classify.
	updates, removes, cancelled := e.classify(ctx, collection, entry.Changeset.IDs())
	res.Cancel = append(res.Cancel, cancelled...)

	// Step 3: one batched delete.
	if len(removes) > 0 {
		if err := target.Delete(ctx, collection, query.In(doc.FieldID, removes)); err != nil {
			log.Warn("remote delete failed", "ids", removes, "error", err)
			res.Cancel = append(res.Cancel, removes...)
		} else {
			res.Commit = append(res.Commit, removes...)
		}
	}

	// Step 4: updates, one in flight at a time.
	for _, u := range updates {
		if err := e.push(ctx, collection, u, target); err != nil {
			log.Warn("remote save failed", "id", u.id, "error", err)
			res.Cancel = append(res.Cancel, u.id)
			continue
		}
		res.Commit = append(res.Commit, u.id)
	}

	SyncPasses.WithLabelValues(collection, res.Outcome()).Inc()
	SyncRecords.WithLabelValues(collection, "commit").Add(float64(len(res.Commit)))
	SyncRecords.WithLabelValues(collection, "cancel").Add(float64(len(res.Cancel)))
	log.Info("sync pass finished",
		"outcome", res.Outcome(),
		"commit", len(res.Commit),
		"cancel", len(res.Cancel),
	)
	return res, nil
}

type update struct {
	id  string
	doc doc.Document
}

// classify probes each id locally. ids must be sorted; the returned sets keep
// that order.
func (e *Engine) classify(ctx context.Context, collection string, ids []string) (updates []update, removes, cancelled []string) {
	for _, id := range ids {
		d, err := e.local.Get(ctx, collection, id)
		switch {
		case err == nil:
			updates = append(updates, update{id: id, doc: d})
		case store.IsNotFound(err):
			removes = append(removes, id)
		default:
			e.logger.Warn("local probe failed",
				"collection", collection,
				"id", id,
				"error", err,
			)
			cancelled = append(cancelled, id)
		}
	}
	return updates, removes, cancelled
}

// push saves one record remotely and writes the echo back locally. A failed
// write-back is logged and does not fail the push: the remote accepted it.
// The echo is not written over a local mutation made since dequeue.
func (e *Engine) push(ctx context.Context, collection string, u update, target Target) error {
	echo, err := target.Save(ctx, collection, u.doc)
	if err != nil {
		return err
	}
	if echo == nil {
		return nil
	}
	wrote, err := e.local.Refresh(ctx, collection, u.id, echo)
	switch {
	case err != nil:
		e.logger.Warn("local refresh failed",
			"collection", collection,
			"id", u.id,
			"error", err,
		)
	case !wrote:
		e.logger.Debug("local refresh skipped, record changed since dequeue",
			"collection", collection,
			"id", u.id,
		)
	}
	return nil
}

// SyncAll runs a pass for every collection with pending changes, in name
// order. Passes that fail with a SyncError are collected and the rest still
// run.
func (e *Engine) SyncAll(ctx context.Context, target Target) ([]*Result, error) {
	cols, err := e.local.PendingCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending collections: %w", err)
	}

	var (
		results []*Result
		errs    []error
	)
	for _, c := range cols {
		res, err := e.Sync(ctx, c, target)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
