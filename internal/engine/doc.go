// Package engine implements the sync engine that replays a collection's
// pending local mutations against a remote target.
//
// A pass over one collection runs these steps in order:
//
//  1. Dequeue: read and delete the collection's changeset. Nothing pending
//     yields an empty result.
//  2. Classify: probe each id locally, in ascending id order. A record that
//     resolves goes to the update set, a missing record to the remove set, and
//     a failed probe straight to cancel.
//  3. Push deletes: one batched delete over all ids in the remove set. The
//     batch commits or cancels as a whole.
//  4. Push updates: one save at a time, in id order. A success is written
//     back locally as the authoritative representation and commits; a failure
//     cancels that id and the pass moves on.
//  5. Report: commit and cancel partition the dequeued ids, each exactly once.
//
// Push failures never surface as errors. Only a failed dequeue fails the pass.
//
// # Known risk
//
// The changeset is deleted before any push happens. If the process dies
// between dequeue and report, ids that were neither committed nor cancelled
// are lost from the log with no record. Callers that need durability across
// crashes must re-save the affected records themselves; cancelled ids are
// reported but not re-queued either.
//
// A local save of an id made while its push is in flight logs the id again.
// The echo of the older push is then not written back, so the newer local
// record survives and goes out with the next pass.
//
// # Concurrency
//
// One pass per collection at a time per Engine. Updates are pushed with at
// most one remote write in flight. There is no timeout inside the engine;
// the target's transport timeout and ctx are the only cancellation surfaces.
package engine
