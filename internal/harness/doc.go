// Package harness runs scenario files against a real local cache and an
// in-memory remote, and compares the resulting trace with golden files.
//
// # Scenario Format
//
//	name: partial_update
//	description: "k2 fails remotely and is cancelled"
//	signaling: set-version        # optional, default upgrade-event
//	remote:
//	  fail_save: [k2]             # ids whose remote save fails
//	  fail_delete: [books]        # collections whose remote delete fails
//	  stamp: srv                  # remote writes _kmd.lmt = srv-1, srv-2, ...
//	steps:
//	  - op: save
//	    collection: books
//	    doc: { _id: k1, title: Dune }
//	  - op: sync
//	    collection: books
//	    expect:
//	      commit: [k1]
//	      cancel: []
//	assertions:
//	  - type: pending
//	    collection: books
//	    ids: []
//
// # Operations
//
// save, remove, remove_query, get, find, put, aggregate, pending, purge,
// sync, and sync_all. Each step may carry an expect clause: an error code,
// a payload subset, the ids a find or pending returns, or the commit and
// cancel sets of a sync.
//
// # Assertion Types
//
//   - pending: the collection's pending ids are exactly ids
//   - record: the local record exists and contains expect
//   - absent: the local record does not exist
//   - remote_record: the remote record exists and contains expect
//   - remote_absent: the remote record does not exist
//
// # Determinism
//
// Records saved without an id get id-1, id-2, ... and passes get pass-1,
// pass-2, ... Each run uses a fresh database in a temporary directory, so
// the same scenario always produces the same trace.
package harness
