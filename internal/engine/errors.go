package engine

import (
	"errors"
	"fmt"
)

// SyncError reports a pass that could not run at all.
//
// Failures of individual pushes are not errors; they land in Result.Cancel.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Collection is the collection the pass was for.
	Collection string

	// Pass is the pass token, when one was assigned.
	Pass string

	// Err is the underlying cause.
	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeDequeueFailed indicates the changeset could not be read.
	// Nothing was consumed.
	ErrCodeDequeueFailed SyncErrorCode = "DEQUEUE_FAILED"

	// ErrCodeSyncInProgress indicates another pass for the same collection
	// is running on this engine.
	ErrCodeSyncInProgress SyncErrorCode = "SYNC_IN_PROGRESS"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: sync %s", e.Code, e.Collection)
	if e.Pass != "" {
		msg += fmt.Sprintf(" (pass=%s)", e.Pass)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsDequeueFailed returns true if the pass failed at dequeue.
// Uses errors.As to handle wrapped errors.
func IsDequeueFailed(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeDequeueFailed
	}
	return false
}

// IsSyncInProgress returns true if the pass was refused because another pass
// for the collection is running.
func IsSyncInProgress(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeSyncInProgress
	}
	return false
}
