package store

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes local store failures.
type ErrorCode string

const (
	// ErrCodeNotFound is a lookup miss. It travels the error channel but is not
	// a storage failure.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeTransaction is an abort or error from the storage engine. The
	// message is the engine's, passed through verbatim.
	ErrCodeTransaction ErrorCode = "STORE_TRANSACTION_FAILURE"

	// ErrCodeUnsupported marks an operation this layer does not implement.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED_OPERATION"

	// ErrCodeSchemaMutation means a version upgrade could not be applied.
	ErrCodeSchemaMutation ErrorCode = "SCHEMA_MUTATION_FAILURE"

	// ErrCodeInvalidArgument rejects malformed input before touching storage.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// Error is the local store's error taxonomy.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a lookup miss.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Unsupported reports an operation this layer refuses.
func Unsupported(format string, args ...any) *Error {
	return &Error{Code: ErrCodeUnsupported, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument reports malformed input.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// TransactionFailure wraps a storage engine error. Errors that already carry a
// code are returned unchanged.
func TransactionFailure(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Code: ErrCodeTransaction, Message: err.Error(), Err: err}
}

func schemaMutationFailure(err error) error {
	var se *Error
	if errors.As(err, &se) && se.Code == ErrCodeSchemaMutation {
		return err
	}
	return &Error{Code: ErrCodeSchemaMutation, Message: err.Error(), Err: err}
}

// CodeOf returns the code of the first Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsNotFound returns true if err is a lookup miss.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsUnsupported returns true if err marks an unsupported operation.
func IsUnsupported(err error) bool {
	return CodeOf(err) == ErrCodeUnsupported
}

// IsSchemaMutation returns true if err is a failed version upgrade.
func IsSchemaMutation(err error) bool {
	return CodeOf(err) == ErrCodeSchemaMutation
}

// IsInvalidArgument returns true if err rejected malformed input.
func IsInvalidArgument(err error) bool {
	return CodeOf(err) == ErrCodeInvalidArgument
}
