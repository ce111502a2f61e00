package graph

import (
	"errors"
	"fmt"
)

// ErrKind identifies the semantic category of an engine error, letting
// drivers (CLI exit codes, JSON-RPC error codes) switch on it directly
// instead of string-matching error messages.
type ErrKind int

const (
	// KindUnknown is the zero value and should never be returned deliberately.
	KindUnknown ErrKind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidInput
	KindIntegrityError
	KindStorageError
	KindSchemaTooNew
	KindMigrationFailed
	KindCancelled
	KindNoPath
)

func (k ErrKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindInvalidInput:
		return "InvalidInput"
	case KindIntegrityError:
		return "IntegrityError"
	case KindStorageError:
		return "StorageError"
	case KindSchemaTooNew:
		return "SchemaTooNew"
	case KindMigrationFailed:
		return "MigrationFailed"
	case KindCancelled:
		return "Cancelled"
	case KindNoPath:
		return "NoPath"
	default:
		return "Unknown"
	}
}

// Error is the single typed error wrapper returned by every engine operation.
// It carries a structured Kind instead of a bag of ad hoc sentinels, so a
// driver can do a single type switch.
type Error struct {
	Kind ErrKind
	Op   string // operation that failed, e.g. "create_entity"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// newErr constructs an *Error, wrapping a wrapped cause for errors.Is/As.
func newErr(kind ErrKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func NotFound(op string, err error) error        { return newErr(KindNotFound, op, err) }
func AlreadyExists(op string, err error) error   { return newErr(KindAlreadyExists, op, err) }
func InvalidInput(op string, err error) error    { return newErr(KindInvalidInput, op, err) }
func IntegrityErr(op string, err error) error    { return newErr(KindIntegrityError, op, err) }
func StorageErr(op string, err error) error      { return newErr(KindStorageError, op, err) }
func SchemaTooNewErr(op string, err error) error { return newErr(KindSchemaTooNew, op, err) }
func MigrationFailedErr(op string, err error) error {
	return newErr(KindMigrationFailed, op, err)
}
func Cancelled(op string, err error) error { return newErr(KindCancelled, op, err) }
func NoPath(op string) error               { return newErr(KindNoPath, op, nil) }

// KindOf extracts the ErrKind from err, or KindUnknown if err is not (or does
// not wrap) a *Error.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind ErrKind) bool {
	return KindOf(err) == kind
}
