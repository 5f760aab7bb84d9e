package errors

import (
	"context"
	"errors"
	"fmt"
	"time"

	httpPkg "github.com/NamanBalaji/fastdl/pkg/http"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Class groups failures by how the transfer must react to them.
type Class string

const (
	ClassTransient Class = "TRANSIENT" // Retried after the retry gap
	ClassRange     Class = "RANGE"     // Server stopped honouring byte ranges
	ClassDisk      Class = "DISK"      // Write or sync failed, transfer stops
	ClassPreflight Class = "PREFLIGHT" // Destination or free-space check failed
	ClassState     Class = "STATE"     // Ledger or state store problem
	ClassCancelled Class = "CANCELLED" // Caller asked to stop
	ClassFatal     Class = "FATAL"     // Anything a retry cannot fix
)

// TransferError represents an error that occurred while moving bytes for a transfer.
type TransferError struct {
	Err        error     // Original error
	Class      Class     // How the transfer reacts
	Retryable  bool      // Whether retry is recommended
	Timestamp  time.Time // When the error occurred
	Resource   string    // URL or path being accessed
	Offset     int64     // Absolute byte offset, -1 if not applicable
	StatusCode int       // HTTP status code if any
}

// Error implements the error interface.
func (e *TransferError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("[%s] %s @%d: %v", e.Class, e.Resource, e.Offset, e.Err)
	}

	return fmt.Sprintf("[%s] %s: %v", e.Class, e.Resource, e.Err)
}

// Unwrap provides the underlying cause for error unwrapping (compatible with errors.As)
func (e *TransferError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrInvalidURL        = New("invalid URL")
	ErrRangeUnsupported  = New("server does not support byte ranges")
	ErrDestinationExists = New("destination already exists")
	ErrInsufficientSpace = New("insufficient free disk space")
	ErrCancelled         = New("transfer cancelled")
)

func newError(err error, class Class, resource string, offset int64, retryable bool) *TransferError {
	return &TransferError{
		Err:       err,
		Class:     class,
		Retryable: retryable,
		Timestamp: time.Now(),
		Resource:  resource,
		Offset:    offset,
	}
}

// NewTransientError creates a retryable network or server error at offset.
func NewTransientError(err error, resource string, offset int64) *TransferError {
	return newError(err, ClassTransient, resource, offset, true)
}

// NewRangeError creates an error for a server that broke the range contract.
func NewRangeError(err error, resource string, offset int64) *TransferError {
	return newError(err, ClassRange, resource, offset, false)
}

// NewDiskError creates an I/O related error
func NewDiskError(err error, resource string, offset int64) *TransferError {
	return newError(err, ClassDisk, resource, offset, false)
}

// NewPreflightError creates an error raised before any byte is fetched.
func NewPreflightError(err error, resource string) *TransferError {
	return newError(err, ClassPreflight, resource, -1, false)
}

// NewStateError creates a state store error.
func NewStateError(err error, resource string) *TransferError {
	return newError(err, ClassState, resource, -1, false)
}

// NewCancelledError creates a context cancellation error
func NewCancelledError(err error, resource string) *TransferError {
	return newError(err, ClassCancelled, resource, -1, false)
}

// NewHTTPError creates an error for a failed HTTP exchange, classified by its sentinel.
func NewHTTPError(err error, resource string, offset int64, statusCode int) *TransferError {
	e := newError(err, Classify(err), resource, offset, httpPkg.IsRetryable(err))
	e.StatusCode = statusCode

	if e.StatusCode == 0 {
		e.StatusCode = httpPkg.StatusCode(err)
	}

	return e
}

// Classify maps any error to the class the retry controller acts on.
func Classify(err error) Class {
	if err == nil {
		return ""
	}

	var transferErr *TransferError
	if As(err, &transferErr) {
		return transferErr.Class
	}

	switch {
	case Is(err, context.Canceled), Is(err, ErrCancelled):
		return ClassCancelled
	case Is(err, httpPkg.ErrRangesNotSupported), Is(err, httpPkg.ErrRangeMismatch),
		Is(err, httpPkg.ErrInvalidContentRange), Is(err, ErrRangeUnsupported):
		return ClassRange
	case Is(err, ErrDestinationExists), Is(err, ErrInsufficientSpace):
		return ClassPreflight
	case httpPkg.IsRetryable(err):
		return ClassTransient
	default:
		return ClassFatal
	}
}

// IsRetryable determines if an error should be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var transferErr *TransferError
	if As(err, &transferErr) {
		return transferErr.Retryable
	}

	return Classify(err) == ClassTransient
}

// IsDiskError determines if the error is I/O related
func IsDiskError(err error) bool {
	return Classify(err) == ClassDisk
}

// IsRangeError determines if the server stopped honouring ranges.
func IsRangeError(err error) bool {
	return Classify(err) == ClassRange
}

// GetStatusCode extracts the status code from an error if available
func GetStatusCode(err error) (int, bool) {
	var transferErr *TransferError
	if As(err, &transferErr) && transferErr.StatusCode != 0 {
		return transferErr.StatusCode, true
	}

	return 0, false
}
