package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

var (
	ErrHeadNotSupported    = errors.New("HEAD method not supported by server")
	ErrRangesNotSupported  = errors.New("byte ranges not supported by server")
	ErrInvalidContentRange = errors.New("invalid Content-Range header")
	ErrRangeMismatch       = errors.New("server returned a different range than requested")

	ErrTimeout          = errors.New("operation timed out")
	ErrNetworkProblem   = errors.New("network-related error")
	ErrIOProblem        = errors.New("I/O error")
	ErrRequestCreation  = errors.New("failed to create request")
	ErrInvalidProxy     = errors.New("invalid proxy URL")
	ErrInvalidLocalAddr = errors.New("invalid local address")

	ErrServerProblem    = errors.New("server error (5xx)")
	ErrTooManyRequests  = errors.New("too many requests (429)")
	ErrResourceNotFound = errors.New("resource not found (404)")
	ErrAccessDenied     = errors.New("access denied (403)")
	ErrAuthentication   = errors.New("authentication required (401)")
	ErrGone             = errors.New("resource gone (410)")
	ErrClientRequest    = errors.New("client error (4xx)")

	ErrUnknown       = errors.New("unknown error")
	ErrUnexpectedEOF = errors.New("unexpected EOF")
)

// StatusError keeps the HTTP status behind a classified response failure.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}

	return 0
}

// ClassifyHTTPError converts an HTTP status code into an appropriate error.
func ClassifyHTTPError(statusCode int) error {
	err := statusSentinel(statusCode)
	if err == nil {
		return nil
	}

	return &StatusError{Code: statusCode, Err: err}
}

func statusSentinel(statusCode int) error {
	switch statusCode {
	case http.StatusNotFound:
		return ErrResourceNotFound
	case http.StatusForbidden:
		return ErrAccessDenied
	case http.StatusUnauthorized:
		return ErrAuthentication
	case http.StatusGone:
		return ErrGone
	case http.StatusMethodNotAllowed:
		return ErrHeadNotSupported
	case http.StatusRequestedRangeNotSatisfiable:
		return ErrRangesNotSupported
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return ErrTooManyRequests
	default:
		switch {
		case statusCode >= http.StatusInternalServerError:
			return ErrServerProblem
		case statusCode >= http.StatusBadRequest:
			return ErrClientRequest
		default:
			return nil
		}
	}
}

// ClassifyError categorizes a general error into a sentinel error. The original
// message is kept for network and unknown failures.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrUnexpectedEOF
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimeout
		}

		return fmt.Errorf("%w: %v", ErrNetworkProblem, err)
	}

	return fmt.Errorf("%w: %v", ErrUnknown, err)
}

// IsFallbackError checks if the error requires fallback during initialization.
func IsFallbackError(err error) bool {
	return errors.Is(err, ErrHeadNotSupported) || errors.Is(err, ErrRangesNotSupported) || errors.Is(err, ErrUnexpectedEOF)
}

// IsRetryable reports whether a failed request may succeed if repeated after a pause.
// Timeouts, dropped connections, 5xx and 429 responses qualify. Other client errors and
// range violations do not.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrRangesNotSupported), errors.Is(err, ErrRangeMismatch),
		errors.Is(err, ErrInvalidContentRange):
		return false
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrNetworkProblem),
		errors.Is(err, ErrUnexpectedEOF), errors.Is(err, ErrServerProblem),
		errors.Is(err, ErrTooManyRequests), errors.Is(err, ErrUnknown):
		return true
	default:
		return false
	}
}
