package errors_test

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/NamanBalaji/fastdl/internal/errors"
	httpPkg "github.com/NamanBalaji/fastdl/pkg/http"
)

func TestTransferErrorError(t *testing.T) {
	baseErr := stdErrors.New("underlying error")
	te := &errors.TransferError{
		Err:       baseErr,
		Class:     errors.ClassDisk,
		Timestamp: time.Now(),
		Resource:  "file.bin",
		Offset:    42,
	}
	expected := "[DISK] file.bin @42: underlying error"
	if te.Error() != expected {
		t.Errorf("expected %q, got %q", expected, te.Error())
	}

	te2 := errors.NewPreflightError(errors.ErrDestinationExists, "/tmp/out.bin")
	expected2 := "[PREFLIGHT] /tmp/out.bin: destination already exists"
	if te2.Error() != expected2 {
		t.Errorf("expected %q, got %q", expected2, te2.Error())
	}
}

func TestTransferErrorUnwrap(t *testing.T) {
	baseErr := stdErrors.New("base error")
	te := errors.NewTransientError(baseErr, "http://example.com", 0)
	if !errors.Is(te, baseErr) {
		t.Errorf("expected %v to wrap %v", te, baseErr)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *errors.TransferError
		class     errors.Class
		retryable bool
	}{
		{"transient", errors.NewTransientError(httpPkg.ErrTimeout, "u", 10), errors.ClassTransient, true},
		{"range", errors.NewRangeError(httpPkg.ErrRangeMismatch, "u", 10), errors.ClassRange, false},
		{"disk", errors.NewDiskError(stdErrors.New("no space"), "f", 10), errors.ClassDisk, false},
		{"preflight", errors.NewPreflightError(errors.ErrInsufficientSpace, "f"), errors.ClassPreflight, false},
		{"state", errors.NewStateError(stdErrors.New("bolt"), "db"), errors.ClassState, false},
		{"cancelled", errors.NewCancelledError(context.Canceled, "u"), errors.ClassCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Class != tt.class {
				t.Errorf("class = %s; want %s", tt.err.Class, tt.class)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("retryable = %v; want %v", tt.err.Retryable, tt.retryable)
			}
			if tt.err.Timestamp.IsZero() {
				t.Error("timestamp not set")
			}
		})
	}
}

func TestNewHTTPError(t *testing.T) {
	te := errors.NewHTTPError(httpPkg.ErrServerProblem, "http://example.com", 0, 503)
	if te.Class != errors.ClassTransient || !te.Retryable {
		t.Errorf("503 should be transient and retryable, got %s/%v", te.Class, te.Retryable)
	}

	te2 := errors.NewHTTPError(httpPkg.ErrResourceNotFound, "http://example.com", 0, 404)
	if te2.Class != errors.ClassFatal || te2.Retryable {
		t.Errorf("404 should be fatal, got %s/%v", te2.Class, te2.Retryable)
	}

	code, ok := errors.GetStatusCode(te2)
	if !ok || code != 404 {
		t.Errorf("GetStatusCode = %d, %v; want 404, true", code, ok)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.Class
	}{
		{"nil", nil, ""},
		{"canceled", context.Canceled, errors.ClassCancelled},
		{"wrapped canceled", fmt.Errorf("fetch: %w", context.Canceled), errors.ClassCancelled},
		{"ranges", httpPkg.ErrRangesNotSupported, errors.ClassRange},
		{"mismatch", httpPkg.ErrRangeMismatch, errors.ClassRange},
		{"timeout", httpPkg.ErrTimeout, errors.ClassTransient},
		{"eof", httpPkg.ErrUnexpectedEOF, errors.ClassTransient},
		{"too many", httpPkg.ErrTooManyRequests, errors.ClassTransient},
		{"not found", httpPkg.ErrResourceNotFound, errors.ClassFatal},
		{"exists", errors.ErrDestinationExists, errors.ClassPreflight},
		{"transfer error wins", errors.NewDiskError(httpPkg.ErrTimeout, "f", 0), errors.ClassDisk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s; want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !errors.IsRetryable(errors.NewTransientError(stdErrors.New("reset"), "u", 0)) {
		t.Error("Expected transient error to be retried")
	}

	if errors.IsRetryable(errors.NewDiskError(stdErrors.New("io error"), "file.bin", 0)) {
		t.Error("Expected disk error to not be retried")
	}

	if !errors.IsRetryable(httpPkg.ErrServerProblem) {
		t.Error("Expected bare 5xx sentinel to be retried")
	}

	if errors.IsRetryable(nil) {
		t.Error("Expected nil error to be non-retryable")
	}
}

func TestIsDiskAndRangeError(t *testing.T) {
	if !errors.IsDiskError(errors.NewDiskError(stdErrors.New("eio"), "f", 0)) {
		t.Error("expected disk error")
	}

	if !errors.IsRangeError(fmt.Errorf("chunk 3: %w", httpPkg.ErrRangesNotSupported)) {
		t.Error("expected range error")
	}

	if errors.IsRangeError(httpPkg.ErrTimeout) {
		t.Error("timeout is not a range error")
	}
}

func TestNewHTTPError_StatusFromResponse(t *testing.T) {
	te := errors.NewHTTPError(httpPkg.ClassifyHTTPError(503), "example.com", 10, 0)

	code, ok := errors.GetStatusCode(te)
	if !ok || code != 503 {
		t.Errorf("GetStatusCode = %d, %v; want 503, true", code, ok)
	}

	if !te.Retryable || te.Class != errors.ClassTransient {
		t.Errorf("503 should be transient and retryable, got %s retryable=%v", te.Class, te.Retryable)
	}

	if _, ok := errors.GetStatusCode(stdErrors.New("plain")); ok {
		t.Error("plain errors carry no status")
	}
}
