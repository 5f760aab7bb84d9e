package engine

import (
	"context"

	"github.com/NamanBalaji/fastdl/internal/errors"
	"github.com/NamanBalaji/fastdl/internal/status"
)

// transferError attaches the resource to err unless it already carries a class.
func transferError(err error, resource string) error {
	if err == nil {
		return nil
	}

	var te *errors.TransferError
	if errors.As(err, &te) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.NewCancelledError(err, resource)
	}

	return errors.NewHTTPError(err, resource, -1, 0)
}

// statusFor maps the outcome of a run to the status reported to the caller.
func statusFor(err error) status.Status {
	if err == nil {
		return status.Completed
	}

	switch errors.Classify(err) {
	case errors.ClassCancelled:
		return status.Paused
	case errors.ClassRange:
		return status.RangeUnsupported
	default:
		return status.Failed
	}
}
