package chunk

import "errors"

var (
	ErrInvalidChunkSize = errors.New("invalid chunk size (must be positive)")
	ErrNotOwner         = errors.New("chunk is not owned by this worker")
	ErrSplitRejected    = errors.New("chunk window changed, split rejected")
	ErrBoundBelowPos    = errors.New("resolved size is below the fetched position")
)
