// Package worker runs fetch workers. Each worker claims chunks from the scheduler, streams
// them into the write pipeline and hands the unfetched remainder back on failure.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/NamanBalaji/fastdl/internal/chunk"
	terrors "github.com/NamanBalaji/fastdl/internal/errors"
	fetch "github.com/NamanBalaji/fastdl/internal/http"
	"github.com/NamanBalaji/fastdl/internal/logger"
	"github.com/NamanBalaji/fastdl/internal/scheduler"
	"github.com/NamanBalaji/fastdl/internal/writer"
	httpPkg "github.com/NamanBalaji/fastdl/pkg/http"
)

var ErrRetriesExhausted = errors.New("retry limit reached")

// Opener opens a byte stream of the resource starting at pos.
type Opener interface {
	Open(ctx context.Context, pos, end int64) (*fetch.Stream, error)
}

// Policy paces re-attempts. MaxRetries counts consecutive failures without progress on one
// chunk; zero means retry forever.
type Policy struct {
	Gap        time.Duration
	MaxRetries int
}

// Stats is shared by all workers of a transfer.
type Stats struct {
	active   atomic.Int32
	received atomic.Int64
	retries  atomic.Int64
}

// Active returns the number of open connections.
func (s *Stats) Active() int {
	return int(s.active.Load())
}

// Received returns bytes accepted from the network, including bytes not yet on disk.
func (s *Stats) Received() int64 {
	return s.received.Load()
}

// Retries returns how many times a chunk was released after a failure.
func (s *Stats) Retries() int64 {
	return s.retries.Load()
}

// Config holds what a worker shares with the rest of the transfer.
type Config struct {
	Scheduler *scheduler.Scheduler
	Fetcher   Opener
	Pipeline  *writer.Pipeline
	Policy    Policy
	Stats     *Stats
	// Resource names the transfer in errors.
	Resource string
}

// Worker fetches chunks until the scheduler runs out of work. A speculative worker retires
// after its first chunk.
type Worker struct {
	ID          int64
	Speculative bool

	cfg Config
}

func New(id int64, speculative bool, cfg Config) *Worker {
	if cfg.Stats == nil {
		cfg.Stats = &Stats{}
	}

	return &Worker{ID: id, Speculative: speculative, cfg: cfg}
}

// Run loops until there is no more work, ctx is cancelled or a fatal error occurs. Cancellation
// is not an error: the worker flushes what it holds and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	for {
		c, err := w.cfg.Scheduler.Acquire(ctx, w.ID, w.Speculative)

		switch {
		case err == nil:
		case errors.Is(err, scheduler.ErrDone), errors.Is(err, scheduler.ErrNoWork),
			errors.Is(err, scheduler.ErrClosed), ctx.Err() != nil:
			logger.Debugf("Worker %d stopping: %v", w.ID, err)
			return nil
		default:
			return err
		}

		if err := w.drive(ctx, c); err != nil {
			return err
		}

		if w.Speculative {
			logger.Debugf("Speculative worker %d retiring after chunk %d", w.ID, c.ID)
			return nil
		}
	}
}

type state int

const (
	stateConnect state = iota
	stateStream
	stateRelease
	stateDone
	stateCancelled
	stateFatal
)

// attempt is the per-chunk state carried between transitions.
type attempt struct {
	chunk  *chunk.Chunk
	stream *fetch.Stream
	buf    *[]byte
	bufOff int64
	err    error
}

// drive runs one chunk through connect and stream until it is done, released or abandoned.
func (w *Worker) drive(ctx context.Context, c *chunk.Chunk) error {
	a := &attempt{chunk: c}
	st := stateConnect

	for {
		switch st {
		case stateConnect:
			st = w.connect(ctx, a)
		case stateStream:
			st = w.stream(ctx, a)
		case stateRelease:
			return w.release(a)
		case stateDone:
			return w.complete(a)
		case stateCancelled:
			return w.cancelled(a)
		case stateFatal:
			return w.fatal(a)
		}
	}
}

func (w *Worker) connect(ctx context.Context, a *attempt) state {
	if ctx.Err() != nil {
		return stateCancelled
	}

	pos, end := a.chunk.Bounds()
	if pos >= end {
		return stateDone
	}

	s, err := w.cfg.Fetcher.Open(ctx, pos, end)
	if err != nil {
		a.err = err
		return w.classify(ctx, err)
	}

	a.stream = s
	w.cfg.Stats.active.Add(1)

	if total := s.Total(); total >= 0 && !w.cfg.Scheduler.SizeKnown() {
		if err := w.cfg.Scheduler.Resolve(total); err != nil {
			a.err = err
			return stateFatal
		}
	}

	return stateStream
}

func (w *Worker) stream(ctx context.Context, a *attempt) state {
	for {
		if a.buf == nil {
			a.buf = w.cfg.Pipeline.Buffer()
		}

		b := *a.buf
		res := a.stream.Next(b[len(b):cap(b)])

		if res.N > 0 {
			off, take := a.chunk.Reserve(int64(res.N))
			if take > 0 {
				if len(b) == 0 {
					a.bufOff = off
				}

				*a.buf = b[:len(b)+int(take)]
				w.cfg.Stats.received.Add(take)
			}

			if len(*a.buf) == cap(*a.buf) {
				if err := w.flush(a); err != nil {
					a.err = err
					return stateFatal
				}
			}

			if take < int64(res.N) {
				// End was lowered by a thief; the rest of this response belongs to it.
				return stateDone
			}
		}

		switch res.Kind {
		case fetch.Progress:
			if a.chunk.Remaining() <= 0 {
				return stateDone
			}

			if ctx.Err() != nil {
				return stateCancelled
			}
		case fetch.Done:
			return w.endOfBody(a)
		case fetch.Failed:
			a.err = res.Err
			return w.classify(ctx, res.Err)
		}
	}
}

// endOfBody handles a cleanly closed response. For an unbounded chunk the end of the body
// is the end of the resource.
func (w *Worker) endOfBody(a *attempt) state {
	pos, end := a.chunk.Bounds()

	switch {
	case pos >= end:
		return stateDone
	case end == chunk.Unbounded:
		if err := w.cfg.Scheduler.Resolve(pos); err != nil {
			a.err = err
			return stateFatal
		}

		return stateDone
	default:
		a.err = fmt.Errorf("%w: body ended at %d, chunk ends at %d", httpPkg.ErrUnexpectedEOF, pos, end)
		return stateRelease
	}
}

func (w *Worker) classify(ctx context.Context, err error) state {
	switch {
	case ctx.Err() != nil:
		return stateCancelled
	case httpPkg.IsRetryable(err):
		return stateRelease
	default:
		return stateFatal
	}
}

// flush pushes the local buffer into the pipeline. It may block on backpressure.
func (w *Worker) flush(a *attempt) error {
	if a.buf == nil {
		return nil
	}

	buf := a.buf
	a.buf = nil

	return w.cfg.Pipeline.Push(a.bufOff, buf)
}

func (w *Worker) closeStream(a *attempt) {
	if a.stream == nil {
		return
	}

	if err := a.stream.Close(); err != nil {
		logger.Debugf("Worker %d: closing stream: %v", w.ID, err)
	}

	a.stream = nil
	w.cfg.Stats.active.Add(-1)
}

// release hands the remainder back to the scheduler, claimable again after the retry gap.
func (w *Worker) release(a *attempt) error {
	w.closeStream(a)

	if err := w.flush(a); err != nil {
		a.err = err
		return w.fatal(a)
	}

	c := a.chunk
	pos := c.Pos()

	if limit := w.cfg.Policy.MaxRetries; limit > 0 && int(c.Failures()) >= limit {
		if err := w.cfg.Scheduler.Release(c, w.ID, time.Time{}); err != nil {
			logger.Errorf("Worker %d: releasing chunk %d: %v", w.ID, c.ID, err)
		}

		return terrors.NewTransientError(fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, limit+1, a.err),
			w.cfg.Resource, pos)
	}

	w.cfg.Stats.retries.Add(1)
	logger.Warnf("Worker %d: chunk %d failed at %d, retrying in %s: %v", w.ID, c.ID, pos, w.cfg.Policy.Gap, a.err)

	if err := w.cfg.Scheduler.Release(c, w.ID, time.Now().Add(w.cfg.Policy.Gap)); err != nil {
		return fmt.Errorf("release chunk %d: %w", c.ID, err)
	}

	return nil
}

func (w *Worker) complete(a *attempt) error {
	w.closeStream(a)

	if err := w.flush(a); err != nil {
		a.err = err
		return w.fatal(a)
	}

	c := a.chunk
	if c.Remaining() > 0 {
		// The body ended early and the remainder must be refetched.
		return w.cfg.Scheduler.Release(c, w.ID, time.Now())
	}

	logger.Debugf("Worker %d completed chunk %d [%d,%d)", w.ID, c.ID, c.Start, c.End())

	if err := w.cfg.Scheduler.Complete(c, w.ID); err != nil {
		return fmt.Errorf("complete chunk %d: %w", c.ID, err)
	}

	return nil
}

func (w *Worker) cancelled(a *attempt) error {
	w.closeStream(a)

	err := w.flush(a)

	if relErr := w.cfg.Scheduler.Release(a.chunk, w.ID, time.Time{}); relErr != nil {
		logger.Debugf("Worker %d: releasing chunk %d on cancel: %v", w.ID, a.chunk.ID, relErr)
	}

	if err != nil {
		return terrors.NewDiskError(err, w.cfg.Resource, a.bufOff)
	}

	return nil
}

// fatal abandons the chunk and reports an error the transfer cannot recover from by retrying.
func (w *Worker) fatal(a *attempt) error {
	w.closeStream(a)

	if err := w.flush(a); err != nil && a.err == nil {
		a.err = err
	}

	c := a.chunk
	pos := c.Pos()

	if err := w.cfg.Scheduler.Release(c, w.ID, time.Time{}); err != nil {
		logger.Debugf("Worker %d: releasing chunk %d after failure: %v", w.ID, c.ID, err)
	}

	logger.Errorf("Worker %d: chunk %d failed at %d: %v", w.ID, c.ID, pos, a.err)

	if w.cfg.Pipeline.Err() != nil && errors.Is(a.err, w.cfg.Pipeline.Err()) {
		return terrors.NewDiskError(a.err, w.cfg.Resource, pos)
	}

	return terrors.NewHTTPError(a.err, w.cfg.Resource, pos, 0)
}
