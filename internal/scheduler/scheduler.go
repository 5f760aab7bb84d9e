// Package scheduler hands out disjoint byte ranges to fetch workers and rebalances them by
// splitting the largest backlog whenever a worker runs dry.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NamanBalaji/fastdl/internal/chunk"
	"github.com/NamanBalaji/fastdl/internal/ledger"
	"github.com/NamanBalaji/fastdl/internal/logger"
)

var (
	ErrDone         = errors.New("all chunks completed")
	ErrNoWork       = errors.New("no work for speculative fetcher")
	ErrClosed       = errors.New("scheduler closed")
	ErrInvalidSize  = errors.New("resolved size conflicts with known size")
	ErrInvalidFloor = errors.New("chunk floor must be positive")
)

const maxStealAttempts = 4

// Options configures a Scheduler.
type Options struct {
	// Workers is the base fetcher count used for the initial partition.
	Workers int
	// Floor is the minimum chunk length; spans at or below it are never split.
	Floor int64
	// NoSteal disables splitting, used for single-stream transfers.
	NoSteal bool
}

// Scheduler owns the chunk arena. The arena only grows, ids are indexes, and all ownership
// changes happen through the chunks' own atomic transitions.
type Scheduler struct {
	mu     sync.RWMutex
	chunks []*chunk.Chunk

	floor int64
	steal bool
	size  atomic.Int64

	notifyMu sync.Mutex
	notify   chan struct{}

	closeOnce sync.Once
	closed    chan struct{}

	idle   atomic.Int32
	steals atomic.Int64
}

// New partitions gaps of a resource of the given size. A negative size means unknown: a single
// unbounded chunk starting at zero is created and gaps are ignored.
func New(size int64, gaps []ledger.Span, opts Options) (*Scheduler, error) {
	if opts.Floor <= 0 {
		return nil, ErrInvalidFloor
	}

	s := &Scheduler{
		floor:  opts.Floor,
		steal:  !opts.NoSteal,
		notify: make(chan struct{}),
		closed: make(chan struct{}),
	}
	s.size.Store(-1)

	if size < 0 {
		s.chunks = []*chunk.Chunk{chunk.New(0, 0, chunk.Unbounded)}
		logger.Debugf("Scheduler started with unknown size: one unbounded chunk")

		return s, nil
	}

	s.size.Store(size)

	workers := opts.Workers
	if opts.NoSteal {
		workers = 1
	}

	spans, err := chunk.Partition(ledger.Clip(ledger.Normalize(gaps), size), workers, opts.Floor)
	if err != nil {
		return nil, err
	}

	s.chunks = make([]*chunk.Chunk, 0, len(spans))
	for i, sp := range spans {
		s.chunks = append(s.chunks, chunk.New(i, sp.Start, sp.End))
	}

	logger.Debugf("Scheduler started: size=%d chunks=%d floor=%d steal=%v", size, len(s.chunks), s.floor, s.steal)

	return s, nil
}

// Acquire returns a chunk now owned by worker. It claims a ready unclaimed chunk first, then
// tries to steal the upper half of the largest backlog, and otherwise parks until something
// changes. It returns ErrDone once every chunk is complete and the size is known. Speculative
// workers get ErrNoWork instead of parking once the size is known.
func (s *Scheduler) Acquire(ctx context.Context, worker int64, speculative bool) (*chunk.Chunk, error) {
	for {
		wake := s.changed()

		select {
		case <-s.closed:
			return nil, ErrClosed
		default:
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, readyAt, done := s.next(worker)
		if c != nil {
			return c, nil
		}

		if done {
			return nil, ErrDone
		}

		if speculative && s.SizeKnown() {
			return nil, ErrNoWork
		}

		if err := s.park(ctx, wake, readyAt, speculative); err != nil {
			return nil, err
		}
	}
}

func (s *Scheduler) park(ctx context.Context, wake <-chan struct{}, readyAt time.Time, speculative bool) error {
	if !speculative {
		s.idle.Add(1)
		defer s.idle.Add(-1)
	}

	var timeout <-chan time.Time

	if !readyAt.IsZero() {
		t := time.NewTimer(time.Until(readyAt))
		defer t.Stop()

		timeout = t.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrClosed
	case <-wake:
	case <-timeout:
	}

	return nil
}

// next claims or steals a chunk for worker. When it finds nothing it returns the earliest time
// a released chunk becomes claimable and whether the whole job is done.
func (s *Scheduler) next(worker int64) (*chunk.Chunk, time.Time, bool) {
	now := time.Now()

	var (
		readyAt time.Time
		pending bool
	)

	s.mu.RLock()
	for _, c := range s.chunks {
		switch c.Owner() {
		case chunk.Completed:
			continue
		case chunk.Unclaimed:
			if c.Ready(now) {
				if c.Claim(worker) {
					s.mu.RUnlock()
					logger.Debugf("Worker %d claimed chunk %d [%d,%d)", worker, c.ID, c.Pos(), c.End())

					return c, time.Time{}, false
				}
			} else if at := c.ReadyAt(); readyAt.IsZero() || at.Before(readyAt) {
				readyAt = at
			}
		}

		pending = true
	}
	s.mu.RUnlock()

	if !pending && s.SizeKnown() {
		return nil, time.Time{}, true
	}

	if s.steal && s.SizeKnown() {
		if c := s.trySteal(worker); c != nil {
			return c, time.Time{}, false
		}
	}

	return nil, readyAt, false
}

// trySteal plans on a snapshot taken under the read lock, so claims in next are not held up
// while views are built. The write lock covers only the split and the append, which keeps the
// stolen range inside the arena at every moment.
func (s *Scheduler) trySteal(worker int64) *chunk.Chunk {
	for range maxStealAttempts {
		d, ok := chunk.PlanSteal(s.Views(), s.floor)
		if !ok {
			return nil
		}

		if c := s.split(d, worker); c != nil {
			return c
		}
	}

	return nil
}

func (s *Scheduler) split(d chunk.StealDecision, worker int64) *chunk.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	victim := s.chunks[d.Victim]
	if err := victim.Split(d.Pos, d.End, d.SplitAt); err != nil {
		return nil
	}

	c := chunk.NewClaimed(len(s.chunks), d.SplitAt, d.End, worker)
	s.chunks = append(s.chunks, c)
	s.steals.Add(1)

	logger.Debugf("Worker %d stole [%d,%d) from chunk %d (owner %d)",
		worker, d.SplitAt, d.End, d.Victim, victim.Owner())

	return c
}

// Release gives a chunk back after a failed attempt. It becomes claimable again at notBefore.
// A chunk with nothing left is completed instead.
func (s *Scheduler) Release(c *chunk.Chunk, worker int64, notBefore time.Time) error {
	var err error
	if c.Remaining() <= 0 {
		err = c.Finish(worker)
	} else {
		err = c.Release(worker, notBefore)
	}

	s.broadcast()

	return err
}

// Complete marks a fully fetched chunk as done.
func (s *Scheduler) Complete(c *chunk.Chunk, worker int64) error {
	err := c.Finish(worker)
	s.broadcast()

	return err
}

// Resolve records the resource size once it is discovered and bounds the unbounded chunk.
func (s *Scheduler) Resolve(size int64) error {
	if size < 0 {
		return ErrInvalidSize
	}

	if !s.size.CompareAndSwap(-1, size) {
		if s.size.Load() != size {
			return ErrInvalidSize
		}

		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chunks {
		if err := c.Bound(size); err != nil {
			return err
		}
	}

	logger.Debugf("Resource size resolved to %d bytes", size)
	s.broadcast()

	return nil
}

// Done reports whether every chunk is complete and the size is known.
func (s *Scheduler) Done() bool {
	if !s.SizeKnown() {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chunks {
		if c.Owner() != chunk.Completed {
			return false
		}
	}

	return true
}

// Close wakes all parked workers with ErrClosed.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Views returns a snapshot of every chunk.
func (s *Scheduler) Views() []chunk.View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]chunk.View, len(s.chunks))
	for i, c := range s.chunks {
		views[i] = c.View()
	}

	return views
}

// Size returns the resource size, -1 while unknown.
func (s *Scheduler) Size() int64 {
	return s.size.Load()
}

func (s *Scheduler) SizeKnown() bool {
	return s.size.Load() >= 0
}

// Floor returns the minimum chunk length.
func (s *Scheduler) Floor() int64 {
	return s.floor
}

// Idle returns how many base workers are parked.
func (s *Scheduler) Idle() int {
	return int(s.idle.Load())
}

// Steals returns how many splits have happened.
func (s *Scheduler) Steals() int64 {
	return s.steals.Load()
}

// Changed returns a channel closed on the next claim-relevant state change.
func (s *Scheduler) Changed() <-chan struct{} {
	return s.changed()
}

func (s *Scheduler) changed() chan struct{} {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	return s.notify
}

func (s *Scheduler) broadcast() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	close(s.notify)
	s.notify = make(chan struct{})
}
