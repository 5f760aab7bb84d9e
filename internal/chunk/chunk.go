package chunk

import (
	"math"
	"sync/atomic"
	"time"
)

// Unbounded marks the end of a chunk whose resource size is not yet known.
const Unbounded int64 = math.MaxInt64

// Owner values besides positive worker ids.
const (
	Unclaimed int64 = 0
	Completed int64 = -1
)

type window struct {
	pos int64
	end int64
}

// Chunk is one arena record: the byte range [Start, End) of the resource, of which
// [Start, Pos) has been handed to the write pipeline. Pos only moves forward and End only
// moves backward, both through a single atomically swapped window so an owner advancing Pos
// and a thief lowering End can never both succeed against the same state.
type Chunk struct {
	ID    int
	Start int64

	win          atomic.Pointer[window]
	owner        atomic.Int64
	lastProgress atomic.Int64
	notBefore    atomic.Int64
	failures     atomic.Int32
}

// New creates an unclaimed chunk covering [start, end).
func New(id int, start, end int64) *Chunk {
	c := &Chunk{ID: id, Start: start}
	c.win.Store(&window{pos: start, end: end})
	c.lastProgress.Store(time.Now().UnixNano())

	return c
}

// NewClaimed creates a chunk already owned by worker, used for the upper half of a steal.
func NewClaimed(id int, start, end, worker int64) *Chunk {
	c := New(id, start, end)
	c.owner.Store(worker)

	return c
}

// Pos returns the first byte not yet handed to the write pipeline.
func (c *Chunk) Pos() int64 {
	return c.win.Load().pos
}

// End returns the exclusive upper bound, Unbounded while the size is unknown.
func (c *Chunk) End() int64 {
	return c.win.Load().end
}

// Bounds returns Pos and End from one consistent snapshot.
func (c *Chunk) Bounds() (int64, int64) {
	w := c.win.Load()
	return w.pos, w.end
}

// Fetched returns how many bytes of the chunk have been handed to the write pipeline.
func (c *Chunk) Fetched() int64 {
	return c.Pos() - c.Start
}

// Remaining returns End - Pos.
func (c *Chunk) Remaining() int64 {
	w := c.win.Load()
	return w.end - w.pos
}

// Owner returns Unclaimed, Completed or the id of the claiming worker.
func (c *Chunk) Owner() int64 {
	return c.owner.Load()
}

// Failures returns consecutive failed attempts since the last progress.
func (c *Chunk) Failures() int32 {
	return c.failures.Load()
}

// LastProgress returns when Pos last moved, or when the chunk was created.
func (c *Chunk) LastProgress() time.Time {
	return time.Unix(0, c.lastProgress.Load())
}

// ReadyAt returns the earliest time the chunk may be claimed again.
func (c *Chunk) ReadyAt() time.Time {
	return time.Unix(0, c.notBefore.Load())
}

// Ready reports whether the chunk is unclaimed and its retry gap has elapsed.
func (c *Chunk) Ready(now time.Time) bool {
	return c.owner.Load() == Unclaimed && now.UnixNano() >= c.notBefore.Load() && c.Remaining() > 0
}

// Claim transfers an unclaimed chunk to worker. Exactly one concurrent claimer wins.
func (c *Chunk) Claim(worker int64) bool {
	return c.owner.CompareAndSwap(Unclaimed, worker)
}

// Release returns the chunk to the pool after a failed attempt. It may not be claimed again
// before notBefore; a zero time makes it claimable at once.
// A caller that does not own the chunk gets ErrNotOwner and changes nothing.
func (c *Chunk) Release(worker int64, notBefore time.Time) error {
	if worker <= Unclaimed || c.owner.Load() != worker {
		return ErrNotOwner
	}

	var at int64
	if !notBefore.IsZero() {
		at = notBefore.UnixNano()
	}

	c.notBefore.Store(at)
	c.failures.Add(1)

	if !c.owner.CompareAndSwap(worker, Unclaimed) {
		return ErrNotOwner
	}

	return nil
}

// Finish marks the chunk completed. Only the owner can finish it.
func (c *Chunk) Finish(worker int64) error {
	if !c.owner.CompareAndSwap(worker, Completed) {
		return ErrNotOwner
	}

	return nil
}

// Reserve advances Pos by up to n bytes and returns the offset of the reserved run and its
// length. A shorter run than n means a thief lowered End; zero means nothing is left.
func (c *Chunk) Reserve(n int64) (int64, int64) {
	for {
		w := c.win.Load()
		if w.pos >= w.end || n <= 0 {
			return w.pos, 0
		}

		take := min(n, w.end-w.pos)
		if c.win.CompareAndSwap(w, &window{pos: w.pos + take, end: w.end}) {
			c.lastProgress.Store(time.Now().UnixNano())
			c.failures.Store(0)

			return w.pos, take
		}
	}
}

// Split lowers End to at, provided the window still reads pos/end. It returns ErrSplitRejected
// when the owner advanced or another thief split first.
func (c *Chunk) Split(pos, end, at int64) error {
	w := c.win.Load()
	if w.pos != pos || w.end != end || at <= pos || at >= end {
		return ErrSplitRejected
	}

	if !c.win.CompareAndSwap(w, &window{pos: pos, end: at}) {
		return ErrSplitRejected
	}

	return nil
}

// Bound caps an unbounded chunk at size once the resource size is known.
func (c *Chunk) Bound(size int64) error {
	for {
		w := c.win.Load()
		if w.end != Unbounded {
			return nil
		}

		if w.pos > size {
			return ErrBoundBelowPos
		}

		if c.win.CompareAndSwap(w, &window{pos: w.pos, end: size}) {
			return nil
		}
	}
}

// View is an immutable snapshot of a chunk, the input of the pure planning functions.
type View struct {
	ID           int
	Owner        int64
	Start        int64
	Pos          int64
	End          int64
	LastProgress time.Time
}

// Remaining returns End - Pos of the snapshot.
func (v View) Remaining() int64 {
	return v.End - v.Pos
}

// View captures the current state of the chunk.
func (c *Chunk) View() View {
	pos, end := c.Bounds()

	return View{
		ID:           c.ID,
		Owner:        c.Owner(),
		Start:        c.Start,
		Pos:          pos,
		End:          end,
		LastProgress: c.LastProgress(),
	}
}
