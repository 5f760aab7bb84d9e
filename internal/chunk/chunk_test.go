package chunk_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/fastdl/internal/chunk"
)

func TestNew(t *testing.T) {
	c := chunk.New(3, 100, 200)

	assert.Equal(t, 3, c.ID)
	assert.Equal(t, int64(100), c.Pos())
	assert.Equal(t, int64(200), c.End())
	assert.Equal(t, int64(0), c.Fetched())
	assert.Equal(t, int64(100), c.Remaining())
	assert.Equal(t, chunk.Unclaimed, c.Owner())
	assert.True(t, c.Ready(time.Now()))
}

func TestClaimReleaseFinish(t *testing.T) {
	c := chunk.New(0, 0, 10)

	require.True(t, c.Claim(1))
	assert.False(t, c.Claim(2), "second claimer must lose")
	assert.False(t, c.Ready(time.Now()))

	gap := time.Now().Add(time.Hour)
	require.NoError(t, c.Release(1, gap))
	assert.Equal(t, chunk.Unclaimed, c.Owner())
	assert.Equal(t, int32(1), c.Failures())
	assert.False(t, c.Ready(time.Now()), "retry gap not elapsed")
	assert.True(t, c.Ready(gap))

	assert.ErrorIs(t, c.Release(7, time.Now()), chunk.ErrNotOwner)

	require.True(t, c.Claim(2))
	assert.ErrorIs(t, c.Finish(1), chunk.ErrNotOwner)
	require.NoError(t, c.Finish(2))
	assert.Equal(t, chunk.Completed, c.Owner())
	assert.False(t, c.Claim(3))
}

func TestRelease_NotOwnerLeavesRetryStateAlone(t *testing.T) {
	c := chunk.New(0, 0, 10)
	require.True(t, c.Claim(1))

	assert.ErrorIs(t, c.Release(2, time.Now().Add(time.Hour)), chunk.ErrNotOwner)
	assert.Equal(t, int32(0), c.Failures())
	assert.Equal(t, int64(1), c.Owner())

	require.NoError(t, c.Release(1, time.Time{}))
	assert.True(t, c.Ready(time.Now()), "a stray release must not have set a retry gap")

	assert.ErrorIs(t, c.Release(chunk.Unclaimed, time.Now().Add(time.Hour)), chunk.ErrNotOwner)
	assert.Equal(t, int32(1), c.Failures())
	assert.True(t, c.Ready(time.Now()))
}

func TestReserve(t *testing.T) {
	c := chunk.New(0, 10, 30)
	require.True(t, c.Claim(1))
	require.NoError(t, c.Release(1, time.Now()))
	require.True(t, c.Claim(1))

	off, n := c.Reserve(8)
	assert.Equal(t, int64(10), off)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, int32(0), c.Failures(), "progress resets the failure count")

	off, n = c.Reserve(100)
	assert.Equal(t, int64(18), off)
	assert.Equal(t, int64(12), n)

	off, n = c.Reserve(1)
	assert.Equal(t, int64(30), off)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, int64(20), c.Fetched())
}

func TestSplit(t *testing.T) {
	c := chunk.New(0, 0, 100)
	c.Reserve(10)

	assert.ErrorIs(t, c.Split(0, 100, 50), chunk.ErrSplitRejected, "stale pos")
	assert.ErrorIs(t, c.Split(10, 100, 10), chunk.ErrSplitRejected, "split at pos")
	assert.ErrorIs(t, c.Split(10, 100, 100), chunk.ErrSplitRejected, "split at end")

	require.NoError(t, c.Split(10, 100, 55))
	assert.Equal(t, int64(55), c.End())

	_, n := c.Reserve(100)
	assert.Equal(t, int64(45), n, "owner stops at the split point")
}

func TestBound(t *testing.T) {
	c := chunk.New(0, 0, chunk.Unbounded)
	c.Reserve(40)

	assert.ErrorIs(t, c.Bound(30), chunk.ErrBoundBelowPos)
	require.NoError(t, c.Bound(64))
	assert.Equal(t, int64(64), c.End())

	require.NoError(t, c.Bound(10), "bounded chunks are left alone")
	assert.Equal(t, int64(64), c.End())
}

// Owner reserves and a thief splits concurrently. Every byte must be handed out exactly once.
func TestReserveAndSplitNeverOverlap(t *testing.T) {
	const size = 1 << 20

	for round := range 50 {
		c := chunk.New(round, 0, size)

		var (
			wg     sync.WaitGroup
			owned  atomic.Int64
			stolen atomic.Int64
		)

		wg.Add(2)

		go func() {
			defer wg.Done()

			for {
				_, n := c.Reserve(512)
				if n == 0 {
					return
				}

				owned.Add(n)
			}
		}()

		go func() {
			defer wg.Done()

			for {
				pos, end := c.Bounds()
				if end-pos < 2 {
					return
				}

				at := pos + (end-pos)/2
				if c.Split(pos, end, at) == nil {
					stolen.Add(end - at)
					return
				}
			}
		}()

		wg.Wait()

		assert.Equal(t, int64(size), owned.Load()+stolen.Load())
		assert.Equal(t, c.End(), owned.Load())
	}
}
