package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessor_PriorityOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)

	q := NewQueueProcessor(1, func(_ context.Context, r Request) (*Result, error) {
		mu.Lock()
		order = append(order, r.URL)
		mu.Unlock()

		return &Result{URL: r.URL}, nil
	})

	q.Enqueue(Request{URL: "a"}, 0)
	q.Enqueue(Request{URL: "b"}, 5)
	q.Enqueue(Request{URL: "c"}, 5)
	q.Enqueue(Request{URL: "d"}, 1)
	assert.Equal(t, 4, q.Len())

	outcomes := q.Process(context.Background())

	assert.Equal(t, []string{"b", "c", "d", "a"}, order)
	require.Len(t, outcomes, 4)
	assert.Equal(t, "b", outcomes[0].Result.URL)
	assert.Zero(t, q.Len())
}

func TestQueueProcessor_FailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("boom")

	q := NewQueueProcessor(2, func(_ context.Context, r Request) (*Result, error) {
		if r.URL == "bad" {
			return nil, boom
		}

		return &Result{URL: r.URL}, nil
	})

	q.Enqueue(Request{URL: "bad"}, 10)
	q.Enqueue(Request{URL: "good"}, 0)

	outcomes := q.Process(context.Background())
	require.Len(t, outcomes, 2)
	assert.ErrorIs(t, outcomes[0].Err, boom)
	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, "good", outcomes[1].Result.URL)
}

func TestQueueProcessor_ConcurrencyLimit(t *testing.T) {
	var running, peak atomic.Int32

	q := NewQueueProcessor(2, func(_ context.Context, r Request) (*Result, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(20 * time.Millisecond)
		running.Add(-1)

		return &Result{}, nil
	})

	for i := 0; i < 6; i++ {
		q.Enqueue(Request{}, 0)
	}

	q.Process(context.Background())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestQueueProcessor_CancelledSkipsPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := NewQueueProcessor(1, func(context.Context, Request) (*Result, error) {
		t.Fatal("nothing should run")
		return nil, nil
	})
	q.Enqueue(Request{URL: "a"}, 0)

	assert.Empty(t, q.Process(ctx))
}
