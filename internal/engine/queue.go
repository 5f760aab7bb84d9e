package engine

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/fastdl/internal/logger"
)

// PrioritizedRequest is a queued request with its priority.
type PrioritizedRequest struct {
	Request  Request
	Priority int
	seq      int
}

// Outcome is what one queued request ended with.
type Outcome struct {
	Request Request
	Result  *Result
	Err     error
}

// QueueProcessor runs batches of requests, higher priority first, at most maxConcurrent at a
// time. A failing request does not stop the others.
type QueueProcessor struct {
	maxConcurrent int
	run           func(context.Context, Request) (*Result, error)

	mu     sync.Mutex
	queued []*PrioritizedRequest
	seq    int
}

// NewQueueProcessor creates a new queue processor
func NewQueueProcessor(maxConcurrent int, run func(context.Context, Request) (*Result, error)) *QueueProcessor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	return &QueueProcessor{maxConcurrent: maxConcurrent, run: run}
}

// Enqueue adds a request to the queue
func (q *QueueProcessor) Enqueue(req Request, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.queued = append(q.queued, &PrioritizedRequest{Request: req, Priority: priority, seq: q.seq})
	q.seq++

	q.sortQueue()
}

// Len returns the number of requests waiting.
func (q *QueueProcessor) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.queued)
}

// sortQueue sorts the queue by priority (higher first), keeping insertion order for equal priorities
func (q *QueueProcessor) sortQueue() {
	sort.Slice(q.queued, func(i, j int) bool {
		if q.queued[i].Priority != q.queued[j].Priority {
			return q.queued[i].Priority > q.queued[j].Priority
		}

		return q.queued[i].seq < q.queued[j].seq
	})
}

func (q *QueueProcessor) pop() (*PrioritizedRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queued) == 0 {
		return nil, false
	}

	pr := q.queued[0]
	q.queued = q.queued[1:]

	return pr, true
}

// Process drains the queue and returns outcomes in start order. Requests not yet started when
// ctx is cancelled are skipped.
func (q *QueueProcessor) Process(ctx context.Context) []Outcome {
	var (
		mu       sync.Mutex
		outcomes []Outcome
	)

	g := &errgroup.Group{}
	g.SetLimit(q.maxConcurrent)

	for {
		pr, ok := q.pop()
		if !ok || ctx.Err() != nil {
			break
		}

		mu.Lock()
		idx := len(outcomes)
		outcomes = append(outcomes, Outcome{Request: pr.Request})
		mu.Unlock()

		g.Go(func() error {
			res, err := q.run(ctx, pr.Request)
			if err != nil {
				logger.Warnf("Queued download %s failed: %v", pr.Request.URL, err)
			}

			mu.Lock()
			outcomes[idx].Result = res
			outcomes[idx].Err = err
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	return outcomes
}
