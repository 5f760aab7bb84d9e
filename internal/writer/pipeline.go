// Package writer commits fetched bytes to the destination file from a single goroutine and
// records every commit in the progress ledger.
package writer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/NamanBalaji/fastdl/internal/ledger"
	"github.com/NamanBalaji/fastdl/internal/logger"
)

var (
	ErrPipelineClosed = errors.New("write pipeline closed")
	ErrInvalidOptions = errors.New("queue capacity and buffer size must be positive")
)

// Request is one payload to write at an absolute offset.
type Request struct {
	Offset  int64
	Payload []byte

	buf *[]byte
}

// Options sizes a Pipeline.
type Options struct {
	QueueCap   int
	BufferSize int
}

// Pipeline is a bounded FIFO of write requests drained by one writer goroutine. Push blocks
// while the queue is full.
type Pipeline struct {
	strategy Strategy
	ledger   *ledger.Ledger

	queue   chan Request
	bufSize int
	pool    sync.Pool

	failed  chan struct{}
	errOnce sync.Once
	err     error

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}

	committed atomic.Int64
	writes    atomic.Int64
}

// New creates a pipeline writing through strategy and recording into l.
func New(strategy Strategy, l *ledger.Ledger, opts Options) (*Pipeline, error) {
	if opts.QueueCap <= 0 || opts.BufferSize <= 0 {
		return nil, ErrInvalidOptions
	}

	p := &Pipeline{
		strategy: strategy,
		ledger:   l,
		queue:    make(chan Request, opts.QueueCap),
		bufSize:  opts.BufferSize,
		failed:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	p.pool.New = func() any {
		b := make([]byte, 0, p.bufSize)
		return &b
	}

	return p, nil
}

// Start launches the writer goroutine.
func (p *Pipeline) Start() {
	p.startOnce.Do(func() { go p.run() })
}

func (p *Pipeline) run() {
	defer close(p.done)

	for req := range p.queue {
		if p.Err() != nil {
			p.recycle(req)
			continue
		}

		if err := p.strategy.WriteAt(req.Payload, req.Offset); err != nil {
			p.fail(fmt.Errorf("write %d bytes at %d: %w", len(req.Payload), req.Offset, err))
			p.recycle(req)

			continue
		}

		n := int64(len(req.Payload))
		p.ledger.Add(req.Offset, req.Offset+n)
		p.committed.Add(n)
		p.writes.Add(1)

		p.recycle(req)
	}

	if p.Err() == nil {
		if err := p.strategy.Sync(); err != nil {
			p.fail(fmt.Errorf("sync: %w", err))
		}
	}
}

func (p *Pipeline) fail(err error) {
	p.errOnce.Do(func() {
		p.err = err
		close(p.failed)
		logger.Errorf("Write pipeline failed: %v", err)
	})
}

// Err returns the first write failure, if any.
func (p *Pipeline) Err() error {
	select {
	case <-p.failed:
		return p.err
	default:
		return nil
	}
}

// Failed is closed once a write fails.
func (p *Pipeline) Failed() <-chan struct{} {
	return p.failed
}

// Buffer returns an empty buffer with BufferSize capacity for a producer to fill.
func (p *Pipeline) Buffer() *[]byte {
	b, _ := p.pool.Get().(*[]byte)
	*b = (*b)[:0]

	return b
}

// BufferSize returns the capacity of buffers handed out by Buffer.
func (p *Pipeline) BufferSize() int {
	return p.bufSize
}

// Push queues the contents of buf for writing at offset, blocking while the queue is full.
// buf must come from Buffer and must not be touched afterwards. It fails once the pipeline
// has failed. Push must not be called after Close.
func (p *Pipeline) Push(offset int64, buf *[]byte) error {
	if len(*buf) == 0 {
		p.pool.Put(buf)
		return nil
	}

	req := Request{Offset: offset, Payload: *buf, buf: buf}

	if err := p.Err(); err != nil {
		return err
	}

	select {
	case p.queue <- req:
		return nil
	case <-p.failed:
		return p.err
	}
}

func (p *Pipeline) recycle(req Request) {
	if req.buf != nil && cap(*req.buf) == p.bufSize {
		p.pool.Put(req.buf)
	}
}

// Close stops accepting requests, waits for the queue to drain and syncs the strategy.
// It returns the first write failure.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		close(p.queue)
		p.Start()
	})

	<-p.done

	return p.Err()
}

// Checkpoint returns ledger spans that are durable on disk: the spans are read before the
// strategy is synced, so everything returned has been flushed.
func (p *Pipeline) Checkpoint() ([]ledger.Span, error) {
	spans := p.ledger.Spans()

	if err := p.strategy.Sync(); err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}

	return spans, nil
}

// Len returns the number of queued requests.
func (p *Pipeline) Len() int {
	return len(p.queue)
}

// Cap returns the queue capacity.
func (p *Pipeline) Cap() int {
	return cap(p.queue)
}

// Committed returns bytes written by this pipeline.
func (p *Pipeline) Committed() int64 {
	return p.committed.Load()
}

// Writes returns the number of committed requests.
func (p *Pipeline) Writes() int64 {
	return p.writes.Load()
}
