package writer_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/fastdl/internal/ledger"
	"github.com/NamanBalaji/fastdl/internal/writer"
)

// gatedStrategy blocks every write until the gate is opened and records commit order.
type gatedStrategy struct {
	gate    chan struct{}
	mu      sync.Mutex
	offsets []int64
	data    map[int64][]byte
	failAt  int64
	syncs   atomic.Int32
}

func newGated() *gatedStrategy {
	return &gatedStrategy{gate: make(chan struct{}), data: map[int64][]byte{}, failAt: -1}
}

func (g *gatedStrategy) WriteAt(p []byte, off int64) error {
	<-g.gate

	if off == g.failAt {
		return errors.New("disk full")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.offsets = append(g.offsets, off)
	g.data[off] = append([]byte(nil), p...)

	return nil
}

func (g *gatedStrategy) Sync() error  { g.syncs.Add(1); return nil }
func (g *gatedStrategy) Close() error { return nil }

func fill(p *writer.Pipeline, s string) *[]byte {
	b := p.Buffer()
	*b = append(*b, s...)

	return b
}

func TestPipeline_BackpressureBound(t *testing.T) {
	g := newGated()
	l := ledger.New()

	p, err := writer.New(g, l, writer.Options{QueueCap: 2, BufferSize: 4})
	require.NoError(t, err)
	p.Start()

	// one request is held by the blocked writer, two fill the queue
	require.NoError(t, p.Push(0, fill(p, "abcd")))
	require.Eventually(t, func() bool { return p.Len() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, p.Push(4, fill(p, "abcd")))
	require.NoError(t, p.Push(8, fill(p, "abcd")))

	require.Eventually(t, func() bool { return p.Len() == 2 }, time.Second, time.Millisecond)

	pushed := make(chan struct{})
	go func() {
		_ = p.Push(12, fill(p, "wxyz"))
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("push returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	assert.LessOrEqual(t, p.Len(), p.Cap())
	assert.Equal(t, int64(0), l.Covered(), "nothing committed while the writer is blocked")

	close(g.gate)
	<-pushed

	require.NoError(t, p.Close())
	assert.Equal(t, []ledger.Span{{Start: 0, End: 16}}, l.Spans())
	assert.Equal(t, int64(16), p.Committed())
	assert.Equal(t, []int64{0, 4, 8, 12}, g.offsets, "commits follow enqueue order")
	assert.GreaterOrEqual(t, g.syncs.Load(), int32(1))
}

func TestPipeline_CommitsInEnqueueOrderNotOffsetOrder(t *testing.T) {
	g := newGated()
	close(g.gate)

	p, err := writer.New(g, ledger.New(), writer.Options{QueueCap: 8, BufferSize: 2})
	require.NoError(t, err)
	p.Start()

	for _, off := range []int64{6, 0, 4, 2} {
		require.NoError(t, p.Push(off, fill(p, "xx")))
	}

	require.NoError(t, p.Close())
	assert.Equal(t, []int64{6, 0, 4, 2}, g.offsets)
	assert.Equal(t, int64(4), p.Writes())
}

func TestPipeline_FailureUnblocksProducers(t *testing.T) {
	g := newGated()
	g.failAt = 0
	l := ledger.New()

	p, err := writer.New(g, l, writer.Options{QueueCap: 1, BufferSize: 1})
	require.NoError(t, err)
	p.Start()

	require.NoError(t, p.Push(0, fill(p, "a")))
	require.Eventually(t, func() bool { return p.Len() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, p.Push(1, fill(p, "b")))

	errCh := make(chan error, 1)
	go func() { errCh <- p.Push(2, fill(p, "c")) }()

	close(g.gate)

	select {
	case err := <-errCh:
		if err != nil {
			assert.ErrorContains(t, err, "disk full")
		}
	case <-time.After(time.Second):
		t.Fatal("producer stayed blocked after writer failure")
	}

	<-p.Failed()
	err = p.Close()
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, int64(0), l.Covered(), "failed and skipped writes are not recorded")
	assert.ErrorContains(t, p.Push(5, fill(p, "d")), "disk full")
}

func TestPipeline_EmptyPushIsNoop(t *testing.T) {
	p, err := writer.New(newGated(), ledger.New(), writer.Options{QueueCap: 1, BufferSize: 8})
	require.NoError(t, err)

	require.NoError(t, p.Push(0, p.Buffer()))
	assert.Equal(t, 0, p.Len())
}

func TestPipeline_InvalidOptions(t *testing.T) {
	_, err := writer.New(newGated(), ledger.New(), writer.Options{QueueCap: 0, BufferSize: 1})
	assert.ErrorIs(t, err, writer.ErrInvalidOptions)
}

func TestStrategies_WriteFile(t *testing.T) {
	for _, method := range []writer.Method{writer.MethodStd, writer.MethodMmap} {
		t.Run(string(method), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.bin")

			f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
			require.NoError(t, err)
			require.NoError(t, f.Truncate(12))

			s, err := writer.Open(f, 12, method)
			require.NoError(t, err)

			l := ledger.New()
			p, err := writer.New(s, l, writer.Options{QueueCap: 4, BufferSize: 4})
			require.NoError(t, err)
			p.Start()

			require.NoError(t, p.Push(8, fill(p, "ijkl")))
			require.NoError(t, p.Push(0, fill(p, "abcd")))
			require.NoError(t, p.Push(4, fill(p, "efgh")))
			require.NoError(t, p.Close())

			spans, err := p.Checkpoint()
			require.NoError(t, err)
			assert.Equal(t, []ledger.Span{{Start: 0, End: 12}}, spans)

			require.NoError(t, s.Close())
			require.NoError(t, f.Close())

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.True(t, bytes.Equal([]byte("abcdefghijkl"), data), "got %q", data)
		})
	}
}

func TestParseMethod(t *testing.T) {
	m, err := writer.ParseMethod(" MMAP ")
	require.NoError(t, err)
	assert.Equal(t, writer.MethodMmap, m)

	m, err = writer.ParseMethod("std")
	require.NoError(t, err)
	assert.Equal(t, writer.MethodStd, m)

	_, err = writer.ParseMethod("direct-io")
	assert.ErrorIs(t, err, writer.ErrUnknownMethod)
}
