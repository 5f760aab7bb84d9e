package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/NamanBalaji/fastdl/internal/logger"
	httpPkg "github.com/NamanBalaji/fastdl/pkg/http"
)

// Kind tells the retry controller what a read produced.
type Kind int

const (
	Progress Kind = iota // N bytes were read
	Done                 // the response body ended cleanly
	Failed               // the attempt broke, Err says why
)

func (k Kind) String() string {
	switch k {
	case Progress:
		return "progress"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one read on a Stream. Offset is the absolute position reached.
type Result struct {
	Kind   Kind
	N      int
	Offset int64
	Err    error
}

// Fetcher opens byte streams of one resource.
type Fetcher struct {
	client      *httpPkg.Client
	url         string
	size        int64
	pullTimeout time.Duration
	sequential  bool
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithPullTimeout bounds how long a single read may wait for data.
func WithPullTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.pullTimeout = d
	}
}

// WithExpectedSize makes streams reject responses describing a resource of another size.
func WithExpectedSize(size int64) FetcherOption {
	return func(f *Fetcher) {
		f.size = size
	}
}

// Sequential makes the fetcher issue plain GETs for servers without range support.
func Sequential() FetcherOption {
	return func(f *Fetcher) {
		f.sequential = true
	}
}

func NewFetcher(client *httpPkg.Client, url string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{client: client, url: url, size: -1}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Open requests [pos, end). An end of math.MaxInt64 asks for everything from pos. The
// response must start exactly at pos, otherwise ErrRangeMismatch is returned.
func (f *Fetcher) Open(ctx context.Context, pos, end int64) (*Stream, error) {
	attemptCtx, cancel := context.WithCancel(ctx)

	s := &Stream{
		offset: pos,
		total:  -1,
		cancel: cancel,
	}

	var (
		resp *http.Response
		err  error
	)

	if f.sequential {
		resp, err = f.openSequential(attemptCtx, pos)
	} else {
		resp, err = f.openRange(attemptCtx, pos, end, s)
	}

	if err != nil {
		cancel()
		return nil, err
	}

	s.body = resp.Body

	if f.sequential && resp.ContentLength >= 0 {
		s.total = resp.ContentLength
	}

	if f.size >= 0 && s.total >= 0 && s.total != f.size {
		s.Close()
		return nil, fmt.Errorf("%w: resource size changed from %d to %d", httpPkg.ErrRangeMismatch, f.size, s.total)
	}

	if f.pullTimeout > 0 {
		s.watchdog = newWatchdog(f.pullTimeout, cancel)
	}

	return s, nil
}

func (f *Fetcher) openRange(ctx context.Context, pos, end int64, s *Stream) (*http.Response, error) {
	last := int64(-1)
	if end != math.MaxInt64 {
		last = end - 1
	}

	resp, err := f.client.Range(ctx, f.url, pos, last)
	if err != nil {
		return nil, err
	}

	cr, err := httpPkg.ParseContentRange(resp.Header)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}

	if cr.Start != pos || (last >= 0 && cr.End > last) {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: asked for %s, got bytes %d-%d", httpPkg.ErrRangeMismatch,
			httpPkg.FormatRange(pos, last), cr.Start, cr.End)
	}

	s.total = cr.Total
	if s.total < 0 && last < 0 {
		// An open-ended request answered without a total still ends at the last byte.
		s.total = cr.End + 1
	}

	return resp, nil
}

// openSequential streams the whole body and discards everything before pos.
func (f *Fetcher) openSequential(ctx context.Context, pos int64) (*http.Response, error) {
	resp, err := f.client.Get(ctx, f.url)
	if err != nil {
		return nil, err
	}

	if pos > 0 {
		logger.Debugf("Skipping %d bytes of sequential stream for %s", pos, f.url)

		if _, err := io.CopyN(io.Discard, resp.Body, pos); err != nil {
			resp.Body.Close()
			return nil, httpPkg.ClassifyError(err)
		}
	}

	return resp, nil
}

// Stream is one open response body positioned at an absolute offset.
type Stream struct {
	body     io.ReadCloser
	offset   int64
	total    int64
	eof      bool
	cancel   context.CancelFunc
	watchdog *watchdog
}

// Total returns the resource size announced by the response, -1 if none.
func (s *Stream) Total() int64 {
	return s.total
}

// Offset returns the absolute position of the next byte.
func (s *Stream) Offset() int64 {
	return s.offset
}

// Next reads once into p.
func (s *Stream) Next(p []byte) Result {
	if s.eof {
		return Result{Kind: Done, Offset: s.offset}
	}

	if len(p) == 0 {
		return Result{Kind: Progress, Offset: s.offset}
	}

	if s.watchdog != nil {
		s.watchdog.arm()
	}

	n, err := s.body.Read(p)

	expired := false
	if s.watchdog != nil {
		expired = s.watchdog.disarm()
	}

	s.offset += int64(n)

	switch {
	case err == nil:
		return Result{Kind: Progress, N: n, Offset: s.offset}
	case errors.Is(err, io.EOF):
		s.eof = true
		if n > 0 {
			return Result{Kind: Progress, N: n, Offset: s.offset}
		}

		return Result{Kind: Done, Offset: s.offset}
	case expired:
		return Result{Kind: Failed, N: n, Offset: s.offset, Err: httpPkg.ErrTimeout}
	default:
		return Result{Kind: Failed, N: n, Offset: s.offset, Err: httpPkg.ClassifyError(err)}
	}
}

// Close releases the connection.
func (s *Stream) Close() error {
	if s.watchdog != nil {
		s.watchdog.stop()
	}

	s.cancel()

	if s.body == nil {
		return nil
	}

	return s.body.Close()
}

// watchdog cancels an attempt whose read blocks longer than the pull timeout.
type watchdog struct {
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func newWatchdog(timeout time.Duration, cancel context.CancelFunc) *watchdog {
	w := &watchdog{timeout: timeout}
	w.timer = time.AfterFunc(time.Hour, func() {
		w.fired.Store(true)
		cancel()
	})
	w.timer.Stop()

	return w
}

func (w *watchdog) arm() {
	w.timer.Reset(w.timeout)
}

// disarm stops the timer and reports whether it already fired.
func (w *watchdog) disarm() bool {
	w.timer.Stop()
	return w.fired.Load()
}

func (w *watchdog) stop() {
	w.timer.Stop()
}
