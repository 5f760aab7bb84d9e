package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/fastdl/internal/chunk"
	"github.com/NamanBalaji/fastdl/internal/config"
	"github.com/NamanBalaji/fastdl/internal/errors"
	fetch "github.com/NamanBalaji/fastdl/internal/http"
	"github.com/NamanBalaji/fastdl/internal/ledger"
	"github.com/NamanBalaji/fastdl/internal/logger"
	"github.com/NamanBalaji/fastdl/internal/progress"
	"github.com/NamanBalaji/fastdl/internal/repository"
	"github.com/NamanBalaji/fastdl/internal/scheduler"
	"github.com/NamanBalaji/fastdl/internal/status"
	"github.com/NamanBalaji/fastdl/internal/worker"
	"github.com/NamanBalaji/fastdl/internal/writer"
	httpPkg "github.com/NamanBalaji/fastdl/pkg/http"
)

// speculateInterval is how often the supervisor re-evaluates speculation without a scheduler event.
const speculateInterval = 250 * time.Millisecond

// transfer is a single run over one destination file.
type transfer struct {
	engine     *Engine
	cfg        *config.TransferConfig
	entry      *repository.Entry
	clients    []*httpPkg.Client
	ledger     *ledger.Ledger
	sequential bool
	fresh      bool
	sink       progress.Sink

	stats    worker.Stats
	sched    *scheduler.Scheduler
	pipe     *writer.Pipeline
	fetchers []*fetch.Fetcher
	tracker  *progress.Tracker

	started     time.Time
	elapsedBase time.Duration
}

func (t *transfer) run(ctx context.Context) error {
	t.started = time.Now()
	t.elapsedBase = t.entry.Elapsed
	t.tracker = progress.NewTracker(0)

	size := t.entry.Size
	path := t.entry.Path

	f, err := t.engine.fs.OpenDestination(path, size, t.fresh)
	if err != nil {
		return errors.NewDiskError(err, path, -1)
	}

	method, err := writer.ParseMethod(t.cfg.WriteMethod)
	if err != nil {
		f.Close()
		return errors.NewPreflightError(err, path)
	}

	strategy, err := t.engine.openStrategy(f, size, method)
	if err != nil {
		f.Close()
		return errors.NewDiskError(err, path, -1)
	}

	t.pipe, err = writer.New(strategy, t.ledger, writer.Options{
		QueueCap:   t.cfg.WriteQueueCap,
		BufferSize: t.cfg.WriteBufferSize,
	})
	if err != nil {
		strategy.Close()
		f.Close()

		return errors.NewPreflightError(err, path)
	}

	var gaps []ledger.Span
	if size >= 0 {
		gaps = t.ledger.Gaps(size)
	}

	t.sched, err = scheduler.New(size, gaps, scheduler.Options{
		Workers: t.cfg.Threads,
		Floor:   t.cfg.MinChunkSize,
		NoSteal: t.sequential,
	})
	if err != nil {
		strategy.Close()
		f.Close()

		return errors.NewPreflightError(err, path)
	}

	t.fetchers = make([]*fetch.Fetcher, len(t.clients))
	for i, c := range t.clients {
		opts := []fetch.FetcherOption{fetch.WithPullTimeout(t.cfg.PullTimeout)}
		if size >= 0 {
			opts = append(opts, fetch.WithExpectedSize(size))
		}

		if t.sequential {
			opts = append(opts, fetch.Sequential())
		}

		t.fetchers[i] = fetch.NewFetcher(c, t.entry.URL, opts...)
	}

	logger.Infof("Starting transfer %s -> %s: %d bytes to fetch, sequential=%v", t.entry.URL, path,
		ledger.Total(gaps), t.sequential)

	t.save()
	t.pipe.Start()

	runErr := t.fetch(ctx)

	closeErr := t.pipe.Close()
	if err := strategy.Close(); err != nil && closeErr == nil {
		closeErr = err
	}

	if err := f.Close(); err != nil && closeErr == nil {
		closeErr = err
	}

	t.checkpoint(t.ledger.Spans())
	t.report(true)

	return t.outcome(ctx, runErr, closeErr)
}

// fetch runs the workers and the supervisor until the scheduler is done, ctx is cancelled or
// a worker fails.
func (t *transfer) fetch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	threads := t.cfg.Threads
	if t.sequential {
		threads = 1
	}

	for i := range threads {
		w := worker.New(int64(i+1), false, t.workerConfig(i))
		g.Go(func() error { return w.Run(gctx) })
	}

	if !t.sequential && t.cfg.MaxSpeculative > 0 {
		g.Go(func() error { return t.supervise(gctx, g, int64(threads)+1) })
	}

	done := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		t.monitor(done, cancel)
	}()

	err := g.Wait()

	close(done)
	wg.Wait()
	t.sched.Close()

	return err
}

func (t *transfer) workerConfig(i int) worker.Config {
	return worker.Config{
		Scheduler: t.sched,
		Fetcher:   t.fetchers[i%len(t.fetchers)],
		Pipeline:  t.pipe,
		Policy:    worker.Policy{Gap: t.cfg.RetryGap, MaxRetries: t.cfg.MaxRetries},
		Stats:     &t.stats,
		Resource:  t.entry.URL,
	}
}

// supervise starts speculative workers whenever the scheduler state calls for one, at most
// one per scheduler event.
func (t *transfer) supervise(ctx context.Context, g *errgroup.Group, nextID int64) error {
	var running atomic.Int32

	ticker := time.NewTicker(speculateInterval)
	defer ticker.Stop()

	for {
		if t.sched.Done() {
			return nil
		}

		in := chunk.SpeculationInput{
			SizeKnown:      t.sched.SizeKnown(),
			IdleBase:       t.sched.Idle(),
			RunningSpec:    int(running.Load()),
			MaxSpeculative: t.cfg.MaxSpeculative,
			Threshold:      t.cfg.SpeculativeThreshold,
			Views:          t.sched.Views(),
			Floor:          t.sched.Floor(),
		}

		if chunk.ShouldSpeculate(in) {
			w := worker.New(nextID, true, t.workerConfig(int(nextID)))
			nextID++

			running.Add(1)
			logger.Debugf("Starting speculative worker %d (%d running)", w.ID, running.Load())

			g.Go(func() error {
				defer running.Add(-1)
				return w.Run(ctx)
			})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.sched.Changed():
		case <-ticker.C:
		}
	}
}

// monitor reports progress and checkpoints the ledger until done is closed. A write failure
// stops the fetchers through stop.
func (t *transfer) monitor(done <-chan struct{}, stop context.CancelFunc) {
	report := time.NewTicker(t.cfg.ReportInterval)
	defer report.Stop()

	flush := time.NewTicker(t.cfg.FlushInterval)
	defer flush.Stop()

	for {
		select {
		case <-done:
			return
		case <-t.pipe.Failed():
			logger.Errorf("Stopping fetchers of %s: %v", t.entry.Path, t.pipe.Err())
			stop()

			return
		case <-report.C:
			t.report(false)
		case <-flush.C:
			spans, err := t.pipe.Checkpoint()
			if err != nil {
				logger.Warnf("Checkpoint of %s failed: %v", t.entry.Path, err)
				continue
			}

			logger.Debugf("Checkpoint of %s: %d spans, queue %d/%d, %d writes", t.entry.Path, len(spans),
				t.pipe.Len(), t.pipe.Cap(), t.pipe.Writes())
			t.checkpoint(spans)
		}
	}
}

// checkpoint persists durable spans. Store failures never stop the transfer.
func (t *transfer) checkpoint(spans []ledger.Span) {
	t.entry.Progress = spans
	t.entry.Elapsed = t.elapsedBase + time.Since(t.started)

	if t.entry.Size < 0 && t.sched.SizeKnown() {
		t.entry.Size = t.sched.Size()
	}

	t.save()
}

func (t *transfer) save() {
	if err := t.engine.repo.Save(t.entry); err != nil {
		logger.Warnf("Could not persist progress of %s: %v", t.entry.Path, err)
	}
}

func (t *transfer) report(final bool) {
	snap := t.tracker.Observe(time.Now(), t.ledger.Covered(), t.sched.Size(), t.stats.Active())

	if t.sink != nil {
		t.sink.Report(snap)
	}

	u := Update{ID: t.entry.ID, Path: t.entry.Path, Status: status.Active, Snapshot: snap, Final: final}

	if final {
		u.Status = status.Paused
		if t.sched.Done() {
			u.Status = status.Completed
		}

		logger.Debugf("Final progress of %s: %s", t.entry.Path, snap)
	}

	t.engine.monitor.broadcast(u)
}

func (t *transfer) outcome(ctx context.Context, runErr, closeErr error) error {
	size := t.sched.Size()

	switch {
	case closeErr != nil:
		return errors.NewDiskError(closeErr, t.entry.Path, -1)
	case runErr != nil:
		return transferError(runErr, t.entry.URL)
	case size >= 0 && t.ledger.Complete(size):
		logger.Infof("Transfer of %s complete: %d bytes, %d steals, %d retries", t.entry.Path, size,
			t.sched.Steals(), t.stats.Retries())

		return nil
	case ctx.Err() != nil:
		return errors.NewCancelledError(ctx.Err(), t.entry.Path)
	default:
		return transferError(fmt.Errorf("ledger covers %d of %d bytes", t.ledger.Covered(), size), t.entry.Path)
	}
}

// fill adds the counters of this run to res.
func (t *transfer) fill(res *Result) {
	res.Size = t.entry.Size
	res.Covered = t.ledger.Covered()
	res.Elapsed = t.entry.Elapsed
	res.Received += t.stats.Received()
	res.Retries += t.stats.Retries()

	if t.pipe != nil {
		res.Written += t.pipe.Committed()
	}

	if t.sched != nil {
		res.Steals += t.sched.Steals()
	}
}
