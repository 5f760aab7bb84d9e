// Package engine coordinates transfers: it probes the resource, plans what to fetch from the
// persisted ledger, runs the fetch workers and reports the final status.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/fastdl/internal/config"
	"github.com/NamanBalaji/fastdl/internal/errors"
	"github.com/NamanBalaji/fastdl/internal/filesystem"
	fetch "github.com/NamanBalaji/fastdl/internal/http"
	"github.com/NamanBalaji/fastdl/internal/ledger"
	"github.com/NamanBalaji/fastdl/internal/logger"
	"github.com/NamanBalaji/fastdl/internal/progress"
	"github.com/NamanBalaji/fastdl/internal/repository"
	"github.com/NamanBalaji/fastdl/internal/status"
	"github.com/NamanBalaji/fastdl/internal/writer"
	httpPkg "github.com/NamanBalaji/fastdl/pkg/http"
)

var ErrNoRepository = errors.New("engine needs a repository")

const maxProbeAttempts = 5

// Request describes one download. Zero fields fall back to the engine configuration.
type Request struct {
	URL      string
	Dir      string
	FileName string
	Threads  int
	Force    bool
	Resume   bool
	Headers  map[string]string
	// Sink receives progress snapshots of this transfer, may be nil.
	Sink progress.Sink
}

// Result is the outcome of a Download call.
type Result struct {
	ID     uuid.UUID
	URL    string
	Path   string
	Status status.Status
	Size   int64
	// Covered is the number of bytes on disk according to the ledger.
	Covered int64
	// Written is the number of bytes committed by this run.
	Written  int64
	Received int64
	Steals   int64
	Retries  int64
	Elapsed  time.Duration
	Mode     string
	Err      error
}

// Engine runs transfers.
type Engine struct {
	cfg         *config.TransferConfig
	repo        repository.Repository
	fs          *filesystem.OSFileSystem
	monitor     *ProgressMonitor
	downloadDir string

	openStrategy func(f *os.File, size int64, method writer.Method) (writer.Strategy, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithDownloadDir sets the directory used when a request names none.
func WithDownloadDir(dir string) Option {
	return func(e *Engine) {
		e.downloadDir = dir
	}
}

// New creates an engine. cfg is copied.
func New(cfg *config.TransferConfig, repo repository.Repository, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, ErrNoRepository
	}

	if cfg == nil {
		cfg = config.DefaultTransferConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg.Clone(),
		repo:        repo,
		fs:          filesystem.NewOSFileSystem(),
		monitor:     NewProgressMonitor(),
		downloadDir: ".",

		openStrategy: writer.Open,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// RegisterListener subscribes ch to the updates of every transfer.
func (e *Engine) RegisterListener(id string, ch chan<- Update) {
	e.monitor.RegisterListener(id, ch)
}

// UnregisterListener removes a listener added with RegisterListener.
func (e *Engine) UnregisterListener(id string) {
	e.monitor.UnregisterListener(id)
}

// Download runs one transfer to completion, cancellation or failure. A cancelled transfer
// returns status Paused and a nil error; its ledger is persisted for a later resume.
func (e *Engine) Download(ctx context.Context, req Request) (*Result, error) {
	res := &Result{URL: req.URL, Size: -1, Status: status.Pending}

	err := e.download(ctx, req, res)

	res.Err = err
	res.Status = statusFor(err)

	if res.Status == status.Paused {
		logger.Infof("Transfer of %s paused: %v", req.URL, err)
		return res, nil
	}

	if err != nil {
		logger.Errorf("Transfer of %s ended with status %s: %v", req.URL, status.String(res.Status), err)
		return res, err
	}

	return res, nil
}

func (e *Engine) download(ctx context.Context, req Request, res *Result) error {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewPreflightError(errors.ErrInvalidURL, req.URL)
	}

	cfg := e.transferConfig(req)

	clients, err := newClients(cfg)
	if err != nil {
		return errors.NewPreflightError(err, req.URL)
	}

	info, err := e.probe(ctx, clients[0], req.URL, cfg)
	if err != nil {
		return transferError(err, req.URL)
	}

	res.URL = info.URL
	res.Size = info.Size

	path, err := e.destination(req, info)
	if err != nil {
		return errors.NewPreflightError(err, req.URL)
	}

	res.Path = path

	prev := e.previous(path)
	if !req.Resume {
		prev = nil
	}

	fileSize, err := e.fs.FileSize(path)
	if err != nil {
		return errors.NewPreflightError(err, path)
	}

	appendOnly := cfg.AppendOnly || (prev != nil && prev.AppendOnly)
	p := planResume(prev, info, fileSize, appendOnly)
	res.ID = p.id
	res.Mode = p.mode.String()

	logger.Infof("Planning %s: mode=%s size=%d range=%v reason=%q", path, p.mode, info.Size, info.SupportsRange, p.reason)

	// Starting over truncates the destination, whoever wrote it.
	if p.mode == modeFresh && fileSize >= 0 && !req.Force {
		return errors.NewPreflightError(fmt.Errorf("%w: %s (%s)", errors.ErrDestinationExists, path, p.reason), path)
	}

	if p.mode == modeComplete {
		logger.Infof("%s is already complete and unchanged", path)

		res.Covered = info.Size

		return nil
	}

	sequential := !info.SupportsRange && info.Size != 0
	if sequential && cfg.DisableFallback {
		return errors.NewRangeError(errors.ErrRangeUnsupported, info.URL, 0)
	}

	entry := &repository.Entry{
		ID:           p.id,
		Path:         path,
		URL:          info.URL,
		FileName:     filepath.Base(path),
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
		AppendOnly:   appendOnly,
		Progress:     p.covered,
	}

	if prev != nil && p.mode != modeFresh {
		entry.Elapsed = prev.Elapsed
	}

	l := ledger.New(p.covered...)

	if err := e.fs.EnsureDirectory(filepath.Dir(path)); err != nil {
		return errors.NewPreflightError(err, path)
	}

	if info.Size > 0 {
		if err := e.fs.CheckFreeSpace(filepath.Dir(path), ledger.Total(l.Gaps(info.Size))); err != nil {
			return errors.NewPreflightError(err, path)
		}
	}

	t := &transfer{
		engine:     e,
		cfg:        cfg,
		entry:      entry,
		clients:    clients,
		ledger:     l,
		sequential: sequential,
		fresh:      p.mode == modeFresh,
		sink:       req.Sink,
	}

	err = t.run(ctx)
	t.fill(res)

	if err != nil && errors.IsRangeError(err) && !sequential && !cfg.DisableFallback && ctx.Err() == nil {
		logger.Warnf("Server broke the range contract for %s, restarting as a single stream: %v", info.URL, err)

		entry.Progress = nil
		t = &transfer{
			engine:     e,
			cfg:        cfg,
			entry:      entry,
			clients:    clients[:1],
			ledger:     ledger.New(),
			sequential: true,
			fresh:      true,
			sink:       req.Sink,
		}

		err = t.run(ctx)
		t.fill(res)
	}

	return err
}

// transferConfig merges request overrides into a copy of the engine settings.
func (e *Engine) transferConfig(req Request) *config.TransferConfig {
	cfg := e.cfg.Clone()

	if req.Threads > 0 {
		cfg.Threads = req.Threads
	}

	headers := make(map[string]string)

	if cfg.Browser {
		if bh, err := httpPkg.BrowserHeaders(req.URL); err == nil {
			for k, v := range bh {
				headers[k] = v
			}
		}
	}

	for k, v := range cfg.Headers {
		headers[k] = v
	}

	for k, v := range req.Headers {
		headers[k] = v
	}

	cfg.Headers = headers

	return cfg
}

// newClients builds one client per local bind address, or a single default one.
func newClients(cfg *config.TransferConfig) ([]*httpPkg.Client, error) {
	addrs := cfg.LocalAddrs
	if len(addrs) == 0 {
		addrs = []string{""}
	}

	clients := make([]*httpPkg.Client, 0, len(addrs))

	for _, addr := range addrs {
		c, err := httpPkg.NewClient(httpPkg.Options{
			Headers:            cfg.Headers,
			Proxy:              cfg.Proxy,
			LocalAddr:          addr,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			ConnectTimeout:     cfg.PullTimeout,
		})
		if err != nil {
			return nil, err
		}

		clients = append(clients, c)
	}

	return clients, nil
}

// probe retries transient metadata failures a bounded number of times.
func (e *Engine) probe(ctx context.Context, client *httpPkg.Client, rawURL string, cfg *config.TransferConfig) (*fetch.Info, error) {
	attempts := maxProbeAttempts
	if cfg.MaxRetries > 0 {
		attempts = cfg.MaxRetries + 1
	}

	var lastErr error

	for i := 0; i < attempts; i++ {
		info, err := fetch.Probe(ctx, client, rawURL)
		if err == nil {
			return info, nil
		}

		lastErr = err

		if !httpPkg.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}

		logger.Warnf("Probe of %s failed (attempt %d/%d): %v", rawURL, i+1, attempts, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryGap):
		}
	}

	return nil, lastErr
}

// destination resolves the absolute output path of a request.
func (e *Engine) destination(req Request, info *fetch.Info) (string, error) {
	dir := req.Dir
	if dir == "" {
		dir = e.downloadDir
	}

	name := req.FileName
	if name == "" {
		name = info.FileName
	}

	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("cannot derive a file name from %s", info.URL)
	}

	return repository.Key(filepath.Join(dir, filepath.Base(name)))
}

// previous loads the stored entry of path. A corrupt or unreadable entry counts as no prior
// progress.
func (e *Engine) previous(path string) *repository.Entry {
	entry, err := e.repo.Find(path)

	switch {
	case err == nil:
		return entry
	case errors.Is(err, repository.ErrEntryNotFound):
		return nil
	case errors.Is(err, repository.ErrCorruptEntry):
		logger.Warnf("Ignoring corrupt progress for %s: %v", path, err)
		return nil
	default:
		logger.Warnf("Could not read progress for %s, starting over: %v", path, err)
		return nil
	}
}

// List returns every stored transfer.
func (e *Engine) List() ([]*repository.Entry, error) {
	entries, err := e.repo.FindAll()
	if err != nil {
		return nil, errors.NewStateError(err, "progress store")
	}

	return entries, nil
}

// Clean forgets finished transfers and transfers whose destination file is gone.
func (e *Engine) Clean() (int, error) {
	n, err := e.repo.Clean(func(entry *repository.Entry) bool {
		if entry.Complete() {
			return true
		}

		exists, err := e.fs.FileExists(entry.Path)

		return err == nil && !exists
	})
	if err != nil {
		return n, errors.NewStateError(err, "progress store")
	}

	return n, nil
}

// Remove forgets the transfer recorded for path and, with deleteFile, removes the file too.
func (e *Engine) Remove(path string, deleteFile bool) error {
	key, err := repository.Key(path)
	if err != nil {
		return err
	}

	if err := e.repo.Delete(key); err != nil {
		return errors.NewStateError(err, key)
	}

	if deleteFile {
		if err := e.fs.DeleteFile(key); err != nil {
			return errors.NewDiskError(err, key, -1)
		}
	}

	return nil
}

// RunBatch downloads every request through a bounded priority queue.
func (e *Engine) RunBatch(ctx context.Context, concurrency int, reqs []Request, priorities []int) []Outcome {
	q := NewQueueProcessor(concurrency, e.Download)

	for i, r := range reqs {
		prio := 0
		if i < len(priorities) {
			prio = priorities[i]
		}

		q.Enqueue(r, prio)
	}

	return q.Process(ctx)
}
