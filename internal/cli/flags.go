package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/fastdl/internal/config"
)

var ErrInvalidHeader = errors.New(`header must look like "Name: value"`)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	statePath  string
	logPath    string
	dir        string
	jobs       int
	debug      bool
	verbose    bool
	quiet      bool
}

func (g *globalFlags) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&g.configPath, "config", config.Path(), "configuration file")
	f.StringVar(&g.statePath, "state", "", "progress database (default from config)")
	f.StringVar(&g.logPath, "log", "", "debug log file (default from config)")
	f.StringVarP(&g.dir, "dir", "d", "", "download directory (default from config)")
	f.IntVarP(&g.jobs, "jobs", "j", 0, "transfers running at once for batches")
	f.BoolVar(&g.debug, "debug", false, "write a debug log")
	f.BoolVarP(&g.verbose, "verbose", "v", false, "print warnings and errors to stderr")
	f.BoolVarP(&g.quiet, "quiet", "q", false, "hide the progress bar")
}

// apply overrides the loaded configuration with the flags the user set.
func (g *globalFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()

	if f.Changed("state") {
		cfg.StatePath = g.statePath
	}

	if f.Changed("log") {
		cfg.LogPath = g.logPath
	}

	if f.Changed("dir") {
		cfg.DownloadDir = g.dir
	}

	if f.Changed("jobs") {
		cfg.TaskConcurrency = g.jobs
	}
}

// transferFlags tune the transfers started by download and tasks.
type transferFlags struct {
	threads         int
	minChunkSize    string
	writeBuffer     string
	writeQueueCap   int
	retryGap        time.Duration
	pullTimeout     time.Duration
	maxSpeculative  int
	specThreshold   string
	writeMethod     string
	maxRetries      int
	proxy           string
	headers         []string
	interfaces      []string
	insecure        bool
	disableFallback bool
	appendOnly      bool
	browser         bool
}

func (t *transferFlags) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.IntVarP(&t.threads, "threads", "n", 0, "parallel fetchers per transfer")
	f.StringVar(&t.minChunkSize, "min-chunk-size", "", "smallest chunk worth splitting, e.g. 1MiB")
	f.StringVar(&t.writeBuffer, "write-buffer-size", "", "size of one write buffer, e.g. 8MiB")
	f.IntVar(&t.writeQueueCap, "write-queue-cap", 0, "write buffers queued before fetchers block")
	f.DurationVar(&t.retryGap, "retry-gap", 0, "wait before a failed range is fetched again")
	f.DurationVar(&t.pullTimeout, "pull-timeout", 0, "abort a connection idle for this long")
	f.IntVar(&t.maxSpeculative, "max-speculative", 0, "extra fetchers started for slow chunks")
	f.StringVar(&t.specThreshold, "speculative-threshold", "", "remaining bytes that justify a speculative fetcher")
	f.StringVar(&t.writeMethod, "write-method", "", "mmap or std")
	f.IntVar(&t.maxRetries, "max-retries", 0, "consecutive failures allowed per range, 0 retries forever")
	f.StringVarP(&t.proxy, "proxy", "x", "", `proxy URL, or "direct"`)
	f.StringArrayVarP(&t.headers, "header", "H", nil, `extra request header "Name: value"`)
	f.StringSliceVarP(&t.interfaces, "interface", "i", nil, "local addresses to bind fetchers to")
	f.BoolVarP(&t.insecure, "insecure", "k", false, "skip TLS certificate verification")
	f.BoolVar(&t.disableFallback, "no-fallback", false, "fail instead of falling back to a single stream")
	f.BoolVar(&t.appendOnly, "append-only", false, "treat a grown resource as appended to")
	f.BoolVar(&t.browser, "browser", false, "send browser-like Origin and Referer headers")
}

func (t *transferFlags) apply(cmd *cobra.Command, cfg *config.TransferConfig) error {
	f := cmd.Flags()

	if f.Changed("threads") {
		cfg.Threads = t.threads
	}

	for name, dst := range map[string]*int64{
		"min-chunk-size":        &cfg.MinChunkSize,
		"speculative-threshold": &cfg.SpeculativeThreshold,
	} {
		if !f.Changed(name) {
			continue
		}

		n, err := parseSize(name, f.Lookup(name).Value.String())
		if err != nil {
			return err
		}

		*dst = n
	}

	if f.Changed("write-buffer-size") {
		n, err := parseSize("write-buffer-size", t.writeBuffer)
		if err != nil {
			return err
		}

		cfg.WriteBufferSize = int(n)
	}

	if f.Changed("write-queue-cap") {
		cfg.WriteQueueCap = t.writeQueueCap
	}

	if f.Changed("retry-gap") {
		cfg.RetryGap = t.retryGap
	}

	if f.Changed("pull-timeout") {
		cfg.PullTimeout = t.pullTimeout
	}

	if f.Changed("max-speculative") {
		cfg.MaxSpeculative = t.maxSpeculative
	}

	if f.Changed("write-method") {
		cfg.WriteMethod = t.writeMethod
	}

	if f.Changed("max-retries") {
		cfg.MaxRetries = t.maxRetries
	}

	if f.Changed("proxy") {
		cfg.Proxy = t.proxy
	}

	if f.Changed("interface") {
		cfg.LocalAddrs = t.interfaces
	}

	if len(t.headers) > 0 {
		h, err := parseHeaders(t.headers)
		if err != nil {
			return err
		}

		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(h))
		}

		for k, v := range h {
			cfg.Headers[k] = v
		}
	}

	cfg.InsecureSkipVerify = cfg.InsecureSkipVerify || t.insecure
	cfg.DisableFallback = cfg.DisableFallback || t.disableFallback
	cfg.AppendOnly = cfg.AppendOnly || t.appendOnly
	cfg.Browser = cfg.Browser || t.browser

	return cfg.Validate()
}

func parseSize(flag, s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", flag, err)
	}

	return int64(n), nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))

	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)

		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, h)
		}

		out[name] = strings.TrimSpace(value)
	}

	return out, nil
}
