package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

var (
	ErrInvalidThreads    = errors.New("threads must be positive")
	ErrInvalidChunkSize  = errors.New("minimum chunk size must be positive")
	ErrInvalidBuffer     = errors.New("write buffer size must be positive")
	ErrInvalidQueue      = errors.New("write queue capacity must be positive")
	ErrInvalidSpeculate  = errors.New("max speculative fetchers cannot be negative")
	ErrInvalidRetries    = errors.New("max retries cannot be negative")
	ErrInvalidMethod     = errors.New("write method must be mmap or std")
	ErrInvalidInterval   = errors.New("intervals and timeouts must be positive")
	ErrInvalidConcurrent = errors.New("task concurrency must be positive")
)

// Config holds the configuration options for the application.
type Config struct {
	DownloadDir     string          `yaml:"dir,omitempty"`
	StatePath       string          `yaml:"statePath,omitempty"`
	LogPath         string          `yaml:"logPath,omitempty"`
	TaskConcurrency int             `yaml:"taskConcurrency,omitempty"`
	Transfer        *TransferConfig `yaml:"transfer,omitempty"`
}

// TransferConfig tunes a single transfer.
type TransferConfig struct {
	Threads              int               `yaml:"threads,omitempty"`
	MinChunkSize         int64             `yaml:"minChunkSize,omitempty"`
	WriteBufferSize      int               `yaml:"writeBufferSize,omitempty"`
	WriteQueueCap        int               `yaml:"writeQueueCap,omitempty"`
	RetryGap             time.Duration     `yaml:"retryGap,omitempty"`
	PullTimeout          time.Duration     `yaml:"pullTimeout,omitempty"`
	MaxSpeculative       int               `yaml:"maxSpeculative,omitempty"`
	SpeculativeThreshold int64             `yaml:"speculativeThreshold,omitempty"`
	WriteMethod          string            `yaml:"writeMethod,omitempty"`
	MaxRetries           int               `yaml:"maxRetries,omitempty"`
	FlushInterval        time.Duration     `yaml:"flushInterval,omitempty"`
	ReportInterval       time.Duration     `yaml:"reportInterval,omitempty"`
	Proxy                string            `yaml:"proxy,omitempty"`
	Headers              map[string]string `yaml:"headers,omitempty"`
	LocalAddrs           []string          `yaml:"localAddrs,omitempty"`
	InsecureSkipVerify   bool              `yaml:"insecureSkipVerify,omitempty"`
	DisableFallback      bool              `yaml:"disableFallback,omitempty"`
	AppendOnly           bool              `yaml:"appendOnly,omitempty"`
	Browser              bool              `yaml:"browser,omitempty"`
}

// Path returns the location of the configuration file.
func Path() string {
	return filepath.Join(xdg.ConfigHome, appName, configFileName)
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	return Load(Path())
}

// Load reads the configuration at path, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	defaults := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	t := zeroOr(cfg.Transfer, defaults.Transfer)
	d := defaults.Transfer

	merged := &Config{
		DownloadDir:     zeroOr(cfg.DownloadDir, defaults.DownloadDir),
		StatePath:       zeroOr(cfg.StatePath, defaults.StatePath),
		LogPath:         zeroOr(cfg.LogPath, defaults.LogPath),
		TaskConcurrency: zeroOr(cfg.TaskConcurrency, defaults.TaskConcurrency),
		Transfer: &TransferConfig{
			Threads:              zeroOr(t.Threads, d.Threads),
			MinChunkSize:         zeroOr(t.MinChunkSize, d.MinChunkSize),
			WriteBufferSize:      zeroOr(t.WriteBufferSize, d.WriteBufferSize),
			WriteQueueCap:        zeroOr(t.WriteQueueCap, d.WriteQueueCap),
			RetryGap:             zeroOr(t.RetryGap, d.RetryGap),
			PullTimeout:          zeroOr(t.PullTimeout, d.PullTimeout),
			MaxSpeculative:       zeroOr(t.MaxSpeculative, d.MaxSpeculative),
			SpeculativeThreshold: zeroOr(t.SpeculativeThreshold, d.SpeculativeThreshold),
			WriteMethod:          zeroOr(t.WriteMethod, d.WriteMethod),
			MaxRetries:           t.MaxRetries,
			FlushInterval:        zeroOr(t.FlushInterval, d.FlushInterval),
			ReportInterval:       zeroOr(t.ReportInterval, d.ReportInterval),
			Proxy:                t.Proxy,
			Headers:              t.Headers,
			LocalAddrs:           t.LocalAddrs,
			InsecureSkipVerify:   t.InsecureSkipVerify,
			DisableFallback:      t.DisableFallback,
			AppendOnly:           t.AppendOnly,
			Browser:              t.Browser,
		},
	}

	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return merged, nil
}

func DefaultConfig() Config {
	return Config{
		DownloadDir:     downloadDir,
		StatePath:       statePath,
		LogPath:         logPath,
		TaskConcurrency: taskConcurrency,
		Transfer:        DefaultTransferConfig(),
	}
}

// DefaultTransferConfig returns a fresh copy of the transfer defaults.
func DefaultTransferConfig() *TransferConfig {
	return &TransferConfig{
		Threads:              threads,
		MinChunkSize:         minChunkSize,
		WriteBufferSize:      writeBufferSize,
		WriteQueueCap:        writeQueueCap,
		RetryGap:             retryGap,
		PullTimeout:          pullTimeout,
		MaxSpeculative:       maxSpeculative,
		SpeculativeThreshold: speculativeThreshold,
		WriteMethod:          writeMethod,
		FlushInterval:        flushInterval,
		ReportInterval:       reportInterval,
	}
}

func (c *Config) Validate() error {
	if c.TaskConcurrency <= 0 {
		return ErrInvalidConcurrent
	}

	if c.Transfer == nil {
		return nil
	}

	return c.Transfer.Validate()
}

// Validate rejects settings the engine cannot run with.
func (t *TransferConfig) Validate() error {
	switch {
	case t.Threads <= 0:
		return ErrInvalidThreads
	case t.MinChunkSize <= 0:
		return ErrInvalidChunkSize
	case t.WriteBufferSize <= 0:
		return ErrInvalidBuffer
	case t.WriteQueueCap <= 0:
		return ErrInvalidQueue
	case t.MaxSpeculative < 0:
		return ErrInvalidSpeculate
	case t.MaxRetries < 0:
		return ErrInvalidRetries
	case t.WriteMethod != "mmap" && t.WriteMethod != "std":
		return fmt.Errorf("%w, got %q", ErrInvalidMethod, t.WriteMethod)
	case t.RetryGap < 0, t.PullTimeout <= 0, t.FlushInterval <= 0, t.ReportInterval <= 0:
		return ErrInvalidInterval
	}

	return nil
}

// Clone returns a deep copy so per-transfer overrides never leak into shared settings.
func (t *TransferConfig) Clone() *TransferConfig {
	c := *t

	if t.Headers != nil {
		c.Headers = make(map[string]string, len(t.Headers))
		for k, v := range t.Headers {
			c.Headers[k] = v
		}
	}

	c.LocalAddrs = append([]string(nil), t.LocalAddrs...)

	return &c
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
