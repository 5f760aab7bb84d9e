package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	appName = "fastdl"

	taskConcurrency      = 5
	threads              = 32
	minChunkSize         = 1 << 20
	writeBufferSize      = 8 << 20
	writeQueueCap        = 10240
	retryGap             = 500 * time.Millisecond
	pullTimeout          = 5 * time.Second
	maxSpeculative       = 3
	speculativeThreshold = 16 << 20
	writeMethod          = "mmap"
	flushInterval        = time.Second
	reportInterval       = 200 * time.Millisecond
)

var (
	downloadDir = xdg.UserDirs.Download
	statePath   = filepath.Join(xdg.StateHome, appName, "state.db")
	logPath     = filepath.Join(xdg.StateHome, appName, appName+".log")
)
