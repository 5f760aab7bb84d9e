package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/fastdl/internal/logger"
)

func TestInitLogging_WritesDebugFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fastdl.log")

	require.NoError(t, logger.InitLogging(true, path))
	t.Cleanup(func() {
		logger.Close()
		logger.DebugEnabled = false
	})

	logger.Debugf("chunk %d stolen", 7)
	logger.Errorf("write failed: %s", "disk full")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] chunk 7 stolen")
	assert.Contains(t, string(data), "[ERROR] write failed: disk full")
	assert.Contains(t, string(data), "logger_test.go")
}

func TestSetVerbose_MirrorsWarnings(t *testing.T) {
	var buf bytes.Buffer

	logger.SetVerbose(&buf)
	t.Cleanup(func() { logger.SetVerbose(nil) })

	logger.Infof("not mirrored")
	logger.Warnf("retrying in %s", "500ms")

	assert.NotContains(t, buf.String(), "not mirrored")
	assert.Contains(t, buf.String(), "[WARNING] retrying in 500ms")
}
