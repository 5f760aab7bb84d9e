package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const callDepth = 3

var (
	mu sync.RWMutex

	debugLogger   *log.Logger
	consoleLogger *log.Logger

	DebugEnabled = false

	logFile *os.File
)

// InitLogging sets up logging based on configuration. Debug output goes to logPath.
func InitLogging(debugMode bool, logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	DebugEnabled = debugMode

	if DebugEnabled && logPath != "" {
		logDir := filepath.Dir(logPath)
		err := os.MkdirAll(logDir, 0o755)
		if err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		if logFile != nil {
			logFile.Close()
		}

		logFile = f
		debugLogger = log.New(f, "", log.Ldate|log.Ltime|log.Lshortfile)
	}

	return nil
}

// SetVerbose mirrors warnings and errors to w. A nil writer turns mirroring off.
func SetVerbose(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if w == nil {
		consoleLogger = nil
		return
	}

	consoleLogger = log.New(w, "", log.Ltime)
}

// Close closes the log file if open.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
		debugLogger = nil
	}
}

func output(level string, console bool, format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	msg := fmt.Sprintf("["+level+"] "+format, v...)

	if DebugEnabled && debugLogger != nil {
		_ = debugLogger.Output(callDepth, msg)
	}

	if console && consoleLogger != nil {
		_ = consoleLogger.Output(callDepth, msg)
	}
}

func Infof(format string, v ...interface{}) {
	output("INFO", false, format, v...)
}

// Errorf logs an error message to the file if debug mode is enabled, and to the console in verbose mode.
func Errorf(format string, v ...interface{}) {
	output("ERROR", true, format, v...)
}

func Debugf(format string, v ...interface{}) {
	output("DEBUG", false, format, v...)
}

func Warnf(format string, v ...interface{}) {
	output("WARNING", true, format, v...)
}
