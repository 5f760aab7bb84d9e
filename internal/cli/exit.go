package cli

import (
	"errors"

	terrors "github.com/NamanBalaji/fastdl/internal/errors"
)

var errPaused = errors.New("transfer interrupted, run the same command again to resume")

// Exit codes returned by Execute.
const (
	ExitOK          = 0
	ExitFailed      = 1
	ExitUsage       = 2
	ExitRange       = 3
	ExitDisk        = 4
	ExitInterrupted = 130
)

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	if errors.Is(err, errPaused) {
		return ExitInterrupted
	}

	if terrors.IsDiskError(err) {
		return ExitDisk
	}

	switch terrors.Classify(err) {
	case terrors.ClassCancelled:
		return ExitInterrupted
	case terrors.ClassRange:
		return ExitRange
	case terrors.ClassPreflight:
		return ExitUsage
	default:
		return ExitFailed
	}
}
