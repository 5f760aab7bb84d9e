package engine

import (
	"strings"

	"github.com/google/uuid"

	fetch "github.com/NamanBalaji/fastdl/internal/http"
	"github.com/NamanBalaji/fastdl/internal/ledger"
	"github.com/NamanBalaji/fastdl/internal/repository"
	httpPkg "github.com/NamanBalaji/fastdl/pkg/http"
)

type resumeMode int

const (
	modeFresh resumeMode = iota
	modeResume
	modeIncremental
	modeComplete
)

func (m resumeMode) String() string {
	switch m {
	case modeFresh:
		return "fresh"
	case modeResume:
		return "resume"
	case modeIncremental:
		return "incremental"
	case modeComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// plan says which bytes of the destination can be trusted before fetching starts.
type plan struct {
	mode    resumeMode
	id      uuid.UUID
	covered []ledger.Span
	reason  string
}

func freshPlan(reason string) plan {
	return plan{mode: modeFresh, id: uuid.New(), reason: reason}
}

// planResume decides how a transfer reuses the previous run recorded in prev. fileSize is the
// current size of the destination, -1 if it does not exist.
func planResume(prev *repository.Entry, info *fetch.Info, fileSize int64, appendOnly bool) plan {
	switch {
	case prev == nil:
		return freshPlan("no prior progress")
	case fileSize < 0:
		return freshPlan("destination file is missing")
	case info.Size < 0:
		return freshPlan("resource size is unknown")
	case !info.SupportsRange:
		return freshPlan("server does not support ranges")
	case prev.Size < 0:
		return freshPlan("previous run never learned the size")
	}

	if info.Size == prev.Size {
		if fileSize != prev.Size {
			return freshPlan("destination size differs from recorded size")
		}

		if etagChanged(prev.ETag, info.ETag) {
			return freshPlan("entity tag changed")
		}

		p := plan{id: prev.ID, covered: ledger.Clip(prev.Progress, info.Size), mode: modeResume}

		if prev.Complete() {
			p.mode = modeComplete
		}

		switch {
		case info.WeakETag():
			p.reason = "entity tag is weak, resuming without a strong validator"
		case prev.ETag == "" && !httpPkg.ParseLastModified(prev.LastModified).Equal(httpPkg.ParseLastModified(info.LastModified)):
			p.reason = "last-modified changed, resuming without a strong validator"
		}

		return p
	}

	if info.Size > prev.Size && appendOnly {
		if fileSize != prev.Size {
			return freshPlan("destination size differs from recorded size")
		}

		return plan{
			mode:    modeIncremental,
			id:      prev.ID,
			covered: ledger.Clip(prev.Progress, prev.Size),
			reason:  "resource grew, trusting the previous prefix",
		}
	}

	return freshPlan("resource size changed")
}

// etagChanged reports a mismatch of two strong entity tags. Weak or missing tags never count.
func etagChanged(old, cur string) bool {
	if old == "" || cur == "" || strings.HasPrefix(old, "W/") || strings.HasPrefix(cur, "W/") {
		return false
	}

	return old != cur
}
