package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/fastdl/internal/ledger"
)

// Entry is the persisted progress of one destination file.
type Entry struct {
	ID           uuid.UUID     `json:"id"`
	Path         string        `json:"path"`
	URL          string        `json:"url"`
	FileName     string        `json:"fileName"`
	Size         int64         `json:"size"`
	ETag         string        `json:"etag,omitempty"`
	LastModified string        `json:"lastModified,omitempty"`
	AppendOnly   bool          `json:"appendOnly,omitempty"`
	Progress     []ledger.Span `json:"progress"`
	Elapsed      time.Duration `json:"elapsed"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Covered returns the number of bytes recorded as written.
func (e *Entry) Covered() int64 {
	return ledger.Total(e.Progress)
}

// Complete reports whether the recorded progress spans the whole resource.
func (e *Entry) Complete() bool {
	if e.Size < 0 {
		return false
	}

	p := ledger.Normalize(e.Progress)

	return e.Size == 0 || (len(p) == 1 && p[0].Start == 0 && p[0].End >= e.Size)
}

type Repository interface {
	Save(entry *Entry) error
	Find(path string) (*Entry, error)
	FindAll() ([]*Entry, error)
	Delete(path string) error
	Clean(remove func(*Entry) bool) (int, error)
	Close() error
}
