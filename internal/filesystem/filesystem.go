package filesystem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/NamanBalaji/fastdl/internal/errors"
)

// OSFileSystem provides the destination file operations a transfer needs.
type OSFileSystem struct{}

// NewOSFileSystem creates a new OS filesystem
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// OpenDestination opens path for random-access writing, creating parent directories.
// A non-negative size resizes the file. fresh discards any existing content first.
func (fs *OSFileSystem) OpenDestination(path string, size int64, fresh bool) (*os.File, error) {
	if err := fs.EnsureDirectory(filepath.Dir(path)); err != nil {
		return nil, err
	}

	flags := os.O_RDWR | os.O_CREATE
	if fresh {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}

	if size >= 0 {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("resize %s to %d: %w", path, size, err)
		}
	}

	return f, nil
}

// DeleteFile deletes a file. A missing file is not an error.
func (fs *OSFileSystem) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// EnsureDirectory ensures a directory exists
func (fs *OSFileSystem) EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0o755)
}

// FileExists checks if a file exists
func (fs *OSFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// FileSize returns the size of path, or -1 if it does not exist.
func (fs *OSFileSystem) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}

	return info.Size(), nil
}

// CheckFreeSpace fails with ErrInsufficientSpace when the filesystem holding dir cannot fit
// needed more bytes. Platforms without a free-space query always pass.
func (fs *OSFileSystem) CheckFreeSpace(dir string, needed int64) error {
	if needed <= 0 {
		return nil
	}

	free, err := FreeSpace(dir)
	if err != nil {
		return err
	}

	if free >= 0 && free < needed {
		return fmt.Errorf("%w: need %d bytes, %d available in %s", errors.ErrInsufficientSpace, needed, free, dir)
	}

	return nil
}
