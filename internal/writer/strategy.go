package writer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/NamanBalaji/fastdl/internal/logger"
)

var (
	ErrUnknownMethod = errors.New("unknown write method")
	ErrOutOfRange    = errors.New("write beyond mapped region")
)

// Method selects how committed bytes reach the destination file.
type Method string

const (
	MethodMmap Method = "mmap"
	MethodStd  Method = "std"
)

// ParseMethod validates a user supplied write method name.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodMmap, MethodStd:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Strategy commits bytes at explicit offsets. Only the pipeline's consumer calls WriteAt.
type Strategy interface {
	WriteAt(p []byte, off int64) error
	Sync() error
	Close() error
}

// Open returns a strategy for f, which must already have its final size when known.
// A memory map needs a known, non-zero size, so other files fall back to positioned writes.
func Open(f *os.File, size int64, method Method) (Strategy, error) {
	if method == MethodMmap {
		if size > 0 {
			s, err := openMmap(f, size)
			if err == nil {
				return s, nil
			}

			logger.Warnf("mmap of %s failed, using positioned writes: %v", f.Name(), err)
		} else {
			logger.Debugf("Size of %s unknown or zero, using positioned writes", f.Name())
		}
	}

	return &stdStrategy{f: f}, nil
}

type stdStrategy struct {
	f *os.File
}

func (s *stdStrategy) WriteAt(p []byte, off int64) error {
	n, err := s.f.WriteAt(p, off)
	if err != nil {
		return err
	}

	if n != len(p) {
		return io.ErrShortWrite
	}

	return nil
}

func (s *stdStrategy) Sync() error {
	return s.f.Sync()
}

// Close leaves the file open; its owner closes it.
func (s *stdStrategy) Close() error {
	return s.Sync()
}
