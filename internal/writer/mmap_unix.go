//go:build unix

package writer

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type mmapStrategy struct {
	data []byte
}

func openMmap(f *os.File, size int64) (Strategy, error) {
	if int64(int(size)) != size {
		return nil, fmt.Errorf("size %d exceeds address space", size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return &mmapStrategy{data: data}, nil
}

func (s *mmapStrategy) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(s.data)) {
		return fmt.Errorf("%w: [%d,%d) of %d", ErrOutOfRange, off, off+int64(len(p)), len(s.data))
	}

	copy(s.data[off:], p)

	return nil
}

func (s *mmapStrategy) Sync() error {
	return unix.Msync(s.data, unix.MS_SYNC)
}

func (s *mmapStrategy) Close() error {
	if s.data == nil {
		return nil
	}

	syncErr := s.Sync()
	err := unix.Munmap(s.data)
	s.data = nil

	if syncErr != nil {
		return syncErr
	}

	return err
}
