//go:build !unix

package writer

import (
	"errors"
	"os"
)

func openMmap(*os.File, int64) (Strategy, error) {
	return nil, errors.New("mmap not supported on this platform")
}
