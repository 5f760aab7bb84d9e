//go:build !unix

package filesystem

// FreeSpace is not implemented on this platform and reports -1.
func FreeSpace(string) (int64, error) {
	return -1, nil
}
