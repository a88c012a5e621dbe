//go:build !unix

package storage

// lockFile is a no-op where advisory file locks are unavailable; only the
// in-process claim applies.
func lockFile(path string) (func() error, error) {
	return func() error { return nil }, nil
}
