//go:build unix

package storage

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

func lockFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrBackendOpened
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return func() error {
		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN|syscall.LOCK_NB); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}, nil
}
