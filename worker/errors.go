package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// session's current execution state.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound is returned for operations on an unknown session id.
	ErrNotFound = errors.New("session not found")
)

// BackendOp names a storage operation that failed on behalf of a session.
type BackendOp string

const (
	OpLoadDB       BackendOp = "load_db"
	OpDownloadDB   BackendOp = "download_db"
	OpPoolCapacity BackendOp = "pool_capacity"
)

// BackendError is a storage failure reported by the VFS layer.
type BackendError struct {
	Op  BackendOp
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
