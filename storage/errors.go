package storage

import "errors"

var (
	// ErrNotInitialized is returned when the persistent backend is used
	// before it has been installed.
	ErrNotInitialized = errors.New("persistent storage has not been initialized")
	// ErrBackendInitializing is returned while another caller is still
	// installing the persistent backend.
	ErrBackendInitializing = errors.New("persistent storage is initializing, please try again")
	// ErrBackendOpened is returned when the pool directory is already
	// claimed by another process or pool.
	ErrBackendOpened = errors.New("persistent storage is in use by another instance, close it and try again")
	// ErrNoFreeSlot is returned when every slot of the pool is occupied.
	ErrNoFreeSlot = errors.New("no free slot in the storage pool")
	// ErrPoolCapacity wraps failures to grow the pool before an open.
	ErrPoolCapacity = errors.New("failed to add pool capacity")
	// ErrFileNotFound is returned by Export for paths with no stored file.
	ErrFileNotFound = errors.New("no such file")
	// ErrInvalidImage is returned by Import when the data is not a SQLite
	// database file.
	ErrInvalidImage = errors.New("data is not a sqlite database")
)
