// Package storage provides the virtual filesystems SQLite databases are
// opened on: an ephemeral in-memory backend that is always available and a
// persistent pooled backend that is installed on first use.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/ncruces/go-sqlite3/vfs"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMemoryName      = "sqlight-memory"
	DefaultPoolName        = "sqlight-pool"
	DefaultPoolDir         = ".sqlight-pool"
	DefaultInitialCapacity = 6

	// Slots added when a persistent open finds the pool close to full.
	capacityStep = 3
)

// Config controls where the backends are registered and stored.
type Config struct {
	MemoryName          string
	PoolName            string
	PoolFs              afero.Fs
	PoolDir             string
	PoolInitialCapacity int
	Logger              *slog.Logger
}

// Manager owns the memory backend and the lazily installed pool backend.
type Manager struct {
	config Config
	logger *slog.Logger
	memory *MemoryVFS

	install singleflight.Group

	mu         sync.Mutex
	pool       *PoolVFS
	installing bool
}

// NewManager registers the memory backend and returns a manager whose pool
// backend is not yet installed.
func NewManager(config Config) *Manager {
	if config.MemoryName == "" {
		config.MemoryName = DefaultMemoryName
	}
	if config.PoolName == "" {
		config.PoolName = DefaultPoolName
	}
	if config.PoolFs == nil {
		config.PoolFs = afero.NewOsFs()
	}
	if config.PoolDir == "" {
		config.PoolDir = DefaultPoolDir
	}
	if config.PoolInitialCapacity <= 0 {
		config.PoolInitialCapacity = DefaultInitialCapacity
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	m := &Manager{
		config: config,
		logger: config.Logger.With("component", "storage"),
		memory: NewMemoryVFS(),
	}
	vfs.Register(config.MemoryName, m.memory)
	return m
}

// Memory returns the memory backend.
func (m *Manager) Memory() *MemoryVFS {
	return m.memory
}

// InstallPool installs the persistent backend if it is not installed yet.
// Concurrent callers share one attempt; a failed attempt can be retried.
func (m *Manager) InstallPool(ctx context.Context) (*PoolVFS, error) {
	m.mu.Lock()
	if m.pool != nil {
		pool := m.pool
		m.mu.Unlock()
		return pool, nil
	}
	m.installing = true
	m.mu.Unlock()

	v, err, _ := m.install.Do("pool", func() (any, error) {
		m.mu.Lock()
		if m.pool != nil {
			pool := m.pool
			m.mu.Unlock()
			return pool, nil
		}
		m.mu.Unlock()

		pool, err := OpenPool(ctx, m.config.PoolFs, m.config.PoolDir, m.config.PoolInitialCapacity, m.logger)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.installing = false
		if err != nil {
			m.logger.Error("Failed to install persistent storage", "error", err)
			return nil, err
		}
		vfs.Register(m.config.PoolName, pool)
		m.pool = pool
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*PoolVFS), nil
}

// Pool returns the installed persistent backend.
func (m *Manager) Pool() (*PoolVFS, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool != nil {
		return m.pool, nil
	}
	if m.installing {
		return nil, ErrBackendInitializing
	}
	return nil, ErrNotInitialized
}

// PrepareOpen readies the backend a database is about to be opened on. For
// the persistent backend this installs the pool and grows it when few free
// slots remain; each stored database may need room for its journals.
func (m *Manager) PrepareOpen(ctx context.Context, persist bool) error {
	if !persist {
		return nil
	}
	pool, err := m.InstallPool(ctx)
	if err != nil {
		return err
	}
	capacity, files := pool.Capacity(), pool.FileCount()
	if capacity-files*capacityStep < capacityStep {
		newCapacity, err := pool.AddCapacity(ctx, capacityStep)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPoolCapacity, err)
		}
		m.logger.Info("Grew storage pool", "files", files, "capacity", newCapacity)
	}
	return nil
}

// BackendName returns the registered VFS name for a backend.
func (m *Manager) BackendName(persist bool) string {
	if persist {
		return m.config.PoolName
	}
	return m.config.MemoryName
}

// URI returns the URI a database file is opened with.
func (m *Manager) URI(filename string, persist bool) string {
	return "file:" + url.PathEscape(filename) + "?vfs=" + url.QueryEscape(m.BackendName(persist))
}

// Export returns the contents of a database file.
func (m *Manager) Export(filename string, persist bool) ([]byte, error) {
	if !persist {
		return m.memory.Export(filename)
	}
	pool, err := m.Pool()
	if err != nil {
		return nil, err
	}
	return pool.Export(filename)
}

// Import replaces the contents of a database file.
func (m *Manager) Import(filename string, persist bool, data []byte) error {
	if !persist {
		return m.memory.Import(filename, data)
	}
	pool, err := m.Pool()
	if err != nil {
		return err
	}
	return pool.Import(filename, data)
}

// Delete removes a database file and its journals. Removing a file that does
// not exist is not an error.
func (m *Manager) Delete(filename string, persist bool) error {
	if !persist {
		_, err := m.memory.Unlink(filename)
		return err
	}
	pool, err := m.Pool()
	if err != nil {
		return err
	}
	_, err = pool.Unlink(filename)
	return err
}

// Close unregisters the backends and releases the pool.
func (m *Manager) Close() error {
	vfs.Unregister(m.config.MemoryName)
	m.mu.Lock()
	pool := m.pool
	m.pool = nil
	m.mu.Unlock()
	if pool == nil {
		return nil
	}
	vfs.Unregister(m.config.PoolName)
	return pool.Close()
}
