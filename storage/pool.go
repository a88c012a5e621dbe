package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/ncruces/go-sqlite3"
	"github.com/ncruces/go-sqlite3/vfs"
	"github.com/spf13/afero"
)

const (
	// slotHeaderSize is the space reserved in front of every slot file for
	// the logical path it holds. The contents start right after it.
	slotHeaderSize = 4096
	slotExt        = ".slot"
)

// slot is one preallocated file of the pool. A slot with an empty path is
// free.
type slot struct {
	name string
	file afero.File
	path string

	refs          int
	deleteOnClose bool
}

// FileInfo describes one file stored in the pool.
type FileInfo struct {
	Path string
	Size int64
}

// PoolVFS stores database files in a fixed set of slot files inside one
// directory. Opening a file that is not yet stored takes a free slot, so
// the number of files (journals and temporary files included) is bounded
// by the capacity.
type PoolVFS struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	slots   map[string]*slot
	byPath  map[string]*slot
	locks   lockTable
	release func() error
	closed  bool
}

var _ vfs.VFS = (*PoolVFS)(nil)

// OpenPool claims dir on fsys and loads the slots it contains, creating new
// ones until the pool holds at least capacity slots.
func OpenPool(ctx context.Context, fsys afero.Fs, dir string, capacity int, logger *slog.Logger) (*PoolVFS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create pool directory: %w", err)
	}
	release, err := claimDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	p := &PoolVFS{
		fs:      fsys,
		dir:     dir,
		logger:  logger.With("component", "pool", "dir", dir),
		slots:   make(map[string]*slot),
		byPath:  make(map[string]*slot),
		release: release,
	}
	if err := p.load(); err != nil {
		p.Close()
		return nil, err
	}
	if missing := capacity - len(p.slots); missing > 0 {
		if _, err := p.AddCapacity(ctx, missing); err != nil {
			p.Close()
			return nil, err
		}
	}
	p.logger.Info("Storage pool opened", "capacity", p.Capacity(), "files", p.FileCount())
	return p, nil
}

func (p *PoolVFS) load() error {
	entries, err := afero.ReadDir(p.fs, p.dir)
	if err != nil {
		return fmt.Errorf("failed to list pool directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != slotExt {
			continue
		}
		f, err := p.fs.OpenFile(filepath.Join(p.dir, entry.Name()), os.O_RDWR, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open slot %s: %w", entry.Name(), err)
		}
		s := &slot{name: entry.Name(), file: f}
		if s.path, err = readSlotHeader(f); err != nil {
			p.logger.Warn("Discarding unreadable slot header", "slot", entry.Name(), "error", err)
			if err := writeSlotHeader(f, ""); err != nil {
				f.Close()
				return err
			}
		}
		p.slots[s.name] = s
		if s.path != "" {
			p.byPath[s.path] = s
		}
	}
	return nil
}

func readSlotHeader(f afero.File) (string, error) {
	header := make([]byte, slotHeaderSize)
	n, err := f.ReadAt(header, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if n < 4 {
		return "", nil
	}
	size := binary.BigEndian.Uint32(header)
	if int(size) > n-4 {
		return "", fmt.Errorf("path length %d exceeds header", size)
	}
	return string(header[4 : 4+size]), nil
}

func writeSlotHeader(f afero.File, logical string) error {
	if len(logical) > slotHeaderSize-4 {
		return fmt.Errorf("path too long for slot header: %d bytes", len(logical))
	}
	header := make([]byte, slotHeaderSize)
	binary.BigEndian.PutUint32(header, uint32(len(logical)))
	copy(header[4:], logical)
	if _, err := f.WriteAt(header, 0); err != nil {
		return err
	}
	return f.Sync()
}

// Capacity returns the number of slots.
func (p *PoolVFS) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// FileCount returns the number of occupied slots.
func (p *PoolVFS) FileCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byPath)
}

// Files lists the stored files in path order.
func (p *PoolVFS) Files() ([]FileInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	files := make([]FileInfo, 0, len(p.byPath))
	for logical, s := range p.byPath {
		size, err := slotSize(s)
		if err != nil {
			return nil, err
		}
		files = append(files, FileInfo{Path: logical, Size: size})
	}
	slices.SortFunc(files, func(a, b FileInfo) int { return strings.Compare(a.Path, b.Path) })
	return files, nil
}

// AddCapacity creates n new free slots and returns the new capacity.
func (p *PoolVFS) AddCapacity(ctx context.Context, n int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return len(p.slots), err
		}
		name := uuid.New().String() + slotExt
		f, err := p.fs.OpenFile(filepath.Join(p.dir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return len(p.slots), fmt.Errorf("failed to create slot: %w", err)
		}
		if err := writeSlotHeader(f, ""); err != nil {
			f.Close()
			return len(p.slots), fmt.Errorf("failed to create slot: %w", err)
		}
		p.slots[name] = &slot{name: name, file: f}
	}
	p.logger.Debug("Added pool capacity", "added", n, "capacity", len(p.slots))
	return len(p.slots), nil
}

// ReduceCapacity removes up to n free slots and returns how many were
// removed.
func (p *PoolVFS) ReduceCapacity(n int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for name, s := range p.slots {
		if removed == n {
			break
		}
		if s.path != "" {
			continue
		}
		s.file.Close()
		if err := p.fs.Remove(filepath.Join(p.dir, name)); err != nil {
			return removed, fmt.Errorf("failed to remove slot: %w", err)
		}
		delete(p.slots, name)
		removed++
	}
	return removed, nil
}

// Export returns the contents of the stored file at logical.
func (p *PoolVFS) Export(logical string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byPath[cleanName(logical)]
	if !ok {
		return nil, ErrFileNotFound
	}
	size, err := slotSize(s)
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if _, err := s.file.ReadAt(data, slotHeaderSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data, nil
}

// Import stores data at logical, replacing any previous contents and
// journals.
func (p *PoolVFS) Import(logical string, data []byte) error {
	image, err := prepareImage(data)
	if err != nil {
		return err
	}
	logical = cleanName(logical)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sidecar := range sidecars(logical) {
		if err := p.free(sidecar); err != nil {
			return err
		}
	}
	s, err := p.acquire(logical)
	if err != nil {
		return err
	}
	if err := s.file.Truncate(slotHeaderSize); err != nil {
		return err
	}
	if _, err := s.file.WriteAt(image, slotHeaderSize); err != nil {
		return err
	}
	p.logger.Debug("Imported file", "path", logical, "size", humanize.IBytes(uint64(len(image))))
	return s.file.Sync()
}

// Unlink removes the file at logical and its journals, releasing their
// slots. It reports whether the file existed.
func (p *PoolVFS) Unlink(logical string) (bool, error) {
	logical = cleanName(logical)
	p.mu.Lock()
	defer p.mu.Unlock()
	_, existed := p.byPath[logical]
	for _, name := range append([]string{logical}, sidecars(logical)...) {
		if err := p.free(name); err != nil {
			return existed, err
		}
	}
	return existed, nil
}

// Close releases every slot file and the directory claim. The pool must
// not be used afterwards.
func (p *PoolVFS) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var errs []error
	for _, s := range p.slots {
		errs = append(errs, s.file.Close())
	}
	if p.release != nil {
		errs = append(errs, p.release())
	}
	return errors.Join(errs...)
}

// acquire returns the slot holding logical, assigning a free slot if the
// file is not stored yet. The caller holds p.mu.
func (p *PoolVFS) acquire(logical string) (*slot, error) {
	if s, ok := p.byPath[logical]; ok {
		return s, nil
	}
	for _, s := range p.slots {
		if s.path != "" {
			continue
		}
		if err := writeSlotHeader(s.file, logical); err != nil {
			return nil, err
		}
		if err := s.file.Truncate(slotHeaderSize); err != nil {
			return nil, err
		}
		s.path = logical
		p.byPath[logical] = s
		return s, nil
	}
	return nil, ErrNoFreeSlot
}

// free releases the slot holding logical, if any. The caller holds p.mu.
func (p *PoolVFS) free(logical string) error {
	s, ok := p.byPath[logical]
	if !ok {
		return nil
	}
	if err := writeSlotHeader(s.file, ""); err != nil {
		return err
	}
	if err := s.file.Truncate(slotHeaderSize); err != nil {
		return err
	}
	delete(p.byPath, logical)
	s.path = ""
	s.deleteOnClose = false
	return nil
}

func slotSize(s *slot) (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return max(info.Size()-slotHeaderSize, 0), nil
}

func (p *PoolVFS) Open(name string, flags vfs.OpenFlag) (vfs.File, vfs.OpenFlag, error) {
	if name == "" {
		name = path.Join("/tmp", uuid.New().String())
		flags |= vfs.OPEN_DELETEONCLOSE
	}
	logical := cleanName(name)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, flags, sqlite3.CANTOPEN
	}

	s, ok := p.byPath[logical]
	if !ok {
		if flags&vfs.OPEN_CREATE == 0 {
			return nil, flags, sqlite3.CANTOPEN
		}
		var err error
		if s, err = p.acquire(logical); err != nil {
			p.logger.Warn("Failed to open file", "path", logical, "error", err)
			return nil, flags, sqlite3.CANTOPEN
		}
	}
	s.refs++
	if flags&vfs.OPEN_DELETEONCLOSE != 0 {
		s.deleteOnClose = true
	}

	file := &vfsFile{
		file:     s.file,
		base:     slotHeaderSize,
		readOnly: flags&vfs.OPEN_READONLY != 0,
		shared:   p.locks.get(logical),
	}
	file.onClose = func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		s.refs--
		if s.refs == 0 && s.deleteOnClose && s.path == logical {
			return p.free(logical)
		}
		return nil
	}
	return file, flags, nil
}

func (p *PoolVFS) Delete(name string, syncDir bool) error {
	logical := cleanName(name)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byPath[logical]; !ok {
		return sqlite3.IOERR_DELETE_NOENT
	}
	if err := p.free(logical); err != nil {
		return sqlite3.IOERR_DELETE
	}
	return nil
}

func (p *PoolVFS) Access(name string, flags vfs.AccessFlag) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byPath[cleanName(name)]
	return ok, nil
}

func (p *PoolVFS) FullPathname(name string) (string, error) {
	return cleanName(name), nil
}
