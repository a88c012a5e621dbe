package storage

import (
	"errors"
	"io"
	"sync"

	"github.com/ncruces/go-sqlite3"
	"github.com/ncruces/go-sqlite3/vfs"
	"github.com/spf13/afero"
)

const sectorSize = 4096

// lockState is the lock table shared by every open handle of one logical
// file. SQLite's shared/reserved/pending/exclusive protocol is tracked here
// because the backing filesystems have no locking of their own.
type lockState struct {
	mu       sync.Mutex
	shared   int
	reserved bool
	pending  bool
}

type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockState
}

func (t *lockTable) get(name string) *lockState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locks == nil {
		t.locks = make(map[string]*lockState)
	}
	l, ok := t.locks[name]
	if !ok {
		l = &lockState{}
		t.locks[name] = l
	}
	return l
}

// vfsFile adapts an afero.File to vfs.File. Offsets are shifted by base,
// which lets a pool slot keep its header in front of the file contents.
type vfsFile struct {
	file     afero.File
	base     int64
	readOnly bool

	lock   vfs.LockLevel
	shared *lockState

	onClose func() error
}

var _ vfs.File = (*vfsFile)(nil)

// ReadAt reports every short read as io.EOF, including reads that start
// past the end of the file.
func (f *vfsFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.file.ReadAt(p, off+f.base)
	if n < len(p) && (err == nil || errors.Is(err, io.ErrUnexpectedEOF)) {
		err = io.EOF
	}
	return n, err
}

func (f *vfsFile) WriteAt(p []byte, off int64) (int, error) {
	if f.readOnly {
		return 0, sqlite3.READONLY
	}
	return f.file.WriteAt(p, off+f.base)
}

func (f *vfsFile) Truncate(size int64) error {
	if f.readOnly {
		return sqlite3.READONLY
	}
	return f.file.Truncate(size + f.base)
}

func (f *vfsFile) Sync(flags vfs.SyncFlag) error {
	return f.file.Sync()
}

func (f *vfsFile) Size() (int64, error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return max(info.Size()-f.base, 0), nil
}

func (f *vfsFile) SectorSize() int {
	return sectorSize
}

func (f *vfsFile) DeviceCharacteristics() vfs.DeviceCharacteristic {
	return vfs.IOCAP_SAFE_APPEND | vfs.IOCAP_POWERSAFE_OVERWRITE
}

func (f *vfsFile) Lock(lock vfs.LockLevel) error {
	if f.lock >= lock {
		return nil
	}
	if f.readOnly && lock >= vfs.LOCK_RESERVED {
		return sqlite3.IOERR_LOCK
	}

	f.shared.mu.Lock()
	defer f.shared.mu.Unlock()

	switch lock {
	case vfs.LOCK_SHARED:
		if f.shared.pending {
			return sqlite3.BUSY
		}
		f.shared.shared++

	case vfs.LOCK_RESERVED:
		if f.shared.reserved {
			return sqlite3.BUSY
		}
		f.shared.reserved = true

	case vfs.LOCK_EXCLUSIVE:
		if f.lock < vfs.LOCK_PENDING {
			f.lock = vfs.LOCK_PENDING
			f.shared.pending = true
		}
		if f.shared.shared > 1 {
			return sqlite3.BUSY
		}
	}

	f.lock = lock
	return nil
}

func (f *vfsFile) Unlock(lock vfs.LockLevel) error {
	if f.lock <= lock {
		return nil
	}

	f.shared.mu.Lock()
	defer f.shared.mu.Unlock()

	if f.lock >= vfs.LOCK_RESERVED {
		f.shared.reserved = false
	}
	if f.lock >= vfs.LOCK_PENDING {
		f.shared.pending = false
	}
	if lock < vfs.LOCK_SHARED {
		f.shared.shared--
	}
	f.lock = lock
	return nil
}

func (f *vfsFile) CheckReservedLock() (bool, error) {
	if f.lock >= vfs.LOCK_RESERVED {
		return true, nil
	}
	f.shared.mu.Lock()
	defer f.shared.mu.Unlock()
	return f.shared.reserved, nil
}

func (f *vfsFile) Close() error {
	if err := f.Unlock(vfs.LOCK_NONE); err != nil {
		return err
	}
	if f.onClose != nil {
		return f.onClose()
	}
	return nil
}
