package storage

import (
	"errors"
	"io/fs"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/ncruces/go-sqlite3"
	"github.com/ncruces/go-sqlite3/vfs"
	"github.com/spf13/afero"
)

// MemoryVFS keeps database files in an in-memory filesystem. Its contents
// live as long as the process.
type MemoryVFS struct {
	fs    afero.Fs
	locks lockTable
}

var _ vfs.VFS = (*MemoryVFS)(nil)

func NewMemoryVFS() *MemoryVFS {
	return &MemoryVFS{fs: afero.NewMemMapFs()}
}

func (m *MemoryVFS) Open(name string, flags vfs.OpenFlag) (vfs.File, vfs.OpenFlag, error) {
	if name == "" {
		name = path.Join("/tmp", uuid.New().String())
		flags |= vfs.OPEN_DELETEONCLOSE
	}
	name = cleanName(name)

	mode := os.O_RDWR
	if flags&vfs.OPEN_CREATE != 0 {
		mode |= os.O_CREATE
	}
	if dir := path.Dir(name); dir != "/" {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, flags, sqlite3.CANTOPEN
		}
	}
	f, err := m.fs.OpenFile(name, mode, 0o600)
	if err != nil {
		return nil, flags, sqlite3.CANTOPEN
	}

	file := &vfsFile{
		file:     f,
		readOnly: flags&vfs.OPEN_READONLY != 0,
		shared:   m.locks.get(name),
	}
	deleteOnClose := flags&vfs.OPEN_DELETEONCLOSE != 0
	file.onClose = func() error {
		err := f.Close()
		if deleteOnClose {
			if rerr := m.fs.Remove(name); rerr != nil && err == nil {
				err = rerr
			}
		}
		return err
	}
	return file, flags, nil
}

func (m *MemoryVFS) Delete(name string, syncDir bool) error {
	err := m.fs.Remove(cleanName(name))
	if errors.Is(err, fs.ErrNotExist) {
		return sqlite3.IOERR_DELETE_NOENT
	}
	if err != nil {
		return sqlite3.IOERR_DELETE
	}
	return nil
}

func (m *MemoryVFS) Access(name string, flags vfs.AccessFlag) (bool, error) {
	return m.Exists(name), nil
}

func (m *MemoryVFS) FullPathname(name string) (string, error) {
	return cleanName(name), nil
}

// Exists reports whether a file is stored under name.
func (m *MemoryVFS) Exists(name string) bool {
	ok, err := afero.Exists(m.fs, cleanName(name))
	return err == nil && ok
}

// Export returns the current contents of the named database file.
func (m *MemoryVFS) Export(name string) ([]byte, error) {
	data, err := afero.ReadFile(m.fs, cleanName(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrFileNotFound
	}
	return data, err
}

// Import replaces the named database file with data, discarding any
// journal left behind by the previous contents.
func (m *MemoryVFS) Import(name string, data []byte) error {
	image, err := prepareImage(data)
	if err != nil {
		return err
	}
	if _, err := m.Unlink(name); err != nil {
		return err
	}
	name = cleanName(name)
	if dir := path.Dir(name); dir != "/" {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(m.fs, name, image, 0o600)
}

// Unlink removes the named database file and its journals. It reports
// whether the database file existed.
func (m *MemoryVFS) Unlink(name string) (bool, error) {
	name = cleanName(name)
	existed := m.Exists(name)
	for _, p := range append([]string{name}, sidecars(name)...) {
		if err := m.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return existed, err
		}
	}
	return existed, nil
}

// cleanName maps SQLite's file names onto rooted afero paths.
func cleanName(name string) string {
	return path.Clean("/" + name)
}
