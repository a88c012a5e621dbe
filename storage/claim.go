package storage

import (
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

const lockFileName = ".lock"

type claimKey struct {
	fs  afero.Fs
	dir string
}

var (
	claimsMu sync.Mutex
	claims   = make(map[claimKey]struct{})
)

// claimDir takes exclusive ownership of a pool directory for this process.
// On the OS filesystem an advisory file lock also keeps other processes
// out.
func claimDir(fsys afero.Fs, dir string) (func() error, error) {
	key := claimKey{fs: fsys, dir: filepath.Clean(dir)}

	claimsMu.Lock()
	defer claimsMu.Unlock()
	if _, ok := claims[key]; ok {
		return nil, ErrBackendOpened
	}

	unlock := func() error { return nil }
	if _, ok := fsys.(*afero.OsFs); ok {
		var err error
		if unlock, err = lockFile(filepath.Join(dir, lockFileName)); err != nil {
			return nil, err
		}
	}
	claims[key] = struct{}{}

	return func() error {
		claimsMu.Lock()
		delete(claims, key)
		claimsMu.Unlock()
		return unlock()
	}, nil
}
