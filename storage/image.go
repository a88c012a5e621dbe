package storage

import "fmt"

const (
	imageMagic     = "SQLite format 3\x00"
	imageHeaderLen = 100

	// Offsets of the file format read/write version bytes. A value of 2
	// marks a WAL database.
	imageWriteVersion = 18
	imageReadVersion  = 19
)

// prepareImage validates a database image and returns a copy that opens in
// rollback-journal mode. Neither backend provides the shared memory WAL
// needs, so WAL images are downgraded to the legacy journal.
func prepareImage(data []byte) ([]byte, error) {
	if len(data) < imageHeaderLen || string(data[:len(imageMagic)]) != imageMagic {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidImage)
	}
	out := make([]byte, len(data))
	copy(out, data)
	if out[imageWriteVersion] == 2 {
		out[imageWriteVersion] = 1
	}
	if out[imageReadVersion] == 2 {
		out[imageReadVersion] = 1
	}
	return out, nil
}

// sidecars returns the names of the journal files SQLite may create next
// to a database file.
func sidecars(name string) []string {
	return []string{name + "-journal", name + "-wal"}
}
