// Package engine drives an embedded SQLite database through its low-level
// statement API: it splits SQL text into statements, steps them row by row
// and decodes rows into transport-safe values.
//
// SQLite runs as a WebAssembly module inside the wazero runtime. None of the
// types in this package are safe for concurrent use; callers must serialize
// all access to a DB and the statements compiled from it.
package engine

import (
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB owns one native database connection.
type DB struct {
	conn *sqlite3.Conn
}

// Open opens a connection. uri may be a plain filename or a file: URI, such
// as "file:test.db?vfs=sqlight-memory".
func Open(uri string) (*DB, error) {
	conn, err := sqlite3.OpenFlags(uri, sqlite3.OPEN_READWRITE|sqlite3.OPEN_CREATE|sqlite3.OPEN_URI)
	if err != nil {
		return nil, nativeError(OpOpen, err)
	}
	return &DB{conn: conn}, nil
}

// Prepare returns a lazy sequence over the statements in sql. Nothing is
// compiled until Next is called.
func (db *DB) Prepare(sql string) *Statements {
	return &Statements{conn: db.conn, sql: sql}
}

// Exec runs sql to completion, discarding any rows.
func (db *DB) Exec(sql string) error {
	if err := db.conn.Exec(sql); err != nil {
		return nativeError(OpStep, err)
	}
	return nil
}

// Close closes the connection. Every Statement compiled from it must have
// been closed first. Close is safe to call more than once.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	conn := db.conn
	db.conn = nil
	return conn.Close()
}
