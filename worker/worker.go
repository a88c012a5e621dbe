// Package worker holds the sessions of an isolated SQL worker. Each session
// owns one database handle and steps through prepared SQL on request.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tomyedwab/sqlight/engine"
	"github.com/tomyedwab/sqlight/storage"
)

// SingleSessionID is the id of the only session in single-session mode.
const SingleSessionID = ""

type Config struct {
	Storage *storage.Manager
	// SingleSession keeps at most one session, stored under
	// SingleSessionID. Each Open replaces its database.
	SingleSession bool
	Logger        *slog.Logger
}

// Worker routes session operations to the registry.
type Worker struct {
	storage       *storage.Manager
	singleSession bool
	logger        *slog.Logger
	sessions      *registry
}

func New(config Config) *Worker {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Storage == nil {
		config.Storage = storage.NewManager(storage.Config{Logger: config.Logger})
	}
	return &Worker{
		storage:       config.Storage,
		singleSession: config.SingleSession,
		logger:        config.Logger.With("component", "worker"),
		sessions:      newRegistry(),
	}
}

// Storage returns the manager sessions open their databases through.
func (w *Worker) Storage() *storage.Manager {
	return w.storage
}

// Open opens a database and returns the id of the session bound to it. A
// session already opened with the same options is reopened and keeps its
// id, so no file is ever held by two sessions.
func (w *Worker) Open(ctx context.Context, options OpenOptions) (string, error) {
	var s *Session
	var created bool
	if w.singleSession {
		s, created = w.sessions.getOrCreate(SingleSessionID, options)
	} else {
		s, created = w.sessions.findOrCreate(options, uuid.NewString)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropped {
		return "", fmt.Errorf("%w: %q", ErrNotFound, s.id)
	}
	if s.options != options {
		if err := s.closeDB(); err != nil {
			w.logger.Warn("Failed to close database", "session", s.id, "error", err)
		}
		w.sessions.setOptions(s, options)
	}
	if err := s.reopen(ctx, w.storage); err != nil {
		if created {
			s.dropped = true
			w.sessions.remove(s.id)
		}
		return "", err
	}
	w.logger.Info("Opened database", "session", s.id, "filename", options.Filename, "persist", options.Persist)
	return s.id, nil
}

// Prepare sets up sql for execution in the session. With clearOnPrepare
// the database file is discarded and recreated first.
func (w *Worker) Prepare(ctx context.Context, id, sql string, clearOnPrepare bool) error {
	_, err := withSession(w.sessions, id, func(s *Session) (struct{}, error) {
		return struct{}{}, s.prepare(ctx, w.storage, sql, clearOnPrepare)
	})
	return err
}

// Continue runs the rest of the prepared SQL, ending with a Finish result.
func (w *Worker) Continue(id string) ([]engine.StatementResult, error) {
	return withSession(w.sessions, id, (*Session).continueRun)
}

// StepOver advances one row of the stepped statement or, when none is
// stepped, runs the next statement in full.
func (w *Worker) StepOver(id string) (engine.StatementResult, error) {
	return withSession(w.sessions, id, (*Session).stepOver)
}

// StepIn compiles the next statement for row-by-row stepping.
func (w *Worker) StepIn(id string) error {
	_, err := withSession(w.sessions, id, func(s *Session) (struct{}, error) {
		return struct{}{}, s.stepIn()
	})
	return err
}

// StepOut runs the stepped statement to completion.
func (w *Worker) StepOut(id string) (engine.StatementResult, error) {
	return withSession(w.sessions, id, (*Session).stepOut)
}

// LoadDB replaces the session's database file with data and reopens it.
func (w *Worker) LoadDB(ctx context.Context, id string, data []byte) error {
	_, err := withSession(w.sessions, id, func(s *Session) (struct{}, error) {
		return struct{}{}, s.loadDB(ctx, w.storage, data)
	})
	return err
}

// DownloadDB returns the session's filename and database file contents.
func (w *Worker) DownloadDB(id string) (string, []byte, error) {
	type download struct {
		filename string
		data     []byte
	}
	d, err := withSession(w.sessions, id, func(s *Session) (download, error) {
		filename, data, err := s.downloadDB(w.storage)
		return download{filename, data}, err
	})
	return d.filename, d.data, err
}

// Close drops a session and closes its database.
func (w *Worker) Close(id string) error {
	_, err := withSession(w.sessions, id, func(s *Session) (struct{}, error) {
		s.dropped = true
		w.sessions.remove(id)
		return struct{}{}, s.closeDB()
	})
	if err == nil {
		w.logger.Info("Closed session", "session", id)
	}
	return err
}

// Sessions lists the ids of the open sessions.
func (w *Worker) Sessions() []string {
	return w.sessions.ids()
}

// Shutdown closes every session.
func (w *Worker) Shutdown() error {
	var errs []error
	for _, id := range w.sessions.ids() {
		if err := w.Close(id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
