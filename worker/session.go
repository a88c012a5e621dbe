package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomyedwab/sqlight/engine"
	"github.com/tomyedwab/sqlight/storage"
)

// OpenOptions selects the database file a session is bound to.
type OpenOptions struct {
	Filename string `json:"filename"`
	Persist  bool   `json:"persist"`
}

type phase int

const (
	phaseIdle phase = iota
	// A statement sequence exists but no statement is being stepped.
	phasePrepared
	// A statement sequence exists and one statement is being stepped.
	phaseStepping
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phasePrepared:
		return "prepared"
	case phaseStepping:
		return "stepping"
	}
	return "unknown"
}

type operation string

const (
	opPrepare  operation = "prepare"
	opContinue operation = "continue"
	opStepOver operation = "step_over"
	opStepIn   operation = "step_in"
	opStepOut  operation = "step_out"
)

// transitions lists the phases each execution operation may start from.
var transitions = map[operation]map[phase]bool{
	opPrepare:  {phaseIdle: true, phasePrepared: true, phaseStepping: true},
	opContinue: {phasePrepared: true, phaseStepping: true},
	opStepOver: {phasePrepared: true, phaseStepping: true},
	opStepIn:   {phasePrepared: true},
	opStepOut:  {phaseStepping: true},
}

// preparedState is the execution state of a session that has SQL to run.
type preparedState struct {
	stmts   *engine.Statements
	current *engine.Statement
}

// Session is one open database plus its execution state. All methods must
// be called with mu held. options is also read under the registry lock, so
// it is only written while holding both.
type Session struct {
	mu sync.Mutex

	id       string
	options  OpenOptions
	db       *engine.DB
	prepared *preparedState
	dropped  bool
}

func newSession(id string, options OpenOptions) *Session {
	return &Session{id: id, options: options}
}

func (s *Session) phase() phase {
	switch {
	case s.prepared == nil:
		return phaseIdle
	case s.prepared.current == nil:
		return phasePrepared
	default:
		return phaseStepping
	}
}

func (s *Session) check(op operation) error {
	if s.db == nil {
		return fmt.Errorf("%w: %s: database is not open", ErrInvalidState, op)
	}
	if p := s.phase(); !transitions[op][p] {
		return fmt.Errorf("%w: %s is not allowed while %s", ErrInvalidState, op, p)
	}
	return nil
}

// toIdle abandons any prepared SQL, finalizing the stepped statement.
func (s *Session) toIdle() {
	if s.prepared != nil && s.prepared.current != nil {
		s.prepared.current.Close()
	}
	s.prepared = nil
}

// closeDB returns the session to idle and closes its handle.
func (s *Session) closeDB() error {
	s.toIdle()
	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	return db.Close()
}

// reopen replaces the session's handle with a fresh one.
func (s *Session) reopen(ctx context.Context, store *storage.Manager) error {
	if err := s.closeDB(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	options := s.options
	if err := store.PrepareOpen(ctx, options.Persist); err != nil {
		if errors.Is(err, storage.ErrPoolCapacity) {
			return &BackendError{Op: OpPoolCapacity, Err: err}
		}
		return err
	}
	db, err := engine.Open(store.URI(options.Filename, options.Persist))
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *Session) prepare(ctx context.Context, store *storage.Manager, sql string, clearOnPrepare bool) error {
	if err := s.check(opPrepare); err != nil {
		return err
	}
	s.toIdle()
	if clearOnPrepare {
		if err := s.closeDB(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		if err := store.Delete(s.options.Filename, s.options.Persist); err != nil {
			return err
		}
		if err := s.reopen(ctx, store); err != nil {
			return err
		}
	}
	s.prepared = &preparedState{stmts: s.db.Prepare(sql)}
	return nil
}

func (s *Session) continueRun() ([]engine.StatementResult, error) {
	if err := s.check(opContinue); err != nil {
		return nil, err
	}
	// The run is consumed whether or not it succeeds.
	defer s.toIdle()

	var results []engine.StatementResult
	if current := s.prepared.current; current != nil {
		result, err := current.Run()
		s.prepared.current = nil
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	rest, err := s.prepared.stmts.RunToCompletion()
	if err != nil {
		return nil, err
	}
	results = append(results, rest...)
	return append(results, engine.Finish()), nil
}

func (s *Session) stepOver() (engine.StatementResult, error) {
	if err := s.check(opStepOver); err != nil {
		return engine.StatementResult{}, err
	}

	if current := s.prepared.current; current != nil {
		values, err := current.StepOne()
		if err != nil {
			current.Close()
			s.prepared.current = nil
			return engine.StatementResult{}, err
		}
		result := current.Pack(values)
		if values == nil {
			current.Close()
			s.prepared.current = nil
		}
		return result, nil
	}

	stmt, err := s.prepared.stmts.Next()
	if err != nil {
		return engine.StatementResult{}, err
	}
	if stmt == nil {
		return engine.Finish(), nil
	}
	return stmt.Run()
}

func (s *Session) stepIn() error {
	if err := s.check(opStepIn); err != nil {
		return err
	}
	stmt, err := s.prepared.stmts.Next()
	if err != nil {
		return err
	}
	if stmt == nil {
		return fmt.Errorf("%w: no statement left to step into", ErrInvalidState)
	}
	s.prepared.current = stmt
	return nil
}

func (s *Session) stepOut() (engine.StatementResult, error) {
	if err := s.check(opStepOut); err != nil {
		return engine.StatementResult{}, err
	}
	current := s.prepared.current
	s.prepared.current = nil
	return current.Run()
}

func (s *Session) loadDB(ctx context.Context, store *storage.Manager, data []byte) error {
	if err := s.closeDB(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	if err := store.Delete(s.options.Filename, s.options.Persist); err != nil {
		return &BackendError{Op: OpLoadDB, Err: err}
	}
	if err := store.Import(s.options.Filename, s.options.Persist, data); err != nil {
		return &BackendError{Op: OpLoadDB, Err: err}
	}
	return s.reopen(ctx, store)
}

func (s *Session) downloadDB(store *storage.Manager) (string, []byte, error) {
	data, err := store.Export(s.options.Filename, s.options.Persist)
	if err != nil {
		return "", nil, &BackendError{Op: OpDownloadDB, Err: err}
	}
	return s.options.Filename, data, nil
}
