package engine

import (
	"github.com/ncruces/go-sqlite3"
)

// Statement is one compiled statement taken from a larger SQL text. It is
// not safe for concurrent use.
type Statement struct {
	stmt    *sqlite3.Stmt
	sql     string
	span    Span
	done    bool
	columns []string
}

func newStatement(stmt *sqlite3.Stmt, sql string, span Span) *Statement {
	return &Statement{stmt: stmt, sql: sql, span: span}
}

// SQL returns the text SQLite consumed when compiling the statement,
// including any leading whitespace or comments.
func (s *Statement) SQL() string { return s.sql }

// Span returns the statement's byte range in the original text.
func (s *Statement) Span() Span { return s.span }

// Done reports whether stepping has signalled exhaustion.
func (s *Statement) Done() bool { return s.done }

// step advances the native statement. It returns false once SQLite reports
// that there are no more rows, and marks the statement done.
func (s *Statement) step() (bool, error) {
	if s.stmt.Step() {
		return true, nil
	}
	if err := s.stmt.Err(); err != nil {
		return false, nativeError(OpStep, err)
	}
	s.done = true
	return false, nil
}

// StepOne advances exactly one row and returns it as a single-row Values.
// It returns nil once the statement is exhausted. Calling it after Done
// returns true is a caller error.
func (s *Statement) StepOne() (*Values, error) {
	ok, err := s.step()
	if err != nil || !ok {
		return nil, err
	}
	if s.columns == nil {
		if s.columns, err = columnNames(s.stmt); err != nil {
			return nil, err
		}
	}
	row, err := decodeRow(s.stmt)
	if err != nil {
		return nil, err
	}
	return &Values{Columns: s.columns, Rows: [][]Value{row}}, nil
}

// StepAll drains the statement, collecting every row under one header. It
// returns nil if the statement produced no rows.
func (s *Statement) StepAll() (*Values, error) {
	values, err := s.StepOne()
	if err != nil || values == nil {
		return nil, err
	}
	for {
		next, err := s.StepOne()
		if err != nil {
			return nil, err
		}
		if next == nil {
			return values, nil
		}
		values.Rows = append(values.Rows, next.Rows...)
	}
}

// Pack wraps values into a Step result carrying this statement's
// provenance.
func (s *Statement) Pack(values *Values) StatementResult {
	return StatementResult{Step: &Table{
		SQL:      s.sql,
		Position: s.span,
		Done:     s.done,
		Values:   values,
	}}
}

// Run drains the statement, packs its outcome and releases it.
func (s *Statement) Run() (StatementResult, error) {
	defer s.Close()
	values, err := s.StepAll()
	if err != nil {
		return StatementResult{}, err
	}
	return s.Pack(values), nil
}

// Close finalizes the native statement. It is safe to call more than once.
func (s *Statement) Close() error {
	if s.stmt == nil {
		return nil
	}
	stmt := s.stmt
	s.stmt = nil
	return stmt.Close()
}
