package engine

import (
	"strings"

	"github.com/ncruces/go-sqlite3"
)

// Statements lazily compiles the statements of a multi-statement SQL text,
// one at a time, in source order. It is forward-only: once exhausted or
// failed it stays that way, and a new Statements must be created from the
// original text to run it again.
type Statements struct {
	conn   *sqlite3.Conn
	sql    string
	offset int
	done   bool
	err    error
}

// Next compiles the statement starting at the current tail. It returns
// (nil, nil) when no statement text remains. A compile failure halts the
// sequence; the same error is returned by every later call.
func (s *Statements) Next() (*Statement, error) {
	for {
		if s.err != nil {
			return nil, s.err
		}
		if s.done {
			return nil, nil
		}
		tail := s.sql[s.offset:]
		if strings.TrimSpace(tail) == "" {
			s.done = true
			return nil, nil
		}

		stmt, rest, err := s.conn.Prepare(tail)
		if err != nil {
			s.err = nativeError(OpPrepare, err)
			return nil, s.err
		}
		start := s.offset
		s.offset = len(s.sql) - len(rest)

		if stmt == nil {
			// Only comments or empty statements were consumed.
			if s.offset == start {
				s.done = true
				return nil, nil
			}
			continue
		}
		return newStatement(stmt, tail[:s.offset-start], Span{start, s.offset}), nil
	}
}

// RunToCompletion drains the remaining statements, running each to
// completion. It stops at the first compile or step failure and returns the
// outcomes gathered before it along with the error. The Finish marker is not
// appended.
func (s *Statements) RunToCompletion() ([]StatementResult, error) {
	var results []StatementResult
	for {
		stmt, err := s.Next()
		if err != nil {
			return results, err
		}
		if stmt == nil {
			return results, nil
		}
		result, err := stmt.Run()
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
}
