package engine

import (
	"errors"
	"fmt"

	"github.com/ncruces/go-sqlite3"
)

// Op names the native SQLite call that reported a failure.
type Op string

const (
	OpOpen    Op = "open"
	OpPrepare Op = "prepare"
	OpStep    Op = "step"
)

var (
	ErrInvalidText       = errors.New("the text is not a utf-8 string")
	ErrInvalidColumnName = errors.New("the column name is not a utf-8 string")
)

// Error is a failure reported by SQLite's own error reporting. Code is the
// extended result code.
type Error struct {
	Op      Op
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sqlite %s failed (code %d): %s", e.Op, e.Code, e.Message)
}

// UnsupportedColumnTypeError is returned when SQLite reports a column
// datatype outside the five fundamental storage classes.
type UnsupportedColumnTypeError struct {
	Type int
}

func (e *UnsupportedColumnTypeError) Error() string {
	return fmt.Sprintf("the column type is not supported: %d", e.Type)
}

func nativeError(op Op, err error) error {
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		return &Error{Op: op, Code: int(serr.ExtendedCode()), Message: serr.Error()}
	}
	return &Error{Op: op, Code: int(sqlite3.ERROR), Message: err.Error()}
}
