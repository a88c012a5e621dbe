// Package types defines the JSON messages exchanged between a worker host
// and its clients.
package types

import (
	"errors"
	"fmt"

	"github.com/tomyedwab/sqlight/engine"
	"github.com/tomyedwab/sqlight/storage"
	"github.com/tomyedwab/sqlight/worker"
)

// Command names the operation a request asks for. Responses echo the
// command of the request they answer.
type Command string

const (
	CommandReady      Command = "ready"
	CommandOpen       Command = "open"
	CommandPrepare    Command = "prepare"
	CommandContinue   Command = "continue"
	CommandStepOver   Command = "step_over"
	CommandStepIn     Command = "step_in"
	CommandStepOut    Command = "step_out"
	CommandLoadDB     Command = "load_db"
	CommandDownloadDB Command = "download_db"
	CommandClose      Command = "close"
)

// --- JSON structures for worker communication ---

// Request is sent by a client. Which fields are used depends on Command.
type Request struct {
	Command        Command `json:"command"`
	ID             string  `json:"id,omitempty"`
	Filename       string  `json:"filename,omitempty"`
	Persist        bool    `json:"persist,omitempty"`
	SQL            string  `json:"sql,omitempty"`
	ClearOnPrepare bool    `json:"clear_on_prepare,omitempty"`
	Data           []byte  `json:"data,omitempty"` // base64 in JSON
}

// Response answers one Request. Exactly one of the payload fields or Error
// is set, except for commands that return nothing.
type Response struct {
	Command  Command                  `json:"command"`
	ID       string                   `json:"id,omitempty"`
	Result   *engine.StatementResult  `json:"result,omitempty"`
	Results  []engine.StatementResult `json:"results,omitempty"`
	Filename string                   `json:"filename,omitempty"`
	Data     []byte                   `json:"data,omitempty"`
	Error    *ErrorPayload            `json:"error,omitempty"`
}

// ErrorKind classifies a failure on the wire.
type ErrorKind string

const (
	KindOpenDB                ErrorKind = "open_db"
	KindPrepareFailed         ErrorKind = "prepare_failed"
	KindStepFailed            ErrorKind = "step_failed"
	KindInvalidText           ErrorKind = "invalid_text"
	KindInvalidColumnName     ErrorKind = "invalid_column_name"
	KindUnsupportedColumnType ErrorKind = "unsupported_column_type"
	KindInvalidState          ErrorKind = "invalid_state"
	KindNotFound              ErrorKind = "not_found"
	KindLoadDB                ErrorKind = "load_db"
	KindDownloadDB            ErrorKind = "download_db"
	KindPoolCapacity          ErrorKind = "pool_capacity"
	KindBackendInitializing   ErrorKind = "backend_initializing"
	KindBackendOpened         ErrorKind = "backend_opened"
	KindUnexpected            ErrorKind = "unexpected"
	KindBadRequest            ErrorKind = "bad_request"
)

// ErrBadRequest is returned for messages that cannot be decoded or name an
// unknown command.
var ErrBadRequest = errors.New("bad request")

// ErrorPayload is the wire form of an error. Code carries the SQLite
// extended result code for engine failures and the type code for
// unsupported column types.
type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Code    int       `json:"code,omitempty"`
	Message string    `json:"message"`
}

// FromError classifies err for the wire.
func FromError(err error) *ErrorPayload {
	if err == nil {
		return nil
	}

	var backendErr *worker.BackendError
	var engineErr *engine.Error
	var typeErr *engine.UnsupportedColumnTypeError
	switch {
	case errors.As(err, &backendErr):
		kind := KindUnexpected
		switch backendErr.Op {
		case worker.OpLoadDB:
			kind = KindLoadDB
		case worker.OpDownloadDB:
			kind = KindDownloadDB
		case worker.OpPoolCapacity:
			kind = KindPoolCapacity
		}
		return &ErrorPayload{Kind: kind, Message: backendErr.Err.Error()}
	case errors.As(err, &engineErr):
		kind := KindUnexpected
		switch engineErr.Op {
		case engine.OpOpen:
			kind = KindOpenDB
		case engine.OpPrepare:
			kind = KindPrepareFailed
		case engine.OpStep:
			kind = KindStepFailed
		}
		return &ErrorPayload{Kind: kind, Code: engineErr.Code, Message: engineErr.Message}
	case errors.As(err, &typeErr):
		return &ErrorPayload{Kind: KindUnsupportedColumnType, Code: typeErr.Type, Message: err.Error()}
	}

	for kind, sentinel := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return &ErrorPayload{Kind: kind, Message: err.Error()}
		}
	}
	if errors.Is(err, storage.ErrPoolCapacity) {
		return &ErrorPayload{Kind: KindPoolCapacity, Message: err.Error()}
	}
	return &ErrorPayload{Kind: KindUnexpected, Message: err.Error()}
}

// Err converts the payload back into an error on the client side.
func (p *ErrorPayload) Err() error {
	if p == nil {
		return nil
	}
	return &RemoteError{Kind: p.Kind, Code: p.Code, Message: p.Message}
}

// sentinelKinds maps kinds without payload to the sentinel they stand for.
// Persistent backend use before installation is reported as unexpected.
var sentinelKinds = map[ErrorKind]error{
	KindInvalidText:         engine.ErrInvalidText,
	KindInvalidColumnName:   engine.ErrInvalidColumnName,
	KindInvalidState:        worker.ErrInvalidState,
	KindNotFound:            worker.ErrNotFound,
	KindBackendInitializing: storage.ErrBackendInitializing,
	KindBackendOpened:       storage.ErrBackendOpened,
	KindBadRequest:          ErrBadRequest,
}

// RemoteError is an error reported by a worker host. It matches the
// sentinel errors of its kind with errors.Is.
type RemoteError struct {
	Kind    ErrorKind
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RemoteError) Is(target error) bool {
	sentinel, ok := sentinelKinds[e.Kind]
	return ok && sentinel == target
}
