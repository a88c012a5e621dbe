package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	StatusOk   = "ok"
	StatusFail = "fail"
)

// Event is one handled worker request.
type Event struct {
	ID             string `db:"id"`
	Command        string `db:"command"`
	SessionID      string `db:"session_id"`
	Timestamp      int64  `db:"timestamp"`
	Status         string `db:"status"`
	ErrorKind      string `db:"error_kind"`
	SQLFingerprint string `db:"sql_fingerprint"`
	DurationMicros int64  `db:"duration_us"`
}

// Logger records worker requests in a database.
type Logger struct {
	db *sqlx.DB
}

// NewLogger creates a new audit logger instance
func NewLogger(db *sqlx.DB) (*Logger, error) {
	if err := DBInit(db); err != nil {
		return nil, err
	}
	return &Logger{
		db: db,
	}, nil
}

// DBInit initializes the worker events table
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS worker_events (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		session_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		sql_fingerprint TEXT NOT NULL DEFAULT '',
		duration_us INTEGER NOT NULL DEFAULT 0
	)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_worker_events_timestamp ON worker_events(timestamp)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_worker_events_session_id ON worker_events(session_id)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_worker_events_command ON worker_events(command)`)
	return err
}

// sqlFingerprint hashes SQL text so runs of the same script can be
// correlated without storing it
func sqlFingerprint(sql string) string {
	if sql == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(hash[:])
}

func (l *Logger) insertEvent(event *Event) error {
	_, err := l.db.NamedExec(`
		INSERT INTO worker_events (
			id, command, session_id, timestamp, status,
			error_kind, sql_fingerprint, duration_us
		) VALUES (
			:id, :command, :session_id, :timestamp, :status,
			:error_kind, :sql_fingerprint, :duration_us
		)`, event)
	return err
}

// LogRequest records one handled request. errorKind is empty on success.
func (l *Logger) LogRequest(command, sessionID, sql, errorKind string, duration time.Duration) error {
	status := StatusOk
	if errorKind != "" {
		status = StatusFail
	}
	event := &Event{
		ID:             uuid.New().String(),
		Command:        command,
		SessionID:      sessionID,
		Timestamp:      time.Now().UTC().Unix(),
		Status:         status,
		ErrorKind:      errorKind,
		SQLFingerprint: sqlFingerprint(sql),
		DurationMicros: duration.Microseconds(),
	}
	return l.insertEvent(event)
}

// GetEventsBySession retrieves events for one session, newest first
func (l *Logger) GetEventsBySession(sessionID string, limit int) ([]Event, error) {
	var events []Event
	err := l.db.Select(&events,
		"SELECT * FROM worker_events WHERE session_id = $1 ORDER BY timestamp DESC, rowid DESC LIMIT $2",
		sessionID, limit)
	return events, err
}

// GetEventsByCommand retrieves events for one command, newest first
func (l *Logger) GetEventsByCommand(command string, limit int) ([]Event, error) {
	var events []Event
	err := l.db.Select(&events,
		"SELECT * FROM worker_events WHERE command = $1 ORDER BY timestamp DESC, rowid DESC LIMIT $2",
		command, limit)
	return events, err
}

// GetRecentEvents retrieves the most recent events
func (l *Logger) GetRecentEvents(limit int) ([]Event, error) {
	var events []Event
	err := l.db.Select(&events,
		"SELECT * FROM worker_events ORDER BY timestamp DESC, rowid DESC LIMIT $1",
		limit)
	return events, err
}

// DeleteOldEvents deletes events older than the specified duration
func (l *Logger) DeleteOldEvents(olderThan time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-olderThan).Unix()
	result, err := l.db.Exec("DELETE FROM worker_events WHERE timestamp < $1", threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
