// CLAUDE:SUMMARY SQLite-backed processing state: the orchestrator's log cursor and its attempt history.
// Package state holds the orchestrator's durable bookkeeping: the byte
// offset of the next IdentifierLog entry to process and a history of every
// processing attempt.
//
// The cursor only moves forward and only after the entry it points at has
// been persisted (or skipped/abandoned), which gives FIFO, exactly-once
// processing of every appended identifier.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Attempt statuses.
const (
	StatusStored    = "stored"    // entry written by this attempt
	StatusSkipped   = "skipped"   // entry already present
	StatusFailed    = "failed"    // no usable text; will be retried
	StatusAbandoned = "abandoned" // too many failures; cursor moved past it
)

// Attempt is one processing attempt for an identifier.
type Attempt struct {
	ID           string    `json:"id"`
	Identifier   string    `json:"identifier"`
	Status       string    `json:"status"`
	LogOffset    int64     `json:"log_offset"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	AttemptedAt  time.Time `json:"attempted_at"`
}

// DB wraps the state database.
type DB struct {
	db    *sql.DB
	newID func() string
	now   func() time.Time
}

// Open opens (creating if needed) the state database at path.
func Open(path string) (*DB, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return newDB(db), nil
}

func newDB(db *sql.DB) *DB {
	return &DB{
		db:    db,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
		now:   time.Now,
	}
}

// Close closes the database.
func (s *DB) Close() error { return s.db.Close() }

// Cursor returns the stored offset for the named cursor (0 if never set).
func (s *DB) Cursor(ctx context.Context, name string) (int64, error) {
	var off int64
	err := s.db.QueryRowContext(ctx,
		`SELECT log_offset FROM cursors WHERE name = ?`, name).Scan(&off)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("state: read cursor %s: %w", name, err)
	}
	return off, nil
}

// Advance moves the named cursor to offset. A cursor never moves backwards:
// an offset lower than the stored one is ignored.
func (s *DB) Advance(ctx context.Context, name string, offset int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cursors (name, log_offset, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			log_offset = excluded.log_offset,
			updated_at = excluded.updated_at
		WHERE excluded.log_offset > cursors.log_offset`,
		name, offset, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("state: advance cursor %s: %w", name, err)
	}
	return nil
}

// Record stores an attempt. ID and AttemptedAt are filled when empty.
func (s *DB) Record(ctx context.Context, a *Attempt) error {
	if a.ID == "" {
		a.ID = s.newID()
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, identifier, status, log_offset, error_message,
		duration_ms, attempted_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Identifier, a.Status, a.LogOffset, a.ErrorMessage,
		a.DurationMs, a.AttemptedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("state: record attempt %s: %w", a.Identifier, err)
	}
	return nil
}

// Failures counts failed attempts for the log entry at offset.
func (s *DB) Failures(ctx context.Context, identifier string, offset int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts
		WHERE identifier = ? AND log_offset = ? AND status = ?`,
		identifier, offset, StatusFailed).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("state: count failures %s: %w", identifier, err)
	}
	return n, nil
}

// Attempts returns attempts for an identifier, newest first. An empty
// identifier returns the most recent attempts across all identifiers.
func (s *DB) Attempts(ctx context.Context, identifier string, limit int) ([]*Attempt, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	const cols = `SELECT id, identifier, status, log_offset, error_message, duration_ms, attempted_at FROM attempts`
	if identifier == "" {
		rows, err = s.db.QueryContext(ctx, cols+` ORDER BY attempted_at DESC, id DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, cols+` WHERE identifier = ? ORDER BY attempted_at DESC, id DESC LIMIT ?`, identifier, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("state: list attempts: %w", err)
	}
	defer rows.Close()

	var out []*Attempt
	for rows.Next() {
		var a Attempt
		var at int64
		if err := rows.Scan(&a.ID, &a.Identifier, &a.Status, &a.LogOffset,
			&a.ErrorMessage, &a.DurationMs, &at); err != nil {
			return nil, fmt.Errorf("state: scan attempt: %w", err)
		}
		a.AttemptedAt = time.UnixMilli(at)
		out = append(out, &a)
	}
	return out, rows.Err()
}
