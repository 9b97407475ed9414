package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cursors (
	name       TEXT PRIMARY KEY,
	log_offset INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS attempts (
	id            TEXT PRIMARY KEY,
	identifier    TEXT NOT NULL,
	status        TEXT NOT NULL,
	log_offset    INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	attempted_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_identifier ON attempts(identifier, attempted_at);
`

var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(10000)",
	"synchronous(FULL)",
}

// openDB opens an SQLite database with WAL, a busy timeout and
// synchronous=FULL (cursor advances must survive power loss), then applies
// the schema. File databases get the pragmas through the DSN so that every
// pooled connection carries them.
func openDB(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("state: mkdir: %w", err)
		}
		dsn = path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("state: open: %w", err)
	}

	if path == ":memory:" {
		for _, p := range pragmas {
			name, val, _ := strings.Cut(strings.TrimSuffix(p, ")"), "(")
			stmt := "PRAGMA " + name + " = " + val
			if _, err := db.Exec(stmt); err != nil {
				db.Close()
				return nil, fmt.Errorf("state: %s: %w", stmt, err)
			}
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ping: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory state database for testing. It pins the
// pool to one connection (each ":memory:" connection is a separate database)
// and closes it on test cleanup.
func OpenMemory(t testing.TB) *DB {
	t.Helper()
	db, err := openDB(":memory:")
	if err != nil {
		t.Fatalf("state.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	s := newDB(db)
	t.Cleanup(func() { s.Close() })
	return s
}
