// CLAUDE:SUMMARY Write-once per-identifier CSV store with atomic create-if-absent via hard link.
// Package store persists one CSV file per identifier.
//
// The existence of <dir>/<id>.csv is the single source of truth that an
// identifier has been processed. Files are created exactly once: the content
// is written to a hidden temp file, fsynced, then hard-linked to its final
// name. The link fails if the name already exists, which makes
// check-and-create one atomic step and never exposes a partial file.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/pairwatch/extract"
	"github.com/hazyhaar/pairwatch/fault"
)

var (
	// ErrExists is returned by Create when an entry already exists.
	ErrExists = errors.New("store: entry already exists")

	// ErrNotFound is returned by Read when no entry exists.
	ErrNotFound = errors.New("store: entry not found")

	// ErrInvalidID is returned for identifiers that are not a safe file name.
	ErrInvalidID = errors.New("store: invalid identifier")
)

const ext = ".csv"

// Entry is a stored record read back from disk.
type Entry struct {
	ID      string   `json:"id"`
	Columns []string `json:"columns"`
	Values  []string `json:"values"`
}

// Field returns the value of a column and whether the column exists.
func (e Entry) Field(col string) (string, bool) {
	for i, c := range e.Columns {
		if c == col && i < len(e.Values) {
			return e.Values[i], true
		}
	}
	return "", false
}

// Map returns the entry as a column → value map.
func (e Entry) Map() map[string]string {
	m := make(map[string]string, len(e.Columns))
	for i, c := range e.Columns {
		if i < len(e.Values) {
			m[c] = e.Values[i]
		}
	}
	return m
}

// Store is a directory of write-once CSV entries.
type Store struct {
	dir string
}

// New creates a Store rooted at dir. The directory is created if missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the entry path for id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+ext)
}

// ValidID reports whether id can be used as an entry name.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, "/\\\x00")
}

// Exists reports whether an entry exists for id.
func (s *Store) Exists(id string) (bool, error) {
	if !ValidID(id) {
		return false, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	_, err := os.Stat(s.Path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fault.TransientIO("store: stat "+id, err)
}

// Create writes the entry for id. It returns ErrExists, leaving the existing
// file untouched, if an entry is already present, including when a
// concurrent caller created it first.
func (s *Store) Create(id string, rec extract.Record) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	target := s.Path(id)

	tmp, err := os.CreateTemp(s.dir, "."+id+".*.tmp")
	if err != nil {
		return fault.TransientIO("store: create tmp", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	w.UseCRLF = true
	if err := w.WriteAll([][]string{rec.Columns(), rec.Values()}); err != nil {
		tmp.Close()
		return fault.TransientIO("store: write "+id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fault.TransientIO("store: sync "+id, err)
	}
	if err := tmp.Close(); err != nil {
		return fault.TransientIO("store: close "+id, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fault.TransientIO("store: chmod "+id, err)
	}

	if err := os.Link(tmpName, target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, id)
		}
		return fault.TransientIO("store: link "+id, err)
	}

	syncDir(s.dir)
	return nil
}

// Read loads the entry for id.
func (s *Store) Read(id string) (Entry, error) {
	if !ValidID(id) {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	f, err := os.Open(s.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Entry{}, fault.TransientIO("store: open "+id, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return Entry{}, fault.TransientIO("store: parse "+id, err)
	}
	if len(rows) == 0 {
		return Entry{}, fmt.Errorf("store: %s: empty entry", id)
	}

	e := Entry{ID: id, Columns: rows[0]}
	if len(rows) > 1 {
		e.Values = rows[1]
	}
	return e, nil
}

// syncDir fsyncs a directory so a new link survives a crash. Best effort:
// some platforms cannot open directories for sync.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
