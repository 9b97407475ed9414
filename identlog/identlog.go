// CLAUDE:SUMMARY Append-only identifier log: locked durable appends, offset-based FIFO reads, last-line lookup.
// Package identlog implements the IdentifierLog: a UTF-8 text file holding
// one identifier per line, only ever appended to.
//
// Appends take an exclusive flock on "<path>.lock" for the write and fsync so
// several writer processes never interleave lines. Readers do not lock; they
// only consume complete lines, so a trailing partial line written
// concurrently is simply not visible yet.
package identlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/hazyhaar/pairwatch/fault"
)

// tornMark ends a line left unterminated by a crashed writer. The next
// Append closes such a line with tornMark before its own data, and readers
// skip every line carrying it.
const tornMark = "\x00"

// ErrCursorAhead is returned when a read offset lies beyond the end of the
// log, which can only happen if the file was truncated or replaced.
var ErrCursorAhead = errors.New("identlog: offset beyond end of log")

// Entry is one identifier read from the log.
type Entry struct {
	ID     string
	Offset int64 // byte offset of the line start
	Next   int64 // byte offset just past the line's newline
}

// Log is an append-only identifier file.
type Log struct {
	path string
	lock *flock.Flock
}

// Open prepares the log at path, creating parent directories. The file itself
// is created on first append.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("identlog: mkdir %s: %w", dir, err)
		}
	}
	return &Log{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Append writes ids, one per line, in a single write followed by fsync.
func (l *Log) Append(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if id == "" || strings.ContainsAny(id, "\r\n"+tornMark) {
			return fmt.Errorf("identlog: invalid identifier %q", id)
		}
	}

	if err := l.lock.Lock(); err != nil {
		return fault.TransientIO("identlog: lock", err)
	}
	defer l.lock.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fault.TransientIO("identlog: open", err)
	}

	// A torn line left by a crashed writer is closed off and marked so it
	// neither swallows the first new identifier nor is read as one.
	lead := ""
	if st, err := f.Stat(); err == nil && st.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, st.Size()-1); err == nil && last[0] != '\n' {
			lead = tornMark + "\n"
		}
	}

	if _, err := f.WriteString(lead + strings.Join(ids, "\n") + "\n"); err != nil {
		f.Close()
		return fault.TransientIO("identlog: write", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fault.TransientIO("identlog: sync", err)
	}
	if err := f.Close(); err != nil {
		return fault.TransientIO("identlog: close", err)
	}
	return nil
}

// Next returns the first complete non-empty line starting at or after
// offset. ok is false when no such line exists yet.
func (l *Log) Next(offset int64) (e Entry, ok bool, err error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if offset > 0 {
				return Entry{}, false, fmt.Errorf("%w: %d > 0 (log missing)", ErrCursorAhead, offset)
			}
			return Entry{}, false, nil
		}
		return Entry{}, false, fault.TransientIO("identlog: open", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Entry{}, false, fault.TransientIO("identlog: stat", err)
	}
	if offset > st.Size() {
		return Entry{}, false, fmt.Errorf("%w: %d > %d", ErrCursorAhead, offset, st.Size())
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return Entry{}, false, fault.TransientIO("identlog: seek", err)
	}

	r := bufio.NewReader(f)
	pos := offset
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Trailing bytes without a newline are an append in progress.
				return Entry{}, false, nil
			}
			return Entry{}, false, fault.TransientIO("identlog: read", err)
		}
		start := pos
		pos += int64(len(line))
		if id := strings.TrimSpace(line); id != "" && !strings.HasSuffix(id, tornMark) {
			return Entry{ID: id, Offset: start, Next: pos}, true, nil
		}
	}
}

// Last returns the last non-empty line of the log. ok is false when the log
// is missing or holds no identifiers.
func (l *Log) Last() (id string, ok bool, err error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fault.TransientIO("identlog: read", err)
	}
	lines := strings.Split(string(data), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" && !strings.HasSuffix(s, tornMark) {
			return s, true, nil
		}
	}
	return "", false, nil
}

// All returns every identifier in log order, duplicates included.
func (l *Log) All() ([]string, error) {
	var ids []string
	var off int64
	for {
		e, ok, err := l.Next(off)
		if err != nil {
			return nil, err
		}
		if !ok {
			return ids, nil
		}
		ids = append(ids, e.ID)
		off = e.Next
	}
}
