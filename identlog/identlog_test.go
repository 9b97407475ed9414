package identlog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func openLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "data", "new_coins.txt"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return l
}

func TestAppend_OnePerLine(t *testing.T) {
	// WHAT: Append writes one identifier per line, newline terminated.
	l := openLog(t)
	if err := l.Append([]string{"A", "B"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Append([]string{"C"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "A\nB\nC\n" {
		t.Errorf("content: %q", data)
	}
}

func TestAppend_RejectsNewlines(t *testing.T) {
	l := openLog(t)
	if err := l.Append([]string{"A\nB"}); err == nil {
		t.Fatal("expected error")
	}
	if err := l.Append([]string{""}); err == nil {
		t.Fatal("expected error for empty id")
	}
	if _, err := os.Stat(l.Path()); !os.IsNotExist(err) {
		t.Error("nothing should have been written")
	}
}

func TestNext_WalksInOrder(t *testing.T) {
	// WHAT: Next returns entries in append order with contiguous offsets.
	// WHY: the orchestrator cursor is a byte offset into this file.
	l := openLog(t)
	l.Append([]string{"A", "B", "C"})

	var got []string
	var off int64
	for {
		e, ok, err := l.Next(off)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		if e.Offset < off || e.Next <= e.Offset {
			t.Fatalf("bad offsets: %+v from %d", e, off)
		}
		got = append(got, e.ID)
		off = e.Next
	}
	if !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("got %v", got)
	}
}

func TestNext_SkipsBlankLinesAndPartialTail(t *testing.T) {
	l := openLog(t)
	if err := os.WriteFile(l.Path(), []byte("\n  \nA\r\n\nB\nPART"), 0o644); err != nil {
		t.Fatal(err)
	}
	ids, err := l.All()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"A", "B"}) {
		t.Errorf("got %v", ids)
	}

	// Completing the partial line makes it visible.
	f, _ := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString("IAL\n")
	f.Close()
	ids, _ = l.All()
	if !reflect.DeepEqual(ids, []string{"A", "B", "PARTIAL"}) {
		t.Errorf("got %v", ids)
	}
}

func TestNext_MissingLog(t *testing.T) {
	l := openLog(t)
	_, ok, err := l.Next(0)
	if err != nil || ok {
		t.Fatalf("got ok=%v err=%v", ok, err)
	}
	if _, _, err := l.Next(10); !errors.Is(err, ErrCursorAhead) {
		t.Fatalf("got %v", err)
	}
}

func TestNext_OffsetBeyondEnd(t *testing.T) {
	l := openLog(t)
	l.Append([]string{"A"})
	if _, _, err := l.Next(100); !errors.Is(err, ErrCursorAhead) {
		t.Fatalf("got %v", err)
	}
}

func TestLast(t *testing.T) {
	l := openLog(t)
	if _, ok, err := l.Last(); ok || err != nil {
		t.Fatalf("missing log: ok=%v err=%v", ok, err)
	}
	l.Append([]string{"A", "B"})
	id, ok, err := l.Last()
	if err != nil || !ok || id != "B" {
		t.Fatalf("got %q %v %v", id, ok, err)
	}
}

func TestAppend_ConcurrentWritersDoNotInterleave(t *testing.T) {
	// WHAT: concurrent appends produce whole lines only.
	// WHY: discovery restarts can overlap; the lock serialises appends.
	l := openLog(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			other, _ := Open(l.Path())
			batch := []string{"id" + string(rune('a'+i)) + "1", "id" + string(rune('a'+i)) + "2"}
			if err := other.Append(batch); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	ids, err := l.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 16 {
		t.Fatalf("got %d ids: %v", len(ids), ids)
	}
	for i := 0; i < len(ids); i += 2 {
		if ids[i][:3] != ids[i+1][:3] {
			t.Errorf("batch split: %v", ids)
			break
		}
	}
}

func TestAppend_ClosesTornLine(t *testing.T) {
	// WHAT: Appending after a line with no newline starts a fresh line and
	// the fragment is never read back as an identifier.
	// WHY: A crashed writer must not merge its fragment into the next id,
	// and the fragment itself is not a real identifier.
	l := openLog(t)
	if err := os.WriteFile(l.Path(), []byte("AAA\nABC"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.Append([]string{"XYZ"}); err != nil {
		t.Fatal(err)
	}
	ids, err := l.All()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"AAA", "XYZ"}) {
		t.Errorf("got %v", ids)
	}
	last, ok, err := l.Last()
	if err != nil || !ok || last != "XYZ" {
		t.Errorf("Last = %q, %v, %v", last, ok, err)
	}
}

func TestLast_SkipsClosedFragment(t *testing.T) {
	// WHAT: A marked fragment at the end of the log is not the last line.
	l := openLog(t)
	if err := os.WriteFile(l.Path(), []byte("AAA\nABC"+tornMark+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	last, ok, err := l.Last()
	if err != nil || !ok || last != "AAA" {
		t.Errorf("Last = %q, %v, %v", last, ok, err)
	}
}

func TestAppend_RejectsMarker(t *testing.T) {
	l := openLog(t)
	if err := l.Append([]string{"A" + tornMark}); err == nil {
		t.Error("expected error for identifier containing the torn marker")
	}
}
