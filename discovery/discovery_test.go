package discovery

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/hazyhaar/pairwatch/collab"
	"github.com/hazyhaar/pairwatch/fault"
	"github.com/hazyhaar/pairwatch/identlog"
	"github.com/hazyhaar/pairwatch/schedule"
)

// scriptLister returns one scripted element list per call, then repeats the last.
type scriptLister struct {
	cycles [][]string
	calls  int
	err    error
}

func (s *scriptLister) ListElements(_ context.Context, _ string) ([]collab.Element, error) {
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls
	if i >= len(s.cycles) {
		i = len(s.cycles) - 1
	}
	s.calls++
	var out []collab.Element
	for _, h := range s.cycles[i] {
		out = append(out, collab.Element{Href: h})
	}
	return out, nil
}

type failingAppender struct {
	fail  bool
	calls [][]string
}

func (f *failingAppender) Append(ids []string) error {
	f.calls = append(f.calls, append([]string(nil), ids...))
	if f.fail {
		return fault.TransientIO("identlog: write", errors.New("disk full"))
	}
	return nil
}

func newLog(t *testing.T) *identlog.Log {
	t.Helper()
	l, err := identlog.Open(filepath.Join(t.TempDir(), "new_coins.txt"))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestNormalize(t *testing.T) {
	cases := []struct{ href, want string }{
		{"/sol/token/ABC123", "ABC123"},
		{"  /sol/token/XYZ ", "XYZ"},
		{"/eth/token/ABC", "/eth/token/ABC"},
		{"ABC", "ABC"},
		{"/sol/token/", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.href, DefaultPrefix); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.href, got, tc.want)
		}
	}
}

func TestCycle_SameHrefTwiceLoggedOnce(t *testing.T) {
	// WHAT: two cycles seeing the same href append it once.
	// WHY: the seen set dedups across cycles within one run.
	ctx := context.Background()
	log := newLog(t)
	lister := &scriptLister{cycles: [][]string{{"/sol/token/XYZ"}, {"/sol/token/XYZ"}}}
	e := New(Config{Selector: "a"}, lister, log, nil)

	out, err := e.Cycle(ctx)
	if err != nil || out != schedule.Progress {
		t.Fatalf("cycle 1: %v %v", out, err)
	}
	out, err = e.Cycle(ctx)
	if err != nil || out != schedule.Idle {
		t.Fatalf("cycle 2: %v %v", out, err)
	}

	ids, err := log.All()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"XYZ"}) {
		t.Errorf("log: %v", ids)
	}
}

func TestCycle_DedupWithinCycle(t *testing.T) {
	// WHAT: an id listed several times in one cycle is appended once, in
	// first-seen order.
	log := newLog(t)
	lister := &scriptLister{cycles: [][]string{{"/sol/token/B", "/sol/token/A", "/sol/token/B", "", "/sol/token/A"}}}
	e := New(Config{Selector: "a"}, lister, log, nil)

	if _, err := e.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	ids, _ := log.All()
	if !reflect.DeepEqual(ids, []string{"B", "A"}) {
		t.Errorf("log: %v", ids)
	}
}

func TestCycle_SeenSetIsUnionOfCycles(t *testing.T) {
	// WHAT: after N cycles the seen set equals the union of normalized ids.
	ctx := context.Background()
	cycles := [][]string{
		{"/sol/token/A", "/sol/token/B"},
		{"/sol/token/B", "/sol/token/C"},
		{},
		{"raw-id", "/sol/token/A"},
	}
	lister := &scriptLister{cycles: cycles}
	e := New(Config{Selector: "a"}, lister, newLog(t), nil)

	union := map[string]bool{}
	for i, c := range cycles {
		if _, err := e.Cycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		for _, h := range c {
			union[Normalize(h, DefaultPrefix)] = true
		}
		var want []string
		for id := range union {
			want = append(want, id)
		}
		sort.Strings(want)
		if got := e.Seen(); !reflect.DeepEqual(got, want) {
			t.Errorf("after cycle %d: seen %v, want %v", i+1, got, want)
		}
	}
}

func TestCycle_EmptyListIsIdle(t *testing.T) {
	e := New(Config{Selector: "a"}, &scriptLister{cycles: [][]string{{}}}, newLog(t), nil)
	out, err := e.Cycle(context.Background())
	if err != nil || out != schedule.Idle {
		t.Fatalf("got %v %v", out, err)
	}
}

func TestCycle_AppendFailureRetriedNextCycle(t *testing.T) {
	// WHAT: identifiers whose append failed are offered again next cycle.
	// WHY: losing them silently would break the exactly-once pipeline.
	ctx := context.Background()
	app := &failingAppender{fail: true}
	lister := &scriptLister{cycles: [][]string{{"/sol/token/A"}}}
	e := New(Config{Selector: "a"}, lister, app, nil)

	out, err := e.Cycle(ctx)
	if err != nil || out != schedule.Failed {
		t.Fatalf("cycle 1: %v %v", out, err)
	}
	if len(e.Seen()) != 0 {
		t.Errorf("seen set kept failed ids: %v", e.Seen())
	}

	app.fail = false
	out, err = e.Cycle(ctx)
	if err != nil || out != schedule.Progress {
		t.Fatalf("cycle 2: %v %v", out, err)
	}
	if len(app.calls) != 2 || !reflect.DeepEqual(app.calls[1], []string{"A"}) {
		t.Errorf("append calls: %v", app.calls)
	}
}

func TestRun_CollaboratorLossEndsLoop(t *testing.T) {
	lister := &scriptLister{err: fault.Unavailable("browser: list", errors.New("websocket closed"))}
	e := New(Config{Selector: "a"}, lister, newLog(t), nil)
	if err := e.Run(context.Background()); !errors.Is(err, fault.ErrCollaboratorUnavailable) {
		t.Fatalf("got %v", err)
	}
}
