package browser

import (
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/pairwatch/fault"
)

func TestShouldBlock(t *testing.T) {
	// WHAT: CDP resource types map to the plural config names.
	// WHY: A config listing "images" must block requests typed "Image".
	set := map[string]bool{"images": true, "fonts": true}
	cases := map[string]bool{
		"Image":      true,
		"Font":       true,
		"Stylesheet": false,
		"Media":      false,
		"Document":   false,
	}
	for typ, want := range cases {
		if got := shouldBlock(set, typ); got != want {
			t.Errorf("shouldBlock(%q) = %v, want %v", typ, got, want)
		}
	}
}

func TestShouldBlock_RawType(t *testing.T) {
	// WHAT: Types without a plural alias match on their lowercase name.
	// WHY: Users can block e.g. "xhr" directly.
	set := map[string]bool{"xhr": true}
	if !shouldBlock(set, "XHR") {
		t.Error("xhr should be blocked")
	}
}

func TestManager_BrowserBeforeStart(t *testing.T) {
	// WHAT: Browser() before Start is a collaborator-unavailable error.
	// WHY: The loops treat that error as fatal instead of retrying forever.
	m := NewManager(Config{})
	_, err := m.Browser()
	if !errors.Is(err, fault.ErrCollaboratorUnavailable) {
		t.Fatalf("err = %v, want ErrCollaboratorUnavailable", err)
	}
	if !fault.IsFatal(err) {
		t.Error("expected fatal")
	}
}

func TestManager_Defaults(t *testing.T) {
	m := NewManager(Config{})
	if m.cfg.NavigateTimeout != 30*time.Second {
		t.Errorf("NavigateTimeout = %v", m.cfg.NavigateTimeout)
	}
	if m.cfg.Logger == nil {
		t.Error("nil logger")
	}
}

func TestManager_StartAfterClose(t *testing.T) {
	m := NewManager(Config{})
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(t.Context()); err == nil {
		t.Error("expected error starting a closed manager")
	}
}

func TestNewLister_DefaultWait(t *testing.T) {
	l := NewLister(NewManager(Config{}), "https://example.com/list", 0)
	if l.pageWait != 30*time.Second {
		t.Errorf("pageWait = %v", l.pageWait)
	}
}

func TestChooseListTab(t *testing.T) {
	// WHAT: The list tab is never one of the detail tabs opened by the manager.
	// WHY: Navigating a detail tab away would make its region read the list page.
	const list = "https://example.com/new-pair"
	cases := []struct {
		name    string
		tabs    []tabCandidate
		wantIdx int
		wantNav bool
	}{
		{"none", nil, -1, false},
		{"match", []tabCandidate{{URL: "about:blank"}, {URL: list + "?chain=sol"}}, 1, false},
		{"first unmanaged", []tabCandidate{{URL: "https://example.com/token/A", Managed: true}, {URL: "about:blank"}}, 1, true},
		{"only managed", []tabCandidate{{URL: "https://example.com/token/A", Managed: true}}, -1, false},
		{"managed match skipped", []tabCandidate{{URL: list, Managed: true}, {URL: "about:blank"}}, 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			idx, nav := chooseListTab(tc.tabs, list)
			if idx != tc.wantIdx || nav != tc.wantNav {
				t.Errorf("chooseListTab = (%d, %v), want (%d, %v)", idx, nav, tc.wantIdx, tc.wantNav)
			}
		})
	}
}

func TestManager_TracksOpenedTabs(t *testing.T) {
	// WHAT: Targets registered by OpenPage are reported until closed.
	// WHY: The lister relies on this to leave detail tabs alone.
	m := NewManager(Config{})
	m.track("T1")
	if !m.owns("T1") || m.owns("T2") {
		t.Fatal("owns mismatch after track")
	}
	m.untrack("T1")
	if m.owns("T1") {
		t.Error("T1 still owned after untrack")
	}
}
