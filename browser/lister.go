package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/pairwatch/collab"
	"github.com/hazyhaar/pairwatch/fault"
	"github.com/hazyhaar/pairwatch/schedule"
)

// Lister reads anchor elements from the list page. It attaches to an
// existing tab showing ListURL when one exists, so a human-driven Chrome can
// keep the page logged in and filtered.
type Lister struct {
	manager  *Manager
	listURL  string
	pageWait time.Duration

	mu    sync.Mutex
	page  *rod.Page
	owned *Tab
}

// NewLister creates a Lister for listURL. pageWait bounds how long it looks
// for an existing tab before opening one. Default: 30s.
func NewLister(m *Manager, listURL string, pageWait time.Duration) *Lister {
	if pageWait <= 0 {
		pageWait = 30 * time.Second
	}
	return &Lister{manager: m, listURL: listURL, pageWait: pageWait}
}

// ListElements returns the href of every element matching selector.
// Elements without an href attribute are reported with an empty Href.
func (l *Lister) ListElements(ctx context.Context, selector string) ([]collab.Element, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	page, err := l.attach(ctx)
	if err != nil {
		return nil, err
	}

	els, err := page.Context(ctx).Elements(selector)
	if err != nil {
		// The tab may have been closed under us; find it again next cycle.
		l.page = nil
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fault.TransientIO("browser: list elements", err)
	}

	out := make([]collab.Element, 0, len(els))
	for _, el := range els {
		href, err := el.Attribute("href")
		if err != nil || href == nil {
			out = append(out, collab.Element{})
			continue
		}
		out = append(out, collab.Element{Href: *href})
	}
	return out, nil
}

// tabCandidate is what attach knows about an open tab.
type tabCandidate struct {
	URL string
	// Managed is set for detail tabs opened through Manager.OpenPage.
	Managed bool
}

// chooseListTab picks the tab to use as the list page. It returns the index
// of the first unmanaged tab whose URL contains listURL, or else the first
// unmanaged tab with nav set. Managed tabs are never chosen; -1 means
// no tab is usable.
func chooseListTab(tabs []tabCandidate, listURL string) (idx int, nav bool) {
	first := -1
	for i, t := range tabs {
		if t.Managed {
			continue
		}
		if strings.Contains(t.URL, listURL) {
			return i, false
		}
		if first < 0 {
			first = i
		}
	}
	if first < 0 {
		return -1, false
	}
	return first, true
}

// attach returns the cached list tab or finds one. It waits up to pageWait
// for Chrome to have a tab it did not open for detail pages, prefers the one
// already showing listURL and otherwise navigates the first such tab there.
// With no usable tab it opens its own.
func (l *Lister) attach(ctx context.Context) (*rod.Page, error) {
	if l.page != nil {
		return l.page, nil
	}
	b, err := l.manager.Browser()
	if err != nil {
		return nil, err
	}
	log := l.manager.cfg.Logger

	deadline := time.Now().Add(l.pageWait)
	for {
		pages, err := b.Pages()
		if err != nil {
			return nil, fault.Unavailable("browser: list tabs", err)
		}
		tabs := make([]tabCandidate, len(pages))
		for i, p := range pages {
			own := l.owned != nil && p.TargetID == l.owned.Page.TargetID
			tabs[i].Managed = !own && l.manager.owns(p.TargetID)
			if info, err := p.Info(); err == nil {
				tabs[i].URL = info.URL
			}
		}

		if i, nav := chooseListTab(tabs, l.listURL); i >= 0 {
			p := pages[i]
			if !nav {
				log.Info("browser: attached to list tab", "url", tabs[i].URL)
				l.page = p
				return p, nil
			}
			log.Info("browser: navigating tab to list", "url", l.listURL)
			if err := navigate(ctx, p, l.listURL, l.manager.cfg.NavigateTimeout); err != nil {
				return nil, err
			}
			if err := p.Context(ctx).Timeout(l.manager.cfg.NavigateTimeout).WaitLoad(); err != nil {
				log.Warn("browser: wait load timeout", "url", l.listURL, "error", err)
			}
			l.page = p
			return p, nil
		}
		if time.Now().After(deadline) {
			break
		}
		if err := schedule.Sleep(ctx, time.Second); err != nil {
			return nil, err
		}
	}

	log.Info("browser: no tab found, opening one", "url", l.listURL)
	if l.owned != nil {
		l.owned.Close()
		l.owned = nil
	}
	p, err := l.manager.OpenPage(ctx, l.listURL)
	if err != nil {
		return nil, err
	}
	l.owned = p.(*Tab)
	l.page = l.owned.Page
	return l.page, nil
}

// Close closes the list tab only if it was opened by the Lister.
func (l *Lister) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.page = nil
	if l.owned == nil {
		return nil
	}
	err := l.owned.Close()
	l.owned = nil
	return err
}
