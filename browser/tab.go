package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/pairwatch/collab"
	"github.com/hazyhaar/pairwatch/extract"
	"github.com/hazyhaar/pairwatch/fault"
	"github.com/hazyhaar/pairwatch/schedule"
)

var (
	_ collab.Opener = (*Manager)(nil)
	_ collab.Page   = (*Tab)(nil)
	_ collab.Lister = (*Lister)(nil)
)

// Tab is an opened detail page.
type Tab struct {
	Page    *rod.Page
	PageURL string
	router  *rod.HijackRouter
	manager *Manager
}

// OpenPage creates a new tab, navigates to pageURL and waits for the load
// event. It implements collab.Opener.
func (m *Manager) OpenPage(ctx context.Context, pageURL string) (collab.Page, error) {
	b, err := m.Browser()
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fault.Unavailable("browser: create tab", err)
	}

	m.track(page.TargetID)
	t := &Tab{Page: page, PageURL: pageURL, manager: m}
	if len(m.cfg.ResourceBlocking) > 0 {
		t.router = applyResourceBlocking(page, m.cfg.ResourceBlocking)
	}

	if err := navigate(ctx, page, pageURL, m.cfg.NavigateTimeout); err != nil {
		t.Close()
		return nil, err
	}
	if err := page.Context(ctx).Timeout(m.cfg.NavigateTimeout).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return t, nil
}

// Region returns the text of the first element matching selector, or of the
// whole body when it is absent and fallbackWhole is set.
func (t *Tab) Region(ctx context.Context, selector string, fallbackWhole bool) (collab.Region, error) {
	doc, err := t.Page.Context(ctx).HTML()
	if err != nil {
		return collab.Region{}, fault.TransientIO("browser: read DOM", err)
	}
	res, err := extract.Region(doc, selector, fallbackWhole)
	if err != nil {
		return collab.Region{}, err
	}
	return collab.Region{Text: res.Text, HTML: res.HTML, Fallback: res.Fallback}, nil
}

// WaitPopupDismissed polls for the popup close button and clicks it. It
// returns true once a clicked popup is gone, false when timeout elapses
// first (including when no popup ever shows up). Without a configured
// selector there is nothing to dismiss and it returns true.
func (t *Tab) WaitPopupDismissed(ctx context.Context, timeout time.Duration) bool {
	sel := t.manager.cfg.PopupSelector
	if sel == "" {
		return true
	}
	log := t.manager.cfg.Logger

	deadline := time.Now().Add(timeout)
	clicked := false
	for {
		has, el, err := t.Page.Context(ctx).Has(sel)
		switch {
		case err != nil:
			log.Debug("browser: popup lookup", "error", err)
		case has:
			if err := el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
				log.Debug("browser: popup click", "error", err)
			} else if !clicked {
				clicked = true
				log.Info("browser: clicked popup close button", "url", t.PageURL)
			}
		case clicked:
			return true
		}

		if time.Now().After(deadline) {
			log.Warn("browser: popup not dismissed", "url", t.PageURL, "timeout", timeout)
			return false
		}
		if schedule.Sleep(ctx, time.Second) != nil {
			return false
		}
	}
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.router != nil {
		t.router.Stop()
		t.router = nil
	}
	if t.Page != nil {
		t.manager.untrack(t.Page.TargetID)
		return t.Page.Close()
	}
	return nil
}

func navigate(ctx context.Context, page *rod.Page, pageURL string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if navCtx.Err() != nil {
			return fmt.Errorf("browser: navigate %s: %w: %w", pageURL, fault.ErrTimeout, err)
		}
		return fault.TransientIO("browser: navigate "+pageURL, err)
	}
	return nil
}
