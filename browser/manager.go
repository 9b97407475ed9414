// CLAUDE:SUMMARY Chrome lifecycle for the pipeline: connect to a remote-debugging Chrome or launch one, hand out pages.
// Package browser implements the collab capabilities on top of Chrome,
// driven through the DevTools protocol with Rod.
//
// Either an already running Chrome is used (Config.Remote: a ws:// URL, a
// host:port or a bare remote-debugging port) or a local one is launched.
// Connection failures are reported as fault.ErrCollaboratorUnavailable.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/pairwatch/fault"
)

// Config configures the browser manager.
type Config struct {
	// Remote is the remote-debugging endpoint of an external Chrome.
	// Empty = launch a local Chrome via launcher.
	Remote string

	// Bin is the Chrome executable for local launches. Empty = auto-detect.
	Bin string

	// UserDataDir isolates the launched profile. Empty = launcher default.
	UserDataDir string

	// Headless applies to local launches only.
	Headless bool

	// Stealth creates pages through go-rod/stealth.
	Stealth bool

	// ResourceBlocking lists resource types to block on detail pages
	// (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// PopupSelector matches the close button of the page popup.
	PopupSelector string

	// NavigateTimeout bounds navigation and load waits. Default: 30s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Rod browser connection.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool

	// opened holds the targets created by OpenPage that are still open.
	opened map[proto.TargetTargetID]struct{}
}

// NewManager creates a Manager. Call Start to connect.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, opened: make(map[proto.TargetTargetID]struct{})}
}

// Start connects to (or launches) Chrome.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	b, err := m.connect(ctx)
	if err != nil {
		return err
	}
	m.browser = b
	return nil
}

// Browser returns the connected browser or a collaborator-unavailable error.
func (m *Manager) Browser() (*rod.Browser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed || m.browser == nil {
		return nil, fault.Unavailable("browser", fmt.Errorf("not connected"))
	}
	return m.browser, nil
}

// Close disconnects from Chrome and stops a locally launched instance.
// A remote Chrome is left running.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true

	var err error
	if m.browser != nil {
		if m.lnch != nil {
			err = m.browser.Close()
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return err
}

func (m *Manager) track(id proto.TargetTargetID) {
	m.mu.Lock()
	m.opened[id] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) untrack(id proto.TargetTargetID) {
	m.mu.Lock()
	delete(m.opened, id)
	m.mu.Unlock()
}

// owns reports whether id is a tab opened through OpenPage.
func (m *Manager) owns(id proto.TargetTargetID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.opened[id]
	return ok
}

func (m *Manager) connect(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.Remote != "" {
		u, err := launcher.ResolveURL(m.cfg.Remote)
		if err != nil {
			return nil, fault.Unavailable("browser: resolve "+m.cfg.Remote, err)
		}
		wsURL = u
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(m.cfg.Headless)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.UserDataDir != "" {
			l = l.UserDataDir(m.cfg.UserDataDir)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fault.Unavailable("browser: launch", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headless", m.cfg.Headless)
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if m.lnch != nil {
			m.lnch.Cleanup()
			m.lnch = nil
		}
		return nil, fault.Unavailable("browser: connect", err)
	}
	return b, nil
}
