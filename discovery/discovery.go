// CLAUDE:SUMMARY Discovery loop: polls the rendered pair list, dedups against a run-scoped seen set, appends new identifiers to the log.
// Package discovery watches the rendered list of new pairs and appends every
// identifier it has not seen during this run to the IdentifierLog.
package discovery

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/pairwatch/collab"
	"github.com/hazyhaar/pairwatch/schedule"
)

// DefaultPrefix is stripped from element hrefs to obtain identifiers.
const DefaultPrefix = "/sol/token/"

// Appender is the durable sink for newly discovered identifiers.
type Appender interface {
	Append(ids []string) error
}

// Config configures an Engine.
type Config struct {
	// Selector matches the list entries. Required.
	Selector string
	// Prefix is stripped from hrefs. Default: DefaultPrefix.
	Prefix string
	// Interval between cycles. Default: 5s.
	Interval time.Duration
	// Multiplier and MaxInterval grow the wait on repeated empty/failed
	// cycles. Multiplier <= 1 keeps the cadence fixed.
	Multiplier  float64
	MaxInterval time.Duration
}

func (c *Config) defaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
}

// Engine is the discovery loop. Its SeenSet lives for the Engine's lifetime
// only; a restart starts from an empty set.
type Engine struct {
	cfg    Config
	lister collab.Lister
	log    Appender
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates an Engine.
func New(cfg Config, lister collab.Lister, log Appender, logger *slog.Logger) *Engine {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		lister: lister,
		log:    log,
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// Normalize turns an element href into an identifier: surrounding whitespace
// is trimmed and prefix is removed when present. Hrefs without the prefix
// are kept as they are.
func Normalize(href, prefix string) string {
	href = strings.TrimSpace(href)
	if prefix != "" && strings.HasPrefix(href, prefix) {
		return href[len(prefix):]
	}
	return href
}

// Run polls until ctx is cancelled. It returns a non-nil error only when the
// browser becomes unavailable.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("discovery: monitoring list", "selector", e.cfg.Selector, "interval", e.cfg.Interval)
	loop := schedule.New("discovery", schedule.Config{
		ProgressDelay: e.cfg.Interval,
		IdleDelay:     e.cfg.Interval,
		FailedDelay:   e.cfg.Interval,
		Multiplier:    e.cfg.Multiplier,
		MaxBackoff:    e.cfg.MaxInterval,
	}, e.Cycle, e.logger)
	return loop.Run(ctx)
}

// Cycle performs one poll: list, dedup, append.
func (e *Engine) Cycle(ctx context.Context) (schedule.Outcome, error) {
	elems, err := e.lister.ListElements(ctx, e.cfg.Selector)
	if err != nil {
		return schedule.Failed, err
	}
	if len(elems) == 0 {
		e.logger.Info("discovery: no new data, list is empty")
		return schedule.Idle, nil
	}

	fresh := e.claim(elems)
	if len(fresh) == 0 {
		e.logger.Debug("discovery: no new identifiers", "elements", len(elems))
		return schedule.Idle, nil
	}

	if err := e.log.Append(fresh); err != nil {
		// Give the identifiers back so the next cycle retries them.
		e.release(fresh)
		e.logger.Error("discovery: append failed", "count", len(fresh), "error", err)
		return schedule.Failed, nil
	}

	e.logger.Info("discovery: new identifiers", "count", len(fresh), "ids", fresh)
	return schedule.Progress, nil
}

// claim normalizes elements, keeps those not yet seen (first occurrence
// order, no duplicates) and adds them to the seen set.
func (e *Engine) claim(elems []collab.Element) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fresh []string
	for _, el := range elems {
		id := Normalize(el.Href, e.cfg.Prefix)
		if id == "" || strings.ContainsAny(id, "\r\n") {
			continue
		}
		if _, ok := e.seen[id]; ok {
			continue
		}
		e.seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	return fresh
}

func (e *Engine) release(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		delete(e.seen, id)
	}
}

// Seen returns a sorted copy of the seen set.
func (e *Engine) Seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.seen))
	for id := range e.seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
