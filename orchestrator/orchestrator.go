// CLAUDE:SUMMARY Processing loop: walks the identifier log FIFO through a persisted cursor, extracts metrics per page, stores each record once.
// Package orchestrator turns logged identifiers into stored records.
//
// Entries are taken from the IdentifierLog in append order through a cursor
// persisted in the state database. The cursor moves past an entry only once
// that entry has a stored record (written now or found already present) or
// has been abandoned after too many failed attempts.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/pairwatch/collab"
	"github.com/hazyhaar/pairwatch/extract"
	"github.com/hazyhaar/pairwatch/fault"
	"github.com/hazyhaar/pairwatch/identlog"
	"github.com/hazyhaar/pairwatch/schedule"
	"github.com/hazyhaar/pairwatch/snapshot"
	"github.com/hazyhaar/pairwatch/state"
	"github.com/hazyhaar/pairwatch/store"
)

// CursorName is the state cursor used by the orchestrator.
const CursorName = "orchestrator"

// IDPlaceholder is replaced by the identifier in Config.PageURL.
const IDPlaceholder = "{id}"

// Config configures an Orchestrator.
type Config struct {
	// PageURL is the detail page template, e.g. "https://gmgn.ai/sol/token/{id}".
	PageURL string
	// RegionSelector selects the metrics panel; the whole page is used when absent.
	RegionSelector string

	LoadDelay    time.Duration // after opening the page. Default: 5s.
	PopupTimeout time.Duration // budget for dismissing the popup. Default: 30s.
	SettleDelay  time.Duration // after the popup step. Default: 10s.

	SuccessDelay time.Duration // after a stored record. Default: 5s.
	IdleDelay    time.Duration // when the log has nothing new. Default: 10s.
	Multiplier   float64
	MaxBackoff   time.Duration

	// MaxAttempts abandons an entry after that many failed attempts.
	// Zero retries forever.
	MaxAttempts int
}

func (c *Config) defaults() {
	if c.LoadDelay < 0 {
		c.LoadDelay = 0
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.PopupTimeout <= 0 {
		c.PopupTimeout = 30 * time.Second
	}
	if c.SuccessDelay <= 0 {
		c.SuccessDelay = 5 * time.Second
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = 10 * time.Second
	}
}

// Orchestrator is the processing loop.
type Orchestrator struct {
	cfg       Config
	log       *identlog.Log
	store     *store.Store
	state     *state.DB
	opener    collab.Opener
	snapshots *snapshot.Writer
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSnapshots archives the page region of every stored record.
func WithSnapshots(w *snapshot.Writer) Option {
	return func(o *Orchestrator) { o.snapshots = w }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator.
func New(cfg Config, log *identlog.Log, st *store.Store, db *state.DB, opener collab.Opener, opts ...Option) *Orchestrator {
	cfg.defaults()
	o := &Orchestrator{
		cfg:    cfg,
		log:    log,
		store:  st,
		state:  db,
		opener: opener,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes entries until ctx is cancelled. It returns a non-nil error
// only when the browser becomes unavailable.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator: starting", "log", o.log.Path(), "store", o.store.Dir())
	loop := schedule.New("orchestrator", schedule.Config{
		ProgressDelay: o.cfg.SuccessDelay,
		IdleDelay:     o.cfg.IdleDelay,
		FailedDelay:   o.cfg.SuccessDelay,
		Multiplier:    o.cfg.Multiplier,
		MaxBackoff:    o.cfg.MaxBackoff,
	}, o.Step, o.logger)
	return loop.Run(ctx)
}

// Step processes at most one log entry.
func (o *Orchestrator) Step(ctx context.Context) (schedule.Outcome, error) {
	off, err := o.state.Cursor(ctx, CursorName)
	if err != nil {
		return schedule.Failed, err
	}
	entry, ok, err := o.log.Next(off)
	if err != nil {
		return schedule.Failed, err
	}
	if !ok {
		o.logger.Debug("orchestrator: no pending identifier", "offset", off)
		return schedule.Idle, nil
	}

	log := o.logger.With("id", entry.ID, "offset", entry.Offset)
	start := time.Now()

	if !store.ValidID(entry.ID) {
		log.Warn("orchestrator: identifier is not a valid entry name, abandoning")
		return o.finish(ctx, entry, state.StatusAbandoned, "invalid identifier", start)
	}

	exists, err := o.store.Exists(entry.ID)
	if err != nil {
		return schedule.Failed, err
	}
	if exists {
		log.Info("orchestrator: already processed, skipping")
		return o.finish(ctx, entry, state.StatusSkipped, "", start)
	}

	region, err := o.fetch(ctx, entry.ID)
	if err != nil {
		if fault.IsFatal(err) || ctx.Err() != nil {
			return schedule.Failed, err
		}
		return o.fail(ctx, entry, err, start)
	}
	if strings.TrimSpace(region.Text) == "" {
		return o.fail(ctx, entry, errors.New("no page text retrieved"), start)
	}

	rec := extract.Metrics(region.Text)
	log.Info("orchestrator: extracted",
		"columns", rec.Columns(), "values", rec.Values(), "fallback", region.Fallback)

	switch err := o.store.Create(entry.ID, rec); {
	case err == nil:
		log.Info("orchestrator: record stored", "path", o.store.Path(entry.ID))
		o.snapshot(ctx, log, entry.ID, region)
		if out, err := o.finish(ctx, entry, state.StatusStored, "", start); err != nil {
			return out, err
		}
		return schedule.Progress, nil
	case errors.Is(err, store.ErrExists):
		log.Info("orchestrator: record created concurrently, skipping")
		return o.finish(ctx, entry, state.StatusSkipped, err.Error(), start)
	default:
		return schedule.Failed, err
	}
}

// snapshot archives the region behind a stored record. Failures are logged
// only.
func (o *Orchestrator) snapshot(ctx context.Context, log *slog.Logger, id string, region collab.Region) {
	if o.snapshots == nil {
		return
	}
	meta := snapshot.Meta{
		ID:       id,
		URL:      o.pageURL(id),
		Selector: o.cfg.RegionSelector,
		Fallback: region.Fallback,
	}
	if _, err := o.snapshots.Write(ctx, meta, region.HTML, region.Text); err != nil {
		log.Warn("orchestrator: snapshot failed", "error", err)
	}
}

// fetch opens the identifier's page, deals with the popup and returns the
// region text.
func (o *Orchestrator) fetch(ctx context.Context, id string) (collab.Region, error) {
	url := o.pageURL(id)
	o.logger.Info("orchestrator: opening page", "id", id, "url", url)

	page, err := o.opener.OpenPage(ctx, url)
	if err != nil {
		return collab.Region{}, fmt.Errorf("orchestrator: open %s: %w", url, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			o.logger.Warn("orchestrator: close page", "id", id, "error", err)
		}
	}()

	if err := schedule.Sleep(ctx, o.cfg.LoadDelay); err != nil {
		return collab.Region{}, err
	}
	if !page.WaitPopupDismissed(ctx, o.cfg.PopupTimeout) {
		o.logger.Warn("orchestrator: popup not dismissed, continuing anyway", "id", id)
	}
	if err := schedule.Sleep(ctx, o.cfg.SettleDelay); err != nil {
		return collab.Region{}, err
	}

	region, err := page.Region(ctx, o.cfg.RegionSelector, true)
	if err != nil {
		return collab.Region{}, fmt.Errorf("orchestrator: read region: %w", err)
	}
	if region.Fallback {
		o.logger.Warn("orchestrator: region not found, used whole page", "id", id, "selector", o.cfg.RegionSelector)
	}
	return region, nil
}

// fail records a failed attempt. The cursor stays put unless the entry has
// used up its attempts.
func (o *Orchestrator) fail(ctx context.Context, entry identlog.Entry, cause error, start time.Time) (schedule.Outcome, error) {
	log := o.logger.With("id", entry.ID, "offset", entry.Offset)
	log.Warn("orchestrator: attempt failed, entry stays pending", "error", cause)

	a := &state.Attempt{
		Identifier:   entry.ID,
		Status:       state.StatusFailed,
		LogOffset:    entry.Offset,
		ErrorMessage: cause.Error(),
		DurationMs:   time.Since(start).Milliseconds(),
	}
	if err := o.state.Record(ctx, a); err != nil {
		return schedule.Failed, err
	}

	if o.cfg.MaxAttempts > 0 {
		n, err := o.state.Failures(ctx, entry.ID, entry.Offset)
		if err != nil {
			return schedule.Failed, err
		}
		if n >= o.cfg.MaxAttempts {
			log.Error("orchestrator: giving up on identifier", "attempts", n)
			return o.finish(ctx, entry, state.StatusAbandoned, cause.Error(), start)
		}
	}
	return schedule.Failed, nil
}

// finish records a terminal attempt and moves the cursor past entry. It runs
// to completion even when ctx is cancelled so a stored record is never left
// behind an unadvanced cursor by a shutdown.
func (o *Orchestrator) finish(ctx context.Context, entry identlog.Entry, status, msg string, start time.Time) (schedule.Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	a := &state.Attempt{
		Identifier:   entry.ID,
		Status:       status,
		LogOffset:    entry.Offset,
		ErrorMessage: msg,
		DurationMs:   time.Since(start).Milliseconds(),
	}
	if err := o.state.Record(ctx, a); err != nil {
		o.logger.Warn("orchestrator: record attempt", "id", entry.ID, "error", err)
	}
	if err := o.state.Advance(ctx, CursorName, entry.Next); err != nil {
		return schedule.Failed, err
	}
	return schedule.Continue, nil
}

func (o *Orchestrator) pageURL(id string) string {
	return strings.ReplaceAll(o.cfg.PageURL, IDPlaceholder, id)
}
