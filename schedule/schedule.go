// CLAUDE:SUMMARY Cancellable fixed-interval loop with backoff on repeated idle or failed cycles.
// Package schedule runs the long-lived pipeline loops.
//
// A loop calls its Step repeatedly. The Outcome of each step picks the delay
// before the next one; consecutive Idle or Failed outcomes grow the delay by
// Multiplier up to MaxBackoff. Cancellation is observed between steps and
// during every wait.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/pairwatch/fault"
)

// Outcome classifies one loop iteration.
type Outcome int

const (
	Progress Outcome = iota // work done, wait ProgressDelay
	Continue                // work done, step again immediately
	Idle                    // nothing to do
	Failed                  // cycle-local failure
)

func (o Outcome) String() string {
	switch o {
	case Progress:
		return "progress"
	case Continue:
		return "continue"
	case Idle:
		return "idle"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config configures a loop.
type Config struct {
	// ProgressDelay is the wait after a Progress step.
	ProgressDelay time.Duration
	// IdleDelay is the base wait after an Idle step.
	IdleDelay time.Duration
	// FailedDelay is the base wait after a Failed step. Default: IdleDelay.
	FailedDelay time.Duration
	// Multiplier grows the idle/failed delay per consecutive occurrence.
	// Values <= 1 keep the delay fixed.
	Multiplier float64
	// MaxBackoff caps the grown delay. Zero means no cap.
	MaxBackoff time.Duration
}

func (c *Config) defaults() {
	if c.IdleDelay <= 0 {
		c.IdleDelay = 5 * time.Second
	}
	if c.FailedDelay <= 0 {
		c.FailedDelay = c.IdleDelay
	}
}

// Step is one iteration of a loop.
type Step func(ctx context.Context) (Outcome, error)

// Loop drives a Step until its context is cancelled or the step returns a
// fatal error.
type Loop struct {
	name   string
	cfg    Config
	step   Step
	logger *slog.Logger
}

// New creates a Loop.
func New(name string, cfg Config, step Step, logger *slog.Logger) *Loop {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{name: name, cfg: cfg, step: step, logger: logger}
}

// Run blocks until ctx is cancelled (returns nil) or a step returns an error
// classified fatal by fault.IsFatal (returns that error).
func (l *Loop) Run(ctx context.Context) error {
	streak := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		out, err := l.step(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			if fault.IsFatal(err) {
				l.logger.Error(l.name+": fatal, stopping loop", "error", err)
				return err
			}
			l.logger.Warn(l.name+": cycle failed", "error", err)
			out = Failed
		}

		switch out {
		case Idle, Failed:
			streak++
		default:
			streak = 0
		}

		if err := Sleep(ctx, l.Delay(out, streak)); err != nil {
			return nil
		}
	}
}

// Delay returns the wait after an outcome that is the streak-th consecutive
// idle/failed one (streak is ignored for Progress and Continue).
func (l *Loop) Delay(out Outcome, streak int) time.Duration {
	var base time.Duration
	switch out {
	case Continue:
		return 0
	case Progress:
		return l.cfg.ProgressDelay
	case Idle:
		base = l.cfg.IdleDelay
	default:
		base = l.cfg.FailedDelay
	}

	d := base
	if l.cfg.Multiplier > 1 {
		for i := 1; i < streak; i++ {
			d = time.Duration(float64(d) * l.cfg.Multiplier)
			if l.cfg.MaxBackoff > 0 && d >= l.cfg.MaxBackoff {
				return l.cfg.MaxBackoff
			}
		}
	}
	if l.cfg.MaxBackoff > 0 && d > l.cfg.MaxBackoff {
		d = l.cfg.MaxBackoff
	}
	return d
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
