// Package poller runs fixed-interval poll cycles that never overlap.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/claimdesk/internal/model"
)

// Cycle is one poll. ctx carries the cycle's deadline.
type Cycle func(ctx context.Context) error

// Poller runs a Cycle immediately and then every interval. A cycle runs
// inside the poller goroutine, so the next one cannot start before the
// previous one has completed, timed out or been cancelled.
type Poller struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	cycle    Cycle
	logger   zerolog.Logger
}

// New creates a poller. A non-positive timeout means cycles only end with
// ctx.
func New(name string, interval, timeout time.Duration, cycle Cycle, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		name:     name,
		interval: interval,
		timeout:  timeout,
		cycle:    cycle,
		logger:   logger.With().Str("poller", name).Logger(),
	}
}

// Run polls until ctx is cancelled or the session behind the cycle closes
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Debug().Dur("interval", p.interval).Dur("timeout", p.timeout).Msg("poller started")
	for {
		if err := p.runOnce(ctx); errors.Is(err, model.ErrSessionClosed) {
			p.logger.Debug().Msg("session closed, poller stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	cycleCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	err := p.cycle(cycleCtx)
	switch {
	case err == nil:
		p.logger.Debug().Dur("took", time.Since(start)).Msg("poll ok")
	case errors.Is(err, model.ErrSessionClosed), ctx.Err() != nil:
	default:
		p.logger.Warn().Err(err).Dur("took", time.Since(start)).Msg("poll failed")
	}
	return err
}
