package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Interval returns the current tick interval.
func (p *Poller) Interval() time.Duration {
	return time.Duration(p.interval.Load())
}

// Reschedule asks Run to restart its ticker with the current interval.
func (p *Poller) Reschedule() {
	select {
	case p.resched <- struct{}{}:
	default:
	}
}

// Run ticks once immediately and then every Interval until ctx is done.
// Ticks that overrun the interval are not queued up; the ticker drops them.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", slog.Duration("interval", p.Interval()))
	p.tick(ctx)

	t := time.NewTicker(p.Interval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return ctx.Err()
		case <-p.resched:
			t.Reset(p.Interval())
			p.logger.Info("poller rescheduled", slog.Duration("interval", p.Interval()))
		case <-t.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if _, err := p.RunTick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("tick failed", slog.Any("err", err))
	}
}
