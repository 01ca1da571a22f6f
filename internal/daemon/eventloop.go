package daemon

import (
	"context"
	"time"
)

// EventLoop is the host-driven control loop: on every tick it offers the
// periodic optimizer a chance to run and refreshes the registry gauge.
type EventLoop struct {
	daemon *Daemon
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon: d,
	}
}

// Run runs the loop until the context is cancelled.
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.logger.Info().Msg("Event loop started")

	ticker := time.NewTicker(e.daemon.cfg.Optimizer.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.logger.Info().Msg("Event loop stopping")
			return

		case now := <-ticker.C:
			e.tick(ctx, now)
		}
	}
}

// tick fires the optimizer when due and updates observability state.
// The optimizer pass runs detached: a slow batch must not delay the
// loop, and overlapping passes are skipped inside RunOnceIfDue.
func (e *EventLoop) tick(ctx context.Context, now time.Time) {
	if e.daemon.cfg.Optimizer.Enabled {
		go func() {
			if e.daemon.optimizer.RunOnceIfDue(ctx, now) {
				e.daemon.metrics.OptimizerPassesTotal.Inc()
			}
		}()
	}

	stats := e.daemon.manager.Statistics()
	e.daemon.metrics.ActivePlans.Set(float64(stats.ActivePlans))

	e.daemon.logger.Debug().
		Int("active_plans", stats.ActivePlans).
		Uint64("created", stats.Created).
		Uint64("optimized", stats.Optimized).
		Msg("Control loop tick")
}
