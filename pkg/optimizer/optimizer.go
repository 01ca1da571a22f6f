// Package optimizer implements the background re-evaluation pass: a
// host-driven tick that selects risky or stale plans and asks the
// orchestrator to optimize them, isolating per-plan failures.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/wibisana/lakon/pkg/orchestrator"
	"github.com/wibisana/lakon/pkg/rules"
	"github.com/wibisana/lakon/pkg/strategy"
)

// Config controls scheduling and selection.
type Config struct {
	// Interval between runs. Ignored when CronExpr is set.
	Interval time.Duration
	// CronExpr is an optional 5-field cron expression.
	CronExpr string
	// MaxPlanAge selects plans older than this even at low risk.
	MaxPlanAge time.Duration
}

// DefaultConfig returns the default scheduling policy.
func DefaultConfig() Config {
	return Config{
		Interval:   5 * time.Minute,
		MaxPlanAge: time.Hour,
	}
}

// Optimizer periodically re-evaluates active strategies. It never
// schedules itself: the host control loop calls RunOnceIfDue on its own
// clock, and overlapping runs are skipped, not queued.
type Optimizer struct {
	manager  *orchestrator.Manager
	cfg      Config
	schedule cron.Schedule
	logger   zerolog.Logger

	nextDue atomic.Int64
	running atomic.Bool
}

// New creates an optimizer. A configured cron expression is parsed
// up-front; an invalid expression is a construction error.
func New(manager *orchestrator.Manager, cfg Config, logger zerolog.Logger) (*Optimizer, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.MaxPlanAge <= 0 {
		cfg.MaxPlanAge = DefaultConfig().MaxPlanAge
	}

	o := &Optimizer{
		manager: manager,
		cfg:     cfg,
		logger:  logger,
	}

	if cfg.CronExpr != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		sched, err := parser.Parse(cfg.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression: %w", err)
		}
		o.schedule = sched
	}

	return o, nil
}

// RunOnceIfDue runs one optimization pass when the schedule says so.
// Returns true when a pass actually ran. Not due, or a previous pass
// still running, both return false.
func (o *Optimizer) RunOnceIfDue(ctx context.Context, now time.Time) bool {
	due := o.nextDue.Load()
	if due > 0 && now.UnixMilli() < due {
		return false
	}
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Debug().Msg("Optimizer pass still running, tick skipped")
		return false
	}
	defer o.running.Store(false)

	o.nextDue.Store(o.next(now).UnixMilli())
	o.runBatch(ctx, now)
	return true
}

func (o *Optimizer) next(now time.Time) time.Time {
	if o.schedule != nil {
		return o.schedule.Next(now)
	}
	return now.Add(o.cfg.Interval)
}

// runBatch optimizes every selected plan, isolating failures so one bad
// plan cannot block the rest of the batch.
func (o *Optimizer) runBatch(ctx context.Context, now time.Time) {
	snap := o.manager.ActiveStrategies()

	scanned := 0
	optimized := 0
	failed := 0

	for id, p := range snap {
		scanned++
		if !o.shouldOptimize(p.RiskScore, now.Sub(p.CreatedAt)) {
			continue
		}

		fb := strategy.Feedback{Notes: "periodic optimization"}
		if _, err := o.manager.OptimizeStrategy(ctx, id, fb); err != nil {
			failed++
			if errors.Is(err, orchestrator.ErrDisabled) {
				o.logger.Debug().Msg("Orchestrator disabled, optimizer pass aborted")
				break
			}
			o.logger.Warn().Err(err).Str("plan_id", id).Msg("Plan optimization failed")
			continue
		}
		optimized++
	}

	o.logger.Info().
		Int("scanned", scanned).
		Int("optimized", optimized).
		Int("failed", failed).
		Msg("Optimizer pass complete")
}

// shouldOptimize picks plans whose risk class is medium or high, or whose age
// exceeds the threshold.
func (o *Optimizer) shouldOptimize(riskScore float64, age time.Duration) bool {
	if class := rules.Classify(riskScore); class != rules.RiskLow {
		return true
	}
	return age > o.cfg.MaxPlanAge
}
