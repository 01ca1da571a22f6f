// Package daemon wires the planning layer together and runs the host
// control loop that drives periodic optimization.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/wibisana/lakon/internal/config"
	"github.com/wibisana/lakon/internal/gateway"
	"github.com/wibisana/lakon/internal/logger"
	"github.com/wibisana/lakon/internal/metrics"
	"github.com/wibisana/lakon/pkg/collab"
	"github.com/wibisana/lakon/pkg/events"
	"github.com/wibisana/lakon/pkg/optimizer"
	"github.com/wibisana/lakon/pkg/orchestrator"
	"github.com/wibisana/lakon/pkg/plan"
	"github.com/wibisana/lakon/pkg/reasoning"
	"github.com/wibisana/lakon/pkg/rules"
	"github.com/wibisana/lakon/pkg/strategy"
)

// Daemon owns every long-lived component of the planning layer.
type Daemon struct {
	cfg    *config.Config
	log    *logger.Logger
	logger zerolog.Logger

	metrics   *metrics.Metrics
	hub       *events.Hub
	templates *strategy.TemplateSet
	memory    *collab.SQLiteMemory
	manager   *orchestrator.Manager
	optimizer *optimizer.Optimizer
	gateway   *gateway.Server

	metricsSrv *http.Server
	cancel     context.CancelFunc
}

// New builds a daemon from configuration. Collaborators beyond memory
// default to no-op stand-ins until the host injects real ones.
func New(cfg *config.Config) (*Daemon, error) {
	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	zl := lg.GetZerolog()

	d := &Daemon{
		cfg:     cfg,
		log:     lg,
		logger:  zl,
		metrics: metrics.NewMetrics(),
		hub:     events.NewHub(),
	}

	validator, err := rules.New(rulesConfig(cfg.Rules))
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	engineOpts := []strategy.Option{strategy.WithLogger(zl)}

	if cfg.Templates.Dir != "" {
		ts, err := strategy.NewTemplateSet(zl)
		if err != nil {
			return nil, fmt.Errorf("failed to create template set: %w", err)
		}
		if err := ts.LoadDir(cfg.Templates.Dir); err != nil {
			return nil, fmt.Errorf("failed to load templates: %w", err)
		}
		if cfg.Templates.Watch {
			if err := ts.Watch(); err != nil {
				zl.Warn().Err(err).Msg("Template watching unavailable")
			}
		}
		d.templates = ts
		engineOpts = append(engineOpts, strategy.WithTemplates(ts))
	}

	engine := strategy.NewEngine(validator, engineOpts...)
	reasoner := reasoning.NewEngine()

	mgrOpts := []orchestrator.Option{
		orchestrator.WithLogger(zl),
		orchestrator.WithPublisher(d.hub),
	}
	if cfg.Memory.Enabled && cfg.Memory.Path != "" {
		mem, err := collab.NewSQLiteMemory(cfg.Memory.Path, zl)
		if err != nil {
			zl.Warn().Err(err).Msg("Episodic memory unavailable, episodes will be dropped")
		} else {
			d.memory = mem
			mgrOpts = append(mgrOpts, orchestrator.WithMemory(mem))
		}
	}

	d.manager = orchestrator.New(engine, validator, reasoner, mgrOpts...)

	opt, err := optimizer.New(d.manager, optimizer.Config{
		Interval:   cfg.Optimizer.Interval,
		CronExpr:   cfg.Optimizer.CronExpr,
		MaxPlanAge: cfg.Optimizer.MaxPlanAge,
	}, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to create optimizer: %w", err)
	}
	d.optimizer = opt

	if cfg.Gateway.Enabled {
		d.gateway = gateway.NewServer(cfg.Gateway.Addr, d.hub, zl)
	}

	return d, nil
}

// Manager exposes the orchestrator to embedders (the host platform and
// the CLI).
func (d *Daemon) Manager() *orchestrator.Manager {
	return d.manager
}

// Hub exposes the event hub for additional subscribers.
func (d *Daemon) Hub() *events.Hub {
	return d.hub
}

// Start brings up the gateway and metrics endpoints and launches the
// control loop.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.gateway != nil {
		if err := d.gateway.Start(); err != nil {
			return fmt.Errorf("failed to start gateway: %w", err)
		}
	}

	if d.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", d.metrics.Handler())
		d.metricsSrv = &http.Server{
			Addr:              d.cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := d.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				d.logger.Error().Err(err).Msg("Metrics server error")
			}
		}()
		d.logger.Info().Str("addr", d.cfg.Metrics.Addr).Msg("Metrics listening")
	}

	go d.observeEvents(ctx)
	go NewEventLoop(d).Run(ctx)

	d.logger.Info().Msg("Daemon started")
	return nil
}

// Stop shuts everything down in reverse order.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.gateway != nil {
		if err := d.gateway.Stop(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Gateway shutdown error")
		}
	}
	if d.metricsSrv != nil {
		if err := d.metricsSrv.Shutdown(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Metrics shutdown error")
		}
	}
	if d.templates != nil {
		if err := d.templates.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Template watcher shutdown error")
		}
	}
	if d.memory != nil {
		if err := d.memory.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Memory close error")
		}
	}

	d.logger.Info().Msg("Daemon stopped")
	return d.log.Close()
}

// observeEvents translates hub events into Prometheus counters.
func (d *Daemon) observeEvents(ctx context.Context) {
	ch, cancel := d.hub.Subscribe("", 256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			switch evt.Name {
			case events.StrategyCreated:
				d.metrics.StrategiesCreatedTotal.Inc()
				if se, ok := evt.Payload.(orchestrator.StrategyEvent); ok {
					d.metrics.RiskScore.Observe(se.RiskScore)
				}
			case events.StrategyRejected:
				d.metrics.StrategiesRejectedTotal.Inc()
			case events.StrategyOptimized:
				d.metrics.StrategiesOptimizedTotal.Inc()
				if se, ok := evt.Payload.(orchestrator.StrategyEvent); ok {
					d.metrics.RiskScore.Observe(se.RiskScore)
				}
			case events.StrategyHighRisk:
				d.metrics.HighRiskTotal.Inc()
			case events.ActionExecuted:
				status := "unknown"
				if ee, ok := evt.Payload.(orchestrator.ExecutionEvent); ok {
					status = ee.Status
				}
				d.metrics.ActionsExecutedTotal.WithLabelValues(status).Inc()
			case events.OutcomeSimulated:
				d.metrics.SimulationsTotal.Inc()
			}
		}
	}
}

func rulesConfig(rc config.RulesConfig) rules.Config {
	cfg := rules.DefaultConfig()
	if len(rc.ForbiddenKeywords) > 0 {
		cfg.ForbiddenKeywords = rc.ForbiddenKeywords
	}
	if len(rc.BlockedPatterns) > 0 {
		cfg.BlockedPatterns = rc.BlockedPatterns
	}
	if len(rc.AllowedTypes) > 0 {
		types := make([]plan.ActionType, 0, len(rc.AllowedTypes))
		for _, t := range rc.AllowedTypes {
			types = append(types, plan.ActionType(t))
		}
		cfg.AllowedTypes = types
	}
	return cfg
}
