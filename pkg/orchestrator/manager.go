// Package orchestrator coordinates the planning pipeline: it owns the
// registry of active strategies, runs the builder, validator, and
// reasoning engines in sequence, persists episodic summaries, and emits
// events for every lifecycle transition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wibisana/lakon/pkg/collab"
	"github.com/wibisana/lakon/pkg/events"
	"github.com/wibisana/lakon/pkg/plan"
	"github.com/wibisana/lakon/pkg/reasoning"
	"github.com/wibisana/lakon/pkg/rules"
	"github.com/wibisana/lakon/pkg/strategy"
)

const collaboratorTimeout = 2 * time.Second

// Manager is the public-facing strategy orchestrator.
type Manager struct {
	engine    *strategy.Engine
	validator *rules.Validator
	reasoner  *reasoning.Engine
	registry  *Registry
	executor  Executor

	memory    collab.Memory
	anomaly   collab.Anomaly
	security  collab.Security
	publisher collab.Publisher

	logger   zerolog.Logger
	disabled atomic.Bool

	// At most one concurrent optimization per plan id.
	optMu    sync.Mutex
	optLocks map[string]*sync.Mutex

	created   atomic.Uint64
	rejected  atomic.Uint64
	optimized atomic.Uint64
	executed  atomic.Uint64
}

// Option is a functional option for configuring the Manager.
type Option func(*Manager)

// WithRegistry injects the plan store. Defaults to a fresh in-memory
// registry per manager, so independent managers never share state.
func WithRegistry(r *Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithExecutor sets the external action executor.
func WithExecutor(e Executor) Option {
	return func(m *Manager) { m.executor = e }
}

// WithMemory sets the episodic memory collaborator.
func WithMemory(mem collab.Memory) Option {
	return func(m *Manager) { m.memory = mem }
}

// WithAnomaly sets the anomaly collaborator.
func WithAnomaly(a collab.Anomaly) Option {
	return func(m *Manager) { m.anomaly = a }
}

// WithSecurity sets the permission collaborator.
func WithSecurity(s collab.Security) Option {
	return func(m *Manager) { m.security = s }
}

// WithPublisher sets the event transport.
func WithPublisher(p collab.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// New creates a Manager wired to the given engines. Collaborators not
// provided default to no-op stand-ins.
func New(engine *strategy.Engine, validator *rules.Validator, reasoner *reasoning.Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:    engine,
		validator: validator,
		reasoner:  reasoner,
		registry:  NewRegistry(),
		executor:  NoopExecutor{},
		memory:    collab.NoopMemory{},
		anomaly:   collab.NoopAnomaly{},
		security:  collab.AllowAllSecurity{},
		publisher: collab.NoopPublisher{},
		logger:    zerolog.Nop(),
		optLocks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateStrategy decomposes an objective into a plan, validates it, and
// registers it. A rejected plan is never registered; the caller gets the
// full violation detail and a rejection event is emitted exactly once.
func (m *Manager) CreateStrategy(ctx context.Context, objective string, planCtx map[string]string) (*plan.HighLevelPlan, error) {
	if m.disabled.Load() {
		return nil, ErrDisabled
	}

	p, err := m.engine.Decompose(ctx, objective, planCtx)
	var verr *rules.ValidationError
	if errors.As(err, &verr) {
		m.rejected.Add(1)
		m.publisher.Publish(events.StrategyRejected, StrategyEvent{
			PlanID:     p.ID,
			Objective:  objective,
			RiskScore:  p.RiskScore,
			RiskClass:  string(verr.Result.RiskClass),
			Violations: verr.Result.Violations,
		})
		m.logger.Warn().
			Str("plan_id", p.ID).
			Strs("violations", verr.Result.Violations).
			Msg("Strategy rejected")
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decompose objective: %w", err)
	}

	class := m.classify(ctx, p.RiskScore)

	if err := m.registry.Register(p); err != nil {
		return nil, fmt.Errorf("failed to register plan: %w", err)
	}
	m.created.Add(1)

	m.persistEpisode(ctx, p, "created")

	evt := StrategyEvent{
		PlanID:    p.ID,
		Objective: p.Objective,
		RiskScore: p.RiskScore,
		RiskClass: string(class),
	}
	m.publisher.Publish(events.StrategyCreated, evt)
	if class == rules.RiskHigh {
		m.publisher.Publish(events.StrategyHighRisk, evt)
	}

	m.logger.Info().
		Str("plan_id", p.ID).
		Int("steps", len(p.Steps)).
		Int("actions", p.TotalActions()).
		Float64("risk_score", p.RiskScore).
		Str("risk_class", string(class)).
		Msg("Strategy created")

	return p.Clone(), nil
}

// EvaluateStrategy combines validation and simulation for a plan. It is
// read-only, mutates nothing, and is repeatable: the same plan yields
// the same record.
func (m *Manager) EvaluateStrategy(p *plan.HighLevelPlan) EvaluationRecord {
	return EvaluationRecord{
		PlanID:     p.ID,
		RiskScore:  p.RiskScore,
		Validation: m.validator.Validate(p),
		Simulation: m.reasoner.SimulateOutcome(p),
	}
}

// OptimizeStrategy refines a registered plan with feedback and atomically
// replaces the registry entry with the new snapshot. Concurrent calls on
// one plan id are serialized; unknown ids fail with ErrNotFound without
// touching the registry.
func (m *Manager) OptimizeStrategy(ctx context.Context, planID string, fb strategy.Feedback) (*plan.HighLevelPlan, error) {
	if m.disabled.Load() {
		return nil, ErrDisabled
	}

	lock := m.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	var snap *plan.HighLevelPlan
	err := m.registry.Update(planID, func(p *plan.HighLevelPlan) error {
		snap = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	oldScore := snap.RiskScore

	refined, err := m.engine.Refine(ctx, snap, fb)
	if err != nil {
		return nil, fmt.Errorf("failed to refine plan %s: %w", planID, err)
	}

	if err := m.registry.Replace(refined); err != nil {
		return nil, err
	}
	m.optimized.Add(1)

	m.persistEpisode(ctx, refined, "optimized")

	class := m.classify(ctx, refined.RiskScore)
	evt := StrategyEvent{
		PlanID:    refined.ID,
		Objective: refined.Objective,
		RiskScore: refined.RiskScore,
		RiskClass: string(class),
	}
	m.publisher.Publish(events.StrategyOptimized, evt)
	if class == rules.RiskHigh && oldScore <= 80 {
		m.publisher.Publish(events.StrategyHighRisk, evt)
	}

	m.logger.Info().
		Str("plan_id", refined.ID).
		Float64("risk_score", refined.RiskScore).
		Float64("previous_risk_score", oldScore).
		Msg("Strategy optimized")

	return refined.Clone(), nil
}

// SimulateOutcome delegates to the reasoning engine and emits a
// simulation-result event. The registry is never touched.
func (m *Manager) SimulateOutcome(p *plan.HighLevelPlan) reasoning.SimulationResult {
	res := m.reasoner.SimulateOutcome(p)
	m.publisher.Publish(events.OutcomeSimulated, SimulationEvent{
		PlanID:             p.ID,
		SuccessProbability: res.SuccessProbability,
		EstimatedCost:      res.EstimatedCost,
		EstimatedDuration:  res.EstimatedDuration,
	})
	return res
}

// ExecuteAtomicAction transitions the named action through the execution
// state machine and hands off to the external executor, recording only
// the reported outcome.
func (m *Manager) ExecuteAtomicAction(ctx context.Context, planID, actionID string) (ExecutionResult, error) {
	if m.disabled.Load() {
		return ExecutionResult{}, ErrDisabled
	}

	// Existence check before anything transitions.
	var action plan.AtomicAction
	err := m.registry.Update(planID, func(p *plan.HighLevelPlan) error {
		a, _, ok := p.FindAction(actionID)
		if !ok {
			return fmt.Errorf("%w: action %s in plan %s", ErrNotFound, actionID, planID)
		}
		action = *a
		return nil
	})
	if err != nil {
		return ExecutionResult{}, err
	}

	if !m.checkPermission(ctx, planID, actionID) {
		_ = m.registry.Update(planID, func(p *plan.HighLevelPlan) error {
			if a, _, ok := p.FindAction(actionID); ok && a.Status == plan.ActionStatusPending {
				a.Status = plan.ActionStatusRejected
			}
			return nil
		})
		m.logger.Warn().
			Str("plan_id", planID).
			Str("action_id", actionID).
			Msg("Action execution denied by security collaborator")
		return ExecutionResult{}, fmt.Errorf("%w: action %s", ErrPermissionDenied, actionID)
	}

	err = m.registry.Update(planID, func(p *plan.HighLevelPlan) error {
		a, _, ok := p.FindAction(actionID)
		if !ok {
			return fmt.Errorf("%w: action %s in plan %s", ErrNotFound, actionID, planID)
		}
		if !a.Status.CanTransitionTo(plan.ActionStatusInProgress) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, plan.ActionStatusInProgress)
		}
		a.Status = plan.ActionStatusInProgress
		action = *a
		return nil
	})
	if err != nil {
		return ExecutionResult{}, err
	}

	// Hand-off happens outside the registry lock: executors may be slow.
	outcome, execErr := m.executor.Execute(ctx, planID, action)
	final := plan.ActionStatusCompleted
	if execErr != nil || !outcome.Success {
		final = plan.ActionStatusFailed
	}

	_ = m.registry.Update(planID, func(p *plan.HighLevelPlan) error {
		if a, _, ok := p.FindAction(actionID); ok {
			a.Status = final
		}
		return nil
	})
	m.executed.Add(1)

	m.publisher.Publish(events.ActionExecuted, ExecutionEvent{
		PlanID:   planID,
		ActionID: actionID,
		Status:   string(final),
	})

	m.logger.Info().
		Str("plan_id", planID).
		Str("action_id", actionID).
		Str("status", string(final)).
		Msg("Atomic action executed")

	return ExecutionResult{
		PlanID:   planID,
		ActionID: actionID,
		Status:   final,
		Output:   outcome.Output,
	}, nil
}

// RetryAtomicAction moves a failed action back to pending, the only
// legal backward transition, so it can be re-executed.
func (m *Manager) RetryAtomicAction(planID, actionID string) error {
	if m.disabled.Load() {
		return ErrDisabled
	}
	return m.registry.Update(planID, func(p *plan.HighLevelPlan) error {
		a, _, ok := p.FindAction(actionID)
		if !ok {
			return fmt.Errorf("%w: action %s in plan %s", ErrNotFound, actionID, planID)
		}
		if !a.Status.CanTransitionTo(plan.ActionStatusPending) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, plan.ActionStatusPending)
		}
		a.Status = plan.ActionStatusPending
		return nil
	})
}

// ActiveStrategies returns a snapshot of the registry: plan ids mapped
// to deep copies. Succeeds while disabled.
func (m *Manager) ActiveStrategies() map[string]*plan.HighLevelPlan {
	return m.registry.Snapshot()
}

// Statistics aggregates registry counts by status and risk class plus
// the lifetime counters. Succeeds while disabled.
func (m *Manager) Statistics() Statistics {
	snap := m.registry.Snapshot()

	stats := Statistics{
		ActivePlans: len(snap),
		ByStatus:    make(map[string]int),
		ByRiskClass: make(map[string]int),
		Created:     m.created.Load(),
		Rejected:    m.rejected.Load(),
		Optimized:   m.optimized.Load(),
		Executed:    m.executed.Load(),
	}
	for _, p := range snap {
		stats.ByStatus[string(p.Status)]++
		stats.ByRiskClass[string(rules.Classify(p.RiskScore))]++
	}
	return stats
}

// Archive removes a plan from the active registry after persisting a
// final episodic summary.
func (m *Manager) Archive(ctx context.Context, planID string) error {
	if m.disabled.Load() {
		return ErrDisabled
	}

	p, err := m.registry.Get(planID)
	if err != nil {
		return err
	}
	archived := p.Clone()
	archived.Status = plan.PlanStatusArchived
	m.persistEpisode(ctx, archived, "archived")

	return m.registry.Remove(planID)
}

// Disable stops the manager from accepting mutating operations.
// Read-only queries keep working.
func (m *Manager) Disable() {
	m.disabled.Store(true)
	m.logger.Info().Msg("Orchestrator disabled")
}

// Enable resumes normal operation.
func (m *Manager) Enable() {
	m.disabled.Store(false)
	m.logger.Info().Msg("Orchestrator enabled")
}

// Enabled reports whether mutating operations are accepted.
func (m *Manager) Enabled() bool {
	return !m.disabled.Load()
}

// classify buckets a risk score, biased one bucket upward when the
// anomaly collaborator reports a high anomaly level.
func (m *Manager) classify(ctx context.Context, score float64) rules.RiskClass {
	class := rules.Classify(score)

	actx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()
	level, err := m.anomaly.CurrentAnomalyLevel(actx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Anomaly collaborator unavailable, classification unbiased")
		return class
	}
	if level == collab.AnomalyHigh {
		return class.Escalated()
	}
	return class
}

// checkPermission consults the security collaborator. Collaborator
// failure is treated as denial: execution has side effects.
func (m *Manager) checkPermission(ctx context.Context, planID, actionID string) bool {
	sctx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()

	allowed, err := m.security.CheckPermission(sctx, "execute_atomic_action", map[string]string{
		"plan_id":   planID,
		"action_id": actionID,
	})
	if err != nil {
		m.logger.Warn().Err(err).Msg("Security collaborator unavailable, denying execution")
		return false
	}
	return allowed
}

// persistEpisode stores a compact summary with the memory collaborator.
// Failures are logged and absorbed; the operation proceeds.
func (m *Manager) persistEpisode(ctx context.Context, p *plan.HighLevelPlan, kind string) {
	mctx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()

	_, err := m.memory.StoreEpisode(mctx, collab.Episode{
		PlanID:    p.ID,
		Kind:      kind,
		Objective: p.Objective,
		Summary: fmt.Sprintf("%s: %d steps, %d actions, risk %.1f, status %s",
			kind, len(p.Steps), p.TotalActions(), p.RiskScore, p.Status),
		RiskScore: p.RiskScore,
		CreatedAt: time.Now(),
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("plan_id", p.ID).Msg("Failed to persist episode")
	}
}

func (m *Manager) planLock(planID string) *sync.Mutex {
	m.optMu.Lock()
	defer m.optMu.Unlock()
	lock, ok := m.optLocks[planID]
	if !ok {
		lock = &sync.Mutex{}
		m.optLocks[planID] = lock
	}
	return lock
}
