package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wibisana/lakon/pkg/collab"
	"github.com/wibisana/lakon/pkg/events"
	"github.com/wibisana/lakon/pkg/plan"
	"github.com/wibisana/lakon/pkg/reasoning"
	"github.com/wibisana/lakon/pkg/rules"
	"github.com/wibisana/lakon/pkg/strategy"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(name string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events.Event{Name: name, Payload: payload})
}

func (r *recordingPublisher) named(name string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type recordingMemory struct {
	mu       sync.Mutex
	episodes []collab.Episode
}

func (r *recordingMemory) StoreEpisode(_ context.Context, ep collab.Episode) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.episodes = append(r.episodes, ep)
	return "ep-1", nil
}

func (r *recordingMemory) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ep := range r.episodes {
		out = append(out, ep.Kind)
	}
	return out
}

type mutablePrediction struct {
	mu    sync.Mutex
	score float64
	err   error
}

func (p *mutablePrediction) EstimateRisk(_ context.Context, _ map[string]string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.score, p.err
}

func (p *mutablePrediction) set(score float64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.score, p.err = score, err
}

type stubAnomaly struct {
	level collab.AnomalyLevel
	err   error
}

func (s stubAnomaly) CurrentAnomalyLevel(context.Context) (collab.AnomalyLevel, error) {
	return s.level, s.err
}

type stubSecurity struct {
	allow bool
	err   error
}

func (s stubSecurity) CheckPermission(context.Context, string, map[string]string) (bool, error) {
	return s.allow, s.err
}

type stubExecutor struct {
	mu      sync.Mutex
	fail    bool
	err     error
	calls   int
	lastAct plan.AtomicAction
}

func (s *stubExecutor) Execute(_ context.Context, _ string, a plan.AtomicAction) (ExecutionOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastAct = a
	if s.err != nil {
		return ExecutionOutcome{}, s.err
	}
	return ExecutionOutcome{Success: !s.fail, Output: "done"}, nil
}

type managerFixture struct {
	manager   *Manager
	registry  *Registry
	publisher *recordingPublisher
	memory    *recordingMemory
	executor  *stubExecutor
}

func newFixture(t *testing.T, engineOpts []strategy.Option, managerOpts ...Option) *managerFixture {
	t.Helper()

	validator, err := rules.New(rules.DefaultConfig())
	require.NoError(t, err)

	fx := &managerFixture{
		registry:  NewRegistry(),
		publisher: &recordingPublisher{},
		memory:    &recordingMemory{},
		executor:  &stubExecutor{},
	}

	engine := strategy.NewEngine(validator, engineOpts...)
	opts := []Option{
		WithRegistry(fx.registry),
		WithPublisher(fx.publisher),
		WithMemory(fx.memory),
		WithExecutor(fx.executor),
	}
	opts = append(opts, managerOpts...)
	fx.manager = New(engine, validator, reasoning.NewEngine(), opts...)
	return fx
}

func TestCreateStrategy(t *testing.T) {
	fx := newFixture(t, nil)

	p, err := fx.manager.CreateStrategy(context.Background(), "Investigate the failed nightly jobs", nil)
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.True(t, fx.registry.Exists(p.ID))
	assert.Equal(t, plan.PlanStatusActive, p.Status)

	created := fx.publisher.named(events.StrategyCreated)
	require.Len(t, created, 1)
	evt := created[0].Payload.(StrategyEvent)
	assert.Equal(t, p.ID, evt.PlanID)
	assert.Equal(t, string(rules.RiskLow), evt.RiskClass)

	assert.Empty(t, fx.publisher.named(events.StrategyHighRisk))
	assert.Equal(t, []string{"created"}, fx.memory.kinds())

	// The returned plan is a snapshot: mutating it must not leak into
	// the registry.
	p.Steps[0].Actions[0].Status = plan.ActionStatusCompleted
	stored, err := fx.registry.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ActionStatusPending, stored.Steps[0].Actions[0].Status)
}

func TestCreateStrategyRejected(t *testing.T) {
	fx := newFixture(t, nil)

	p, err := fx.manager.CreateStrategy(context.Background(), "purge old hosts with rm -rf /data", nil)
	require.Error(t, err)
	assert.Nil(t, p)

	var verr *rules.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Result.Violations)

	assert.Equal(t, 0, fx.registry.Count())
	assert.Len(t, fx.publisher.named(events.StrategyRejected), 1)
	assert.Empty(t, fx.publisher.named(events.StrategyCreated))
	assert.Empty(t, fx.memory.kinds())

	stats := fx.manager.Statistics()
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Equal(t, uint64(0), stats.Created)
}

func TestCreateStrategyHighRiskEvent(t *testing.T) {
	pred := &mutablePrediction{score: 100}
	fx := newFixture(t, []strategy.Option{strategy.WithPrediction(pred)})

	p, err := fx.manager.CreateStrategy(context.Background(), "Clean up the build cache",
		map[string]string{"risk": "critical"})
	require.NoError(t, err)
	assert.Greater(t, p.RiskScore, 80.0)

	high := fx.publisher.named(events.StrategyHighRisk)
	require.Len(t, high, 1)
	assert.Equal(t, p.ID, high[0].Payload.(StrategyEvent).PlanID)
}

func TestCreateStrategyAnomalyEscalation(t *testing.T) {
	pred := &mutablePrediction{score: 80}
	fx := newFixture(t,
		[]strategy.Option{strategy.WithPrediction(pred)},
		WithAnomaly(stubAnomaly{level: collab.AnomalyHigh}),
	)

	// Score lands in the medium bucket; high anomaly biases it up.
	p, err := fx.manager.CreateStrategy(context.Background(), "Clean up the build cache",
		map[string]string{"risk": "high"})
	require.NoError(t, err)
	require.Greater(t, p.RiskScore, 60.0)
	require.LessOrEqual(t, p.RiskScore, 80.0)

	high := fx.publisher.named(events.StrategyHighRisk)
	require.Len(t, high, 1)
	assert.Equal(t, string(rules.RiskHigh), high[0].Payload.(StrategyEvent).RiskClass)
}

func TestCreateStrategyAnomalyFailureUnbiased(t *testing.T) {
	pred := &mutablePrediction{score: 80}
	fx := newFixture(t,
		[]strategy.Option{strategy.WithPrediction(pred)},
		WithAnomaly(stubAnomaly{err: errors.New("detector offline")}),
	)

	p, err := fx.manager.CreateStrategy(context.Background(), "Clean up the build cache",
		map[string]string{"risk": "high"})
	require.NoError(t, err)
	require.Greater(t, p.RiskScore, 60.0)

	assert.Empty(t, fx.publisher.named(events.StrategyHighRisk))
}

func TestEvaluateStrategyIdempotent(t *testing.T) {
	fx := newFixture(t, nil)

	p, err := fx.manager.CreateStrategy(context.Background(), "Monitor the ingestion lag", nil)
	require.NoError(t, err)

	r1 := fx.manager.EvaluateStrategy(p)
	r2 := fx.manager.EvaluateStrategy(p)
	assert.Equal(t, r1, r2)
	assert.Equal(t, p.ID, r1.PlanID)
	assert.True(t, r1.Validation.Approved)
	assert.Greater(t, r1.Simulation.SuccessProbability, 0.0)
}

func TestOptimizeStrategy(t *testing.T) {
	fx := newFixture(t, nil)

	p, err := fx.manager.CreateStrategy(context.Background(), "Investigate the cache misses", nil)
	require.NoError(t, err)
	target := p.Steps[len(p.Steps)-1].Actions[0].ID

	refined, err := fx.manager.OptimizeStrategy(context.Background(), p.ID, strategy.Feedback{
		RemoveActions: []string{target},
		Notes:         "reviewer pass",
	})
	require.NoError(t, err)

	_, _, found := refined.FindAction(target)
	assert.False(t, found)

	stored, err := fx.registry.Get(p.ID)
	require.NoError(t, err)
	_, _, found = stored.FindAction(target)
	assert.False(t, found, "registry should hold the refined snapshot")

	assert.Len(t, fx.publisher.named(events.StrategyOptimized), 1)
	assert.Equal(t, []string{"created", "optimized"}, fx.memory.kinds())
}

func TestOptimizeStrategyUnknownPlan(t *testing.T) {
	fx := newFixture(t, nil)

	_, err := fx.manager.OptimizeStrategy(context.Background(), "no-such-plan", strategy.Feedback{})
	require.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, fx.publisher.named(events.StrategyOptimized))
	assert.Equal(t, uint64(0), fx.manager.Statistics().Optimized)
}

func TestOptimizeStrategyHighRiskCrossing(t *testing.T) {
	pred := &mutablePrediction{err: collab.ErrUnavailable}
	fx := newFixture(t, []strategy.Option{strategy.WithPrediction(pred)})

	p, err := fx.manager.CreateStrategy(context.Background(), "Clean up the build cache", nil)
	require.NoError(t, err)
	require.Less(t, p.RiskScore, 60.0)
	require.Empty(t, fx.publisher.named(events.StrategyHighRisk))

	pred.set(100, nil)
	refined, err := fx.manager.OptimizeStrategy(context.Background(), p.ID, strategy.Feedback{
		RiskHint: "critical",
	})
	require.NoError(t, err)
	require.Greater(t, refined.RiskScore, 80.0)

	high := fx.publisher.named(events.StrategyHighRisk)
	require.Len(t, high, 1, "crossing into the high bucket emits exactly one event")

	// Optimizing again while already high must not re-emit.
	_, err = fx.manager.OptimizeStrategy(context.Background(), p.ID, strategy.Feedback{Notes: "again"})
	require.NoError(t, err)
	assert.Len(t, fx.publisher.named(events.StrategyHighRisk), 1)
}

func TestSimulateOutcomeEmitsEvent(t *testing.T) {
	fx := newFixture(t, nil)

	p, err := fx.manager.CreateStrategy(context.Background(), "Monitor the ingestion lag", nil)
	require.NoError(t, err)

	res := fx.manager.SimulateOutcome(p)
	assert.Greater(t, res.SuccessProbability, 0.0)

	sims := fx.publisher.named(events.OutcomeSimulated)
	require.Len(t, sims, 1)
	evt := sims[0].Payload.(SimulationEvent)
	assert.Equal(t, p.ID, evt.PlanID)
	assert.Equal(t, res.SuccessProbability, evt.SuccessProbability)
}

func TestExecuteAtomicAction(t *testing.T) {
	fx := newFixture(t, nil)

	p, err := fx.manager.CreateStrategy(context.Background(), "Investigate the cache misses", nil)
	require.NoError(t, err)
	actionID := p.Steps[0].Actions[0].ID

	res, err := fx.manager.ExecuteAtomicAction(context.Background(), p.ID, actionID)
	require.NoError(t, err)
	assert.Equal(t, plan.ActionStatusCompleted, res.Status)
	assert.Equal(t, "done", res.Output)
	assert.Equal(t, 1, fx.executor.calls)

	stored, _ := fx.registry.Get(p.ID)
	a, _, ok := stored.FindAction(actionID)
	require.True(t, ok)
	assert.Equal(t, plan.ActionStatusCompleted, a.Status)

	execs := fx.publisher.named(events.ActionExecuted)
	require.Len(t, execs, 1)
	assert.Equal(t, string(plan.ActionStatusCompleted), execs[0].Payload.(ExecutionEvent).Status)

	// A completed action cannot be executed again.
	_, err = fx.manager.ExecuteAtomicAction(context.Background(), p.ID, actionID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 1, fx.executor.calls)
}

func TestExecuteAtomicActionFailureAndRetry(t *testing.T) {
	fx := newFixture(t, nil)
	fx.executor.fail = true

	p, err := fx.manager.CreateStrategy(context.Background(), "Deploy the config change", nil)
	require.NoError(t, err)
	actionID := p.Steps[0].Actions[0].ID

	res, err := fx.manager.ExecuteAtomicAction(context.Background(), p.ID, actionID)
	require.NoError(t, err)
	assert.Equal(t, plan.ActionStatusFailed, res.Status)

	require.NoError(t, fx.manager.RetryAtomicAction(p.ID, actionID))
	stored, _ := fx.registry.Get(p.ID)
	a, _, ok := stored.FindAction(actionID)
	require.True(t, ok)
	assert.Equal(t, plan.ActionStatusPending, a.Status)

	fx.executor.fail = false
	res, err = fx.manager.ExecuteAtomicAction(context.Background(), p.ID, actionID)
	require.NoError(t, err)
	assert.Equal(t, plan.ActionStatusCompleted, res.Status)

	// Retry is only legal from failed.
	require.ErrorIs(t, fx.manager.RetryAtomicAction(p.ID, actionID), ErrInvalidTransition)
}

func TestExecuteAtomicActionUnknown(t *testing.T) {
	fx := newFixture(t, nil)

	p, err := fx.manager.CreateStrategy(context.Background(), "Investigate the cache misses", nil)
	require.NoError(t, err)

	_, err = fx.manager.ExecuteAtomicAction(context.Background(), p.ID, "act-missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = fx.manager.ExecuteAtomicAction(context.Background(), "no-such-plan", "act-missing")
	require.ErrorIs(t, err, ErrNotFound)

	// Nothing transitioned, nothing executed.
	assert.Equal(t, 0, fx.executor.calls)
	stored, _ := fx.registry.Get(p.ID)
	for _, s := range stored.Steps {
		for _, a := range s.Actions {
			assert.Equal(t, plan.ActionStatusPending, a.Status)
		}
	}
}

func TestExecuteAtomicActionDenied(t *testing.T) {
	t.Run("explicit denial", func(t *testing.T) {
		fx := newFixture(t, nil, WithSecurity(stubSecurity{allow: false}))

		p, err := fx.manager.CreateStrategy(context.Background(), "Deploy the config change", nil)
		require.NoError(t, err)
		actionID := p.Steps[0].Actions[0].ID

		_, err = fx.manager.ExecuteAtomicAction(context.Background(), p.ID, actionID)
		require.ErrorIs(t, err, ErrPermissionDenied)
		assert.Equal(t, 0, fx.executor.calls)

		stored, _ := fx.registry.Get(p.ID)
		a, _, ok := stored.FindAction(actionID)
		require.True(t, ok)
		assert.Equal(t, plan.ActionStatusRejected, a.Status)
	})

	t.Run("collaborator failure denies", func(t *testing.T) {
		fx := newFixture(t, nil, WithSecurity(stubSecurity{allow: true, err: errors.New("acl service down")}))

		p, err := fx.manager.CreateStrategy(context.Background(), "Deploy the config change", nil)
		require.NoError(t, err)
		actionID := p.Steps[0].Actions[0].ID

		_, err = fx.manager.ExecuteAtomicAction(context.Background(), p.ID, actionID)
		require.ErrorIs(t, err, ErrPermissionDenied)
		assert.Equal(t, 0, fx.executor.calls)
	})
}

func TestDisabledSemantics(t *testing.T) {
	fx := newFixture(t, nil)

	p, err := fx.manager.CreateStrategy(context.Background(), "Investigate the cache misses", nil)
	require.NoError(t, err)

	fx.manager.Disable()
	assert.False(t, fx.manager.Enabled())

	_, err = fx.manager.CreateStrategy(context.Background(), "another objective", nil)
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = fx.manager.OptimizeStrategy(context.Background(), p.ID, strategy.Feedback{})
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = fx.manager.ExecuteAtomicAction(context.Background(), p.ID, p.Steps[0].Actions[0].ID)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, fx.manager.RetryAtomicAction(p.ID, "x"), ErrDisabled)
	assert.ErrorIs(t, fx.manager.Archive(context.Background(), p.ID), ErrDisabled)

	// Read-only queries keep working while disabled.
	assert.Len(t, fx.manager.ActiveStrategies(), 1)
	assert.Equal(t, 1, fx.manager.Statistics().ActivePlans)
	rec := fx.manager.EvaluateStrategy(p)
	assert.True(t, rec.Validation.Approved)

	fx.manager.Enable()
	_, err = fx.manager.CreateStrategy(context.Background(), "another objective", nil)
	assert.NoError(t, err)
}

func TestStatistics(t *testing.T) {
	fx := newFixture(t, nil)

	p1, err := fx.manager.CreateStrategy(context.Background(), "Investigate the cache misses", nil)
	require.NoError(t, err)
	_, err = fx.manager.CreateStrategy(context.Background(), "Monitor the ingestion lag", nil)
	require.NoError(t, err)
	_, err = fx.manager.CreateStrategy(context.Background(), "purge with rm -rf /", nil)
	require.Error(t, err)

	_, err = fx.manager.OptimizeStrategy(context.Background(), p1.ID, strategy.Feedback{Notes: "pass"})
	require.NoError(t, err)

	stats := fx.manager.Statistics()
	assert.Equal(t, 2, stats.ActivePlans)
	assert.Equal(t, uint64(2), stats.Created)
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Equal(t, uint64(1), stats.Optimized)
	assert.Equal(t, 2, stats.ByStatus[string(plan.PlanStatusActive)])
	assert.Equal(t, 2, stats.ByRiskClass[string(rules.RiskLow)])
}

func TestArchive(t *testing.T) {
	fx := newFixture(t, nil)

	p, err := fx.manager.CreateStrategy(context.Background(), "Investigate the cache misses", nil)
	require.NoError(t, err)

	require.NoError(t, fx.manager.Archive(context.Background(), p.ID))
	assert.False(t, fx.registry.Exists(p.ID))
	assert.Equal(t, []string{"created", "archived"}, fx.memory.kinds())

	require.ErrorIs(t, fx.manager.Archive(context.Background(), p.ID), ErrNotFound)
}

func TestMemoryFailureAbsorbed(t *testing.T) {
	validator, err := rules.New(rules.DefaultConfig())
	require.NoError(t, err)
	engine := strategy.NewEngine(validator)

	failing := failingMemory{}
	m := New(engine, validator, reasoning.NewEngine(), WithMemory(failing))

	p, err := m.CreateStrategy(context.Background(), "Investigate the cache misses", nil)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

type failingMemory struct{}

func (failingMemory) StoreEpisode(context.Context, collab.Episode) (string, error) {
	return "", errors.New("store offline")
}

func TestConcurrentOptimize(t *testing.T) {
	fx := newFixture(t, nil)

	p, err := fx.manager.CreateStrategy(context.Background(), "Monitor the ingestion lag", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.manager.OptimizeStrategy(context.Background(), p.ID, strategy.Feedback{Notes: "pass"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8), fx.manager.Statistics().Optimized)
	assert.Equal(t, 1, fx.registry.Count())
}
