package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wibisana/lakon/pkg/orchestrator"
	"github.com/wibisana/lakon/pkg/plan"
	"github.com/wibisana/lakon/pkg/reasoning"
	"github.com/wibisana/lakon/pkg/rules"
	"github.com/wibisana/lakon/pkg/strategy"
)

func newManager(t *testing.T, registry *orchestrator.Registry) *orchestrator.Manager {
	t.Helper()
	validator, err := rules.New(rules.DefaultConfig())
	require.NoError(t, err)
	engine := strategy.NewEngine(validator)
	return orchestrator.New(engine, validator, reasoning.NewEngine(),
		orchestrator.WithRegistry(registry))
}

func seededPlan(riskScore float64, age time.Duration) *plan.HighLevelPlan {
	p := plan.NewPlan("seeded objective", nil)
	step := plan.NewStep("step")
	step.Actions = append(step.Actions,
		plan.NewAction("analyze the seeded objective", plan.ActionTypeAnalyze, plan.PriorityMedium))
	p.Steps = append(p.Steps, step)
	p.RiskScore = riskScore
	p.CreatedAt = time.Now().Add(-age)
	return p
}

func TestNewInvalidCron(t *testing.T) {
	m := newManager(t, orchestrator.NewRegistry())

	_, err := New(m, Config{CronExpr: "not a cron"}, zerolog.Nop())
	require.Error(t, err)

	o, err := New(m, Config{CronExpr: "*/5 * * * *"}, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, o)
}

func TestRunOnceIfDueScheduling(t *testing.T) {
	m := newManager(t, orchestrator.NewRegistry())
	o, err := New(m, Config{Interval: 5 * time.Minute}, zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	assert.True(t, o.RunOnceIfDue(context.Background(), now), "first tick should run")
	assert.False(t, o.RunOnceIfDue(context.Background(), now.Add(time.Minute)), "not due yet")
	assert.False(t, o.RunOnceIfDue(context.Background(), now.Add(4*time.Minute)), "still not due")
	assert.True(t, o.RunOnceIfDue(context.Background(), now.Add(5*time.Minute)), "due again")
}

func TestRunOnceIfDueCronSchedule(t *testing.T) {
	m := newManager(t, orchestrator.NewRegistry())
	o, err := New(m, Config{CronExpr: "0 * * * *"}, zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2026, 8, 20, 12, 30, 0, 0, time.UTC)

	require.True(t, o.RunOnceIfDue(context.Background(), now))
	assert.False(t, o.RunOnceIfDue(context.Background(), now.Add(20*time.Minute)), "before the hour")
	assert.True(t, o.RunOnceIfDue(context.Background(), now.Add(30*time.Minute)), "on the hour")
}

func TestRunOnceIfDueSkipsWhileRunning(t *testing.T) {
	m := newManager(t, orchestrator.NewRegistry())
	o, err := New(m, DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)

	o.running.Store(true)
	assert.False(t, o.RunOnceIfDue(context.Background(), time.Now()))
	o.running.Store(false)
	assert.True(t, o.RunOnceIfDue(context.Background(), time.Now()))
}

func TestSelection(t *testing.T) {
	registry := orchestrator.NewRegistry()
	m := newManager(t, registry)

	fresh := seededPlan(10, 0)
	risky := seededPlan(70, 0)
	stale := seededPlan(10, 2*time.Hour)
	require.NoError(t, registry.Register(fresh))
	require.NoError(t, registry.Register(risky))
	require.NoError(t, registry.Register(stale))

	o, err := New(m, Config{Interval: time.Minute, MaxPlanAge: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	require.True(t, o.RunOnceIfDue(context.Background(), time.Now()))

	// The risky and the stale plan are optimized, the fresh low-risk one
	// is left alone.
	assert.Equal(t, uint64(2), m.Statistics().Optimized)

	got, err := registry.Get(fresh.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Context["last_feedback"])

	got, err = registry.Get(risky.ID)
	require.NoError(t, err)
	assert.Equal(t, "periodic optimization", got.Context["last_feedback"])
}

func TestPerPlanFailureIsolation(t *testing.T) {
	registry := orchestrator.NewRegistry()
	m := newManager(t, registry)

	// Registered directly, so validation never saw the forbidden keyword.
	// Refinement re-validates and fails for this plan only.
	bad := seededPlan(70, 0)
	bad.Steps[0].Actions[0].Description = "run rm -rf on the stale volumes"
	good := seededPlan(70, 0)
	require.NoError(t, registry.Register(bad))
	require.NoError(t, registry.Register(good))

	o, err := New(m, Config{Interval: time.Minute}, zerolog.Nop())
	require.NoError(t, err)

	require.True(t, o.RunOnceIfDue(context.Background(), time.Now()))

	assert.Equal(t, uint64(1), m.Statistics().Optimized)
	got, err := registry.Get(good.ID)
	require.NoError(t, err)
	assert.Equal(t, "periodic optimization", got.Context["last_feedback"])
}

func TestDisabledAbortsPass(t *testing.T) {
	registry := orchestrator.NewRegistry()
	m := newManager(t, registry)
	require.NoError(t, registry.Register(seededPlan(70, 0)))
	require.NoError(t, registry.Register(seededPlan(70, 0)))

	m.Disable()

	o, err := New(m, Config{Interval: time.Minute}, zerolog.Nop())
	require.NoError(t, err)

	require.True(t, o.RunOnceIfDue(context.Background(), time.Now()))
	assert.Equal(t, uint64(0), m.Statistics().Optimized)
}
