package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wibisana/lakon/pkg/plan"
)

func samplePlan(steps, actionsPerStep int, risk float64) *plan.HighLevelPlan {
	p := plan.NewPlan("sample objective", nil)
	p.RiskScore = risk
	for i := 0; i < steps; i++ {
		step := plan.NewStep("phase")
		for j := 0; j < actionsPerStep; j++ {
			step.Actions = append(step.Actions,
				plan.NewAction("work item", plan.ActionTypeAnalyze, plan.PriorityMedium))
		}
		p.Steps = append(p.Steps, step)
	}
	return p
}

func TestBuildChainOfThought(t *testing.T) {
	e := NewEngine()
	p := samplePlan(3, 2, 45)

	chain := e.BuildChainOfThought(p)
	require.Len(t, chain, 5)

	assert.Contains(t, chain[0].Premise, "sample objective")
	assert.Contains(t, chain[1].Premise, "Phase 1")
	assert.Contains(t, chain[4].Premise, "45.0")
	assert.Contains(t, chain[4].Inference, "acceptable")

	p.RiskScore = 85
	chain = e.BuildChainOfThought(p)
	assert.Contains(t, chain[4].Inference, "review")
}

func TestBuildDecisionTree(t *testing.T) {
	e := NewEngine()
	p := samplePlan(2, 1, 10)

	root := e.BuildDecisionTree(p)
	require.NotNil(t, root)
	assert.Contains(t, root.Decision, "sample objective")

	phase1 := root.Branches["proceed"]
	require.NotNil(t, phase1)
	require.NotNil(t, phase1.Branches["failure"])
	assert.NotNil(t, phase1.Branches["failure"].Branches["retry"])
	assert.NotNil(t, phase1.Branches["failure"].Branches["abort"])

	phase2 := phase1.Branches["proceed"]
	require.NotNil(t, phase2)
	leaf := phase2.Branches["success"]
	require.NotNil(t, leaf)
	assert.Equal(t, "Objective satisfied", leaf.Decision)
	assert.Empty(t, leaf.Branches)
}

func TestSimulateDeterminism(t *testing.T) {
	e := NewEngine()
	p := samplePlan(4, 3, 55)

	r1 := e.SimulateOutcome(p)
	r2 := e.SimulateOutcome(p)
	assert.Equal(t, r1, r2)

	// A clone with identical content simulates identically too
	assert.Equal(t, r1, e.SimulateOutcome(p.Clone()))
}

func TestSimulateMonotonicity(t *testing.T) {
	e := NewEngine()

	t.Run("risk lowers success", func(t *testing.T) {
		prev := 2.0
		for _, risk := range []float64{0, 20, 40, 60, 80, 100} {
			p := samplePlan(3, 2, risk)
			got := e.SimulateOutcome(p).SuccessProbability
			assert.Less(t, got, prev, "risk %v", risk)
			prev = got
		}
	})

	t.Run("steps lower success", func(t *testing.T) {
		prev := 2.0
		for steps := 1; steps <= 10; steps++ {
			p := samplePlan(steps, 1, 30)
			got := e.SimulateOutcome(p).SuccessProbability
			assert.Less(t, got, prev, "steps %d", steps)
			prev = got
		}
	})

	t.Run("floor", func(t *testing.T) {
		p := samplePlan(plan.MaxSteps, 2, 100)
		got := e.SimulateOutcome(p).SuccessProbability
		assert.GreaterOrEqual(t, got, 0.01)
	})
}

func TestSimulateCostAndDuration(t *testing.T) {
	e := NewEngine()

	p := plan.NewPlan("obj", nil)
	step := plan.NewStep("s")
	step.Actions = append(step.Actions,
		plan.NewAction("a", plan.ActionTypeAnalyze, plan.PriorityLow),
		plan.NewAction("b", plan.ActionTypeAnalyze, plan.PriorityCritical),
	)
	p.Steps = append(p.Steps, step)

	res := e.SimulateOutcome(p)
	assert.Equal(t, 25.0, res.EstimatedCost)       // 10*0.5 + 10*2.0
	assert.Equal(t, 39.375, res.EstimatedDuration) // (15*0.5 + 15*2.0) * 1.05
	assert.Equal(t, res, e.SimulateOutcome(p.Clone()))
}

func TestKeyRisks(t *testing.T) {
	e := NewEngine()

	t.Run("type risks", func(t *testing.T) {
		p := plan.NewPlan("obj", nil)
		step := plan.NewStep("s")
		step.Actions = append(step.Actions,
			plan.NewAction("a", plan.ActionTypeDeploy, plan.PriorityMedium),
			plan.NewAction("b", plan.ActionTypeCleanup, plan.PriorityMedium),
		)
		p.Steps = append(p.Steps, step)

		res := e.SimulateOutcome(p)
		assert.Contains(t, res.KeyRisks, "deployment may require rollback")
		assert.Contains(t, res.KeyRisks, "cleanup removes data irreversibly")
		assert.True(t, sortedStrings(res.KeyRisks))
	})

	t.Run("score risks", func(t *testing.T) {
		p := samplePlan(2, 1, 85)
		res := e.SimulateOutcome(p)
		assert.Contains(t, res.KeyRisks, "risk score exceeds high threshold")

		p.RiskScore = 70
		res = e.SimulateOutcome(p)
		assert.Contains(t, res.KeyRisks, "elevated risk score")
		assert.NotContains(t, res.KeyRisks, "risk score exceeds high threshold")
	})

	t.Run("size risks", func(t *testing.T) {
		p := samplePlan(plan.MaxSteps/2+1, 3, 10)
		res := e.SimulateOutcome(p)
		assert.Contains(t, res.KeyRisks, "large failure surface from step count")
		assert.Contains(t, res.KeyRisks, "large failure surface from action count")
	})
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}
