package reasoning

import (
	"math"
	"sort"

	"github.com/wibisana/lakon/pkg/plan"
)

// SimulationResult is the predicted outcome of a plan. Identical plan
// content always yields an identical result.
type SimulationResult struct {
	SuccessProbability float64  `json:"success_probability"`
	EstimatedCost      float64  `json:"estimated_cost"`
	EstimatedDuration  float64  `json:"estimated_duration"`
	KeyRisks           []string `json:"key_risks,omitempty"`
}

// Tuning parameters for the outcome model. Success probability is
// strictly monotone decreasing in both risk score and step count.
const (
	baseSuccess   = 0.98
	riskPenalty   = 0.007 // per risk point
	stepDecay     = 0.985 // per step
	actionCost    = 10.0  // cost units per action at medium priority
	actionMinutes = 15.0  // duration units per action
)

// SimulateOutcome predicts success probability, cost, and duration for a
// plan without executing anything. No hidden randomness: a rerun on an
// unchanged plan reproduces the result exactly.
func (e *Engine) SimulateOutcome(p *plan.HighLevelPlan) SimulationResult {
	steps := len(p.Steps)
	actions := p.TotalActions()

	success := baseSuccess * (1 - riskPenalty*p.RiskScore) * math.Pow(stepDecay, float64(steps))
	if success < 0.01 {
		success = 0.01
	}

	var cost, duration float64
	for i := range p.Steps {
		for _, a := range p.Steps[i].Actions {
			w := priorityWeight(a.Priority)
			cost += actionCost * w
			duration += actionMinutes * w
		}
	}
	// Sequential phases add coordination overhead.
	duration *= 1 + 0.05*float64(steps)

	return SimulationResult{
		SuccessProbability: round4(success),
		EstimatedCost:      round4(cost),
		EstimatedDuration:  round4(duration),
		KeyRisks:           keyRisks(p, actions),
	}
}

func priorityWeight(p plan.Priority) float64 {
	switch p {
	case plan.PriorityLow:
		return 0.5
	case plan.PriorityHigh:
		return 1.5
	case plan.PriorityCritical:
		return 2.0
	default:
		return 1.0
	}
}

// keyRisks derives the named risk set: sorted, deduplicated.
func keyRisks(p *plan.HighLevelPlan, actions int) []string {
	set := make(map[string]struct{})

	if p.RiskScore > 80 {
		set["risk score exceeds high threshold"] = struct{}{}
	} else if p.RiskScore > 60 {
		set["elevated risk score"] = struct{}{}
	}
	if len(p.Steps) > plan.MaxSteps/2 {
		set["large failure surface from step count"] = struct{}{}
	}
	if actions > plan.MaxAtomicActions/2 {
		set["large failure surface from action count"] = struct{}{}
	}

	for i := range p.Steps {
		for _, a := range p.Steps[i].Actions {
			switch a.Type {
			case plan.ActionTypeDeploy:
				set["deployment may require rollback"] = struct{}{}
			case plan.ActionTypeCleanup:
				set["cleanup removes data irreversibly"] = struct{}{}
			case plan.ActionTypeMitigate:
				set["mitigation may have side effects"] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
