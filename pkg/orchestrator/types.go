package orchestrator

import (
	"github.com/wibisana/lakon/pkg/plan"
	"github.com/wibisana/lakon/pkg/reasoning"
	"github.com/wibisana/lakon/pkg/rules"
)

// EvaluationRecord combines validation and simulation for one plan.
// Evaluation is read-only and repeatable: the record carries no
// timestamps so identical plans evaluate identically.
type EvaluationRecord struct {
	PlanID     string                     `json:"plan_id"`
	RiskScore  float64                    `json:"risk_score"`
	Validation rules.ValidationResult     `json:"validation"`
	Simulation reasoning.SimulationResult `json:"simulation"`
}

// ExecutionResult reports the recorded outcome of one atomic action.
type ExecutionResult struct {
	PlanID   string            `json:"plan_id"`
	ActionID string            `json:"action_id"`
	Status   plan.ActionStatus `json:"status"`
	Output   string            `json:"output,omitempty"`
}

// Statistics is an aggregate view over the registry and the counters
// accumulated since construction.
type Statistics struct {
	ActivePlans int            `json:"active_plans"`
	ByStatus    map[string]int `json:"by_status"`
	ByRiskClass map[string]int `json:"by_risk_class"`
	Created     uint64         `json:"created"`
	Rejected    uint64         `json:"rejected"`
	Optimized   uint64         `json:"optimized"`
	Executed    uint64         `json:"executed"`
}

// Event payloads published on the event transport.

// StrategyEvent accompanies creation, optimization, rejection, and
// high-risk events.
type StrategyEvent struct {
	PlanID     string   `json:"plan_id"`
	Objective  string   `json:"objective"`
	RiskScore  float64  `json:"risk_score"`
	RiskClass  string   `json:"risk_class"`
	Violations []string `json:"violations,omitempty"`
}

// ExecutionEvent accompanies action execution events.
type ExecutionEvent struct {
	PlanID   string `json:"plan_id"`
	ActionID string `json:"action_id"`
	Status   string `json:"status"`
}

// SimulationEvent accompanies simulation-result events.
type SimulationEvent struct {
	PlanID             string  `json:"plan_id"`
	SuccessProbability float64 `json:"success_probability"`
	EstimatedCost      float64 `json:"estimated_cost"`
	EstimatedDuration  float64 `json:"estimated_duration"`
}
