package plan

import "time"

// Structural limits enforced on every HighLevelPlan.
const (
	MaxSteps             = 20
	MaxAtomicActions     = 50
	MaxDescriptionLength = 5000
)

// Priority orders actions from least to most urgent.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the canonical name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority maps a textual urgency hint to a Priority.
// Unknown values default to medium.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "medium", "":
		return PriorityMedium
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// ActionStatus represents the execution status of an atomic action.
type ActionStatus string

const (
	ActionStatusPending    ActionStatus = "pending"
	ActionStatusInProgress ActionStatus = "in_progress"
	ActionStatusCompleted  ActionStatus = "completed"
	ActionStatusFailed     ActionStatus = "failed"
	// ActionStatusRejected is terminal and assigned at validation time,
	// before the action ever becomes pending.
	ActionStatusRejected ActionStatus = "rejected"
)

// CanTransitionTo reports whether the status machine permits moving from
// s to next. The only backward edge is failed→pending (retry).
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	switch s {
	case ActionStatusPending:
		return next == ActionStatusInProgress || next == ActionStatusRejected
	case ActionStatusInProgress:
		return next == ActionStatusCompleted || next == ActionStatusFailed
	case ActionStatusFailed:
		return next == ActionStatusPending
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s ActionStatus) Terminal() bool {
	return s == ActionStatusCompleted || s == ActionStatusRejected
}

// PlanStatus represents the lifecycle status of a plan.
type PlanStatus string

const (
	PlanStatusActive      PlanStatus = "active"
	PlanStatusNeedsReview PlanStatus = "needs_review"
	PlanStatusRejected    PlanStatus = "rejected"
	PlanStatusArchived    PlanStatus = "archived"
)

// ActionType enumerates the kinds of work an atomic action may perform.
// The rules validator only approves types on its configured whitelist.
type ActionType string

const (
	ActionTypeAnalyze  ActionType = "analyze"
	ActionTypeAssess   ActionType = "assess"
	ActionTypeMitigate ActionType = "mitigate"
	ActionTypeVerify   ActionType = "verify"
	ActionTypeCollect  ActionType = "collect"
	ActionTypeNotify   ActionType = "notify"
	ActionTypeCleanup  ActionType = "cleanup"
	ActionTypeDeploy   ActionType = "deploy"
)

// DefaultActionTypes is the built-in whitelist.
func DefaultActionTypes() []ActionType {
	return []ActionType{
		ActionTypeAnalyze,
		ActionTypeAssess,
		ActionTypeMitigate,
		ActionTypeVerify,
		ActionTypeCollect,
		ActionTypeNotify,
		ActionTypeCleanup,
		ActionTypeDeploy,
	}
}

// AtomicAction is the smallest unit of work in a plan. It is owned
// exclusively by its MidLevelStep.
type AtomicAction struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Type        ActionType   `json:"type"`
	Priority    Priority     `json:"priority"`
	Status      ActionStatus `json:"status"`
}

// MidLevelStep is an ordered group of atomic actions representing one
// phase of a plan. Insertion order is execution order.
type MidLevelStep struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Actions     []AtomicAction `json:"actions"`
}

// Status derives the aggregate status of a step from its children.
func (s *MidLevelStep) Status() ActionStatus {
	if len(s.Actions) == 0 {
		return ActionStatusCompleted
	}
	completed := 0
	for _, a := range s.Actions {
		switch a.Status {
		case ActionStatusFailed:
			return ActionStatusFailed
		case ActionStatusInProgress:
			return ActionStatusInProgress
		case ActionStatusCompleted:
			completed++
		}
	}
	if completed == len(s.Actions) {
		return ActionStatusCompleted
	}
	return ActionStatusPending
}

// HighLevelPlan is the unit returned to callers: an objective decomposed
// into ordered steps, with a recomputed risk score and a context snapshot.
type HighLevelPlan struct {
	ID        string            `json:"id"`
	Objective string            `json:"objective"`
	Steps     []MidLevelStep    `json:"steps"`
	RiskScore float64           `json:"risk_score"`
	Status    PlanStatus        `json:"status"`
	Context   map[string]string `json:"context,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
