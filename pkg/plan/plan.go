package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewPlan creates an empty plan for the given objective with a fresh id.
func NewPlan(objective string, context map[string]string) *HighLevelPlan {
	now := time.Now()
	snapshot := make(map[string]string, len(context))
	for k, v := range context {
		snapshot[k] = v
	}
	return &HighLevelPlan{
		ID:        uuid.New().String(),
		Objective: objective,
		Status:    PlanStatusActive,
		Context:   snapshot,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewStep creates a step with a fresh short id.
func NewStep(description string) MidLevelStep {
	id, _ := gonanoid.New()
	return MidLevelStep{
		ID:          "step-" + id,
		Description: description,
	}
}

// NewAction creates a pending action with a fresh short id.
func NewAction(description string, typ ActionType, priority Priority) AtomicAction {
	id, _ := gonanoid.New()
	return AtomicAction{
		ID:          "act-" + id,
		Description: description,
		Type:        typ,
		Priority:    priority,
		Status:      ActionStatusPending,
	}
}

// TotalActions returns the atomic-action count across all steps.
func (p *HighLevelPlan) TotalActions() int {
	total := 0
	for i := range p.Steps {
		total += len(p.Steps[i].Actions)
	}
	return total
}

// FindAction locates an action by id. The second return is the owning step.
func (p *HighLevelPlan) FindAction(actionID string) (*AtomicAction, *MidLevelStep, bool) {
	for i := range p.Steps {
		step := &p.Steps[i]
		for j := range step.Actions {
			if step.Actions[j].ID == actionID {
				return &step.Actions[j], step, true
			}
		}
	}
	return nil, nil, false
}

// Clone returns a deep copy of the plan. Optimization replaces registry
// entries with fresh snapshots, so shared nested slices are never mutated
// through two references.
func (p *HighLevelPlan) Clone() *HighLevelPlan {
	out := *p
	out.Steps = make([]MidLevelStep, len(p.Steps))
	for i, s := range p.Steps {
		cs := s
		cs.Actions = make([]AtomicAction, len(s.Actions))
		copy(cs.Actions, s.Actions)
		out.Steps[i] = cs
	}
	out.Context = make(map[string]string, len(p.Context))
	for k, v := range p.Context {
		out.Context[k] = v
	}
	return &out
}

// Descriptions returns every description field in the plan, root first,
// in step/action order. Used by the rules validator keyword scan.
func (p *HighLevelPlan) Descriptions() []string {
	out := make([]string, 0, 1+len(p.Steps)+p.TotalActions())
	out = append(out, p.Objective)
	for i := range p.Steps {
		out = append(out, p.Steps[i].Description)
		for j := range p.Steps[i].Actions {
			out = append(out, p.Steps[i].Actions[j].Description)
		}
	}
	return out
}

// CheckLimits validates the plan against the structural limits.
func (p *HighLevelPlan) CheckLimits() error {
	if len(p.Steps) > MaxSteps {
		return fmt.Errorf("plan has %d steps, limit is %d", len(p.Steps), MaxSteps)
	}
	if total := p.TotalActions(); total > MaxAtomicActions {
		return fmt.Errorf("plan has %d atomic actions, limit is %d", total, MaxAtomicActions)
	}
	for _, d := range p.Descriptions() {
		if len(d) > MaxDescriptionLength {
			return fmt.Errorf("description length %d exceeds limit %d", len(d), MaxDescriptionLength)
		}
	}
	return nil
}

// Touch updates the modification timestamp.
func (p *HighLevelPlan) Touch() {
	p.UpdatedAt = time.Now()
}
