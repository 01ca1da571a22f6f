package strategy

import (
	"context"
	"strings"

	"github.com/wibisana/lakon/pkg/plan"
	"github.com/wibisana/lakon/pkg/rules"
)

// Feedback drives a refinement pass over an existing plan.
type Feedback struct {
	// RemoveActions lists action ids to drop.
	RemoveActions []string `json:"remove_actions,omitempty"`
	// Reprioritize maps action ids to new priority names.
	Reprioritize map[string]string `json:"reprioritize,omitempty"`
	// AddActions appends new actions to named steps.
	AddActions []ActionRequest `json:"add_actions,omitempty"`
	// RiskHint overrides the context risk hint for rescoring.
	RiskHint string `json:"risk_hint,omitempty"`
	// Notes is free-form reviewer commentary, recorded in the context.
	Notes string `json:"notes,omitempty"`
}

// ActionRequest describes one action to add during refinement.
type ActionRequest struct {
	StepID      string          `json:"step_id"`
	Description string          `json:"description"`
	Type        plan.ActionType `json:"type"`
	Priority    string          `json:"priority,omitempty"`
}

// Empty reports whether the feedback requests no explicit change.
func (f Feedback) Empty() bool {
	return len(f.RemoveActions) == 0 && len(f.Reprioritize) == 0 &&
		len(f.AddActions) == 0 && f.RiskHint == "" && f.Notes == ""
}

// Refine applies feedback to a plan and returns a new snapshot: surviving
// actions keep their identifiers, newly added ones get fresh ids. The
// result never exceeds the structural limits; excess actions are dropped
// newest first, deterministically. The refined plan is re-validated and a
// hard violation yields a *rules.ValidationError.
func (e *Engine) Refine(ctx context.Context, p *plan.HighLevelPlan, fb Feedback) (*plan.HighLevelPlan, error) {
	out := p.Clone()

	removeActions(out, fb.RemoveActions)
	reprioritize(out, fb.Reprioritize)
	addActions(out, fb.AddActions)

	if fb.RiskHint != "" {
		out.Context["risk"] = strings.ToLower(fb.RiskHint)
	}
	if fb.Notes != "" {
		out.Context["last_feedback"] = fb.Notes
	}

	truncateToLimits(out)

	out.RiskScore = e.computeRiskScore(ctx, out, out.Context)
	if conflicts := DetectConflicts(out); len(conflicts) > 0 {
		out.Status = plan.PlanStatusNeedsReview
	} else if out.Status == plan.PlanStatusNeedsReview {
		out.Status = plan.PlanStatusActive
	}
	out.Touch()

	if res := e.validator.Validate(out); !res.Approved {
		return nil, &rules.ValidationError{Result: res}
	}

	e.logger.Debug().
		Str("plan_id", out.ID).
		Float64("risk_score", out.RiskScore).
		Int("actions", out.TotalActions()).
		Msg("Plan refined")

	return out, nil
}

func removeActions(p *plan.HighLevelPlan, ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	for i := range p.Steps {
		kept := p.Steps[i].Actions[:0]
		for _, a := range p.Steps[i].Actions {
			if _, gone := drop[a.ID]; !gone {
				kept = append(kept, a)
			}
		}
		p.Steps[i].Actions = kept
	}
}

func reprioritize(p *plan.HighLevelPlan, changes map[string]string) {
	for id, prio := range changes {
		if a, _, ok := p.FindAction(id); ok {
			a.Priority = plan.ParsePriority(strings.ToLower(prio))
		}
	}
}

// addActions appends to the named step, or to the last step when the
// step id is unknown or empty.
func addActions(p *plan.HighLevelPlan, reqs []ActionRequest) {
	for _, req := range reqs {
		if len(p.Steps) == 0 {
			p.Steps = append(p.Steps, plan.NewStep("Additional work"))
		}
		target := len(p.Steps) - 1
		for i := range p.Steps {
			if p.Steps[i].ID == req.StepID {
				target = i
				break
			}
		}
		a := plan.NewAction(req.Description, req.Type, plan.ParsePriority(req.Priority))
		p.Steps[target].Actions = append(p.Steps[target].Actions, a)
	}
}

// truncateToLimits drops excess structure deterministically: whole steps
// from the tail first, then actions from the tail of the last steps,
// so the most recently added work is dropped first.
func truncateToLimits(p *plan.HighLevelPlan) {
	if len(p.Steps) > plan.MaxSteps {
		p.Steps = p.Steps[:plan.MaxSteps]
	}
	for p.TotalActions() > plan.MaxAtomicActions {
		for i := len(p.Steps) - 1; i >= 0; i-- {
			acts := p.Steps[i].Actions
			if len(acts) > 0 {
				p.Steps[i].Actions = acts[:len(acts)-1]
				break
			}
		}
	}
}
