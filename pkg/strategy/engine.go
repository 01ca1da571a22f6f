// Package strategy implements the plan builder: decomposition of a
// natural-language objective into a validated three-tier plan, and
// feedback-driven refinement of existing plans.
package strategy

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wibisana/lakon/pkg/collab"
	"github.com/wibisana/lakon/pkg/plan"
	"github.com/wibisana/lakon/pkg/rules"
)

// Engine decomposes objectives into plans and refines them. Decomposition
// is heuristic: action verbs and template categories map to known step
// archetypes, never a learned model.
type Engine struct {
	validator  *rules.Validator
	prediction collab.Prediction
	templates  *TemplateSet
	logger     zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPrediction sets the external risk estimator.
func WithPrediction(p collab.Prediction) Option {
	return func(e *Engine) { e.prediction = p }
}

// WithTemplates sets the strategy template set.
func WithTemplates(ts *TemplateSet) Option {
	return func(e *Engine) { e.templates = ts }
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a plan builder backed by the given validator.
func NewEngine(validator *rules.Validator, opts ...Option) *Engine {
	e := &Engine{
		validator:  validator,
		prediction: collab.NoopPrediction{},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decompose turns an objective plus context into a HighLevelPlan. The
// result is validated before it is returned; a hard violation yields the
// plan in rejected status together with a *rules.ValidationError.
func (e *Engine) Decompose(ctx context.Context, objective string, planCtx map[string]string) (*plan.HighLevelPlan, error) {
	var p *plan.HighLevelPlan
	if tpl := e.matchTemplate(objective); tpl != nil {
		p = tpl.Instantiate(objective, planCtx)
		e.logger.Debug().
			Str("plan_id", p.ID).
			Str("category", tpl.Category).
			Msg("Plan instantiated from template")
	} else {
		p = e.decomposeHeuristic(objective, planCtx)
	}

	applyUrgency(p, planCtx)
	p.RiskScore = e.computeRiskScore(ctx, p, planCtx)

	if conflicts := DetectConflicts(p); len(conflicts) > 0 {
		p.Status = plan.PlanStatusNeedsReview
		e.logger.Warn().
			Str("plan_id", p.ID).
			Strs("conflicts", conflicts).
			Msg("Plan has internal conflicts, flagged for review")
	}

	if res := e.validator.Validate(p); !res.Approved {
		p.Status = plan.PlanStatusRejected
		markRejected(p)
		return p, &rules.ValidationError{Result: res}
	}

	return p, nil
}

// decomposeHeuristic derives steps from objective keywords mapped to step
// archetypes.
func (e *Engine) decomposeHeuristic(objective string, planCtx map[string]string) *plan.HighLevelPlan {
	p := plan.NewPlan(objective, planCtx)
	arch := matchArchetype(objective)
	p.Steps = arch.synthesize(objective)
	return p
}

func (e *Engine) matchTemplate(objective string) *plan.StrategyTemplate {
	if e.templates == nil {
		return nil
	}
	return e.templates.Match(objective)
}

// applyUrgency raises or lowers action priorities from the context's
// urgency hints. Default is medium.
func applyUrgency(p *plan.HighLevelPlan, planCtx map[string]string) {
	hint := planCtx["priority"]
	if hint == "" {
		hint = planCtx["urgency"]
	}
	if hint == "" {
		return
	}
	prio := plan.ParsePriority(strings.ToLower(hint))
	for i := range p.Steps {
		for j := range p.Steps[i].Actions {
			p.Steps[i].Actions[j].Priority = prio
		}
	}
}

// markRejected moves every pending action to the terminal rejected status.
func markRejected(p *plan.HighLevelPlan) {
	for i := range p.Steps {
		for j := range p.Steps[i].Actions {
			if p.Steps[i].Actions[j].Status == plan.ActionStatusPending {
				p.Steps[i].Actions[j].Status = plan.ActionStatusRejected
			}
		}
	}
}
