package plan

import "strings"

// StrategyTemplate produces pre-filled plan skeletons for a recurring
// objective category. Templates are read-only once constructed.
type StrategyTemplate struct {
	Category string         `json:"category"`
	Keywords []string       `json:"keywords"`
	Steps    []TemplateStep `json:"steps"`
}

// TemplateStep describes one skeleton step.
type TemplateStep struct {
	Description string           `json:"description"`
	Actions     []TemplateAction `json:"actions"`
}

// TemplateAction describes one skeleton action.
type TemplateAction struct {
	Description string     `json:"description"`
	Type        ActionType `json:"type"`
	Priority    string     `json:"priority,omitempty"`
}

// Matches reports whether the objective belongs to this template's
// category, by case-insensitive keyword containment.
func (t *StrategyTemplate) Matches(objective string) bool {
	lower := strings.ToLower(objective)
	for _, kw := range t.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Instantiate produces a new plan skeleton from the template. Every
// produced entity gets fresh identifiers; the template itself is never
// mutated.
func (t *StrategyTemplate) Instantiate(objective string, context map[string]string) *HighLevelPlan {
	p := NewPlan(objective, context)
	p.Steps = make([]MidLevelStep, 0, len(t.Steps))
	for _, ts := range t.Steps {
		step := NewStep(ts.Description)
		step.Actions = make([]AtomicAction, 0, len(ts.Actions))
		for _, ta := range ts.Actions {
			step.Actions = append(step.Actions, NewAction(ta.Description, ta.Type, ParsePriority(ta.Priority)))
		}
		p.Steps = append(p.Steps, step)
	}
	return p
}
