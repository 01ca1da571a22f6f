// Package reasoning builds explicit reasoning traces and decision trees
// for plans and simulates their likely outcome without executing
// anything. Simulation is fully deterministic over plan content.
package reasoning

import (
	"fmt"

	"github.com/wibisana/lakon/pkg/plan"
)

// Step is one element of a chain of thought.
type Step struct {
	Premise    string `json:"premise"`
	Inference  string `json:"inference"`
	Conclusion string `json:"conclusion"`
}

// DecisionNode is one node of a plan's decision tree, with branches keyed
// by outcome.
type DecisionNode struct {
	Decision string                   `json:"decision"`
	Branches map[string]*DecisionNode `json:"branches,omitempty"`
}

// Engine builds reasoning artifacts. It is stateless and safe for
// concurrent use.
type Engine struct{}

// NewEngine creates a reasoning engine.
func NewEngine() *Engine {
	return &Engine{}
}

// BuildChainOfThought produces an ordered trace justifying the plan's
// structure: one opening step, one per mid-level step, and a closing risk
// judgement.
func (e *Engine) BuildChainOfThought(p *plan.HighLevelPlan) []Step {
	out := make([]Step, 0, len(p.Steps)+2)

	out = append(out, Step{
		Premise:    fmt.Sprintf("Objective: %s", p.Objective),
		Inference:  fmt.Sprintf("The objective decomposes into %d ordered phases", len(p.Steps)),
		Conclusion: "Each phase must complete before the next begins",
	})

	for i := range p.Steps {
		s := &p.Steps[i]
		out = append(out, Step{
			Premise:    fmt.Sprintf("Phase %d: %s", i+1, s.Description),
			Inference:  fmt.Sprintf("This phase requires %d atomic actions (%s)", len(s.Actions), dominantType(s)),
			Conclusion: fmt.Sprintf("Phase %d is %s", i+1, s.Status()),
		})
	}

	out = append(out, Step{
		Premise:    fmt.Sprintf("The plan carries a risk score of %.1f", p.RiskScore),
		Inference:  riskInference(p.RiskScore),
		Conclusion: fmt.Sprintf("Plan status: %s", p.Status),
	})

	return out
}

// BuildDecisionTree produces a binary execute/recover tree over the
// plan's steps: success advances, failure branches into retry or abort.
func (e *Engine) BuildDecisionTree(p *plan.HighLevelPlan) *DecisionNode {
	root := &DecisionNode{
		Decision: fmt.Sprintf("Pursue objective: %s", p.Objective),
		Branches: map[string]*DecisionNode{},
	}

	current := root
	for i := range p.Steps {
		next := &DecisionNode{
			Decision: fmt.Sprintf("Execute phase %d: %s", i+1, p.Steps[i].Description),
			Branches: map[string]*DecisionNode{},
		}
		current.Branches["proceed"] = next

		next.Branches["failure"] = &DecisionNode{
			Decision: fmt.Sprintf("Phase %d failed", i+1),
			Branches: map[string]*DecisionNode{
				"retry": {Decision: fmt.Sprintf("Re-run phase %d actions", i+1)},
				"abort": {Decision: "Abandon the plan and escalate"},
			},
		}
		current = next
	}

	current.Branches["success"] = &DecisionNode{Decision: "Objective satisfied"}
	return root
}

func dominantType(s *plan.MidLevelStep) string {
	counts := make(map[plan.ActionType]int)
	var best plan.ActionType
	for _, a := range s.Actions {
		counts[a.Type]++
		if best == "" || counts[a.Type] > counts[best] {
			best = a.Type
		}
	}
	if best == "" {
		return "none"
	}
	return string(best)
}

func riskInference(score float64) string {
	switch {
	case score > 80:
		return "The risk level demands review before any execution"
	case score > 60:
		return "The risk level warrants automatic optimization"
	default:
		return "The risk level is acceptable for execution"
	}
}
