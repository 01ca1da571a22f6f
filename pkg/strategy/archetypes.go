package strategy

import (
	"fmt"
	"strings"

	"github.com/wibisana/lakon/pkg/plan"
)

// archetype is a known step sequence for one category of objective.
type archetype struct {
	name  string
	verbs []string
	steps []archetypeStep
}

type archetypeStep struct {
	description string
	actions     []archetypeAction
}

type archetypeAction struct {
	description string
	typ         plan.ActionType
	priority    plan.Priority
}

// archetypes are matched in order; the first verb hit wins. The final
// entry is the fallback used when nothing matches.
var archetypes = []archetype{
	{
		name:  "cleanup",
		verbs: []string{"clean", "remove", "purge", "tidy", "prune"},
		steps: []archetypeStep{
			{
				description: "Inventory cleanup targets for: %s",
				actions: []archetypeAction{
					{"Collect candidate items matching the objective", plan.ActionTypeCollect, plan.PriorityMedium},
					{"Analyze item age and usage before removal", plan.ActionTypeAnalyze, plan.PriorityMedium},
				},
			},
			{
				description: "Perform the cleanup",
				actions: []archetypeAction{
					{"Apply cleanup to the confirmed targets", plan.ActionTypeCleanup, plan.PriorityMedium},
				},
			},
			{
				description: "Verify post-cleanup state",
				actions: []archetypeAction{
					{"Verify no required items were affected", plan.ActionTypeVerify, plan.PriorityMedium},
				},
			},
		},
	},
	{
		name:  "investigation",
		verbs: []string{"investigate", "diagnose", "analyze", "debug", "inspect"},
		steps: []archetypeStep{
			{
				description: "Gather evidence for: %s",
				actions: []archetypeAction{
					{"Collect relevant signals and records", plan.ActionTypeCollect, plan.PriorityMedium},
				},
			},
			{
				description: "Analyze the collected evidence",
				actions: []archetypeAction{
					{"Analyze patterns and correlations", plan.ActionTypeAnalyze, plan.PriorityMedium},
					{"Assess likely root causes", plan.ActionTypeAssess, plan.PriorityMedium},
				},
			},
			{
				description: "Report findings",
				actions: []archetypeAction{
					{"Notify stakeholders of the findings", plan.ActionTypeNotify, plan.PriorityLow},
				},
			},
		},
	},
	{
		name:  "deployment",
		verbs: []string{"deploy", "release", "rollout", "ship", "install"},
		steps: []archetypeStep{
			{
				description: "Assess readiness for: %s",
				actions: []archetypeAction{
					{"Assess readiness and preconditions", plan.ActionTypeAssess, plan.PriorityHigh},
				},
			},
			{
				description: "Execute the deployment",
				actions: []archetypeAction{
					{"Deploy the change to the target environment", plan.ActionTypeDeploy, plan.PriorityHigh},
				},
			},
			{
				description: "Validate the deployment",
				actions: []archetypeAction{
					{"Verify the deployed state", plan.ActionTypeVerify, plan.PriorityHigh},
					{"Notify stakeholders of completion", plan.ActionTypeNotify, plan.PriorityLow},
				},
			},
		},
	},
	{
		name:  "mitigation",
		verbs: []string{"secure", "harden", "mitigate", "fix", "protect", "remediate"},
		steps: []archetypeStep{
			{
				description: "Analysis of: %s",
				actions: []archetypeAction{
					{"Analyze the affected surface", plan.ActionTypeAnalyze, plan.PriorityHigh},
				},
			},
			{
				description: "Assessment of impact and exposure",
				actions: []archetypeAction{
					{"Assess severity and blast radius", plan.ActionTypeAssess, plan.PriorityHigh},
				},
			},
			{
				description: "Mitigation",
				actions: []archetypeAction{
					{"Apply the mitigation", plan.ActionTypeMitigate, plan.PriorityHigh},
				},
			},
			{
				description: "Validation of the applied mitigation",
				actions: []archetypeAction{
					{"Verify the mitigation holds", plan.ActionTypeVerify, plan.PriorityMedium},
				},
			},
		},
	},
	{
		name:  "monitoring",
		verbs: []string{"monitor", "watch", "observe", "track"},
		steps: []archetypeStep{
			{
				description: "Set up observation for: %s",
				actions: []archetypeAction{
					{"Collect baseline measurements", plan.ActionTypeCollect, plan.PriorityMedium},
				},
			},
			{
				description: "Continuous analysis",
				actions: []archetypeAction{
					{"Analyze deviations from baseline", plan.ActionTypeAnalyze, plan.PriorityMedium},
					{"Notify on significant deviation", plan.ActionTypeNotify, plan.PriorityMedium},
				},
			},
		},
	},
	{
		// fallback: generic analyse-assess-validate sequence
		name:  "general",
		verbs: nil,
		steps: []archetypeStep{
			{
				description: "Analysis of: %s",
				actions: []archetypeAction{
					{"Analyze the objective and its context", plan.ActionTypeAnalyze, plan.PriorityMedium},
				},
			},
			{
				description: "Assessment of options",
				actions: []archetypeAction{
					{"Assess candidate approaches", plan.ActionTypeAssess, plan.PriorityMedium},
				},
			},
			{
				description: "Validation of the chosen approach",
				actions: []archetypeAction{
					{"Verify the outcome against the objective", plan.ActionTypeVerify, plan.PriorityMedium},
				},
			},
		},
	},
}

// matchArchetype picks the archetype whose verbs appear in the objective.
func matchArchetype(objective string) archetype {
	lower := strings.ToLower(objective)
	for _, a := range archetypes {
		for _, v := range a.verbs {
			if strings.Contains(lower, v) {
				return a
			}
		}
	}
	return archetypes[len(archetypes)-1]
}

// synthesize materializes the archetype into concrete steps with fresh
// identifiers. The objective is folded into the first step description.
func (a archetype) synthesize(objective string) []plan.MidLevelStep {
	steps := make([]plan.MidLevelStep, 0, len(a.steps))
	for _, as := range a.steps {
		desc := as.description
		if strings.Contains(desc, "%s") {
			desc = fmt.Sprintf(desc, truncate(objective, 200))
		}
		step := plan.NewStep(desc)
		step.Actions = make([]plan.AtomicAction, 0, len(as.actions))
		for _, aa := range as.actions {
			step.Actions = append(step.Actions, plan.NewAction(aa.description, aa.typ, aa.priority))
		}
		steps = append(steps, step)
	}
	return steps
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
