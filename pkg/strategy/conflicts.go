package strategy

import (
	"fmt"
	"strings"

	"github.com/wibisana/lakon/pkg/plan"
)

// Contradictory verb pairs: two actions in one plan pulling in opposite
// directions on the same subject.
var contradictions = [][2]string{
	{"enable", "disable"},
	{"start", "stop"},
	{"create", "delete"},
	{"grant", "revoke"},
}

// DetectConflicts scans a plan for duplicate or contradictory action
// descriptions. Conflicts lower the plan to needs-review, they never
// reject it outright.
func DetectConflicts(p *plan.HighLevelPlan) []string {
	var conflicts []string

	seen := make(map[string]string)
	exclusive := make(map[plan.ActionType]string)

	for i := range p.Steps {
		for _, a := range p.Steps[i].Actions {
			norm := normalizeDescription(a.Description)

			if prev, ok := seen[norm]; ok {
				conflicts = append(conflicts,
					fmt.Sprintf("actions %s and %s have duplicate descriptions", prev, a.ID))
			} else {
				seen[norm] = a.ID
			}

			// Two actions both claiming exclusive authority over the
			// same action type conflict with each other.
			if strings.Contains(norm, "exclusive") {
				if prev, ok := exclusive[a.Type]; ok {
					conflicts = append(conflicts,
						fmt.Sprintf("actions %s and %s both claim exclusive %s authority", prev, a.ID, a.Type))
				} else {
					exclusive[a.Type] = a.ID
				}
			}
		}
	}

	conflicts = append(conflicts, contradictoryPairs(p)...)
	return conflicts
}

func contradictoryPairs(p *plan.HighLevelPlan) []string {
	var conflicts []string
	for _, pair := range contradictions {
		var first, second string
		for i := range p.Steps {
			for _, a := range p.Steps[i].Actions {
				norm := normalizeDescription(a.Description)
				subjectA := strings.TrimSpace(strings.TrimPrefix(norm, pair[0]+" "))
				subjectB := strings.TrimSpace(strings.TrimPrefix(norm, pair[1]+" "))
				if strings.HasPrefix(norm, pair[0]+" ") && first == "" {
					first = a.ID + "|" + subjectA
				}
				if strings.HasPrefix(norm, pair[1]+" ") && second == "" {
					second = a.ID + "|" + subjectB
				}
			}
		}
		if first != "" && second != "" {
			fid, fsub, _ := strings.Cut(first, "|")
			sid, ssub, _ := strings.Cut(second, "|")
			if fsub == ssub {
				conflicts = append(conflicts,
					fmt.Sprintf("actions %s and %s are contradictory (%s vs %s)", fid, sid, pair[0], pair[1]))
			}
		}
	}
	return conflicts
}

func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
