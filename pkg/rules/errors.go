package rules

import (
	"fmt"
	"strings"
)

// ValidationError carries the full violation detail of a rejected plan.
// It is terminal for the triggering call, never a process fault.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	if len(e.Result.Violations) == 0 {
		return "plan rejected"
	}
	return fmt.Sprintf("plan rejected: %s", strings.Join(e.Result.Violations, "; "))
}
