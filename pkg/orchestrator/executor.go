package orchestrator

import (
	"context"

	"github.com/wibisana/lakon/pkg/plan"
)

// Executor is the external execution contract for atomic actions. The
// orchestrator hands off and only records the returned outcome; it never
// performs real-world side effects itself.
type Executor interface {
	Execute(ctx context.Context, planID string, action plan.AtomicAction) (ExecutionOutcome, error)
}

// ExecutionOutcome is the executor's report for one action.
type ExecutionOutcome struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
}

// NoopExecutor reports success without doing anything. It is the default
// stand-in until the host wires a real executor.
type NoopExecutor struct{}

func (NoopExecutor) Execute(ctx context.Context, planID string, action plan.AtomicAction) (ExecutionOutcome, error) {
	return ExecutionOutcome{Success: true, Output: "noop"}, nil
}
