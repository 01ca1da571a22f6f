package orchestrator

import "errors"

// Sentinel errors returned by the orchestrator. Callers match them with
// errors.Is; the wrapped messages carry the offending identifiers.
var (
	// ErrNotFound is returned for unknown plan or action ids. The failed
	// lookup leaves the registry untouched.
	ErrNotFound = errors.New("not found")

	// ErrDisabled is returned by mutating operations while the
	// orchestrator is disabled.
	ErrDisabled = errors.New("orchestrator disabled")

	// ErrPermissionDenied is returned when the security collaborator
	// denies an execution, or cannot be reached.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidTransition is returned when an action's status machine
	// forbids the requested move.
	ErrInvalidTransition = errors.New("invalid status transition")
)
