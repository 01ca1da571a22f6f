package collab

import "errors"

// ErrUnavailable signals a collaborator that cannot currently serve a
// request. Callers absorb it and fall back to defaults.
var ErrUnavailable = errors.New("collaborator unavailable")
