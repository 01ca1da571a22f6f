package orchestrator

import (
	"fmt"
	"sync"

	"github.com/wibisana/lakon/pkg/plan"
)

// Registry is the orchestrator's store of active plans, keyed by plan id.
// All mutations are serialized under its lock; it is owned by one
// orchestrator instance, never process-global.
type Registry struct {
	plans map[string]*plan.HighLevelPlan
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		plans: make(map[string]*plan.HighLevelPlan),
	}
}

// Register inserts a new plan. Registering an existing id is an error;
// use Replace for optimization snapshots.
func (r *Registry) Register(p *plan.HighLevelPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plans[p.ID]; exists {
		return fmt.Errorf("plan already registered: %s", p.ID)
	}
	r.plans[p.ID] = p
	return nil
}

// Replace atomically swaps the entry under an existing id with a new
// snapshot.
func (r *Registry) Replace(p *plan.HighLevelPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plans[p.ID]; !exists {
		return fmt.Errorf("%w: plan %s", ErrNotFound, p.ID)
	}
	r.plans[p.ID] = p
	return nil
}

// Get retrieves a plan by id.
func (r *Registry) Get(id string) (*plan.HighLevelPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.plans[id]
	if !exists {
		return nil, fmt.Errorf("%w: plan %s", ErrNotFound, id)
	}
	return p, nil
}

// Update runs fn on the named plan while holding the registry write
// lock, serializing status transitions against other mutations.
func (r *Registry) Update(id string, fn func(*plan.HighLevelPlan) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.plans[id]
	if !exists {
		return fmt.Errorf("%w: plan %s", ErrNotFound, id)
	}
	return fn(p)
}

// Remove deletes a plan from the registry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plans[id]; !exists {
		return fmt.Errorf("%w: plan %s", ErrNotFound, id)
	}
	delete(r.plans, id)
	return nil
}

// Snapshot returns a read-only view: plan ids mapped to deep copies.
func (r *Registry) Snapshot() map[string]*plan.HighLevelPlan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*plan.HighLevelPlan, len(r.plans))
	for id, p := range r.plans {
		out[id] = p.Clone()
	}
	return out
}

// Exists checks if a plan is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.plans[id]
	return exists
}

// Count returns the number of registered plans.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.plans)
}
