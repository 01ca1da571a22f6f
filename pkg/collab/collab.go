// Package collab defines the narrow contracts of the host platform
// collaborators the planning layer consumes: episodic memory, predictive
// risk scoring, anomaly detection, permission checking, and the event
// transport. Implementations are injected at orchestrator construction;
// the defaults here are stand-ins suitable for tests and degraded modes.
package collab

import (
	"context"
	"time"
)

// AnomalyLevel is the platform-wide anomaly signal.
type AnomalyLevel string

const (
	AnomalyNone AnomalyLevel = "none"
	AnomalyLow  AnomalyLevel = "low"
	AnomalyHigh AnomalyLevel = "high"
)

// Episode is a compact summary of a plan event persisted to long-term
// memory for later recall.
type Episode struct {
	PlanID    string    `json:"plan_id"`
	Kind      string    `json:"kind"`
	Objective string    `json:"objective"`
	Summary   string    `json:"summary"`
	RiskScore float64   `json:"risk_score"`
	CreatedAt time.Time `json:"created_at"`
}

// Memory persists episodic summaries. Failures are non-fatal to callers.
type Memory interface {
	StoreEpisode(ctx context.Context, ep Episode) (string, error)
}

// Prediction provides an external risk estimate in [0,100] for a plan
// context. Unavailability must degrade to a structural-only estimate.
type Prediction interface {
	EstimateRisk(ctx context.Context, planContext map[string]string) (float64, error)
}

// Anomaly reports the current platform anomaly level.
type Anomaly interface {
	CurrentAnomalyLevel(ctx context.Context) (AnomalyLevel, error)
}

// Security answers permission checks before side-effecting operations.
type Security interface {
	CheckPermission(ctx context.Context, operation string, opContext map[string]string) (bool, error)
}

// Publisher is the fire-and-forget event transport. Implementations must
// never propagate transport failures back to the caller.
type Publisher interface {
	Publish(event string, payload interface{})
}

// NoopMemory discards episodes.
type NoopMemory struct{}

func (NoopMemory) StoreEpisode(ctx context.Context, ep Episode) (string, error) {
	return "", nil
}

// NoopPrediction reports no external estimate, forcing the structural
// fallback.
type NoopPrediction struct{}

func (NoopPrediction) EstimateRisk(ctx context.Context, planContext map[string]string) (float64, error) {
	return 0, ErrUnavailable
}

// NoopAnomaly always reports no anomaly.
type NoopAnomaly struct{}

func (NoopAnomaly) CurrentAnomalyLevel(ctx context.Context) (AnomalyLevel, error) {
	return AnomalyNone, nil
}

// AllowAllSecurity permits every operation.
type AllowAllSecurity struct{}

func (AllowAllSecurity) CheckPermission(ctx context.Context, operation string, opContext map[string]string) (bool, error) {
	return true, nil
}

// NoopPublisher drops events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(event string, payload interface{}) {}
