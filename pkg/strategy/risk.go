package strategy

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/wibisana/lakon/pkg/plan"
)

// Weights of the risk-score components. When the prediction collaborator
// is unavailable its weight is redistributed to the structural estimate.
const (
	weightStructural = 0.15
	weightHint       = 0.35
	weightPrediction = 0.5

	fallbackStructural = 0.5
	fallbackHint       = 0.5

	predictionTimeout = 2 * time.Second
)

// computeRiskScore combines structural risk, context-provided hints, and
// the external prediction estimate into a 0-100 score.
func (e *Engine) computeRiskScore(ctx context.Context, p *plan.HighLevelPlan, planCtx map[string]string) float64 {
	structural := structuralRisk(p)
	hint := hintRisk(planCtx)

	predicted, ok := e.predictedRisk(ctx, planCtx)
	if !ok {
		return clampScore(fallbackStructural*structural + fallbackHint*hint)
	}
	return clampScore(weightStructural*structural + weightHint*hint + weightPrediction*predicted)
}

// structuralRisk grows with step and action counts relative to the
// structural limits.
func structuralRisk(p *plan.HighLevelPlan) float64 {
	steps := float64(len(p.Steps)) / float64(plan.MaxSteps)
	actions := float64(p.TotalActions()) / float64(plan.MaxAtomicActions)
	return clampScore(100 * (0.5*steps + 0.5*actions))
}

// hintRisk maps context risk hints to a score contribution. A numeric
// "risk_score" hint wins over the coarse "risk" label.
func hintRisk(planCtx map[string]string) float64 {
	if raw, ok := planCtx["risk_score"]; ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return clampScore(v)
		}
	}
	switch strings.ToLower(planCtx["risk"]) {
	case "low":
		return 10
	case "medium":
		return 40
	case "high":
		return 70
	case "critical":
		return 90
	default:
		return 25
	}
}

// predictedRisk consults the prediction collaborator. Failures degrade to
// the structural-only path; they are never surfaced to the caller.
func (e *Engine) predictedRisk(ctx context.Context, planCtx map[string]string) (float64, bool) {
	if e.prediction == nil {
		return 0, false
	}

	pctx, cancel := context.WithTimeout(ctx, predictionTimeout)
	defer cancel()

	score, err := e.prediction.EstimateRisk(pctx, planCtx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Prediction collaborator unavailable, using structural estimate")
		return 0, false
	}
	return clampScore(score), true
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
