package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the planning layer
type Metrics struct {
	registry *prometheus.Registry

	// Strategy lifecycle
	StrategiesCreatedTotal   prometheus.Counter
	StrategiesRejectedTotal  prometheus.Counter
	StrategiesOptimizedTotal prometheus.Counter
	HighRiskTotal            prometheus.Counter
	ActivePlans              prometheus.Gauge
	RiskScore                prometheus.Histogram

	// Action execution
	ActionsExecutedTotal *prometheus.CounterVec

	// Simulation
	SimulationsTotal prometheus.Counter

	// Optimizer
	OptimizerPassesTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		StrategiesCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lakon_strategies_created_total",
			Help: "Total number of strategies created",
		}),
		StrategiesRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lakon_strategies_rejected_total",
			Help: "Total number of strategies rejected by validation",
		}),
		StrategiesOptimizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lakon_strategies_optimized_total",
			Help: "Total number of strategy optimizations",
		}),
		HighRiskTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lakon_high_risk_total",
			Help: "Total number of high-risk strategy events",
		}),
		ActivePlans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lakon_active_plans",
			Help: "Number of plans currently in the registry",
		}),
		RiskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lakon_risk_score",
			Help:    "Risk scores of created and optimized plans",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		ActionsExecutedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lakon_actions_executed_total",
				Help: "Total number of atomic action executions",
			},
			[]string{"status"},
		),
		SimulationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lakon_simulations_total",
			Help: "Total number of outcome simulations",
		}),
		OptimizerPassesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lakon_optimizer_passes_total",
			Help: "Total number of periodic optimizer passes",
		}),
	}

	registry.MustRegister(
		m.StrategiesCreatedTotal,
		m.StrategiesRejectedTotal,
		m.StrategiesOptimizedTotal,
		m.HighRiskTotal,
		m.ActivePlans,
		m.RiskScore,
		m.ActionsExecutedTotal,
		m.SimulationsTotal,
		m.OptimizerPassesTotal,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
