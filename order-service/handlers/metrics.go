package handlers

import (
	"net/http"

	"github.com/draftea/order-system/shared/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewMetricsHandler creates a new Prometheus metrics handler
func NewMetricsHandler() http.Handler {
	return promhttp.Handler()
}

// BreakerMetrics exports circuit breaker state to Prometheus
type BreakerMetrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// NewBreakerMetrics registers the breaker collectors on reg
func NewBreakerMetrics(reg prometheus.Registerer) *BreakerMetrics {
	m := &BreakerMetrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"breaker"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		}, []string{"breaker", "from", "to"}),
	}
	reg.MustRegister(m.state, m.transitions)
	return m
}

func stateValue(s resilience.State) float64 {
	switch s {
	case resilience.StateOpen:
		return 2
	case resilience.StateHalfOpen:
		return 1
	}
	return 0
}

// Listener records every transition
func (m *BreakerMetrics) Listener() resilience.StateListener {
	return func(name string, from, to resilience.State) {
		m.state.WithLabelValues(name).Set(stateValue(to))
		m.transitions.WithLabelValues(name, string(from), string(to)).Inc()
	}
}

// LogTransitions logs breaker transitions, opening at warn level
func LogTransitions(logger *zap.Logger) resilience.StateListener {
	return func(name string, from, to resilience.State) {
		fields := []zap.Field{zap.String("breaker", name), zap.String("from", string(from)), zap.String("to", string(to))}
		if to == resilience.StateOpen {
			logger.Warn("circuit breaker opened", fields...)
			return
		}
		logger.Info("circuit breaker state changed", fields...)
	}
}

// BreakerHealthHandler serves GET /health/circuit-breakers
func BreakerHealthHandler(registry *resilience.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"breakers": registry.Snapshot(),
		})
	}
}
