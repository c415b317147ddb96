// Package metrics exposes Prometheus counters for authentication outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth counts auth operations by operation and outcome.
type Auth struct {
	ops *prometheus.CounterVec
}

// New registers the counters on reg.
func New(reg prometheus.Registerer) (*Auth, error) {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_operations_total",
		Help: "Authentication operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	if err := reg.Register(ops); err != nil {
		return nil, err
	}
	return &Auth{ops: ops}, nil
}

// Observe increments the counter for operation/outcome.
func (a *Auth) Observe(operation, outcome string) {
	a.ops.WithLabelValues(operation, outcome).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
