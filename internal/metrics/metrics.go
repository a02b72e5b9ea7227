// Package metrics defines the Prometheus collectors launchpad exports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the launchpad collectors.
//
// Exposed (namespace "launchpad"):
//
//	deployments_total{status}          counter
//	deployment_duration_seconds        histogram
//	reviews_total{gate,decision}       counter
//	active_deployments                 gauge
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	deployments *prometheus.CounterVec
	duration    prometheus.Histogram
	reviews     *prometheus.CounterVec
	active      prometheus.Gauge
}

// New creates the collectors and registers them with registry.
// A nil registry uses prometheus.DefaultRegisterer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		deployments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchpad",
			Name:      "deployments_total",
			Help:      "Deployment orchestrations by final status",
		}, []string{"status"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "launchpad",
			Name:      "deployment_duration_seconds",
			Help:      "Wall time of one deployment orchestration",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		reviews: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchpad",
			Name:      "reviews_total",
			Help:      "Review gate decisions",
		}, []string{"gate", "decision"}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "launchpad",
			Name:      "active_deployments",
			Help:      "Deployments currently in progress",
		}),
	}
}

// DeploymentStarted increments the in-progress gauge.
func (m *Metrics) DeploymentStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// DeploymentFinished records the final status and duration of a run.
func (m *Metrics) DeploymentFinished(status string, seconds float64) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.deployments.WithLabelValues(status).Inc()
	m.duration.Observe(seconds)
}

// ReviewDecided counts one gate decision.
func (m *Metrics) ReviewDecided(gate, decision string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(gate, decision).Inc()
}
