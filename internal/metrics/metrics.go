// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mvsim_stage_duration_seconds",
		Help:    "Duration of the simulation pipeline stages",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"stage"})

	Simulations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mvsim_simulations_total",
		Help: "Finished simulations by status",
	}, []string{"status"})

	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mvsim_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})

	RequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mvsim_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// ObserveStage records a pipeline stage duration.
func ObserveStage(stage string, elapsed time.Duration) {
	StageSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}
