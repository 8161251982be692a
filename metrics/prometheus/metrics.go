// Package prometheus provides Prometheus metrics for inference sessions.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "outfitmatcher"

var (
	// inferenceDuration is a histogram of inference call duration in seconds.
	inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Duration of inference API calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)

	// inferenceTotal is a counter of inference calls.
	inferenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Total number of inference API calls",
		},
		[]string{"provider", "operation", "status"}, // status: success, error
	)

	// inferenceFailures is a counter of classified inference failures.
	inferenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_failures_total",
			Help:      "Total inference failures by classified error kind",
		},
		[]string{"provider", "kind"},
	)

	// rateLimitWait is a histogram of time spent waiting for the pacing
	// limiter before dispatch.
	rateLimitWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for the inter-request pacing limiter",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		inferenceDuration,
		inferenceTotal,
		inferenceFailures,
		rateLimitWait,
	}
)

// Register registers all session metrics with the given registerer.
// Passing nil registers with the default registerer.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, collector := range allMetrics {
		if err := reg.Register(collector); err != nil {
			// Re-registration is fine: tests create multiple sessions.
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// RecordInference records one inference call.
func RecordInference(provider, operation, status string, durationSeconds float64) {
	inferenceDuration.WithLabelValues(provider, operation).Observe(durationSeconds)
	inferenceTotal.WithLabelValues(provider, operation, status).Inc()
}

// RecordFailure records a classified inference failure.
func RecordFailure(provider, kind string) {
	inferenceFailures.WithLabelValues(provider, kind).Inc()
}

// RecordRateLimitWait records time spent waiting for the pacing limiter.
func RecordRateLimitWait(seconds float64) {
	if seconds > 0 {
		rateLimitWait.Observe(seconds)
	}
}
