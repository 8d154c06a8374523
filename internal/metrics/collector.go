// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records orchestration metrics.
type Collector struct {
	handoffsTotal        *prometheus.CounterVec
	handoffDuration      *prometheus.HistogramVec
	retryAttemptsTotal   *prometheus.CounterVec
	fallbacksTotal       *prometheus.CounterVec
	trustScore           *prometheus.GaugeVec
	providerAvailability *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector registered on the default
// registerer.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.handoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total number of handoffs",
		},
		[]string{"provider", "status"},
	)

	c.handoffDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handoff_duration_seconds",
			Help:      "Handoff duration in seconds, including retries and fallback",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	c.retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Total number of retry attempts",
		},
		[]string{"operation"},
	)

	c.fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of fallback activations",
		},
		[]string{"provider"},
	)

	c.trustScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_trust_score",
			Help:      "Current trust score per agent",
		},
		[]string{"agent_id"},
	)

	c.providerAvailability = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_available",
			Help:      "Last observed availability per provider (1 available, 0 not)",
		},
		[]string{"provider"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHandoff records a completed handoff.
func (c *Collector) RecordHandoff(provider, status string, duration time.Duration) {
	c.handoffsTotal.WithLabelValues(provider, status).Inc()
	c.handoffDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRetry records one retry attempt of the named operation.
func (c *Collector) RecordRetry(operation string) {
	c.retryAttemptsTotal.WithLabelValues(operation).Inc()
}

// RecordFallback records a fallback activation toward the named provider.
func (c *Collector) RecordFallback(provider string) {
	c.fallbacksTotal.WithLabelValues(provider).Inc()
}

// RecordTrustScore records the current trust score of an agent.
func (c *Collector) RecordTrustScore(agentID string, score float64) {
	c.trustScore.WithLabelValues(agentID).Set(score)
}

// RecordProviderAvailability records the latest availability probe result.
func (c *Collector) RecordProviderAvailability(provider string, available bool) {
	v := 0.0
	if available {
		v = 1.0
	}
	c.providerAvailability.WithLabelValues(provider).Set(v)
}
