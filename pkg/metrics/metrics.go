// Package metrics exposes the governor's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}

// Metrics holds the collectors shared by the webhook layer and the
// pipeline.
type Metrics struct {
	DecisionsTotal       *prometheus.CounterVec
	DeployOutcomesTotal  *prometheus.CounterVec
	WebhookRequestsTotal *prometheus.CounterVec
	QueueDepth           prometheus.Gauge
	VerificationDuration prometheus.Histogram
}

// New registers the governor collectors on the default registry. Duplicate
// registration (tests constructing several daemons in-process) reuses the
// existing collectors instead of failing.
func New() *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booty",
			Subsystem: "governor",
			Name:      "decisions_total",
			Help:      "Release decisions by outcome and reason",
		}, []string{"outcome", "reason"}),
		DeployOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booty",
			Subsystem: "governor",
			Name:      "deploy_outcomes_total",
			Help:      "Observed deploy workflow conclusions",
		}, []string{"outcome"}),
		WebhookRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booty",
			Subsystem: "governor",
			Name:      "webhook_requests_total",
			Help:      "Webhook deliveries by disposition",
		}, []string{"disposition"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "booty",
			Subsystem: "governor",
			Name:      "queue_depth",
			Help:      "Verification jobs waiting for a worker",
		}),
		VerificationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "booty",
			Subsystem: "governor",
			Name:      "verification_duration_seconds",
			Help:      "Wall-clock duration of clone-to-decision processing",
			Buckets:   durationBuckets,
		}),
	}

	m.DecisionsTotal = registerCounterVec(m.DecisionsTotal)
	m.DeployOutcomesTotal = registerCounterVec(m.DeployOutcomesTotal)
	m.WebhookRequestsTotal = registerCounterVec(m.WebhookRequestsTotal)
	m.QueueDepth = registerGauge(m.QueueDepth)
	m.VerificationDuration = registerHistogram(m.VerificationDuration)
	return m
}

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return c
}

func registerGauge(g prometheus.Gauge) prometheus.Gauge {
	if err := prometheus.Register(g); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector.(prometheus.Gauge)
		}
	}
	return g
}

func registerHistogram(h prometheus.Histogram) prometheus.Histogram {
	if err := prometheus.Register(h); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector.(prometheus.Histogram)
		}
	}
	return h
}

// ObserveVerification records one completed verification run.
func (m *Metrics) ObserveVerification(d time.Duration) {
	m.VerificationDuration.Observe(d.Seconds())
}
