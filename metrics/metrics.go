// Package metrics exposes Prometheus collectors for the form workflow.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for submission attempts.
const (
	OutcomeAccepted = "accepted"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// Submissions counts submit attempts and times the remote call.
type Submissions struct {
	attempts *prometheus.CounterVec
	latency  prometheus.Histogram
	leads    prometheus.Gauge
}

func NewSubmissions(reg prometheus.Registerer) *Submissions {
	m := &Submissions{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadcapture",
			Subsystem: "form",
			Name:      "submissions_total",
			Help:      "Submit attempts by outcome",
		}, []string{"outcome", "reason"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leadcapture",
			Subsystem: "form",
			Name:      "submission_latency_seconds",
			Help:      "Latency of calls to the ingestion endpoint",
			Buckets:   prometheus.DefBuckets,
		}),
		leads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leadcapture",
			Subsystem: "session",
			Name:      "leads",
			Help:      "Leads captured in the running session",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.attempts, m.latency, m.leads)
	return m
}

// ObserveAttempt records one submit attempt. reason is empty for accepted
// and invalid attempts.
func (m *Submissions) ObserveAttempt(outcome, reason string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome, reason).Inc()
}

func (m *Submissions) ObserveLatency(seconds float64) {
	if m == nil {
		return
	}
	m.latency.Observe(seconds)
}

func (m *Submissions) SetLeads(n int) {
	if m == nil {
		return
	}
	m.leads.Set(float64(n))
}
