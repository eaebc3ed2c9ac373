package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the curation pipeline.
type Metrics struct {
	// Curation requests by outcome ("submitted", "rejected", "error")
	CurationRequests *prometheus.CounterVec

	// Poll passes over in-progress jobs
	PollPasses prometheus.Counter

	// Job completions by final status ("COMPLETED", "FAILED")
	JobCompletions *prometheus.CounterVec

	// Records published by target ("local" or the remote system name)
	RecordsPublished *prometheus.CounterVec

	// Graph resolution latency
	ResolveLatency prometheus.Histogram
}

// New creates a new Metrics instance with all pipeline metrics registered.
func New() *Metrics {
	return &Metrics{
		CurationRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curation_requests_total",
			Help: "Total curation requests by outcome",
		}, []string{"outcome"}),

		PollPasses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curation_poll_passes_total",
			Help: "Total poll passes over in-progress jobs",
		}),

		JobCompletions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curation_job_completions_total",
			Help: "Total jobs reaching a terminal status",
		}, []string{"status"}),

		RecordsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curation_records_published_total",
			Help: "Total records published by target system",
		}, []string{"target"}),

		ResolveLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "curation_resolve_duration_seconds",
			Help:    "Duration of relationship graph resolution",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncrementRequest records one curation request outcome.
func (m *Metrics) IncrementRequest(outcome string) {
	if m != nil {
		m.CurationRequests.WithLabelValues(outcome).Inc()
	}
}

// IncrementPollPass records one completed poll pass.
func (m *Metrics) IncrementPollPass() {
	if m != nil {
		m.PollPasses.Inc()
	}
}

// IncrementCompletion records a job reaching a terminal status.
func (m *Metrics) IncrementCompletion(status string) {
	if m != nil {
		m.JobCompletions.WithLabelValues(status).Inc()
	}
}

// IncrementPublished records records published to a target system.
func (m *Metrics) IncrementPublished(target string, count int) {
	if m != nil {
		m.RecordsPublished.WithLabelValues(target).Add(float64(count))
	}
}

// ObserveResolveLatency records the duration of one graph resolution.
func (m *Metrics) ObserveResolveLatency(d time.Duration) {
	if m != nil {
		m.ResolveLatency.Observe(d.Seconds())
	}
}
