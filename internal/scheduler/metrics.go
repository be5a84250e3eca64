package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the scheduler's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	passes      prometheus.Counter
	connections *prometheus.CounterVec
	passSeconds prometheus.Histogram
	manual      *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		passes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "airsync",
			Subsystem: "scheduler",
			Name:      "passes_total",
			Help:      "Scheduling passes run.",
		}),
		connections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airsync",
			Subsystem: "scheduler",
			Name:      "connections_total",
			Help:      "Connections evaluated, by outcome.",
		}, []string{"outcome"}),
		passSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "airsync",
			Subsystem: "scheduler",
			Name:      "pass_duration_seconds",
			Help:      "Duration of a scheduling pass.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		manual: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airsync",
			Subsystem: "scheduler",
			Name:      "manual_triggers_total",
			Help:      "Manual sync and reset triggers, by kind and result.",
		}, []string{"kind", "result"}),
	}
}

func (m *Metrics) observePass(rep Report, took time.Duration) {
	if m == nil {
		return
	}
	m.passes.Inc()
	m.passSeconds.Observe(took.Seconds())
	m.connections.WithLabelValues("enqueued").Add(float64(rep.Enqueued))
	m.connections.WithLabelValues("skipped").Add(float64(rep.Skipped))
	m.connections.WithLabelValues("failed").Add(float64(rep.Failed))
}

func (m *Metrics) observeManual(kind string, ok bool, err error) {
	if m == nil {
		return
	}
	result := "enqueued"
	switch {
	case err != nil:
		result = "error"
	case !ok:
		result = "skipped"
	}
	m.manual.WithLabelValues(kind, result).Inc()
}
