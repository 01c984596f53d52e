package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

var (
	prometheusOnce     sync.Once
	prometheusRecorder *PrometheusRecorder
)

// NewPrometheusRecorder returns the process-wide recorder registered on the default registry.
func NewPrometheusRecorder() Recorder {
	prometheusOnce.Do(func() {
		prometheusRecorder = newPrometheusRecorder(prometheus.DefaultRegisterer)
	})
	return prometheusRecorder
}

func newPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paycore",
			Name:      "events_total",
			Help:      "Payment verification event counters.",
		},
		[]string{"type", "outcome", "source"},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paycore",
			Name:      "latency_seconds",
			Help:      "Payment verification operation latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "source"},
	)

	reg.MustRegister(counters, histogram)

	return &PrometheusRecorder{
		counters:  counters,
		histogram: histogram,
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":    name,
		"outcome": labels["outcome"],
		"source":  labels["source"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		"source":    labels["source"],
	}).Observe(d.Seconds())
}
