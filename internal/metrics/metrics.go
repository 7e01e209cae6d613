// Package metrics exposes Prometheus counters and histograms for merges,
// ingests, uploads and deliveries. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mergebot"

type Metrics struct {
	merges        *prometheus.CounterVec
	mergeDuration *prometheus.HistogramVec
	mergesRunning prometheus.Gauge
	ingests       *prometheus.CounterVec
	parts         prometheus.Counter
	uploadBytes   prometheus.Counter
	uploadAborts  prometheus.Counter
	delivery      *prometheus.CounterVec
	jobs          *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		merges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Merges by operation and outcome.",
		}, []string{"operation", "outcome"}),
		mergeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Wall time from process start to completed upload.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		}, []string{"operation"}),
		mergesRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "merges_running",
			Help:      "Merges currently in flight.",
		}),
		ingests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingests_total",
			Help:      "Source files copied into storage by outcome.",
		}, []string{"outcome"}),
		parts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_parts_total",
			Help:      "Multipart parts uploaded.",
		}),
		uploadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes uploaded in multipart parts.",
		}),
		uploadAborts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_aborts_total",
			Help:      "Multipart uploads aborted.",
		}),
		delivery: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_stages_total",
			Help:      "Delivery stages by stage and outcome.",
		}, []string{"stage", "outcome"}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Housekeeping jobs by type and outcome.",
		}, []string{"type", "outcome"}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// MergeStarted marks a merge as running and returns a func that records its end.
func (m *Metrics) MergeStarted(op string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	m.mergesRunning.Inc()
	return func(err error) {
		m.mergesRunning.Dec()
		m.merges.WithLabelValues(op, outcome(err)).Inc()
		if err == nil {
			m.mergeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		}
	}
}

func (m *Metrics) Ingest(err error) {
	if m == nil {
		return
	}
	m.ingests.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) PartUploaded(n int) {
	if m == nil {
		return
	}
	m.parts.Inc()
	m.uploadBytes.Add(float64(n))
}

func (m *Metrics) UploadAborted() {
	if m == nil {
		return
	}
	m.uploadAborts.Inc()
}

func (m *Metrics) Delivery(stage string, err error) {
	if m == nil {
		return
	}
	m.delivery.WithLabelValues(stage, outcome(err)).Inc()
}

func (m *Metrics) Job(typ string, err error) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(typ, outcome(err)).Inc()
}
