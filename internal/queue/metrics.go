package queue

import (
	"github.com/Veraticus/tandem/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes queue activity to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	enqueued *prometheus.CounterVec
	uploads  *prometheus.CounterVec
	depth    *prometheus.GaugeVec
	skipped  prometheus.Gauge
	online   prometheus.Gauge
}

// NewMetrics registers the queue collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tandem",
			Subsystem: "upload_queue",
			Name:      "enqueued_total",
			Help:      "Receipt uploads requested, by whether they went out immediately or were queued.",
		}, []string{"outcome"}),
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tandem",
			Subsystem: "upload_queue",
			Name:      "attempts_total",
			Help:      "Upload attempts by result.",
		}, []string{"result"}),
		depth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tandem",
			Subsystem: "upload_queue",
			Name:      "items",
			Help:      "Items currently in the queue, by status.",
		}, []string{"status"}),
		skipped: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tandem",
			Subsystem: "upload_queue",
			Name:      "skipped_items",
			Help:      "Failed items that exhausted their retries.",
		}),
		online: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tandem",
			Subsystem: "network",
			Name:      "online",
			Help:      "1 when the upload endpoint is reachable.",
		}),
	}
}

func (m *Metrics) recordEnqueue(outcome string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordAttempt(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) recordDepth(items []model.QueueItem, maxRetries int) {
	if m == nil {
		return
	}
	counts := map[model.UploadStatus]int{
		model.UploadPending:   0,
		model.UploadUploading: 0,
		model.UploadFailed:    0,
	}
	skipped := 0
	for _, item := range items {
		counts[item.Status]++
		if item.Exhausted(maxRetries) {
			skipped++
		}
	}
	for status, n := range counts {
		m.depth.WithLabelValues(string(status)).Set(float64(n))
	}
	m.skipped.Set(float64(skipped))
}

// SetOnline records the latest reachability state.
func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}
