package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type IngestMetrics struct {
	registry *prometheus.Registry

	tasksTotal       *prometheus.CounterVec
	tasksInFlight    prometheus.Gauge
	rejectsTotal     *prometheus.CounterVec
	transferDuration *prometheus.HistogramVec
	pollRequests     *prometheus.CounterVec
	admissionWait    *prometheus.HistogramVec
}

func NewIngestMetrics(service string) *IngestMetrics {
	registry := prometheus.NewRegistry()

	tasksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Subsystem: "tasks",
			Name:      "finished_total",
			Help:      "Total ingestion tasks by terminal status.",
		},
		[]string{"service", "status"},
	)
	tasksInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docingest",
			Subsystem: "tasks",
			Name:      "in_flight",
			Help:      "Number of tasks currently uploading or processing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rejectsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Subsystem: "tasks",
			Name:      "rejected_total",
			Help:      "Total files rejected before a task was created.",
		},
		[]string{"service", "reason"},
	)
	transferDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docingest",
			Subsystem: "transfer",
			Name:      "duration_seconds",
			Help:      "Byte-transfer duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	pollRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Subsystem: "poll",
			Name:      "requests_total",
			Help:      "Total status poll requests by outcome.",
		},
		[]string{"service", "outcome"},
	)
	admissionWait := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docingest",
			Subsystem: "tasks",
			Name:      "admission_wait_seconds",
			Help:      "Delay between task creation and transfer start.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		tasksTotal,
		tasksInFlight,
		rejectsTotal,
		transferDuration,
		pollRequests,
		admissionWait,
	)

	return &IngestMetrics{
		registry:         registry,
		tasksTotal:       tasksTotal,
		tasksInFlight:    tasksInFlight,
		rejectsTotal:     rejectsTotal,
		transferDuration: transferDuration,
		pollRequests:     pollRequests,
		admissionWait:    admissionWait,
	}
}

func (m *IngestMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *IngestMetrics) TaskAdmitted(service string, wait time.Duration) {
	if m == nil {
		return
	}
	m.tasksInFlight.Inc()
	if wait >= 0 {
		m.admissionWait.WithLabelValues(service).Observe(wait.Seconds())
	}
}

func (m *IngestMetrics) TaskFinished(service, status string) {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
	m.tasksTotal.WithLabelValues(service, status).Inc()
}

func (m *IngestMetrics) FileRejected(service, reason string) {
	if m == nil {
		return
	}
	m.rejectsTotal.WithLabelValues(service, reason).Inc()
}

func (m *IngestMetrics) ObserveTransfer(service string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.transferDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *IngestMetrics) PollRequest(service, outcome string) {
	if m == nil {
		return
	}
	m.pollRequests.WithLabelValues(service, outcome).Inc()
}
