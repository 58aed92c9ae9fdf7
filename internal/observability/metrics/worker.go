package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	archiveTotal *prometheus.CounterVec
	fileTotal    *prometheus.CounterVec
	fileDuration *prometheus.HistogramVec
	fileInFlight prometheus.Gauge
	queueLag     *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	archiveTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pii",
			Subsystem: "worker",
			Name:      "archive_process_total",
			Help:      "Total processed archive jobs by status.",
		},
		[]string{"service", "status"},
	)
	fileTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pii",
			Subsystem: "worker",
			Name:      "file_process_total",
			Help:      "Total processed file jobs by status.",
		},
		[]string{"service", "status"},
	)
	fileDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pii",
			Subsystem: "worker",
			Name:      "file_process_duration_seconds",
			Help:      "File job handling duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	fileInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pii",
			Subsystem: "worker",
			Name:      "file_process_in_flight",
			Help:      "Number of in-flight file jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pii",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job enqueue and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(archiveTotal, fileTotal, fileDuration, fileInFlight, queueLag)

	return &WorkerMetrics{
		registry:     registry,
		archiveTotal: archiveTotal,
		fileTotal:    fileTotal,
		fileDuration: fileDuration,
		fileInFlight: fileInFlight,
		queueLag:     queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) RecordArchive(service string, err error) {
	m.archiveTotal.WithLabelValues(service, statusLabel(err)).Inc()
}

func (m *WorkerMetrics) StartFile() {
	m.fileInFlight.Inc()
}

func (m *WorkerMetrics) FinishFile(service string, duration time.Duration, err error) {
	m.fileInFlight.Dec()
	m.fileTotal.WithLabelValues(service, statusLabel(err)).Inc()
	m.fileDuration.WithLabelValues(service, statusLabel(err)).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
