package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	batchesTotal         *prometheus.CounterVec
	batchDuration        *prometheus.HistogramVec
	activeBatches        prometheus.Gauge
	recordsTotal         *prometheus.CounterVec
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optipress_worker_batches_total",
			Help: "Total worker batches by target format and final status.",
		}, []string{"format", "status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optipress_worker_batch_duration_seconds",
			Help:    "Total processing duration for each worker batch.",
			Buckets: prometheus.DefBuckets,
		}, []string{"format", "status"}),
		activeBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "optipress_worker_active_batches",
			Help: "Current number of batches being processed by the worker.",
		}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optipress_worker_records_total",
			Help: "Total processed records by outcome: succeeded or the failure kind.",
		}, []string{"outcome"}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optipress_usage_pixels_processed_total",
			Help: "Total output pixels across all successful records.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optipress_usage_bytes_saved_total",
			Help: "Total bytes saved by compression across all successful records.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optipress_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across finished batches.",
		}),
	}

	registry.MustRegister(
		m.batchesTotal,
		m.batchDuration,
		m.activeBatches,
		m.recordsTotal,
		m.pixelsProcessedTotal,
		m.bytesSavedTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
