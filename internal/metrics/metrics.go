// Package metrics exposes Prometheus instrumentation for the encryption
// layer: operation counts, durations, byte throughput, side-file record
// writes, and the reader's wait for side-file creation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	registry *prometheus.Registry

	cryptoOperations *prometheus.CounterVec
	cryptoDuration   *prometheus.HistogramVec
	cryptoErrors     *prometheus.CounterVec
	cryptoBytes      *prometheus.CounterVec
	sideFileRecords  *prometheus.CounterVec
	sideFileWait     prometheus.Histogram
	openFiles        prometheus.Gauge
}

// NewMetrics creates a metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	return newMetricsWithRegistry(prometheus.NewRegistry())
}

func newMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		cryptoOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logcrypt_operations_total",
				Help: "Total number of encryption/decryption operations",
			},
			[]string{"operation"}, // "encrypt" or "decrypt"
		),
		cryptoDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "logcrypt_operation_duration_seconds",
				Help:    "Encryption/decryption operation duration in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation"},
		),
		cryptoErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logcrypt_errors_total",
				Help: "Total number of encryption/decryption errors",
			},
			[]string{"operation"},
		),
		cryptoBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logcrypt_bytes_total",
				Help: "Total bytes encrypted/decrypted",
			},
			[]string{"operation"},
		),
		sideFileRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logcrypt_side_file_records_total",
				Help: "Total records written to encryption info side files",
			},
			[]string{"type"}, // "IV" or "END"
		),
		sideFileWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "logcrypt_side_file_wait_seconds",
				Help:    "Time readers spent waiting for side-file creation",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 300.0},
			},
		),
		openFiles: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "logcrypt_open_files",
				Help: "Number of currently open crypto files",
			},
		),
	}
}

// RecordOperation records one encrypt or decrypt call.
func (m *Metrics) RecordOperation(op string, bytes int, duration time.Duration, err error) {
	m.cryptoOperations.WithLabelValues(op).Inc()
	m.cryptoDuration.WithLabelValues(op).Observe(duration.Seconds())
	m.cryptoBytes.WithLabelValues(op).Add(float64(bytes))
	if err != nil {
		m.cryptoErrors.WithLabelValues(op).Inc()
	}
}

// RecordSideFileRecord records a record written to a side file.
func (m *Metrics) RecordSideFileRecord(recType string) {
	m.sideFileRecords.WithLabelValues(recType).Inc()
}

// ObserveSideFileWait records how long a reader waited for the side file.
func (m *Metrics) ObserveSideFileWait(duration time.Duration) {
	m.sideFileWait.Observe(duration.Seconds())
}

// FileOpened increments the open-files gauge.
func (m *Metrics) FileOpened() { m.openFiles.Inc() }

// FileClosed decrements the open-files gauge.
func (m *Metrics) FileClosed() { m.openFiles.Dec() }

// Handler returns an HTTP handler serving the metrics in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
