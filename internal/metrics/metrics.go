// Package metrics holds the Prometheus collectors for requests, signature
// checks and file transfers. Collectors live on a private registry so that
// several engines can coexist in one process.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "launchkit"

// Request outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeProtocol  = "protocol_error"
	OutcomeSecurity  = "security_error"
	OutcomeTransport = "transport_error"
	OutcomeInvalid   = "invalid"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	SignatureFailures *prometheus.CounterVec
	VerifiedBytes     prometheus.Counter

	TransferFiles *prometheus.CounterVec
	TransferBytes prometheus.Counter

	SnapshotsStored prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests executed, by type and outcome",
			},
			[]string{"type", "outcome"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request execution time",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"type"},
		),

		SignatureFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signature_failures_total",
				Help:      "Signed objects that failed verification",
			},
			[]string{"subject"},
		),

		VerifiedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verified_bytes_total",
				Help:      "Bytes of signed payloads that verified",
			},
		),

		TransferFiles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_files_total",
				Help:      "Files processed by the update executor, by action and status",
			},
			[]string{"action", "status"},
		),

		TransferBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_bytes_total",
				Help:      "Bytes written by the update executor",
			},
		),

		SnapshotsStored: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshots_stored",
				Help:      "Verified snapshots currently in the cache",
			},
		),
	}
}

// Registry exposes the private registry, for scraping or tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RequestFinished records one request execution.
func (m *Metrics) RequestFinished(requestType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(requestType, outcome).Inc()
	m.RequestDuration.WithLabelValues(requestType).Observe(elapsed.Seconds())
}

// SignatureFailed records a rejected signed object.
func (m *Metrics) SignatureFailed(subject string) {
	if m == nil {
		return
	}
	m.SignatureFailures.WithLabelValues(subject).Inc()
}

// Verified records the size of a payload whose signature checked out.
func (m *Metrics) Verified(n int) {
	if m == nil {
		return
	}
	m.VerifiedBytes.Add(float64(n))
}

// FileTransferred records one executor item.
func (m *Metrics) FileTransferred(action, status string, n int64) {
	if m == nil {
		return
	}
	m.TransferFiles.WithLabelValues(action, status).Inc()
	if n > 0 {
		m.TransferBytes.Add(float64(n))
	}
}

// SetSnapshots records the current cache size.
func (m *Metrics) SetSnapshots(n int) {
	if m == nil {
		return
	}
	m.SnapshotsStored.Set(float64(n))
}

// WriteTextfile dumps the registry in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
