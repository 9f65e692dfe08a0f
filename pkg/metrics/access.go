package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AccessMetrics counts card scans, relay operations and the upload
// pipeline.
type AccessMetrics struct {
	scans         *prometheus.CounterVec
	invalidFrames *prometheus.CounterVec
	relayOps      *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	cachePending  prometheus.Gauge
}

// NewAccessMetrics creates the Prometheus-backed metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewAccessMetrics() *AccessMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &AccessMetrics{
		scans: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "accessd_scans_total",
				Help: "Card scans by decision and reader",
			},
			[]string{"status", "reader"},
		),
		invalidFrames: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "accessd_invalid_frames_total",
				Help: "Wiegand frames discarded by reader and reason",
			},
			[]string{"reader", "bits", "reason"}, // reason: "width", "parity"
		),
		relayOps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "accessd_relay_operations_total",
				Help: "Relay operations by relay and action",
			},
			[]string{"relay", "action"},
		),
		uploads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "accessd_uploads_total",
				Help: "Transaction upload attempts by outcome",
			},
			[]string{"outcome"}, // "ok", "failed", "cached"
		),
		cachePending: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "accessd_upload_cache_pending",
				Help: "Transactions waiting in the failed-upload cache",
			},
		),
	}
}

// RecordScan counts one access decision.
func (m *AccessMetrics) RecordScan(status string, reader int) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(status, itoa(reader)).Inc()
}

// RecordInvalidFrame counts one discarded Wiegand frame.
func (m *AccessMetrics) RecordInvalidFrame(reader, bits int, reason string) {
	if m == nil {
		return
	}
	m.invalidFrames.WithLabelValues(itoa(reader), itoa(bits), reason).Inc()
}

// RecordRelayOp counts one relay operation.
func (m *AccessMetrics) RecordRelayOp(relay int, action string) {
	if m == nil {
		return
	}
	m.relayOps.WithLabelValues(itoa(relay), action).Inc()
}

// RecordUpload counts one upload attempt outcome.
func (m *AccessMetrics) RecordUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

// SetCachePending records the failed-upload cache depth.
func (m *AccessMetrics) SetCachePending(n int) {
	if m == nil {
		return
	}
	m.cachePending.Set(float64(n))
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
