// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the shopping
// assistant service.
//
// # Description
//
// Metrics cover the turn pipeline and its edges:
//   - HTTP request counters (by endpoint, status)
//   - Turn duration histograms (by planned tool)
//   - Events published and heartbeats sent
//   - Active stream and live session gauges
//   - Context-validation refusals and result-cache effectiveness
//
// # Integration
//
// Exposed at /metrics via promhttp. Use with Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "shopstream"

// Subsystem for turn/stream metrics
const turnsSubsystem = "turns"

// Metrics holds all Prometheus metrics for the service. Initialize once at
// startup via InitMetrics().
type Metrics struct {
	// RequestsTotal counts HTTP requests by endpoint and status.
	// Labels: endpoint (sessions, message, stream, functions), status
	RequestsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures plan-to-completion latency per tool.
	// Labels: tool
	TurnDurationSeconds *prometheus.HistogramVec

	// EventsPublishedTotal counts events entering session queues.
	// Labels: type (connection, text_chunk, function_call, completion, error)
	EventsPublishedTotal *prometheus.CounterVec

	// HeartbeatsTotal counts idle keepalives written to streams.
	HeartbeatsTotal prometheus.Counter

	// ActiveStreams tracks currently connected SSE subscribers.
	ActiveStreams prometheus.Gauge

	// ValidationRefusalsTotal counts tool calls refused by the context
	// window check. Labels: tool
	ValidationRefusalsTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts streams ended by the client side.
	ClientDisconnectsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance. Initialized by InitMetrics().
var DefaultMetrics *Metrics

// InitMetrics initializes and registers the default metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Turn duration from plan to completion, by tool",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"tool"},
		),

		EventsPublishedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "events_published_total",
				Help:      "Events published into session queues by type",
			},
			[]string{"type"},
		),

		HeartbeatsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "heartbeats_total",
				Help:      "Idle keepalive comments written to SSE streams",
			},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "active_streams",
				Help:      "Currently connected SSE subscribers",
			},
		),

		ValidationRefusalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "validation_refusals_total",
				Help:      "Tool calls refused by the context-window check",
			},
			[]string{"tool"},
		),

		ClientDisconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Streams ended by client disconnect",
			},
		),
	}

	return DefaultMetrics
}

// RegisterCacheStats exposes a result cache's cumulative hit/miss counts as
// gauges, read at scrape time.
func RegisterCacheStats(stats func() (hits, misses int64)) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "catalog",
		Name:      "cache_hits",
		Help:      "Cumulative result cache hits",
	}, func() float64 {
		h, _ := stats()
		return float64(h)
	})
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "catalog",
		Name:      "cache_misses",
		Help:      "Cumulative result cache misses",
	}, func() float64 {
		_, m := stats()
		return float64(m)
	})
}

// RegisterSessionGauge exposes the live session count, read at scrape time.
func RegisterSessionGauge(count func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "sessions",
		Name:      "live",
		Help:      "Live (unexpired) sessions",
	}, func() float64 {
		return float64(count())
	})
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(endpoint string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordTurn records a turn's duration by tool.
func (m *Metrics) RecordTurn(tool string, seconds float64) {
	m.TurnDurationSeconds.WithLabelValues(tool).Observe(seconds)
}

// RecordEvent counts one published event.
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// RecordHeartbeat counts one keepalive written to a stream.
func (m *Metrics) RecordHeartbeat() {
	m.HeartbeatsTotal.Inc()
}

// StreamStarted increments the active streams gauge.
func (m *Metrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *Metrics) StreamEnded() {
	m.ActiveStreams.Dec()
}

// RecordValidationRefusal counts one context-window refusal.
func (m *Metrics) RecordValidationRefusal(tool string) {
	m.ValidationRefusalsTotal.WithLabelValues(tool).Inc()
}

// RecordClientDisconnect counts one client-initiated stream end.
func (m *Metrics) RecordClientDisconnect() {
	m.ClientDisconnectsTotal.Inc()
}
