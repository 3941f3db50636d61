// Package metrics exposes tracker counters through a Prometheus registry.
//
// Each Metrics owns its registry so several engines (and tests) never collide
// on the default one. A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"io"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const namespace = "personyze"

// Flush outcomes.
const (
	OutcomeSent   = "sent"
	OutcomeCached = "cached"
	OutcomeError  = "error"
)

// Notification outcomes.
const (
	NotificationDelivered = "delivered"
	NotificationNone      = "none"
	NotificationSkipped   = "skipped"
	NotificationError     = "error"
)

// Metrics holds the tracker's collectors.
type Metrics struct {
	registry *prometheus.Registry

	flushes       *prometheus.CounterVec
	flushDuration prometheus.Histogram
	coalesced     prometheus.Counter
	requestBytes  prometheus.Histogram
	cacheFills    *prometheus.CounterVec
	errors        *prometheus.CounterVec
	newSessions   prometheus.Counter
	cacheClears   *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// New creates a Metrics registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "flushes_total",
			Help:      "Flushes by outcome (sent, cached, error)",
		}, []string{"outcome"}),
		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "flush_duration_seconds",
			Help:      "Duration of flushes that reached the gateway",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		coalesced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "coalesced_waiters_total",
			Help:      "Callers that joined a flush already in flight",
		}),
		requestBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "request_bytes",
			Help:      "Size of serialized tracker requests",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 8),
		}),
		cacheFills: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fills_total",
			Help:      "Metadata fetches by entity kind",
		}, []string{"kind"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "errors_total",
			Help:      "Errors by code",
		}, []string{"code"}),
		newSessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "new_total",
			Help:      "New sessions detected in tracker responses",
		}),
		cacheClears: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "clears_total",
			Help:      "Cache clears by reason (explicit, version, api_key)",
		}, []string{"reason"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "checks_total",
			Help:      "Notification checks by outcome",
		}, []string{"outcome"}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordFlush counts a finished flush.
func (m *Metrics) RecordFlush(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSent {
		m.flushDuration.Observe(seconds)
	}
}

// RecordCoalesced counts a caller that shared an in-flight flush.
func (m *Metrics) RecordCoalesced() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}

// RecordRequestBytes observes the size of a serialized tracker request.
func (m *Metrics) RecordRequestBytes(n int) {
	if m == nil {
		return
	}
	m.requestBytes.Observe(float64(n))
}

// RecordCacheFill counts a metadata fetch for kind.
func (m *Metrics) RecordCacheFill(kind string) {
	if m == nil {
		return
	}
	m.cacheFills.WithLabelValues(kind).Inc()
}

// RecordError counts an error by its code.
func (m *Metrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(code).Inc()
}

// RecordNewSession counts a detected session rollover.
func (m *Metrics) RecordNewSession() {
	if m == nil {
		return
	}
	m.newSessions.Inc()
}

// RecordCacheClear counts a cache clear.
func (m *Metrics) RecordCacheClear(reason string) {
	if m == nil {
		return
	}
	m.cacheClears.WithLabelValues(reason).Inc()
}

// RecordNotification counts a notification check.
func (m *Metrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// WriteText writes every metric family in the Prometheus text format,
// ordered by name.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
