// Package metrics holds the Prometheus counters recorded by the
// orchestration core. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the orchestrator's counters.
type Metrics struct {
	recommendations *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	tokensMinted    prometheus.Counter
	routeResults    *prometheus.CounterVec
	toggles         *prometheus.CounterVec
	teardowns       *prometheus.CounterVec
}

// New creates unregistered metrics.
func New() *Metrics {
	return &Metrics{
		recommendations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotorch_region_recommendations_total",
				Help: "Region recommendations by result (found, not_found, error)",
			},
			[]string{"result"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotorch_run_transitions_total",
				Help: "Workflow run transitions by destination status",
			},
			[]string{"status"},
		),
		tokensMinted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spotorch_callback_tokens_minted_total",
				Help: "Callback tokens issued with capacity requests",
			},
		),
		routeResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotorch_capacity_events_total",
				Help: "Inbound capacity events by route result",
			},
			[]string{"result"},
		),
		toggles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotorch_provisioning_toggles_total",
				Help: "Provisioning toggles by action",
			},
			[]string{"action"},
		),
		teardowns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotorch_teardown_notifications_total",
				Help: "Teardown notifications by region and result",
			},
			[]string{"region", "result"},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.recommendations.Describe(ch)
	m.transitions.Describe(ch)
	m.tokensMinted.Describe(ch)
	m.routeResults.Describe(ch)
	m.toggles.Describe(ch)
	m.teardowns.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.recommendations.Collect(ch)
	m.transitions.Collect(ch)
	m.tokensMinted.Collect(ch)
	m.routeResults.Collect(ch)
	m.toggles.Collect(ch)
	m.teardowns.Collect(ch)
}

// RecordRecommendation counts a scorer result.
func (m *Metrics) RecordRecommendation(result string) {
	if m == nil {
		return
	}
	m.recommendations.WithLabelValues(result).Inc()
}

// RecordTransition counts a run entering status.
func (m *Metrics) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// RecordTokenMinted counts an issued callback token.
func (m *Metrics) RecordTokenMinted() {
	if m == nil {
		return
	}
	m.tokensMinted.Inc()
}

// RecordRoute counts an inbound event by route result.
func (m *Metrics) RecordRoute(result string) {
	if m == nil {
		return
	}
	m.routeResults.WithLabelValues(result).Inc()
}

// RecordToggle counts a provisioning toggle.
func (m *Metrics) RecordToggle(action string) {
	if m == nil {
		return
	}
	m.toggles.WithLabelValues(action).Inc()
}

// RecordTeardown counts one teardown notification attempt outcome.
func (m *Metrics) RecordTeardown(region string, ok bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.teardowns.WithLabelValues(region, result).Inc()
}
