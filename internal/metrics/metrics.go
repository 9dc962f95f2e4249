// Package metrics defines the Prometheus metrics exported by rcguard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rcguard"

// Metrics holds every collector. Pass it to components that record metrics;
// a nil *Metrics is valid and records nothing.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	EvalDuration  prometheus.Histogram
	AuditFailures prometheus.Counter
	Alerts        *prometheus.CounterVec
	Timeouts      prometheus.Counter
	HTTPRequests  *prometheus.CounterVec
	CatalogRules  *prometheus.GaugeVec
	CatalogInfo   *prometheus.GaugeVec
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Decisions by outcome and rule",
			},
			[]string{"outcome", "rule_id"},
		),
		EvalDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Time to decide one invocation, audit write included",
				Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .5, 2},
			},
		),
		AuditFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_write_failures_total",
				Help:      "Audit records that could not be written after all retries",
			},
		),
		Alerts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Operational alerts by kind",
			},
			[]string{"kind"},
		),
		Timeouts: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluation_timeouts_total",
				Help:      "Evaluations that exceeded the engine timeout and failed closed",
			},
		),
		HTTPRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Daemon HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		CatalogRules: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_rules",
				Help:      "Loaded rules by tier",
			},
			[]string{"tier"},
		),
		CatalogInfo: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_info",
				Help:      "Always 1; labels identify the loaded catalog",
			},
			[]string{"version", "fingerprint"},
		),
	}
}

// ObserveDecision counts one decision.
func (m *Metrics) ObserveDecision(outcome, ruleID string, seconds float64) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome, ruleID).Inc()
	m.EvalDuration.Observe(seconds)
}

// Alert counts one operational alert.
func (m *Metrics) Alert(kind string) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(kind).Inc()
}

// AuditFailure counts one lost audit record.
func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}

// Timeout counts one evaluation timeout.
func (m *Metrics) Timeout() {
	if m == nil {
		return
	}
	m.Timeouts.Inc()
}

// HTTPRequest counts one daemon request.
func (m *Metrics) HTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}

// SetCatalog records the loaded catalog's identity and size.
func (m *Metrics) SetCatalog(version, fingerprint string, rulesByTier map[string]int) {
	if m == nil {
		return
	}
	m.CatalogInfo.Reset()
	m.CatalogInfo.WithLabelValues(version, fingerprint).Set(1)
	for tier, n := range rulesByTier {
		m.CatalogRules.WithLabelValues(tier).Set(float64(n))
	}
}
