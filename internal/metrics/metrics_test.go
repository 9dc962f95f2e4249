package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDecision("block", "forced-push", 0.001)
	m.ObserveDecision("block", "forced-push", 0.002)
	m.ObserveDecision("allow", "", 0.0001)
	m.Alert("audit_write_failure")
	m.AuditFailure()
	m.Timeout()
	m.HTTPRequest("/v1/evaluate", "200")
	m.SetCatalog("1", "00000000deadbeef", map[string]int{"block": 3, "escalate": 2})

	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("block", "forced-push")); got != 2 {
		t.Errorf("expected 2 forced-push blocks, got %v", got)
	}
	if got := testutil.ToFloat64(m.Alerts.WithLabelValues("audit_write_failure")); got != 1 {
		t.Errorf("expected 1 alert, got %v", got)
	}
	if got := testutil.ToFloat64(m.AuditFailures); got != 1 {
		t.Errorf("expected 1 audit failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.Timeouts); got != 1 {
		t.Errorf("expected 1 timeout, got %v", got)
	}
	if got := testutil.ToFloat64(m.CatalogRules.WithLabelValues("block")); got != 3 {
		t.Errorf("expected 3 block rules, got %v", got)
	}
	if got := testutil.CollectAndCount(m.EvalDuration); got != 1 {
		t.Errorf("expected one histogram series, got %d", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveDecision("allow", "", 0)
	m.Alert("x")
	m.AuditFailure()
	m.Timeout()
	m.HTTPRequest("/healthz", "200")
	m.SetCatalog("1", "f", nil)
}
