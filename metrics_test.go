package orgauth

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics("", reg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.login("success")
	m.refresh("reuse")
	m.authenticate("success", time.Now())
	m.passwordReset("request", "ignored")

	if got := testutil.ToFloat64(m.LoginTotal.WithLabelValues("success")); got != 1 {
		t.Fatalf("expected 1 login, got %v", got)
	}
	if got := testutil.ToFloat64(m.RefreshTotal.WithLabelValues("reuse")); got != 1 {
		t.Fatalf("expected 1 reuse, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "orgauth_authenticate_duration_seconds" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected authenticate latency histogram to be registered")
	}

	if _, err := NewMetrics("", reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.login("success")
	m.refresh("success")
	m.logout()
	m.evicted()
	m.authenticate("invalid", time.Now())
	m.scopeDenied("BRANCH")
	m.passwordChange("success")
	m.passwordReset("confirm", "success")
	m.auditDropped()
}
