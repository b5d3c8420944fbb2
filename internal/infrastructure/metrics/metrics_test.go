package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := New(registry)

	if m.LoanTransitions == nil || m.AllocationsPosted == nil || m.HTTPRequests == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	m.LoanTransitions.WithLabelValues("submit", "SUBMITTED").Inc()
	m.JournalEntries.WithLabelValues("LOAN_DISBURSEMENT").Inc()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}

	if got := testutil.ToFloat64(m.LoanTransitions.WithLabelValues("submit", "SUBMITTED")); got != 1 {
		t.Fatalf("expected one submit transition, got %v", got)
	}
}

func TestNewIsolatedRegistries(t *testing.T) {
	// Two registries must not collide on metric names.
	a := New(prometheus.NewRegistry())
	b := New(prometheus.NewRegistry())

	a.Disbursements.Inc()

	if got := testutil.ToFloat64(b.Disbursements); got != 0 {
		t.Fatalf("expected separate counters, got %v", got)
	}
}
