package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.JournalPosted("JOURNAL")
	metrics.JournalReversed()
	metrics.NumberIssued("INVOICE")
	metrics.AllocationsApplied(3)
	metrics.SetIntegrityDrift(1)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	for _, name := range []string{
		`meridian_journals_posted_total{voucher_type="JOURNAL"} 1`,
		"meridian_journals_reversed_total 1",
		`meridian_document_numbers_issued_total{document_type="INVOICE"} 1`,
		"meridian_payment_allocations_total 3",
		"meridian_gl_integrity_drifted_entries 1",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected body to contain %q, got: %s", name, body)
		}
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var metrics *Metrics
	metrics.JournalPosted("JOURNAL")
	metrics.JournalReversed()
	metrics.ObservePostDuration(0)
	metrics.NumberIssued("INVOICE")
	metrics.AllocationsApplied(1)
	metrics.AllocationRemoved()
	metrics.SetIntegrityDrift(0)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}
