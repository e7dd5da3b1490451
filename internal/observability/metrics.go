package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the accounting core.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	journalsPosted   *prometheus.CounterVec
	journalsReversed prometheus.Counter
	postDuration     prometheus.Histogram
	numbersIssued    *prometheus.CounterVec
	allocations      prometheus.Counter
	deallocations    prometheus.Counter
	integrityDrift   prometheus.Gauge
}

// NewMetrics initialises the registry and the core metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	posted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_journals_posted_total",
		Help: "Journal entries posted, by voucher type.",
	}, []string{"voucher_type"})
	reversed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_journals_reversed_total",
		Help: "Journal entries reversed.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meridian_journal_post_duration_seconds",
		Help:    "Duration of a posting transaction, validation included.",
		Buckets: prometheus.DefBuckets,
	})
	issued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_document_numbers_issued_total",
		Help: "Document numbers issued, by document type.",
	}, []string{"document_type"})
	allocations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_payment_allocations_total",
		Help: "Payment allocations applied.",
	})
	deallocations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_payment_allocations_removed_total",
		Help: "Payment allocations removed.",
	})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meridian_gl_integrity_drifted_entries",
		Help: "Posted entries whose line sums drift from stored totals, per last scan.",
	})
	registry.MustRegister(posted, reversed, duration, issued, allocations, deallocations, drift)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		journalsPosted:   posted,
		journalsReversed: reversed,
		postDuration:     duration,
		numbersIssued:    issued,
		allocations:      allocations,
		deallocations:    deallocations,
		integrityDrift:   drift,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// JournalPosted increments the posted counter for the voucher type.
func (m *Metrics) JournalPosted(voucherType string) {
	if m != nil {
		m.journalsPosted.WithLabelValues(voucherType).Inc()
	}
}

// JournalReversed increments the reversal counter.
func (m *Metrics) JournalReversed() {
	if m != nil {
		m.journalsReversed.Inc()
	}
}

// ObservePostDuration records one posting transaction duration.
func (m *Metrics) ObservePostDuration(d time.Duration) {
	if m != nil {
		m.postDuration.Observe(d.Seconds())
	}
}

// NumberIssued increments the issued counter for the document type.
func (m *Metrics) NumberIssued(documentType string) {
	if m != nil {
		m.numbersIssued.WithLabelValues(documentType).Inc()
	}
}

// AllocationsApplied adds n to the allocation counter.
func (m *Metrics) AllocationsApplied(n int) {
	if m != nil {
		m.allocations.Add(float64(n))
	}
}

// AllocationRemoved increments the removal counter.
func (m *Metrics) AllocationRemoved() {
	if m != nil {
		m.deallocations.Inc()
	}
}

// SetIntegrityDrift reports the drifted-entry count from the latest scan.
func (m *Metrics) SetIntegrityDrift(n int) {
	if m != nil {
		m.integrityDrift.Set(float64(n))
	}
}
