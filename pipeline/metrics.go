package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for an ingestion run.
type Metrics struct {
	Registry         *prometheus.Registry
	ReceiptsTotal    *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	ItemsTotal       prometheus.Counter
	RawValuesTotal   prometheus.Counter
	StoresDiscovered prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	receipts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfce_receipts_total",
			Help: "Receipt pages processed, by outcome.",
		},
		[]string{"outcome"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nfce_fetch_duration_seconds",
			Help:    "Time spent retrieving and rendering a receipt page.",
			Buckets: prometheus.DefBuckets,
		},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nfce_items_total",
			Help: "Line items appended to the purchases table.",
		},
	)
	rawValues := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nfce_raw_values_total",
			Help: "Line items whose unit value could not be parsed as a number.",
		},
	)
	stores := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nfce_stores_discovered_total",
			Help: "Stores added to the registry.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfce_errors_total",
			Help: "Failed receipt pages by error type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(receipts, fetchDuration, items, rawValues, stores, errorsTotal)

	return &Metrics{
		Registry:         registry,
		ReceiptsTotal:    receipts,
		FetchDuration:    fetchDuration,
		ItemsTotal:       items,
		RawValuesTotal:   rawValues,
		StoresDiscovered: stores,
		ErrorsTotal:      errorsTotal,
	}
}

// IncReceipt counts a processed page.
func (m *Metrics) IncReceipt(outcome string) {
	if m == nil {
		return
	}
	m.ReceiptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records a page retrieval duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// AddItems counts appended line items and how many kept raw values.
func (m *Metrics) AddItems(items, raw int) {
	if m == nil {
		return
	}
	m.ItemsTotal.Add(float64(items))
	m.RawValuesTotal.Add(float64(raw))
}

// IncStores counts a newly discovered store.
func (m *Metrics) IncStores() {
	if m == nil {
		return
	}
	m.StoresDiscovered.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
