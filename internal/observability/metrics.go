// Package observability holds the Prometheus collectors shared by the HTTP
// server and the warehouse engine.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/warehouse/internal/warehouse"
)

// Metrics collects the Prometheus metrics for the process.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	ordersProcessed *prometheus.CounterVec
	unitsAllocated  *prometheus.CounterVec
	invoicedAmount  *prometheus.CounterVec
	shipments       prometheus.Counter
	shipmentUnits   *prometheus.CounterVec
	fills           *prometheus.CounterVec
}

var _ warehouse.MetricsPort = (*Metrics)(nil)

// NewMetrics initialises a private registry with HTTP and ledger metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warehouse_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ordersProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_orders_processed_total",
			Help: "Processed orders by outcome (complete, partial, backordered).",
		}, []string{"outcome"}),
		unitsAllocated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_allocation_units_total",
			Help: "Units handled by order allocation, split into billed and backordered.",
		}, []string{"disposition"}),
		invoicedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_invoiced_amount_total",
			Help: "Invoiced money by invoice source.",
		}, []string{"source"}),
		shipments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warehouse_shipments_received_total",
			Help: "Supplier shipments received.",
		}),
		shipmentUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_shipment_units_total",
			Help: "Received units split into backorder fills and stock.",
		}, []string{"disposition"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_backorder_fills_total",
			Help: "Backorder fills by result (completed, partial).",
		}, []string{"result"}),
	}
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.ordersProcessed,
		m.unitsAllocated,
		m.invoicedAmount,
		m.shipments,
		m.shipmentUnits,
		m.fills,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency for every request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry so other components (job metrics) can
// register on the same endpoint.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveAllocation records the outcome of a processed order.
func (m *Metrics) ObserveAllocation(result warehouse.AllocationResult) {
	if m == nil {
		return
	}
	billed, backordered := result.BilledUnits(), result.BackorderedUnits()
	outcome := "complete"
	switch {
	case billed == 0:
		outcome = "backordered"
	case backordered > 0:
		outcome = "partial"
	}
	m.ordersProcessed.WithLabelValues(outcome).Inc()
	m.unitsAllocated.WithLabelValues("billed").Add(float64(billed))
	m.unitsAllocated.WithLabelValues("backordered").Add(float64(backordered))
	if result.Invoice != nil {
		m.invoicedAmount.WithLabelValues(string(warehouse.InvoiceSourceAllocation)).Add(result.Invoice.Total().InexactFloat64())
	}
}

// ObserveShipment records a received shipment and the fills it produced.
func (m *Metrics) ObserveShipment(result warehouse.ShipmentResult) {
	if m == nil {
		return
	}
	m.shipments.Inc()
	m.shipmentUnits.WithLabelValues("filled").Add(float64(result.FilledUnits()))
	m.shipmentUnits.WithLabelValues("stocked").Add(float64(result.Stocked))
	for _, f := range result.Fills {
		if f.Completed {
			m.fills.WithLabelValues("completed").Inc()
		} else {
			m.fills.WithLabelValues("partial").Inc()
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
