package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/warehouse/internal/warehouse"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `warehouse_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `warehouse_http_request_duration_seconds_bucket{route="/test"`)
}

func TestObserveAllocation(t *testing.T) {
	metrics := NewMetrics()
	invoice := &warehouse.Invoice{
		ID:     "I1",
		Source: warehouse.InvoiceSourceAllocation,
		Lines: []warehouse.LineItem{
			{ProductID: "P1", Quantity: 2, UnitPrice: decimal.RequireFromString("2.50")},
		},
	}
	metrics.ObserveAllocation(warehouse.AllocationResult{
		OrderID: "O1",
		Invoice: invoice,
		Lines: []warehouse.LineOutcome{
			{ProductID: "P1", Requested: 5, Billed: 2, Backordered: 3},
		},
	})
	metrics.ObserveAllocation(warehouse.AllocationResult{
		OrderID: "O2",
		Lines:   []warehouse.LineOutcome{{ProductID: "P1", Requested: 1, Backordered: 1}},
	})

	body := scrape(t, metrics)
	require.Contains(t, body, `warehouse_orders_processed_total{outcome="partial"} 1`)
	require.Contains(t, body, `warehouse_orders_processed_total{outcome="backordered"} 1`)
	require.Contains(t, body, `warehouse_allocation_units_total{disposition="billed"} 2`)
	require.Contains(t, body, `warehouse_allocation_units_total{disposition="backordered"} 4`)
	require.Contains(t, body, `warehouse_invoiced_amount_total{source="ALLOCATION"} 5`)
}

func TestObserveShipment(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveShipment(warehouse.ShipmentResult{
		ProductID: "P1",
		Received:  6,
		Fills: []warehouse.Fill{
			{EntryID: "B1", Quantity: 3, Completed: true},
			{EntryID: "B2", Quantity: 2},
		},
		Stocked: 1,
	})

	body := scrape(t, metrics)
	require.Contains(t, body, "warehouse_shipments_received_total 1")
	require.Contains(t, body, `warehouse_shipment_units_total{disposition="filled"} 5`)
	require.Contains(t, body, `warehouse_shipment_units_total{disposition="stocked"} 1`)
	require.Contains(t, body, `warehouse_backorder_fills_total{result="completed"} 1`)
	require.Contains(t, body, `warehouse_backorder_fills_total{result="partial"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveAllocation(warehouse.AllocationResult{})
	metrics.ObserveShipment(warehouse.ShipmentResult{})

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.True(t, strings.HasPrefix(rr.Body.String(), http.StatusText(http.StatusServiceUnavailable)))
}
