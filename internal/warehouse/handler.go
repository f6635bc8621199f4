package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/warehouse/internal/platform/httpx"
	"github.com/odyssey-erp/warehouse/internal/shared"
)

// IdempotencyHeader carries the client supplied key for retried POSTs.
const IdempotencyHeader = "Idempotency-Key"

// IdempotencyGuard claims request keys so a retried payment or shipment is
// applied once.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Handler wires HTTP endpoints for the warehouse ledger.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	idempotency IdempotencyGuard
}

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithIdempotency deduplicates payment and shipment requests that carry an
// Idempotency-Key header.
func WithIdempotency(guard IdempotencyGuard) HandlerOption {
	return func(h *Handler) { h.idempotency = guard }
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, opts ...HandlerOption) *Handler {
	h := &Handler{logger: logger, service: service, validator: validator.New()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/clients", func(r chi.Router) {
		r.Post("/", h.handleAddClient)
		r.Get("/", h.handleListClients)
		r.Get("/unpaid", h.handleUnpaidClients)
		r.Route("/{clientID}", func(r chi.Router) {
			r.Get("/", h.handleGetClient)
			r.Get("/transactions", h.handleClientTransactions)
			r.Get("/invoices", h.handleClientInvoices)
			r.Get("/invoices/{invoiceID}", h.handleGetInvoice)
			r.With(h.idempotent("payments")).Post("/payments", h.handleAcceptPayment)
			r.Post("/orders", h.handleCreateOrder)
			r.Get("/orders", h.handleClientOrders)
			r.Get("/orders/backordered", h.handleBackorderedOrders)
			r.Route("/orders/{orderID}", func(r chi.Router) {
				r.Get("/", h.handleGetOrder)
				r.Post("/lines", h.handleAddOrderLine)
				r.Post("/process", h.handleProcessOrder)
				r.Get("/backorders", h.handleOrderBackorders)
			})
		})
	})
	r.Route("/suppliers", func(r chi.Router) {
		r.Post("/", h.handleAddSupplier)
		r.Get("/", h.handleListSuppliers)
		r.Get("/{supplierID}", h.handleGetSupplier)
	})
	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.handleAddProduct)
		r.Get("/", h.handleListProducts)
		r.Route("/{productID}", func(r chi.Router) {
			r.Get("/", h.handleGetProduct)
			r.Post("/suppliers/{supplierID}", h.handleAssociate)
			r.Delete("/suppliers/{supplierID}", h.handleDisassociate)
			r.Get("/backorders", h.handleProductBackorders)
			r.With(h.idempotent("shipments")).Post("/shipments", h.handleReceiveShipment)
		})
	})
	r.Post("/snapshots", h.handleSaveSnapshot)
}

// idempotent claims the request key before next runs and releases it again
// when next fails, so the client can retry.
func (h *Handler) idempotent(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if h.idempotency == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			scope := module + ":" + r.URL.Path
			if err := h.idempotency.CheckAndInsert(r.Context(), key, scope); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					httpx.ProblemWithCode(w, http.StatusConflict, "Conflict", err.Error(), string(StatusAlreadyExists))
					return
				}
				h.logger.Warn("idempotency check failed", slog.String("module", module), slog.Any("error", err))
				httpx.ProblemWithCode(w, http.StatusServiceUnavailable, "Unavailable", "", string(StatusOperationFailed))
				return
			}
			rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusBadRequest {
				if err := h.idempotency.Delete(context.WithoutCancel(r.Context()), key, scope); err != nil {
					h.logger.Warn("idempotency release failed", slog.String("module", module), slog.Any("error", err))
				}
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			if fieldErrs[0].Field() == "Quantity" {
				return fmt.Errorf("%w: %w: %v", httpx.ErrValidation, ErrInvalidQuantity, fieldErrs[0].Value())
			}
			return fmt.Errorf("%w: %s failed on %q", httpx.ErrValidation, fieldErrs[0].Field(), fieldErrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) handleAddClient(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	c, err := h.service.AddClient(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newClientView(c))
}

func (h *Handler) handleListClients(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, newClientViews(h.service.ListClients(r.Context())))
}

func (h *Handler) handleUnpaidClients(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, newClientViews(h.service.ClientsWithUnpaidBalance(r.Context())))
}

func (h *Handler) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.FindClient(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newClientView(c))
}

func (h *Handler) handleClientTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.ClientTransactions(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

func (h *Handler) handleClientInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.ClientInvoices(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newInvoiceViews(invoices))
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.FindInvoice(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "invoiceID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newInvoiceView(inv))
}

func (h *Handler) handleAcceptPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	amount, err := parseMoney("amount", req.Amount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	clientID := chi.URLParam(r, "clientID")
	tx, err := h.service.AcceptPayment(r.Context(), clientID, amount, RejectOverpayment)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceView{
		ClientID:       clientID,
		Balance:        tx.BalanceAfter,
		BalanceDisplay: FormatMoney(tx.BalanceAfter),
		Transaction:    tx,
	})
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := h.service.CreateOrder(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"order_id": orderID})
}

func (h *Handler) handleClientOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ClientOrders(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) handleBackorderedOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ClientBackorderedOrders(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.FindOrder(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleAddOrderLine(w http.ResponseWriter, r *http.Request) {
	var req orderLineRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	line, err := h.service.AddOrderLine(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "orderID"), req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) handleProcessOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ProcessOrder(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newAllocationView(result))
}

func (h *Handler) handleOrderBackorders(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.OrderBackorders(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleAddSupplier(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	s, err := h.service.AddSupplier(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, s)
}

func (h *Handler) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.ListSuppliers(r.Context()))
}

func (h *Handler) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.FindSupplier(r.Context(), chi.URLParam(r, "supplierID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	price, err := parseMoney("price", req.Price)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	p, err := h.service.AddProduct(r.Context(), req.Name, price)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.ListProducts(r.Context()))
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.FindProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleAssociate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.AssociateSupplier(r.Context(), chi.URLParam(r, "productID"), chi.URLParam(r, "supplierID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDisassociate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DisassociateSupplier(r.Context(), chi.URLParam(r, "productID"), chi.URLParam(r, "supplierID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleProductBackorders(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ProductBackorders(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleReceiveShipment(w http.ResponseWriter, r *http.Request) {
	var req shipmentRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.service.ReceiveShipment(r.Context(), chi.URLParam(r, "productID"), req.Quantity, req.target())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	meta, err := h.service.Save(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, meta)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := httpStatusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("warehouse request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		httpx.ProblemWithCode(w, status, title, "", string(StatusOperationFailed))
		return
	}
	httpx.ProblemWithCode(w, status, title, err.Error(), string(StatusOf(err)))
}

func httpStatusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrClientNotFound),
		errors.Is(err, ErrSupplierNotFound),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrInvoiceNotFound),
		errors.Is(err, ErrBackorderNotFound),
		errors.Is(err, ErrNotAssociated),
		errors.Is(err, httpx.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, httpx.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, ErrAlreadyAllocated),
		errors.Is(err, ErrAlreadyAssociated),
		errors.Is(err, httpx.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, ErrOverpayment),
		errors.Is(err, ErrEmptyOrder):
		return http.StatusUnprocessableEntity, "Unprocessable"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
