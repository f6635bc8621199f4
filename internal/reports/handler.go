package reports

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/warehouse/internal/platform/httpx"
)

// Handler exposes the cached reports over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/unpaid-balances", h.handleUnpaid)
	r.Get("/backorders", h.handleBackorders)
}

func (h *Handler) handleUnpaid(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.UnpaidBalances(r.Context())
	if err != nil {
		h.logger.Error("unpaid balance report failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleBackorders(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Backorders(r.Context())
	if err != nil {
		h.logger.Error("backorder report failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
