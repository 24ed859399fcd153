package balances

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/reconciler/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler exposes the accounting equation check.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers the ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/equation", h.Equation)
}

// Equation serves the check as of ?as_of=YYYY-MM-DD, today by default.
func (h *Handler) Equation(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	asOf := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = t
	}
	eq, err := h.service.Equation(r.Context(), asOf)
	if err != nil {
		h.logger.Error("ledger equation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !eq.Balanced {
		h.logger.Warn("accounting equation does not hold",
			slog.String("as_of", asOf.Format(time.DateOnly)),
			slog.String("difference", eq.Difference.String()))
	}
	httpx.JSON(w, http.StatusOK, eq)
}
