package accounts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/reconciler/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler exposes the chart of accounts.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
}

// List serves the chart; ?postable=1 restricts it to leaf accounts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list := h.service.List
	if r.URL.Query().Get("postable") == "1" {
		list = h.service.Postable
	}
	accounts, err := list(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}
