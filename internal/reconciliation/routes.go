package reconciliation

import "github.com/go-chi/chi/v5"

// MountRoutes registers the bank transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Show)
	r.Get("/{id}/candidates", h.Candidates)
	r.Post("/{id}/reconcile", h.Reconcile)
	r.Post("/{id}/auto", h.Auto)
	r.Post("/{id}/unmatch", h.Unmatch)
}
