package journals

import "github.com/go-chi/chi/v5"

// MountRoutes registers the journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Show)
}
