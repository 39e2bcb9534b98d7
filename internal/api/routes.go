package api

import (
	"github.com/go-chi/chi/v5"
)

// RegisterEmailRoutes registers the read-only email query routes.
func RegisterEmailRoutes(r chi.Router, handler *EmailHandler) {
	r.Route("/emails", func(r chi.Router) {
		// GET /api/v1/emails - List recent emails
		r.Get("/", handler.List)

		// GET /api/v1/emails/latest - Latest email matching an exact subject
		r.Get("/latest", handler.LatestBySubject)
	})
}
