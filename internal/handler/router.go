package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/xerud2002/Dos/internal/limiter"
	"github.com/xerud2002/Dos/internal/middleware"
)

// NewRouter mounts the API. Write and search routes are charged against their
// limiter class; claim administration and status are not limited.
func NewRouter(h *Handler, rl *middleware.RateLimitMiddleware) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)

		r.With(rl.Limit(limiter.ClassReview)).Post("/reviews", h.createReview)
		r.With(rl.Limit(limiter.ClassSearch)).Get("/reviews", h.searchReviews)

		r.With(rl.Limit(limiter.ClassSearch)).Get("/providers", h.searchProviders)
		r.With(rl.Limit(limiter.ClassSearch)).Get("/providers/{id}", h.getProvider)

		r.With(rl.Limit(limiter.ClassClaim)).Post("/claims", h.createClaim)
		r.Get("/claims", h.listClaims)
		r.Put("/claims/{id}/status", h.updateClaimStatus)
	})

	return r
}
