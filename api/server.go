/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters and durations
  5. CORS:       Cross-origin requests for the wallet frontend

  Mutation routes additionally pass through the per-client rate limiter.

ROUTE GROUPS:
  /wallet/*          Collaborator contract, views and the snapshot stream
  /catalog/*         Card catalog
  /api/scenarios/*   Demo wallets (dev only)
  /metrics           Prometheus scrape endpoint
  /healthz           Liveness

SECURITY NOTE:
  No authentication middleware. The wallet user is taken from a header.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured. A nil limiter
// disables rate limiting.
func NewRouter(h *Handler, limiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	origins := h.Origins
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", userHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())

	r.Route("/wallet", func(r chi.Router) {
		// Collaborator contract
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/update-benefit/{cardId}/{benefitId}/", h.UpdateBenefit)
			r.Post("/toggle-ignore-benefit/{cardId}/{benefitId}/", h.ToggleIgnoreBenefit)
			r.Post("/update-anniversary/{cardId}/", h.UpdateAnniversary)
			r.Post("/add-card/{cardId}/", h.AddCard)
			r.Post("/remove-card/{cardId}/", h.RemoveCard)
		})

		r.Get("/cards/", h.ListWalletCards)
		r.Get("/cards/{cardId}/benefits/{benefitId}/periods/", h.GetBenefitPeriods)
		r.Get("/summary/", h.GetSummary)
		r.Get("/eligibility/", h.GetEligibility)
		r.Get("/snapshot/", h.GetSnapshot)
		r.Get("/stream/", h.Stream)
	})

	r.Route("/catalog", func(r chi.Router) {
		r.Get("/", h.GetCatalog)
		r.Get("/cards/", h.ListCatalogCards)
		r.Get("/cards/{cardId}/", h.GetCatalogCard)
	})

	r.Route("/api/scenarios", func(r chi.Router) {
		r.Get("/", h.ListScenarios)
		r.Get("/current", h.GetCurrentScenario)
		r.Post("/load", h.LoadScenario)
		r.Post("/reset", h.ResetWallet)
	})

	return r
}
