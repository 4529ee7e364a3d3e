package http

import (
	"time"

	"share-gateway/pkg/middleware"
	"share-gateway/pkg/ratelimit"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type RouteConfig struct {
	APIRequests int
	APIWindow   time.Duration
}

// SetupRoutes wires the organizer API, the public share endpoint and the
// proxy. The public endpoint carries no auth middleware at all; its own
// rate limiting and password gating happen inside the service.
func SetupRoutes(r *chi.Mux, handler *Handler, auth *middleware.AuthMiddleware, limiter *ratelimit.Limiter, cfg RouteConfig) {
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Correlation)

	r.Get("/health", handler.HealthCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, "api", cfg.APIRequests, cfg.APIWindow))

		r.With(auth.Authenticate("share_links:write")).Post("/share-links", handler.CreateLink)
		r.With(auth.Authenticate("share_links:read")).Get("/share-links", handler.ListLinks)
		r.With(auth.Authenticate("share_links:write")).Patch("/share-links/{code}", handler.UpdateLink)
		r.With(auth.Authenticate("share_links:write")).Delete("/share-links/{code}", handler.DeleteLink)

		r.With(auth.Authenticate()).Get("/proxy/{action}", handler.ProxyAction)
	})

	r.Get("/s/{code}", handler.PublicRead)
	r.Post("/s/{code}", handler.PublicRead)
}
