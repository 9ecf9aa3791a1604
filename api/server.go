/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the operations frontend

ROUTE GROUPS:
  /api/vehicles/*      Fleet directory, availability, mileage
  /api/contracts/*     Bookings and conflict probes
  /api/entries/*       Ledger entries and lifecycle
  /api/fines/*         Fines
  /api/events/*        Originating-record intake
  /api/billing/*       Billing generation and collection view
  /api/associations/*  Batch re-association
  /api/scenarios/*     Demo data loading (dev only)

SECURITY NOTE:
  Role gating reads the X-Actor-Role header; there is no authentication
  middleware. Put this behind a gateway that sets the header.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-Role"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Vehicle routes
		r.Route("/vehicles", func(r chi.Router) {
			r.Get("/", h.ListVehicles)
			r.Post("/", h.CreateVehicle)
			r.Get("/available", h.AvailableVehicles)
			r.Get("/{id}", h.GetVehicle)
			r.Get("/{id}/mileage", h.GetMileage)
			r.Post("/{id}/readings", h.RecordReading)
			r.Post("/{id}/recompute", h.RecomputeMileage)
		})

		// Contract routes
		r.Route("/contracts", func(r chi.Router) {
			r.Post("/", h.CreateContract)
			r.Post("/check-conflicts", h.CheckConflicts)
			r.Get("/{id}", h.GetContract)
			r.Put("/{id}", h.UpdateContract)
			r.Post("/{id}/cancel", h.CancelContract)
		})

		// Ledger routes
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Post("/", h.CreateEntry)
			r.Get("/{id}", h.GetEntry)
			r.Post("/{id}/status", h.TransitionEntry)
			r.Post("/{id}/resolve-amount", h.ResolveAmount)
			r.Delete("/{id}", h.DeleteEntry)
		})

		// Fine routes
		r.Route("/fines", func(r chi.Router) {
			r.Get("/", h.ListFines)
			r.Post("/", h.CreateFine)
			r.Post("/{id}/status", h.TransitionFine)
		})

		// Originating-record intake
		r.Route("/events", func(r chi.Router) {
			r.Post("/damage", h.RecordDamage)
			r.Post("/parts", h.RecordParts)
			r.Post("/purchases", h.RecordPurchase)
		})

		// Billing routes
		r.Route("/billing", func(r chi.Router) {
			r.Post("/generate", h.GenerateBilling)
			r.Get("/collection", h.CollectionView)
		})

		// Association routes
		r.Route("/associations", func(r chi.Router) {
			r.Post("/reprocess", h.Reprocess)
		})

		// Demo scenario routes (development/demo environments)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
