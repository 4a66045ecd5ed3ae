package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/natureofthedivine/storefront/internal/domain"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(d Deps) http.Handler {
	h := &Handlers{
		payments:   d.Payments,
		store:      d.Store,
		pricer:     d.Pricer,
		shipper:    d.Shipper,
		reconciler: d.Reconciler,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Checkout.
		r.Post("/orders", h.CreateOrder)
		r.Get("/orders/{id}", h.GetOrder)
		r.Post("/donations", h.CreateDonation)
		r.Get("/donations/{id}", h.GetDonation)

		// Gateway callbacks.
		r.Post("/callbacks/order", h.Callback(domain.KindOrder))
		r.Post("/callbacks/donation", h.Callback(domain.KindDonation))

		// Storefront lookups.
		r.Get("/pricing", h.GetPricing)
		r.Get("/shipping/rates", h.GetShippingRates)
		r.Get("/community/total", h.GetTotal)
		r.Get("/community/leaderboard", h.GetLeaderboard)

		// Admin.
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuth(d.AdminToken))
			r.Get("/orders", h.ListOrders)
			r.Patch("/orders/{id}/fulfillment", h.UpdateFulfillment)
			r.Get("/donations", h.ListDonations)
			r.Get("/dashboard", h.GetDashboard)
			r.Get("/callbacks", h.ListCallbacks)
			r.Post("/reconcile", h.Reconcile)
		})
	})

	return r
}
