/**
 * @description
 * This file sets up the HTTP router for the treasury-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * authentication and role middleware.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for the web client.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the router's security settings.
type RouterConfig struct {
	Auth           AuthConfig
	InternalAPIKey string
	AllowedOrigins []string
}

// NewRouter creates a new Chi router and registers the treasury routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(corsOptions(cfg.AllowedOrigins)))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/reconciliation/run", h.RunReconciliationHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Auth))

		r.Get("/payments/me", h.ListMyPaymentsHandler)
		r.Get("/payments/{id}", h.GetPaymentHandler)
		r.Post("/payments/{id}/confirm", h.ConfirmPaymentHandler)
		r.Post("/payments/{id}/resubmit", h.ResubmitPaymentHandler)

		r.Route("/treasurer", func(r chi.Router) {
			r.Use(RequireTreasurer)

			r.Post("/templates", h.CreateTemplateHandler)
			r.Get("/templates", h.ListTemplatesHandler)
			r.Get("/templates/{id}", h.GetTemplateHandler)
			r.Patch("/templates/{id}", h.UpdateTemplateHandler)
			r.Post("/templates/{id}/seed", h.SeedTemplateHandler)
			r.Post("/templates/{id}/status", h.SetTemplateStatusHandler)
			r.Post("/monthly-records/recreate", h.RecreateMonthlyRecordsHandler)

			r.Post("/payments/manual", h.CreateManualPaymentHandler)
			r.Post("/payments/{id}/verify", h.VerifyPaymentHandler)
			r.Post("/payments/{id}/reject", h.RejectPaymentHandler)
			r.Post("/payments/{id}/resubmission", h.JudgeResubmissionHandler)
			r.Post("/payments/{id}/manual-mark", h.ManualMarkHandler)
			r.Delete("/payments/{id}/manual-mark", h.ClearManualMarkHandler)

			r.Get("/roster", h.MonthRosterHandler)
			r.Get("/statistics", h.StatisticsHandler)
			r.Get("/failed-payments", h.FailedPaymentsHandler)
			r.Post("/reconciliation/run", h.RunReconciliationHandler)

			r.Get("/wallet", h.GetWalletHandler)
			r.Get("/wallet/transactions", h.ListWalletTransactionsHandler)
			r.Get("/wallet/audit", h.AuditWalletHandler)
			r.Post("/wallet/add", h.AddMoneyHandler)
			r.Post("/wallet/remove", h.RemoveMoneyHandler)
		})
	})

	return r
}

// corsOptions allows credentials only for an explicit origin list. go-chi/cors
// reflects the caller's origin for "*", which must not be paired with credentials.
func corsOptions(origins []string) cors.Options {
	credentials := true
	for _, origin := range origins {
		if origin == "*" {
			credentials = false
			break
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: credentials,
		MaxAge:           300,
	}
}
