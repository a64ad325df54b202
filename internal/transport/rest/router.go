package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/hanifrahman/talenthub-payments/internal/auth"
	"github.com/hanifrahman/talenthub-payments/internal/membership"
	"github.com/hanifrahman/talenthub-payments/internal/metrics"
	"github.com/hanifrahman/talenthub-payments/internal/transport/middleware"
	"github.com/hanifrahman/talenthub-payments/internal/transport/swagger"
)

// RegisterAllRoutes wires the full HTTP surface onto the router.
func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	authMiddleware *auth.Middleware,
	membershipHandler *membership.Handler,
	webhookHandler *membership.WebhookHandler,
	allowedOrigins string,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORSWithOrigins(allowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.HTTPMetrics)
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())
	router.Handle("/metrics", metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Gateway callbacks authenticate via HMAC signatures, not JWT.
		if webhookHandler != nil {
			r.Post("/webhooks/payment", webhookHandler.HandleWebhook)
		}

		if membershipHandler != nil {
			// Browser return from checkout; no auth so the redirect always
			// lands, and the page carries no state-changing behavior.
			r.Get("/membership/callback", membershipHandler.PaymentCallback)

			r.Group(func(pr chi.Router) {
				pr.Use(authMiddleware.Authenticate)

				pr.Route("/membership", func(mr chi.Router) {
					mr.Post("/upgrade", membershipHandler.InitiateUpgrade)
					mr.Get("/transactions/{id}", membershipHandler.GetTransaction)

					mr.Group(func(ar chi.Router) {
						ar.Use(authMiddleware.RequireAdmin)
						ar.Get("/transactions", membershipHandler.ListTransactions)
					})
				})
			})
		}
	})
}
