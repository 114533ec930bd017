package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artisanalley/marketplace-backend/api/controllers"
	webhookcontrollers "github.com/artisanalley/marketplace-backend/api/controllers/webhooks"
	"github.com/artisanalley/marketplace-backend/api/middleware"
	checkoutsvc "github.com/artisanalley/marketplace-backend/internal/checkout"
	"github.com/artisanalley/marketplace-backend/internal/purchases"
	"github.com/artisanalley/marketplace-backend/internal/refunds"
	"github.com/artisanalley/marketplace-backend/internal/verification"
	stripewebhook "github.com/artisanalley/marketplace-backend/internal/webhooks/stripe"
	"github.com/artisanalley/marketplace-backend/pkg/config"
	"github.com/artisanalley/marketplace-backend/pkg/db"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
	pkgredis "github.com/artisanalley/marketplace-backend/pkg/redis"
)

// RedisStore is the Redis surface the HTTP layer depends on.
type RedisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.RateLimiter
	Ping(context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient RedisStore,
	gatherer prometheus.Gatherer,
	checkoutService checkoutsvc.Service,
	poller *verification.Poller,
	refundService refunds.Service,
	purchaseService purchases.Service,
	stripeVerifier webhookcontrollers.EventVerifier,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard webhookcontrollers.EventGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	// Route-level so the idempotency rules see the full route pattern.
	idempotent := passthrough
	if cfg.FeatureFlags.IdempotencyKey && redisClient != nil {
		idempotent = middleware.Idempotency(redisClient, logg)
	}
	var limiter pkgredis.RateLimiter
	if redisClient != nil {
		limiter = redisClient
	}
	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.HTTP.CheckoutRateWindow,
		cfg.HTTP.CheckoutRateLimit,
	)

	var redisPinger interface{ Ping(context.Context) error }
	if redisClient != nil {
		redisPinger = redisClient
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	var webhookService webhookcontrollers.StripeWebhookService
	if stripeWebhookService != nil {
		webhookService = stripeWebhookService
	}
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(webhookService, stripeVerifier, stripeWebhookGuard, cfg.Webhook.MaxBodyBytes, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.With(middleware.RateLimit(checkoutPolicy, limiter, logg), idempotent).
				Post("/sessions", controllers.CreateCheckoutSession(checkoutService, logg))
			r.Get("/verify", controllers.VerifyCheckoutSession(verifierOrNil(poller), logg))
		})

		r.With(idempotent).Post("/refunds", controllers.RequestRefund(refundService, logg))

		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", controllers.ListPurchases(purchaseService, logg))
			r.With(idempotent).Patch("/{purchaseId}/drop-off", controllers.UpdateDropOff(purchaseService, logg))
		})
		r.Get("/sales", controllers.ListSales(purchaseService, logg))
	})

	return r
}

func passthrough(next http.Handler) http.Handler {
	return next
}

func verifierOrNil(poller *verification.Poller) controllers.SessionVerifier {
	if poller == nil {
		return nil
	}
	return poller
}
