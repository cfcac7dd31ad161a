// Package handlers wires the HTTP surface: request validation, the
// idempotency discipline, provider calls, and response receipts.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/stablepay/go-commerce-gateway/internal/dashboard"
	"github.com/stablepay/go-commerce-gateway/internal/idempotency"
	"github.com/stablepay/go-commerce-gateway/internal/metrics"
	"github.com/stablepay/go-commerce-gateway/internal/onramp"
	"github.com/stablepay/go-commerce-gateway/internal/orders"
	"github.com/stablepay/go-commerce-gateway/internal/payments"
	"github.com/stablepay/go-commerce-gateway/internal/pricing"
	"github.com/stablepay/go-commerce-gateway/internal/ratelimit"
	"github.com/stablepay/go-commerce-gateway/internal/validation"
	"github.com/stablepay/go-commerce-gateway/internal/webhook"
)

// Config groups dependencies for the gateway routes.
type Config struct {
	Gateway     *payments.Gateway
	Onramp      *onramp.Client
	Idempotency idempotency.Store
	Orders      orders.Store
	Webhook     *webhook.Processor
	Dashboard   *dashboard.Service
	Limiter     *ratelimit.Limiter
	Emitter     *metrics.Emitter
	Amounts     *pricing.AmountSet
	Pricing     pricing.Config
	// BaseURL is the storefront origin used for redirect URLs.
	BaseURL string
}

// Register registers all gateway routes on r.
func Register(r *gin.Engine, cfg Config) {
	v := validation.New()

	mutating := r.Group("/")
	if cfg.Limiter != nil {
		mutating.Use(cfg.Limiter.Middleware())
	}
	mutating.POST("/checkout/create-intent", createIntent(cfg, v))
	mutating.POST("/checkout/session", checkoutSession(cfg, v))
	mutating.POST("/connect/account", createAccount(cfg, v))
	mutating.POST("/connect/account-link", accountLink(cfg, v))
	mutating.POST("/connect/transfer", createTransfer(cfg, v))
	mutating.POST("/onramp/session", onrampSession(cfg, v))

	r.GET("/onramp/quotes", onrampQuotes(cfg))
	r.GET("/dashboard/metrics", dashboardMetrics(cfg))
	r.POST("/webhooks/stripe", stripeWebhook(cfg))
}
