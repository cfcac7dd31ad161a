package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/stablepay/go-commerce-gateway/internal/idempotency"
	"github.com/stablepay/go-commerce-gateway/internal/orders"
	"github.com/stablepay/go-commerce-gateway/internal/payments"
	"github.com/stablepay/go-commerce-gateway/internal/pricing"
	"github.com/stablepay/go-commerce-gateway/internal/validation"
)

// createIntent derives the charge amount from the catalog and creates a
// payment intent. Client-sent amounts are never trusted.
func createIntent(cfg Config, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.CreateIntentRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		lines := make([]pricing.Line, 0, len(req.Items))
		for _, it := range req.Items {
			lines = append(lines, pricing.Line{ID: it.ID, Qty: it.Qty})
		}
		order := pricing.ComputeOrder(cfg.Pricing, lines, req.Coupon)

		token := requestToken(c, "intent")
		hash := idempotency.HashParams("intent",
			strconv.FormatInt(order.Amount, 10), order.Currency, order.Description)
		if !beginRequest(c, cfg.Idempotency, token, hash) {
			return
		}

		intent, err := cfg.Gateway.CreateIntent(c.Request.Context(), order, token)
		if err != nil {
			failProvider(c, cfg.Idempotency, token, err)
			return
		}

		body := gin.H{
			"id":            intent.ID,
			"client_secret": intent.ClientSecret,
			"amount":        order.Amount,
			"currency":      order.Currency,
		}
		if intent.Degraded {
			body["degraded"] = true
			body["notice"] = intent.Notice
			cfg.Emitter.Count(c.Request.Context(), "IntentDegraded")
		}
		finish(c, cfg.Idempotency, token, http.StatusOK, body)
	}
}

// checkoutSession creates a hosted session for a fixed tier. The amount is
// validated against the allow-list before any provider call, and the
// pending order is recorded together with the idempotency receipt.
func checkoutSession(cfg Config, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.CheckoutSessionRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		if !cfg.Amounts.Allowed(req.Amount) {
			cfg.Emitter.Count(c.Request.Context(), "AmountRejected")
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "amount_not_allowed",
				"allowed": cfg.Amounts.Values(),
			})
			return
		}

		token := requestToken(c, "session")
		hash := idempotency.HashParams("session",
			req.Name, strconv.FormatInt(req.Amount, 10), req.Currency)
		if !beginRequest(c, cfg.Idempotency, token, hash) {
			return
		}

		sess, err := cfg.Gateway.CreateCheckoutSession(c.Request.Context(), payments.CheckoutSpec{
			Name:      req.Name,
			Amount:    req.Amount,
			Currency:  req.Currency,
			Origin:    cfg.BaseURL,
			ClientRef: token,
		}, token)
		if err != nil {
			failProvider(c, cfg.Idempotency, token, err)
			return
		}

		raw, _ := json.Marshal(gin.H{"id": sess.ID, "url": sess.URL})
		_, err = cfg.Orders.CreateWithReceipt(c.Request.Context(), orders.Order{
			OrderID:        sess.ID,
			Source:         orders.SourceCheckoutSession,
			AmountCents:    req.Amount,
			Currency:       req.Currency,
			Description:    req.Name,
			IdempotencyKey: requestKeyPrefix + token,
			Status:         orders.StatusPending,
		}, orders.Receipt{
			Key:            requestKeyPrefix + token,
			ResponseBody:   string(raw),
			ResponseStatus: http.StatusOK,
		})
		if err != nil {
			log.Printf("[handlers] record order %s: %v", sess.ID, err)
			failProvider(c, cfg.Idempotency, token, err)
			return
		}

		c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
	}
}
