package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// stripeWebhook hands the raw body to the processor. The body must not be
// parsed or rewritten before signature verification.
func stripeWebhook(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		res := cfg.Webhook.Process(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
		c.JSON(res.StatusCode, res.Body)
	}
}
