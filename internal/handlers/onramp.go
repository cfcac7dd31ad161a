package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/stablepay/go-commerce-gateway/internal/idempotency"
	"github.com/stablepay/go-commerce-gateway/internal/onramp"
	"github.com/stablepay/go-commerce-gateway/internal/validation"
)

const defaultQuoteAmount = 200

func onrampQuotes(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		amount, err := strconv.ParseFloat(c.DefaultQuery("amount", "200"), 64)
		if err != nil || amount <= 0 {
			amount = defaultQuoteAmount
		}

		req := onramp.QuoteRequest{
			SourceAmount:          fmt.Sprintf("%.2f", amount),
			SourceCurrency:        c.DefaultQuery("source_currency", "usd"),
			DestinationCurrencies: splitList(c.Query("destination_currencies")),
			DestinationNetworks:   splitList(c.Query("destination_networks")),
		}

		quotes, err := cfg.Onramp.Quotes(c.Request.Context(), req)
		if err != nil {
			c.JSON(onrampErrStatus(err), gin.H{"error": onrampErrMessage(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": quotes})
	}
}

func onrampSession(cfg Config, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.OnrampSessionRequest
		// an empty body is valid: defaults apply
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
			return
		}
		req.Normalize()
		if err := v.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_destination"})
			return
		}

		token := requestToken(c, "onramp")
		hash := idempotency.HashParams("onramp",
			req.DestinationCurrency, req.DestinationNetwork, req.WalletAddress)
		if !beginRequest(c, cfg.Idempotency, token, hash) {
			return
		}

		sess, err := cfg.Onramp.CreateSession(c.Request.Context(), onramp.SessionRequest{
			DestinationCurrency: req.DestinationCurrency,
			DestinationNetwork:  req.DestinationNetwork,
			WalletAddress:       req.WalletAddress,
		}, token)
		if err != nil {
			msg := onrampErrMessage(err)
			if mfErr := cfg.Idempotency.MarkFailed(c.Request.Context(), requestKeyPrefix+token, msg); mfErr != nil {
				log.Printf("[handlers] mark failed %s: %v", token, mfErr)
			}
			c.JSON(onrampErrStatus(err), gin.H{"error": msg})
			return
		}

		finish(c, cfg.Idempotency, token, http.StatusOK, gin.H{
			"id":           sess.ID,
			"redirect_url": sess.RedirectURL,
		})
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// onrampErrStatus passes provider rejections through as client errors and
// maps everything else to a gateway error.
func onrampErrStatus(err error) int {
	var pe *onramp.Error
	if errors.As(err, &pe) && pe.StatusCode >= 400 && pe.StatusCode < 500 {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func onrampErrMessage(err error) string {
	var pe *onramp.Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
