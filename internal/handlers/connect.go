package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/stablepay/go-commerce-gateway/internal/idempotency"
	"github.com/stablepay/go-commerce-gateway/internal/validation"
)

func createAccount(cfg Config, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.CreateAccountRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		token := requestToken(c, "account")
		if !beginRequest(c, cfg.Idempotency, token, idempotency.HashParams("account", req.Email)) {
			return
		}

		acct, err := cfg.Gateway.CreateAccount(c.Request.Context(), req.Email, token)
		if err != nil {
			failProvider(c, cfg.Idempotency, token, err)
			return
		}
		finish(c, cfg.Idempotency, token, http.StatusOK, gin.H{"account_id": acct.ID})
	}
}

func accountLink(cfg Config, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.AccountLinkRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		token := requestToken(c, "account-link")
		if !beginRequest(c, cfg.Idempotency, token, idempotency.HashParams("account-link", req.AccountID)) {
			return
		}

		link, err := cfg.Gateway.CreateAccountLink(c.Request.Context(), req.AccountID, cfg.BaseURL, token)
		if err != nil {
			failProvider(c, cfg.Idempotency, token, err)
			return
		}
		finish(c, cfg.Idempotency, token, http.StatusOK, gin.H{"url": link.URL})
	}
}

func createTransfer(cfg Config, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.TransferRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		token := requestToken(c, "transfer")
		hash := idempotency.HashParams("transfer", req.Account, strconv.FormatInt(req.Amount, 10))
		if !beginRequest(c, cfg.Idempotency, token, hash) {
			return
		}

		tr, err := cfg.Gateway.CreateTransfer(c.Request.Context(), req.Account, req.Amount, token)
		if err != nil {
			failProvider(c, cfg.Idempotency, token, err)
			return
		}
		finish(c, cfg.Idempotency, token, http.StatusOK, gin.H{
			"transfer_id": tr.ID,
			"amount":      req.Amount,
		})
	}
}
