package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stablepay/go-commerce-gateway/internal/idempotency"
	"github.com/stablepay/go-commerce-gateway/internal/payments"
)

// requestKeyPrefix separates caller request tokens from webhook event
// records in the shared idempotency table.
const requestKeyPrefix = "req:"

// requestToken returns the caller-supplied idempotency token verbatim, or
// mints a fresh one tagged with the operation.
func requestToken(c *gin.Context, suffix string) string {
	if k := c.GetHeader("Idempotency-Key"); k != "" {
		return k
	}
	return payments.NewKey(suffix)
}

// beginRequest runs the token discipline for a mutating endpoint. When it
// returns false the response has already been written: a stored replay, a
// key/params conflict, or an in-flight duplicate.
func beginRequest(c *gin.Context, store idempotency.Store, token, paramsHash string) bool {
	state, rec, err := store.Begin(c.Request.Context(), requestKeyPrefix+token, paramsHash)
	if err != nil {
		log.Printf("[handlers] idempotency begin: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_unavailable"})
		return false
	}
	switch state {
	case idempotency.Replayed:
		if rec != nil && rec.ResponseBody != "" {
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
		} else {
			c.JSON(http.StatusOK, gin.H{"replayed": true})
		}
		return false
	case idempotency.Conflicted:
		c.JSON(http.StatusConflict, gin.H{"error": "idempotency_key_conflict"})
		return false
	case idempotency.InFlight:
		c.JSON(http.StatusConflict, gin.H{"error": "request_in_progress"})
		return false
	}
	return true
}

// finish stores the response as the token's receipt and writes it. The
// stored bytes are what a replay returns.
func finish(c *gin.Context, store idempotency.Store, token string, status int, body gin.H) {
	raw, err := json.Marshal(body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "response_encoding_failed"})
		return
	}
	if err := store.MarkDone(c.Request.Context(), requestKeyPrefix+token, string(raw), status); err != nil {
		log.Printf("[handlers] mark done %s: %v", token, err)
	}
	c.Data(status, "application/json; charset=utf-8", raw)
}

// failProvider releases the token for retry and surfaces the provider
// error with the mapped status.
func failProvider(c *gin.Context, store idempotency.Store, token string, err error) {
	msg := payments.ErrorMessage(err)
	if mfErr := store.MarkFailed(c.Request.Context(), requestKeyPrefix+token, msg); mfErr != nil {
		log.Printf("[handlers] mark failed %s: %v", token, mfErr)
	}
	c.JSON(payments.ErrorStatus(err), gin.H{"error": msg})
}
