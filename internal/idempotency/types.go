package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Status values for idempotency records.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the durable entry kept per idempotency token or webhook event
// id. Request tokens are stored under a "req:" key prefix, webhook events
// under "evt:", so both disciplines share one table.
type Record struct {
	Key            string    `dynamodbav:"record_key" json:"record_key"`
	Status         string    `dynamodbav:"status" json:"status"`
	ParamsHash     string    `dynamodbav:"params_hash,omitempty" json:"params_hash,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty" json:"response_body,omitempty"` // small responses only
	ResponseStatus int       `dynamodbav:"response_status,omitempty" json:"response_status,omitempty"`
	Note           string    `dynamodbav:"note,omitempty" json:"note,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at" json:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at" json:"expires_at"` // TTL epoch seconds
}

// BeginState is the outcome of Begin for a key.
type BeginState int

const (
	// Started: a fresh record was created (or a failed/stale one taken
	// over); the caller owns the work and must MarkDone or MarkFailed.
	Started BeginState = iota
	// Replayed: a completed record exists for the same parameters; the
	// stored response should be returned without redoing the work.
	Replayed
	// Conflicted: the key was already used with different parameters.
	Conflicted
	// InFlight: another attempt currently holds the key.
	InFlight
)

func (s BeginState) String() string {
	switch s {
	case Started:
		return "started"
	case Replayed:
		return "replayed"
	case Conflicted:
		return "conflicted"
	case InFlight:
		return "in_flight"
	}
	return "unknown"
}

// Store is the durable at-most-once primitive: Begin is an atomic
// create-if-absent keyed by token or event id.
type Store interface {
	Begin(ctx context.Context, key, paramsHash string) (BeginState, *Record, error)
	Get(ctx context.Context, key string) (*Record, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// HashParams fingerprints the logical parameters bound to a token so reuse
// of a token with different parameters can be rejected.
func HashParams(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
