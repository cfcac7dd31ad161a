package orders

import "time"

// Order status values. Transitions are PENDING -> PAID -> FULFILLED, with
// FAILED reachable from PENDING.
const (
	StatusPending   = "PENDING"
	StatusPaid      = "PAID"
	StatusFulfilled = "FULFILLED"
	StatusFailed    = "FAILED"
)

// Order sources: which provider object the order id refers to.
const (
	SourceCheckoutSession = "checkout_session"
	SourcePaymentIntent   = "payment_intent"
)

// Order is the business record a webhook event settles. OrderID is the
// provider-side identifier (checkout session id or payment intent id), so
// webhook application is keyed on business identifiers rather than event
// ids.
type Order struct {
	OrderID        string    `dynamodbav:"order_id" json:"order_id"`
	Source         string    `dynamodbav:"source" json:"source"`
	AmountCents    int64     `dynamodbav:"amount_cents" json:"amount_cents"`
	Currency       string    `dynamodbav:"currency" json:"currency"`
	Description    string    `dynamodbav:"description,omitempty" json:"description,omitempty"`
	IdempotencyKey string    `dynamodbav:"idempotency_key,omitempty" json:"idempotency_key,omitempty"`
	Status         string    `dynamodbav:"status" json:"status"`
	CreatedAt      time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// Receipt is the idempotency outcome written alongside a new order so a
// retried request replays the same response.
type Receipt struct {
	Key            string
	ResponseBody   string
	ResponseStatus int
}
