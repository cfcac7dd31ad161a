package orders

import (
	"context"
	"errors"
)

// ErrStatusMismatch reports a conditional transition that found the order in
// a different state than expected.
var ErrStatusMismatch = errors.New("order status mismatch")

// Store persists orders. Create is create-if-absent; UpdateStatus is a
// conditional expected->next transition so concurrent appliers of the same
// event cannot double-apply.
type Store interface {
	// Create persists o unless an order with the same id exists.
	// Returns created=false (no error) when it already existed.
	Create(ctx context.Context, o Order) (created bool, err error)

	// CreateWithReceipt persists o and marks the idempotency record for
	// r.Key DONE with the stored response, atomically where the backend
	// supports it.
	CreateWithReceipt(ctx context.Context, o Order, r Receipt) (created bool, err error)

	// Get fetches an order by id. Returns (nil, nil) if not found.
	Get(ctx context.Context, orderID string) (*Order, error)

	// UpdateStatus transitions orderID from expected to next. Returns
	// ErrStatusMismatch if the order is not in the expected state.
	UpdateStatus(ctx context.Context, orderID, expected, next string) error
}
