// Package webhook verifies provider notifications and applies each exactly
// once.
package webhook

import (
	"context"
	"log"

	stripe "github.com/stripe/stripe-go/v79"
)

// Handler applies one event type. It returns the business order id the
// event settled, or "" when the event carries none.
type Handler func(ctx context.Context, event stripe.Event) (orderID string, err error)

// Dispatcher routes events by type. Unregistered types fall through to a
// logged no-op so new provider events never fail delivery.
type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[string]Handler{}}
}

// Handle registers h for eventType, replacing any previous handler.
func (d *Dispatcher) Handle(eventType string, h Handler) {
	d.handlers[eventType] = h
}

// Dispatch runs the handler for event's type. handled is false for types
// with no registered handler.
func (d *Dispatcher) Dispatch(ctx context.Context, event stripe.Event) (orderID string, handled bool, err error) {
	h, ok := d.handlers[string(event.Type)]
	if !ok {
		log.Printf("[webhook] unhandled event type %s (%s)", event.Type, event.ID)
		return "", false, nil
	}
	orderID, err = h(ctx, event)
	return orderID, true, err
}
