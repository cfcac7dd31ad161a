package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	stripe "github.com/stripe/stripe-go/v79"

	"github.com/stablepay/go-commerce-gateway/internal/orders"
)

// paymentHandlers settles orders on payment-success events. Settlement is
// keyed on the provider object id, which is also the order id, so a
// redelivered event converges on the same row.
type paymentHandlers struct {
	orders orders.Store
}

// RegisterPaymentHandlers wires the payment-success event types onto d.
func RegisterPaymentHandlers(d *Dispatcher, store orders.Store) {
	h := &paymentHandlers{orders: store}
	d.Handle("checkout.session.completed", h.checkoutSessionCompleted)
	d.Handle("payment_intent.succeeded", h.paymentIntentSucceeded)
}

func (h *paymentHandlers) checkoutSessionCompleted(ctx context.Context, event stripe.Event) (string, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return "", fmt.Errorf("decode checkout session: %w", err)
	}
	err := h.markPaid(ctx, orders.Order{
		OrderID:     sess.ID,
		Source:      orders.SourceCheckoutSession,
		AmountCents: sess.AmountTotal,
		Currency:    string(sess.Currency),
	})
	return sess.ID, err
}

func (h *paymentHandlers) paymentIntentSucceeded(ctx context.Context, event stripe.Event) (string, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return "", fmt.Errorf("decode payment intent: %w", err)
	}
	err := h.markPaid(ctx, orders.Order{
		OrderID:     pi.ID,
		Source:      orders.SourcePaymentIntent,
		AmountCents: pi.Amount,
		Currency:    string(pi.Currency),
	})
	return pi.ID, err
}

// markPaid moves the order to PAID. Orders created outside the checkout
// endpoints (intent flow) may not exist yet; those are recorded as paid
// directly. A second applier loses the conditional update and treats that
// as success.
func (h *paymentHandlers) markPaid(ctx context.Context, paid orders.Order) error {
	existing, err := h.orders.Get(ctx, paid.OrderID)
	if err != nil {
		return err
	}
	if existing == nil {
		paid.Status = orders.StatusPaid
		created, err := h.orders.Create(ctx, paid)
		if err != nil {
			return err
		}
		if created {
			log.Printf("[webhook] order %s recorded as paid", paid.OrderID)
			return nil
		}
		// lost the create race; fall through to the conditional update
	} else if existing.Status != orders.StatusPending {
		return nil
	}

	err = h.orders.UpdateStatus(ctx, paid.OrderID, orders.StatusPending, orders.StatusPaid)
	if errors.Is(err, orders.ErrStatusMismatch) {
		return nil
	}
	if err == nil {
		log.Printf("[webhook] order %s marked paid", paid.OrderID)
	}
	return err
}
