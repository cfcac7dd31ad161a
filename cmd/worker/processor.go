package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	lambdaevents "github.com/aws/aws-lambda-go/events"

	"github.com/stablepay/go-commerce-gateway/internal/events"
	"github.com/stablepay/go-commerce-gateway/internal/orders"
)

// Processor fulfills paid orders off the events queue.
type Processor struct {
	orders orders.Store
}

func NewProcessor(store orders.Store) *Processor {
	return &Processor{orders: store}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev lambdaevents.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Lambda retries the batch; repeated failures land in the DLQ.
			log.Printf("[worker] error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec lambdaevents.SQSMessage) error {
	var msg events.Message
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	log.Printf("[worker] received order=%s event=%s (%s)", msg.OrderID, msg.EventID, msg.EventType)

	order, err := p.orders.Get(ctx, msg.OrderID)
	if err != nil {
		return fmt.Errorf("fetch order %s: %w", msg.OrderID, err)
	}
	if order == nil {
		// the webhook applied before relaying, so this should not happen
		return fmt.Errorf("order not found: %s", msg.OrderID)
	}

	err = p.orders.UpdateStatus(ctx, msg.OrderID, orders.StatusPaid, orders.StatusFulfilled)
	if errors.Is(err, orders.ErrStatusMismatch) {
		current, getErr := p.orders.Get(ctx, msg.OrderID)
		if getErr != nil {
			return fmt.Errorf("refetch order %s: %w", msg.OrderID, getErr)
		}
		switch current.Status {
		case orders.StatusFulfilled:
			// duplicate delivery or competing worker already fulfilled it
			log.Printf("[worker] order=%s already fulfilled", msg.OrderID)
			return nil
		case orders.StatusPending:
			// the paid status is not visible yet; retry later
			return fmt.Errorf("order=%s still pending, retrying", msg.OrderID)
		default:
			return fmt.Errorf("unexpected status for order=%s: %s", msg.OrderID, current.Status)
		}
	}
	if err != nil {
		return fmt.Errorf("fulfill order %s: %w", msg.OrderID, err)
	}

	log.Printf("[worker] fulfilled order=%s", msg.OrderID)
	return nil
}
