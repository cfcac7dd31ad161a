package webhook

import (
	"context"
	"log"
	"net/http"

	stripewh "github.com/stripe/stripe-go/v79/webhook"

	"github.com/stablepay/go-commerce-gateway/internal/events"
	"github.com/stablepay/go-commerce-gateway/internal/idempotency"
	"github.com/stablepay/go-commerce-gateway/internal/metrics"
)

// eventKeyPrefix separates webhook event records from request-token records
// in the shared idempotency table.
const eventKeyPrefix = "evt:"

// Result is what the HTTP layer writes back to the provider.
type Result struct {
	StatusCode int
	Body       map[string]any
}

// Processor runs the full delivery pipeline: verify, guard, dispatch,
// settle, relay.
type Processor struct {
	secret     string
	guard      idempotency.Store
	dispatcher *Dispatcher
	relay      *events.Relay
	emitter    *metrics.Emitter
}

// NewProcessor returns a Processor. relay and emitter may be nil.
func NewProcessor(secret string, guard idempotency.Store, dispatcher *Dispatcher, relay *events.Relay, emitter *metrics.Emitter) *Processor {
	return &Processor{
		secret:     secret,
		guard:      guard,
		dispatcher: dispatcher,
		relay:      relay,
		emitter:    emitter,
	}
}

// Process verifies the raw payload against sigHeader and applies the event
// exactly once. A 500 result tells the provider to redeliver; redelivery of
// an applied event converges without side effects.
func (p *Processor) Process(ctx context.Context, payload []byte, sigHeader string) Result {
	if sigHeader == "" {
		return Result{http.StatusBadRequest, map[string]any{"error": "missing signature"}}
	}

	event, err := stripewh.ConstructEventWithOptions(payload, sigHeader, p.secret, stripewh.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Printf("[webhook] signature verification failed: %v", err)
		p.emitter.Count(ctx, "WebhookSignatureFailure")
		return Result{http.StatusBadRequest, map[string]any{"error": "invalid signature"}}
	}

	key := eventKeyPrefix + event.ID
	state, _, err := p.guard.Begin(ctx, key, "")
	if err != nil {
		log.Printf("[webhook] replay guard error for %s: %v", event.ID, err)
		return Result{http.StatusInternalServerError, map[string]any{"error": "replay guard unavailable"}}
	}

	switch state {
	case idempotency.Replayed:
		log.Printf("[webhook] duplicate event %s acked", event.ID)
		p.emitter.Count(ctx, "WebhookReplayed", "EventType", string(event.Type))
		return Result{http.StatusOK, map[string]any{"received": true, "duplicate": true}}
	case idempotency.InFlight, idempotency.Conflicted:
		// another worker holds the event; ack so the provider backs off
		return Result{http.StatusOK, map[string]any{"received": true}}
	}

	orderID, handled, err := p.dispatcher.Dispatch(ctx, event)
	if err != nil {
		log.Printf("[webhook] apply %s (%s) failed: %v", event.ID, event.Type, err)
		if mfErr := p.guard.MarkFailed(ctx, key, err.Error()); mfErr != nil {
			log.Printf("[webhook] mark failed for %s: %v", event.ID, mfErr)
		}
		p.emitter.Count(ctx, "WebhookApplyFailure", "EventType", string(event.Type))
		return Result{http.StatusInternalServerError, map[string]any{"error": "event processing failed"}}
	}

	if err := p.guard.MarkDone(ctx, key, "", http.StatusOK); err != nil {
		// redelivery reapplies as a no-op and settles the record then
		log.Printf("[webhook] mark done for %s: %v", event.ID, err)
		return Result{http.StatusInternalServerError, map[string]any{"error": "event settlement failed"}}
	}

	if handled {
		p.emitter.Count(ctx, "WebhookApplied", "EventType", string(event.Type))
		if orderID != "" {
			if err := p.relay.Publish(ctx, events.Message{
				EventID:   event.ID,
				EventType: string(event.Type),
				OrderID:   orderID,
			}); err != nil {
				log.Printf("[webhook] relay %s: %v", event.ID, err)
			}
		}
	} else {
		p.emitter.Count(ctx, "WebhookUnhandled", "EventType", string(event.Type))
	}

	return Result{http.StatusOK, map[string]any{"received": true}}
}
