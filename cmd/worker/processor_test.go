package main

import (
	"context"
	"testing"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablepay/go-commerce-gateway/internal/orders"
)

type fakeOrders struct {
	items map[string]orders.Order
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{items: map[string]orders.Order{}}
}

func (f *fakeOrders) Create(ctx context.Context, o orders.Order) (bool, error) {
	if _, ok := f.items[o.OrderID]; ok {
		return false, nil
	}
	f.items[o.OrderID] = o
	return true, nil
}

func (f *fakeOrders) CreateWithReceipt(ctx context.Context, o orders.Order, r orders.Receipt) (bool, error) {
	return f.Create(ctx, o)
}

func (f *fakeOrders) Get(ctx context.Context, id string) (*orders.Order, error) {
	o, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (f *fakeOrders) UpdateStatus(ctx context.Context, id, expected, next string) error {
	o, ok := f.items[id]
	if !ok || o.Status != expected {
		return orders.ErrStatusMismatch
	}
	o.Status = next
	f.items[id] = o
	return nil
}

func sqsEvent(body string) lambdaevents.SQSEvent {
	return lambdaevents.SQSEvent{Records: []lambdaevents.SQSMessage{{Body: body}}}
}

const paidMessage = `{"event_id":"evt_1","event_type":"checkout.session.completed","order_id":"cs_1"}`

func TestHandleFulfillsPaidOrder(t *testing.T) {
	store := newFakeOrders()
	store.items["cs_1"] = orders.Order{OrderID: "cs_1", Status: orders.StatusPaid}
	p := NewProcessor(store)

	require.NoError(t, p.Handle(context.Background(), sqsEvent(paidMessage)))
	assert.Equal(t, orders.StatusFulfilled, store.items["cs_1"].Status)
}

func TestHandleDuplicateDeliveryIsNoop(t *testing.T) {
	store := newFakeOrders()
	store.items["cs_1"] = orders.Order{OrderID: "cs_1", Status: orders.StatusFulfilled}
	p := NewProcessor(store)

	require.NoError(t, p.Handle(context.Background(), sqsEvent(paidMessage)))
	assert.Equal(t, orders.StatusFulfilled, store.items["cs_1"].Status)
}

func TestHandlePendingOrderRetries(t *testing.T) {
	store := newFakeOrders()
	store.items["cs_1"] = orders.Order{OrderID: "cs_1", Status: orders.StatusPending}
	p := NewProcessor(store)

	err := p.Handle(context.Background(), sqsEvent(paidMessage))
	require.Error(t, err, "a not-yet-paid order must be retried, not dropped")
	assert.Equal(t, orders.StatusPending, store.items["cs_1"].Status)
}

func TestHandleMissingOrderErrors(t *testing.T) {
	p := NewProcessor(newFakeOrders())
	assert.Error(t, p.Handle(context.Background(), sqsEvent(paidMessage)))
}

func TestHandleBadMessageBody(t *testing.T) {
	p := NewProcessor(newFakeOrders())
	assert.Error(t, p.Handle(context.Background(), sqsEvent(`not json`)))
}
