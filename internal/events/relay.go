// Package events relays applied webhook events to the fulfillment queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/stablepay/go-commerce-gateway/internal/aws"
)

// Message is the payload the fulfillment worker consumes.
type Message struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	OrderID   string `json:"order_id"`
}

// Relay publishes Messages to SQS. A nil Relay is a no-op, so callers do
// not branch on whether a queue is configured.
type Relay struct {
	client   aws.SQSAPI
	queueURL string
}

// NewRelay returns a Relay, or nil when queueURL is empty.
func NewRelay(client aws.SQSAPI, queueURL string) *Relay {
	if queueURL == "" {
		return nil
	}
	return &Relay{client: client, queueURL: queueURL}
}

// Publish sends msg to the queue.
func (r *Relay) Publish(ctx context.Context, msg Message) error {
	if r == nil {
		return nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("events: marshal message: %w", err)
	}
	_, err = r.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    awssdk.String(r.queueURL),
		MessageBody: awssdk.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String(msg.EventType),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("events: send message: %w", err)
	}
	return nil
}
