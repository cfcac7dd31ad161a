package main

import (
	"context"
	"log"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/stablepay/go-commerce-gateway/internal/aws"
	"github.com/stablepay/go-commerce-gateway/internal/orders"
)

func main() {
	ctx := context.Background()

	clients, err := aws.NewClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	store := orders.NewDynamoStore(clients.DynamoDB,
		os.Getenv("ORDERS_TABLE"), os.Getenv("IDEMPOTENCY_TABLE"))
	p := NewProcessor(store)

	// RUN_LOCAL=true processes a single simulated message and exits.
	if os.Getenv("RUN_LOCAL") == "true" {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"event_id":"evt_local","event_type":"checkout.session.completed","order_id":"cs_local"}`
		}
		ev := lambdaevents.SQSEvent{
			Records: []lambdaevents.SQSMessage{{Body: body}},
		}
		if err := p.Handle(ctx, ev); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
