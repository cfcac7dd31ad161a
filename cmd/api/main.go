package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	bolt "github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"

	"github.com/stablepay/go-commerce-gateway/internal/aws"
	"github.com/stablepay/go-commerce-gateway/internal/dashboard"
	"github.com/stablepay/go-commerce-gateway/internal/events"
	"github.com/stablepay/go-commerce-gateway/internal/handlers"
	"github.com/stablepay/go-commerce-gateway/internal/idempotency"
	"github.com/stablepay/go-commerce-gateway/internal/metrics"
	"github.com/stablepay/go-commerce-gateway/internal/onramp"
	"github.com/stablepay/go-commerce-gateway/internal/orders"
	"github.com/stablepay/go-commerce-gateway/internal/payments"
	"github.com/stablepay/go-commerce-gateway/internal/pricing"
	"github.com/stablepay/go-commerce-gateway/internal/ratelimit"
	"github.com/stablepay/go-commerce-gateway/internal/webhook"
)

const idempotencyTTL = 48 * time.Hour

func setupRouter(cfg handlers.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.Register(r, cfg)

	return r
}

// buildStores picks the durable backend: DynamoDB for deployed
// environments, Bolt for single-instance local runs.
func buildStores(ctx context.Context) (idempotency.Store, orders.Store, *aws.Clients, error) {
	if os.Getenv("STORE_BACKEND") == "bolt" {
		path := os.Getenv("BOLT_PATH")
		if path == "" {
			path = "gateway.db"
		}
		db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, nil, nil, err
		}
		idem, err := idempotency.NewBoltStore(db, idempotencyTTL)
		if err != nil {
			return nil, nil, nil, err
		}
		ordersStore, err := orders.NewBoltStore(db)
		if err != nil {
			return nil, nil, nil, err
		}
		return idem, ordersStore, nil, nil
	}

	clients, err := aws.NewClients(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	idemTable := os.Getenv("IDEMPOTENCY_TABLE")
	ordersTable := os.Getenv("ORDERS_TABLE")
	idem := idempotency.NewDynamoStore(clients.DynamoDB, idemTable, idempotencyTTL)
	ordersStore := orders.NewDynamoStore(clients.DynamoDB, ordersTable, idemTable)
	return idem, ordersStore, clients, nil
}

func main() {
	ctx := context.Background()

	secretKey := os.Getenv("STRIPE_SECRET_KEY")
	if secretKey == "" {
		log.Fatal("STRIPE_SECRET_KEY is required")
	}
	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if webhookSecret == "" {
		log.Fatal("STRIPE_WEBHOOK_SECRET is required")
	}

	idem, ordersStore, clients, err := buildStores(ctx)
	if err != nil {
		log.Fatalf("failed to init stores: %v", err)
	}

	var relay *events.Relay
	var emitter *metrics.Emitter
	if clients != nil {
		relay = events.NewRelay(clients.SQS, os.Getenv("EVENTS_QUEUE_URL"))
		emitter = metrics.NewEmitter(clients.CloudWatch)
	}

	gateway := payments.NewGateway(payments.NewStripeAPI(secretKey))

	dispatcher := webhook.NewDispatcher()
	webhook.RegisterPaymentHandlers(dispatcher, ordersStore)

	rpm := 10
	if v, err := strconv.Atoi(os.Getenv("RATE_LIMIT_RPM")); err == nil {
		rpm = v
	}

	allowed := []int64{2000, 5000, 10000}
	if env := os.Getenv("ALLOWED_AMOUNTS"); env != "" {
		allowed, err = pricing.ParseAmounts(env)
		if err != nil {
			log.Fatalf("invalid ALLOWED_AMOUNTS: %v", err)
		}
	}

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}

	cfg := handlers.Config{
		Gateway:     gateway,
		Onramp:      onramp.NewClient(secretKey, os.Getenv("STRIPE_API_VERSION")),
		Idempotency: idem,
		Orders:      ordersStore,
		Webhook:     webhook.NewProcessor(webhookSecret, idem, dispatcher, relay, emitter),
		Dashboard:   dashboard.NewService(gateway),
		Limiter:     ratelimit.New(rpm),
		Emitter:     emitter,
		Amounts:     pricing.NewAmountSet(allowed),
		Pricing:     pricing.DefaultConfig(),
		BaseURL:     baseURL,
	}

	r := setupRouter(cfg)

	// RUN_LOCAL=true runs a plain HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req lambdaevents.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
