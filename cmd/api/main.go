package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/greenbasket/go-commerce-backend/internal/aws"
	"github.com/greenbasket/go-commerce-backend/internal/handlers"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterProductRoutes(r, cfg)
	handlers.RegisterCartRoutes(r, cfg)
	handlers.RegisterOrderRoutes(r, cfg)

	return r
}

func main() {
	if os.Getenv("RUN_LOCAL") == "true" {
		if err := godotenv.Load(); err != nil {
			log.Printf("no .env file loaded: %v", err)
		}
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	cfg := handlers.HandlerConfig{
		DynamoDBClient: clients.DynamoDB,
		SQSClient:      clients.SQS,
		ProductsTable:  os.Getenv("PRODUCTS_TABLE"),
		CartsTable:     os.Getenv("CARTS_TABLE"),
		OrdersTable:    os.Getenv("ORDERS_TABLE"),
		CheckoutTable:  os.Getenv("CHECKOUT_TABLE"),
		QueueURL:       os.Getenv("ORDER_EVENTS_QUEUE_URL"),
		JWTSecret:      []byte(os.Getenv("JWT_SECRET_KEY")),
		TTLWindow:      48 * time.Hour,
	}

	r := setupRouter(cfg)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
