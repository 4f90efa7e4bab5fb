package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/greenbasket/go-commerce-backend/internal/aws"
	"github.com/greenbasket/go-commerce-backend/internal/orders"
)

// Processor consumes order lifecycle events and performs the post-checkout
// work: confirmation notification and metrics. Order status is admin-driven,
// so the worker never transitions orders itself.
type Processor struct {
	orderStore *orders.Store
	metrics    *aws.MetricsEmitter
}

// NewProcessor creates a worker processor with AWS clients injected.
func NewProcessor(clients *aws.AWSClients, ordersTable, metricsNamespace string) *Processor {
	return &Processor{
		orderStore: orders.NewStore(clients.DynamoDB, ordersTable),
		metrics:    aws.NewMetricsEmitter(clients.CloudWatch, metricsNamespace),
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			log.Printf("worker error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg eventMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	log.Printf("[worker] received event=%s order=%s user=%s", msg.Event, msg.OrderID, msg.UserID)

	order, err := p.orderStore.Get(ctx, msg.OrderID)
	if err != nil {
		return fmt.Errorf("failed to fetch order: %w", err)
	}
	if order == nil {
		// Should never happen — DLQ if it does
		return fmt.Errorf("order not found: %s", msg.OrderID)
	}

	switch msg.Event {
	case orders.EventOrderPlaced:
		if err := p.metrics.Count(ctx, "OrdersPlaced", 1); err != nil {
			return err
		}
		if err := p.metrics.Emit(ctx, "OrderValue", order.Total, cwtypes.StandardUnitNone, nil); err != nil {
			return err
		}
		// stand-in for the confirmation email the storefront sends
		log.Printf("[worker] order confirmed: number=%s user=%s total=%.2f", order.OrderNumber, order.UserID, order.Total)
	case orders.EventOrderCancelled:
		if err := p.metrics.Count(ctx, "OrdersCancelled", 1); err != nil {
			return err
		}
		log.Printf("[worker] order cancelled: number=%s user=%s", order.OrderNumber, order.UserID)
	default:
		log.Printf("[worker] ignoring unknown event=%s order=%s", msg.Event, msg.OrderID)
	}
	return nil
}
