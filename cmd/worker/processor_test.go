package main

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"github.com/greenbasket/go-commerce-backend/internal/aws"
	"github.com/greenbasket/go-commerce-backend/internal/orders"
	"github.com/greenbasket/go-commerce-backend/internal/testutil"
)

const ordersTable = "orders-test"

// fakeCloudWatch records emitted metric names.
type fakeCloudWatch struct {
	metrics []string
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	for _, d := range params.MetricData {
		f.metrics = append(f.metrics, *d.MetricName)
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func newTestProcessor(t *testing.T) (*Processor, *testutil.FakeDynamo, *fakeCloudWatch) {
	t.Helper()
	fake := testutil.NewFakeDynamo()
	fake.CreateTable(ordersTable, "order_id")
	cw := &fakeCloudWatch{}
	clients := &aws.AWSClients{DynamoDB: fake, CloudWatch: cw}
	return NewProcessor(clients, ordersTable, "GreenBasket/Test"), fake, cw
}

func seedOrder(t *testing.T, fake *testutil.FakeDynamo, orderID, status string, total float64) {
	t.Helper()
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	item, err := attributevalue.MarshalMap(&orders.Order{
		OrderID:     orderID,
		OrderNumber: "ORD-20260901-ABC123",
		UserID:      "u1",
		Total:       total,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatal(err)
	}
	table := ordersTable
	if _, err := fake.PutItem(context.Background(), &dyn.PutItemInput{TableName: &table, Item: item}); err != nil {
		t.Fatal(err)
	}
}

func sqsEvent(body string) events.SQSEvent {
	return events.SQSEvent{Records: []events.SQSMessage{{Body: body}}}
}

func TestHandleOrderPlaced(t *testing.T) {
	p, fake, cw := newTestProcessor(t)
	seedOrder(t, fake, "order-1", orders.StatusPending, 13.50)

	err := p.Handle(context.Background(), sqsEvent(`{"event":"order.placed","order_id":"order-1","user_id":"u1"}`))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	want := []string{"OrdersPlaced", "OrderValue"}
	if len(cw.metrics) != len(want) {
		t.Fatalf("metrics = %v, want %v", cw.metrics, want)
	}
	for i, name := range want {
		if cw.metrics[i] != name {
			t.Errorf("metric[%d] = %q, want %q", i, cw.metrics[i], name)
		}
	}
}

func TestHandleOrderCancelled(t *testing.T) {
	p, fake, cw := newTestProcessor(t)
	seedOrder(t, fake, "order-1", orders.StatusCancelled, 13.50)

	err := p.Handle(context.Background(), sqsEvent(`{"event":"order.cancelled","order_id":"order-1","user_id":"u1"}`))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(cw.metrics) != 1 || cw.metrics[0] != "OrdersCancelled" {
		t.Errorf("metrics = %v", cw.metrics)
	}
}

func TestHandleUnknownEventIgnored(t *testing.T) {
	p, fake, cw := newTestProcessor(t)
	seedOrder(t, fake, "order-1", orders.StatusPending, 13.50)

	err := p.Handle(context.Background(), sqsEvent(`{"event":"order.imaginary","order_id":"order-1","user_id":"u1"}`))
	if err != nil {
		t.Fatalf("unknown events must not error (they would retry forever): %v", err)
	}
	if len(cw.metrics) != 0 {
		t.Errorf("metrics emitted for unknown event: %v", cw.metrics)
	}
}

func TestHandleMissingOrder(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	err := p.Handle(context.Background(), sqsEvent(`{"event":"order.placed","order_id":"no-such-order","user_id":"u1"}`))
	if err == nil {
		t.Fatal("missing order should surface an error for the retry/DLQ path")
	}
}

func TestHandleMalformedBody(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	if err := p.Handle(context.Background(), sqsEvent(`{not json`)); err == nil {
		t.Fatal("malformed body should surface an error")
	}
}
