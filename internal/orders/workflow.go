package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/greenbasket/go-commerce-backend/internal/aws"
	"github.com/greenbasket/go-commerce-backend/internal/carts"
	"github.com/greenbasket/go-commerce-backend/internal/checkout"
	"github.com/greenbasket/go-commerce-backend/internal/products"
)

var (
	// ErrEmptyCart indicates checkout on a missing or empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotCancellable indicates a user cancel on an order past pending.
	ErrNotCancellable = errors.New("order cannot be cancelled at this stage")
	// ErrInvalidStatus indicates a status value outside the five-value enum.
	ErrInvalidStatus = errors.New("invalid order status")
)

// Workflow converts carts into orders and drives order lifecycle transitions.
// Creation and cancellation each commit as a single TransactWriteItems call:
// the order write, every conditional stock mutation, and (on creation) the
// cart clear and idempotency record all stand or fall together.
type Workflow struct {
	client    aws.DynamoDBAPI
	store     *Store
	carts     *carts.Store
	products  *products.Store
	checkout  *checkout.Store
	publisher *aws.Publisher // nil disables event publishing
	nowFunc   func() time.Time
}

// NewWorkflow wires the workflow over its stores. publisher may be nil.
func NewWorkflow(client aws.DynamoDBAPI, store *Store, cartStore *carts.Store, productStore *products.Store, checkoutStore *checkout.Store, publisher *aws.Publisher) *Workflow {
	return &Workflow{
		client:    client,
		store:     store,
		carts:     cartStore,
		products:  productStore,
		checkout:  checkoutStore,
		publisher: publisher,
		nowFunc:   time.Now,
	}
}

// CreateInput carries the checkout request. IdempotencyKey is optional; when
// set, a duplicate key fails the transaction with checkout.ErrDuplicateKey.
type CreateInput struct {
	UserID          string
	ShippingAddress string
	PaymentMethod   string
	OrderNotes      string
	IdempotencyKey  string
}

// Create converts the user's cart into a pending order, reserving stock and
// emptying the cart in one transaction. The pre-validation pass exists so an
// out-of-stock line fails with the offending product named; the transaction's
// per-line stock >= quantity conditions are what actually make the reservation
// safe under concurrency.
func (w *Workflow) Create(ctx context.Context, in CreateInput) (*Order, error) {
	cart, err := w.carts.Get(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	now := w.nowFunc()
	items := make([]Item, 0, len(cart.Items))
	for _, line := range cart.Items {
		p, err := w.products.Get(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if p == nil || p.Stock < line.Quantity {
			name := "product"
			avail := 0
			if p != nil {
				name = p.Name
				avail = p.Stock
			}
			return nil, &products.InsufficientStockError{
				ProductID: line.ProductID,
				Name:      name,
				Available: avail,
				Requested: line.Quantity,
			}
		}
		items = append(items, Item{
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			Price:        line.Price,
			ProductName:  p.Name,
			ProductImage: p.FirstImage(),
		})
	}

	order := &Order{
		OrderID:           uuid.NewString(),
		OrderNumber:       NewOrderNumber(now),
		UserID:            in.UserID,
		Items:             items,
		Total:             cart.Total(),
		Status:            StatusPending,
		ShippingAddress:   in.ShippingAddress,
		PaymentMethod:     in.PaymentMethod,
		OrderNotes:        in.OrderNotes,
		EstimatedDelivery: now.Add(7 * 24 * time.Hour),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	orderPut, err := w.store.PutTransactItem(order)
	if err != nil {
		return nil, err
	}

	transactItems := []types.TransactWriteItem{orderPut}
	for _, it := range items {
		transactItems = append(transactItems, w.products.StockDecrement(it.ProductID, it.Quantity, now))
	}
	transactItems = append(transactItems, w.carts.EmptyTransactItem(in.UserID, now))

	idempIdx := -1
	if in.IdempotencyKey != "" {
		rec, err := w.checkout.PutTransactItem(in.IdempotencyKey, order.OrderID)
		if err != nil {
			return nil, err
		}
		idempIdx = len(transactItems)
		transactItems = append(transactItems, rec)
	}

	_, err = w.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			if werr := w.mapCreateCancellation(ctx, tce, items, idempIdx); werr != nil {
				return nil, werr
			}
		}
		return nil, fmt.Errorf("create order transaction: %w", err)
	}

	w.publish(ctx, EventOrderPlaced, order)
	return order, nil
}

// mapCreateCancellation turns a canceled checkout transaction into the
// user-visible error: a lost stock race reports insufficient stock for the
// losing line, a duplicate idempotency key reports the duplicate.
func (w *Workflow) mapCreateCancellation(ctx context.Context, tce *types.TransactionCanceledException, items []Item, idempIdx int) error {
	for i, reason := range tce.CancellationReasons {
		if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
			continue
		}
		if i == idempIdx {
			return checkout.ErrDuplicateKey
		}
		// stock decrements occupy indexes 1..len(items)
		if i >= 1 && i <= len(items) {
			it := items[i-1]
			name := it.ProductName
			avail := 0
			if p, err := w.products.Get(ctx, it.ProductID); err == nil && p != nil {
				avail = p.Stock
			}
			return &products.InsufficientStockError{
				ProductID: it.ProductID,
				Name:      name,
				Available: avail,
				Requested: it.Quantity,
			}
		}
	}
	return nil
}

// Cancel sets a pending order to cancelled and restores each line's stock,
// all in one transaction. Only the owning user may cancel, and only while
// pending; the transaction's status condition closes the race with a
// concurrent admin transition. Lines whose product was deleted since order
// time are skipped, as restoring stock for a gone product is meaningless.
func (w *Workflow) Cancel(ctx context.Context, userID, orderID string) (*Order, error) {
	order, err := w.store.GetOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != StatusPending {
		return nil, ErrNotCancellable
	}

	now := w.nowFunc()
	transactItems := []types.TransactWriteItem{w.store.CancelTransactItem(orderID, now)}
	for _, it := range order.Items {
		p, err := w.products.Get(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			log.Printf("[orders] skipping stock restoration for deleted product=%s order=%s", it.ProductID, orderID)
			continue
		}
		transactItems = append(transactItems, w.products.StockIncrement(it.ProductID, it.Quantity, now))
	}

	_, err = w.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && len(tce.CancellationReasons) > 0 {
			first := tce.CancellationReasons[0]
			if first.Code != nil && *first.Code == "ConditionalCheckFailed" {
				// lost the race against another transition
				return nil, ErrNotCancellable
			}
		}
		return nil, fmt.Errorf("cancel order transaction: %w", err)
	}

	order.Status = StatusCancelled
	order.UpdatedAt = now
	w.publish(ctx, EventOrderCancelled, order)
	return order, nil
}

// SetStatusAdmin is the unguarded admin override: any valid status from any
// status, including reopening a cancelled order. It performs no stock
// mutation; that is the guarded cancel path's job.
func (w *Workflow) SetStatusAdmin(ctx context.Context, orderID, status string) (*Order, error) {
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}
	return w.store.SetStatus(ctx, orderID, status)
}

// GetStatus returns the owner-scoped status projection.
func (w *Workflow) GetStatus(ctx context.Context, userID, orderID string) (*StatusProjection, error) {
	order, err := w.store.GetOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return &StatusProjection{
		Status:            order.Status,
		OrderNumber:       order.OrderNumber,
		EstimatedDelivery: order.EstimatedDelivery,
		TrackingNumber:    order.TrackingNumber,
	}, nil
}

// publish sends an order lifecycle event, best-effort: the committed order is
// never failed over a notification.
func (w *Workflow) publish(ctx context.Context, event string, order *Order) {
	if w.publisher == nil {
		return
	}
	body, err := json.Marshal(Event{
		Event:       event,
		OrderID:     order.OrderID,
		UserID:      order.UserID,
		OrderNumber: order.OrderNumber,
		Total:       order.Total,
	})
	if err != nil {
		log.Printf("[orders] marshal %s event for order=%s: %v", event, order.OrderID, err)
		return
	}
	attrs := map[string]string{
		"event":    event,
		"order_id": order.OrderID,
	}
	if err := w.publisher.SendOrderEvent(ctx, string(body), attrs); err != nil {
		log.Printf("[orders] publish %s event for order=%s: %v", event, order.OrderID, err)
	}
}
