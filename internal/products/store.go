package products

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/greenbasket/go-commerce-backend/internal/aws"
)

// Store encapsulates operations on the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new products Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Put persists a product (create or full overwrite).
func (s *Store) Put(ctx context.Context, p *Product) error {
	now := s.nowFunc()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.SubmittedAt.IsZero() {
		p.SubmittedAt = now
	}
	p.UpdatedAt = now

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

// Get fetches a product by product_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, productID string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// GetPurchasable fetches a product and verifies it is approved and available
// for sale. Stock is checked separately at reservation time.
func (s *Store) GetPurchasable(ctx context.Context, productID string) (*Product, error) {
	p, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if p.Status != StatusApproved || !p.IsAvailable {
		return nil, ErrNotAvailable
	}
	return p, nil
}

// Delete removes a product by product_id. Deleting an absent product is a no-op.
func (s *Store) Delete(ctx context.Context, productID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
	})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// ListApproved returns products visible to customers (approved and available).
func (s *Store) ListApproved(ctx context.Context) ([]Product, error) {
	return s.scan(ctx, awsString("#st = :approved AND is_available = :avail"),
		map[string]string{"#st": "status"},
		map[string]types.AttributeValue{
			":approved": &types.AttributeValueMemberS{Value: StatusApproved},
			":avail":    &types.AttributeValueMemberBOOL{Value: true},
		})
}

// ListAll returns every product regardless of status (admin view).
func (s *Store) ListAll(ctx context.Context) ([]Product, error) {
	return s.scan(ctx, nil, nil, nil)
}

// ListPending returns pending submissions, newest submission first.
func (s *Store) ListPending(ctx context.Context) ([]Product, error) {
	out, err := s.scan(ctx, awsString("#st = :pending"),
		map[string]string{"#st": "status"},
		map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: StatusPending},
		})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (s *Store) scan(ctx context.Context, filter *string, names map[string]string, values map[string]types.AttributeValue) ([]Product, error) {
	input := &dyn.ScanInput{TableName: &s.tableName}
	if filter != nil {
		input.FilterExpression = filter
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}
	out, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	prods := make([]Product, 0, len(out.Items))
	for _, item := range out.Items {
		var p Product
		if err := attributevalue.UnmarshalMap(item, &p); err != nil {
			return nil, fmt.Errorf("unmarshal product: %w", err)
		}
		prods = append(prods, p)
	}
	return prods, nil
}

// Review transitions a pending product to approved or rejected, exactly once.
// Approval also flips is_available on; rejection stores the reason if given.
func (s *Store) Review(ctx context.Context, productID string, approve bool, reviewedBy, rejectionReason string) (*Product, error) {
	now := s.nowFunc()
	newStatus := StatusRejected
	if approve {
		newStatus = StatusApproved
	}

	updateExpr := "SET #st = :status, reviewed_by = :rb, reviewed_at = :ra, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":status":  &types.AttributeValueMemberS{Value: newStatus},
		":rb":      &types.AttributeValueMemberS{Value: reviewedBy},
		":ra":      &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		":ua":      &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		":pending": &types.AttributeValueMemberS{Value: StatusPending},
	}
	if approve {
		updateExpr += ", is_available = :avail"
		values[":avail"] = &types.AttributeValueMemberBOOL{Value: true}
	} else if rejectionReason != "" {
		updateExpr += ", rejection_reason = :reason"
		values[":reason"] = &types.AttributeValueMemberS{Value: rejectionReason}
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
		UpdateExpression:          &updateExpr,
		ExpressionAttributeNames:  map[string]string{"#st": "status"},
		ExpressionAttributeValues: values,
		ConditionExpression:       awsString("attribute_exists(product_id) AND #st = :pending"),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			p, gerr := s.Get(ctx, productID)
			if gerr != nil {
				return nil, gerr
			}
			if p == nil {
				return nil, ErrNotFound
			}
			return nil, ErrAlreadyReviewed
		}
		return nil, fmt.Errorf("review product: %w", err)
	}

	var p Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// AdjustStock applies stock += delta as a single conditional update. Negative
// deltas (reservation) carry a stock >= need guard, so stock can never go below
// zero; positive deltas (restoration) only require the product to exist.
func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
		UpdateExpression: awsString("SET stock = stock + :d, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", delta)},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	}
	if delta < 0 {
		input.ConditionExpression = awsString("attribute_exists(product_id) AND stock >= :need")
		input.ExpressionAttributeValues[":need"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", -delta)}
	} else {
		input.ConditionExpression = awsString("attribute_exists(product_id)")
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			p, gerr := s.Get(ctx, productID)
			if gerr != nil {
				return gerr
			}
			if p == nil {
				return ErrNotFound
			}
			return &InsufficientStockError{ProductID: productID, Name: p.Name, Available: p.Stock, Requested: -delta}
		}
		return fmt.Errorf("adjust stock: %w", err)
	}
	return nil
}

// StockDecrement builds a transactional stock reservation for one order line.
// The stock >= quantity condition makes the whole transaction fail if any line
// lost a race since validation.
func (s *Store) StockDecrement(productID string, quantity int, now time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"product_id": &types.AttributeValueMemberS{Value: productID},
			},
			UpdateExpression:    awsString("SET stock = stock + :d, updated_at = :ua"),
			ConditionExpression: awsString("attribute_exists(product_id) AND stock >= :need"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":d":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", -quantity)},
				":need": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", quantity)},
				":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			},
		},
	}
}

// StockIncrement builds a transactional stock restoration for one order line.
// The existence guard keeps a concurrently deleted product from being
// resurrected as a stock-only item.
func (s *Store) StockIncrement(productID string, quantity int, now time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"product_id": &types.AttributeValueMemberS{Value: productID},
			},
			UpdateExpression:    awsString("SET stock = stock + :d, updated_at = :ua"),
			ConditionExpression: awsString("attribute_exists(product_id)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":d":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", quantity)},
				":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			},
		},
	}
}

// GetSummaries batch-fetches display summaries for a set of product ids.
// Missing products are simply absent from the result map.
func (s *Store) GetSummaries(ctx context.Context, productIDs []string) (map[string]Summary, error) {
	out := map[string]Summary{}
	if len(productIDs) == 0 {
		return out, nil
	}

	seen := map[string]bool{}
	keys := make([]map[string]types.AttributeValue, 0, len(productIDs))
	for _, id := range productIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: id},
		})
	}

	resp, err := s.client.BatchGetItem(ctx, &dyn.BatchGetItemInput{
		RequestItems: map[string]types.KeysAndAttributes{
			s.tableName: {Keys: keys},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("batch get products: %w", err)
	}
	for _, item := range resp.Responses[s.tableName] {
		var p Product
		if err := attributevalue.UnmarshalMap(item, &p); err != nil {
			return nil, fmt.Errorf("unmarshal product: %w", err)
		}
		out[p.ProductID] = p.Summarize()
	}
	return out, nil
}

// Patch carries the admin-editable fields of a product; nil fields are left untouched.
type Patch struct {
	Name          *string
	AltName       *string
	Description   *string
	Images        []string
	LabelledPrice *float64
	Price         *float64
	Stock         *int
	IsAvailable   *bool
	Category      *string
	Subcategory   *string
}

// Update applies a patch to an existing product and returns the updated copy.
func (s *Store) Update(ctx context.Context, productID string, patch Patch) (*Product, error) {
	p, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}

	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.AltName != nil {
		p.AltName = *patch.AltName
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Images != nil {
		p.Images = patch.Images
	}
	if patch.LabelledPrice != nil {
		p.LabelledPrice = *patch.LabelledPrice
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.IsAvailable != nil {
		p.IsAvailable = *patch.IsAvailable
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Subcategory != nil {
		p.Subcategory = *patch.Subcategory
	}

	if err := s.Put(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func awsString(s string) *string { return &s }
