package carts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/greenbasket/go-commerce-backend/internal/aws"
	"github.com/greenbasket/go-commerce-backend/internal/products"
)

var (
	// ErrNotFound indicates the user has no cart yet.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound indicates the product is not in the cart.
	ErrItemNotFound = errors.New("item not found in cart")
	// ErrInvalidQuantity indicates a quantity below 1 (use RemoveItem instead).
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// Store maintains the single active cart per user. Stock is re-checked on
// every mutation so out-of-stock surfaces early, not only at checkout; the
// hard guarantee still lives in the checkout transaction's conditional
// decrements.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	products  *products.Store
	nowFunc   func() time.Time
}

// NewStore creates a carts Store backed by the given products Store for
// availability and stock validation.
func NewStore(client aws.DynamoDBAPI, tableName string, productStore *products.Store) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		products:  productStore,
		nowFunc:   time.Now,
	}
}

// Get fetches the user's cart. Returns (nil, nil) if the user has none.
func (s *Store) Get(ctx context.Context, userID string) (*Cart, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Cart
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &c, nil
}

// GetOrCreate returns the user's cart, lazily creating an empty one.
func (s *Store) GetOrCreate(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}
	c = &Cart{UserID: userID, Items: []Item{}}
	if err := s.put(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) put(ctx context.Context, c *Cart) error {
	now := s.nowFunc()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Items == nil {
		c.Items = []Item{}
	}

	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put cart: %w", err)
	}
	return nil
}

// AddItem inserts a new line or merges quantity into an existing one. The
// line's price is snapshotted from the product only on first insertion.
func (s *Store) AddItem(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetPurchasable(ctx, productID)
	if err != nil {
		return nil, err
	}

	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = &Cart{UserID: userID, Items: []Item{}}
	}

	if i := c.find(productID); i >= 0 {
		merged := c.Items[i].Quantity + quantity
		if merged > p.Stock {
			return nil, &products.InsufficientStockError{
				ProductID: productID,
				Name:      p.Name,
				Available: p.Stock,
				Requested: merged,
				Merged:    true,
			}
		}
		c.Items[i].Quantity = merged
	} else {
		if p.Stock < quantity {
			return nil, &products.InsufficientStockError{
				ProductID: productID,
				Name:      p.Name,
				Available: p.Stock,
				Requested: quantity,
			}
		}
		c.Items = append(c.Items, Item{ProductID: productID, Quantity: quantity, Price: p.Price})
	}

	if err := s.put(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateItem sets a line to an absolute quantity, re-validating availability
// and stock against the new quantity.
func (s *Store) UpdateItem(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetPurchasable(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Stock < quantity {
		return nil, &products.InsufficientStockError{
			ProductID: productID,
			Name:      p.Name,
			Available: p.Stock,
			Requested: quantity,
		}
	}

	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	i := c.find(productID)
	if i < 0 {
		return nil, ErrItemNotFound
	}
	c.Items[i].Quantity = quantity

	if err := s.put(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem drops a line if present; removing an absent product is a no-op.
func (s *Store) RemoveItem(ctx context.Context, userID, productID string) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}

	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	c.Items = kept

	if err := s.put(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear empties the cart unconditionally.
func (s *Store) Clear(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	c.Items = []Item{}
	if err := s.put(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Count returns the summed quantity across all lines, 0 without a cart.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, nil
	}
	return c.Count(), nil
}

// EmptyTransactItem builds the cart-clearing write used inside the checkout
// transaction, so order creation and cart emptying commit together.
func (s *Store) EmptyTransactItem(userID string, now time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"user_id": &types.AttributeValueMemberS{Value: userID},
			},
			UpdateExpression: awsString("SET #it = :empty, updated_at = :ua"),
			ExpressionAttributeNames: map[string]string{
				"#it": "items",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
				":ua":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			},
		},
	}
}

func awsString(s string) *string { return &s }
