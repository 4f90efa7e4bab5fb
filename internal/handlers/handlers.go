package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/greenbasket/go-commerce-backend/internal/aws"
	"github.com/greenbasket/go-commerce-backend/internal/carts"
	"github.com/greenbasket/go-commerce-backend/internal/orders"
	"github.com/greenbasket/go-commerce-backend/internal/products"
)

// HandlerConfig groups dependencies for the route groups.
type HandlerConfig struct {
	DynamoDBClient aws.DynamoDBAPI
	SQSClient      aws.SQSAPI
	ProductsTable  string
	CartsTable     string
	OrdersTable    string
	CheckoutTable  string
	QueueURL       string
	JWTSecret      []byte
	TTLWindow      time.Duration
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

func failErr(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{"success": false, "message": message, "error": err.Error()})
}

// cartItemView is a cart line with its product details populated for display.
type cartItemView struct {
	carts.Item
	Product *products.Summary `json:"product,omitempty"`
}

// cartView is the cart response shape: lines with populated products plus the
// computed total.
type cartView struct {
	UserID    string         `json:"userId"`
	Items     []cartItemView `json:"items"`
	Total     float64        `json:"total"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func populateCart(ctx context.Context, ps *products.Store, cart *carts.Cart) (*cartView, error) {
	ids := make([]string, 0, len(cart.Items))
	for _, it := range cart.Items {
		ids = append(ids, it.ProductID)
	}
	summaries, err := ps.GetSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &cartView{
		UserID:    cart.UserID,
		Items:     make([]cartItemView, 0, len(cart.Items)),
		Total:     cart.Total(),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, it := range cart.Items {
		iv := cartItemView{Item: it}
		if s, ok := summaries[it.ProductID]; ok {
			s := s
			iv.Product = &s
		}
		view.Items = append(view.Items, iv)
	}
	return view, nil
}

// orderItemView is a frozen order line with current product details attached
// for display; the snapshot fields remain authoritative for what was bought.
type orderItemView struct {
	orders.Item
	Product *products.Summary `json:"product,omitempty"`
}

type orderView struct {
	orders.Order
	Items []orderItemView `json:"items"`
}

func populateOrder(ctx context.Context, ps *products.Store, order *orders.Order) (*orderView, error) {
	views, err := populateOrders(ctx, ps, []orders.Order{*order})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func populateOrders(ctx context.Context, ps *products.Store, list []orders.Order) ([]orderView, error) {
	var ids []string
	for _, o := range list {
		for _, it := range o.Items {
			ids = append(ids, it.ProductID)
		}
	}
	summaries, err := ps.GetSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]orderView, 0, len(list))
	for _, o := range list {
		v := orderView{Order: o, Items: make([]orderItemView, 0, len(o.Items))}
		for _, it := range o.Items {
			iv := orderItemView{Item: it}
			if s, ok := summaries[it.ProductID]; ok {
				s := s
				iv.Product = &s
			}
			v.Items = append(v.Items, iv)
		}
		views = append(views, v)
	}
	return views, nil
}
