package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Order statuses. The user-facing lifecycle is pending -> processing ->
// shipped -> delivered, with cancellation allowed from pending only; the
// admin override may set any of these from any state.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// ValidStatuses lists the accepted status values, in lifecycle order.
var ValidStatuses = []string{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

// ValidStatus reports whether s is one of the five accepted values.
func ValidStatus(s string) bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Item is a frozen order line captured from the cart at checkout. Later
// product price/name/image changes never affect it.
type Item struct {
	ProductID    string  `dynamodbav:"product_id" json:"productId"`
	Quantity     int     `dynamodbav:"quantity" json:"quantity"`
	Price        float64 `dynamodbav:"price" json:"price"`
	ProductName  string  `dynamodbav:"product_name" json:"productName"`
	ProductImage string  `dynamodbav:"product_image,omitempty" json:"productImage,omitempty"`
}

// Order represents the item stored in the orders DynamoDB table.
type Order struct {
	OrderID           string    `dynamodbav:"order_id" json:"orderId"` // PK
	OrderNumber       string    `dynamodbav:"order_number" json:"orderNumber"`
	UserID            string    `dynamodbav:"user_id" json:"userId"`
	Items             []Item    `dynamodbav:"items" json:"items"`
	Total             float64   `dynamodbav:"total" json:"total"`
	Status            string    `dynamodbav:"status" json:"status"`
	ShippingAddress   string    `dynamodbav:"shipping_address" json:"shippingAddress"`
	PaymentMethod     string    `dynamodbav:"payment_method" json:"paymentMethod"`
	OrderNotes        string    `dynamodbav:"order_notes,omitempty" json:"orderNotes,omitempty"`
	EstimatedDelivery time.Time `dynamodbav:"estimated_delivery" json:"estimatedDelivery"`
	TrackingNumber    string    `dynamodbav:"tracking_number,omitempty" json:"trackingNumber,omitempty"`
	CreatedAt         time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}

// StatusProjection is the read-only view served by the order status endpoint.
type StatusProjection struct {
	Status            string    `json:"status"`
	OrderNumber       string    `json:"orderNumber"`
	EstimatedDelivery time.Time `json:"estimatedDelivery"`
	TrackingNumber    string    `json:"trackingNumber,omitempty"`
}

// NewOrderNumber generates the human-facing order number, e.g. ORD-20260901-1A2B3C.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "ORD-" + now.Format("20060102") + "-" + suffix
}

// Event names published to the order events queue.
const (
	EventOrderPlaced    = "order.placed"
	EventOrderCancelled = "order.cancelled"
)

// Event is the payload sent to SQS on order lifecycle changes.
type Event struct {
	Event       string  `json:"event"`
	OrderID     string  `json:"order_id"`
	UserID      string  `json:"user_id"`
	OrderNumber string  `json:"order_number"`
	Total       float64 `json:"total"`
}
