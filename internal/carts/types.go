package carts

import "time"

// Item is a single cart line: one per distinct product, with the product's
// price frozen at first add.
type Item struct {
	ProductID string  `dynamodbav:"product_id" json:"productId"`
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
	Price     float64 `dynamodbav:"price" json:"price"`
}

// Cart is the single pre-checkout cart a user owns, stored whole as one item
// in the carts DynamoDB table (user_id PK).
type Cart struct {
	UserID    string    `dynamodbav:"user_id" json:"userId"`
	Items     []Item    `dynamodbav:"items" json:"items"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}

// Total sums price * quantity over all lines.
func (c *Cart) Total() float64 {
	var total float64
	for _, it := range c.Items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

// Count sums quantities over all lines.
func (c *Cart) Count() int {
	var n int
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// find returns the index of the line holding productID, or -1.
func (c *Cart) find(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}
