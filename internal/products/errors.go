package products

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the product id does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrNotAvailable indicates the product exists but is not approved or not available for sale.
	ErrNotAvailable = errors.New("product not available")
	// ErrAlreadyReviewed indicates an approve/reject was attempted on a product no longer pending.
	ErrAlreadyReviewed = errors.New("product already reviewed")
)

// InsufficientStockError is returned when a reservation (cart add/update or
// order creation) asks for more units than the product currently has.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
	Merged    bool // requested quantity includes an existing cart item
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: %d available, %d requested", e.ProductID, e.Available, e.Requested)
}
