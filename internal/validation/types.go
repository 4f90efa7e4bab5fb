package validation

// AddToCartRequest is the payload for POST /cart/add.
// Quantity defaults to 1 when omitted.
type AddToCartRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"omitempty,min=1"`
}

// UpdateCartItemRequest is the payload for PUT /cart/update. Quantity is the
// new absolute quantity; values below 1 are rejected downstream so the error
// message matches the cart contract (use remove instead).
type UpdateCartItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required"`
}

// RemoveFromCartRequest is the payload for DELETE /cart/remove.
type RemoveFromCartRequest struct {
	ProductID string `json:"productId" validate:"required"`
}

// CreateOrderRequest is the payload for POST /order.
type CreateOrderRequest struct {
	ShippingAddress string `json:"shippingAddress" validate:"required"`
	PaymentMethod   string `json:"paymentMethod" validate:"required"`
	OrderNotes      string `json:"orderNotes,omitempty"`
}

// UpdateOrderStatusRequest is the payload for the admin status override.
// The five-value enum is enforced by the workflow so the rejection message
// can list the accepted values.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SubmitProductRequest is the payload for product submission (and admin
// direct save). Stock is a pointer so zero is distinguishable from omitted.
type SubmitProductRequest struct {
	Name                 string   `json:"productname" validate:"required"`
	AltName              string   `json:"altName,omitempty"`
	Description          string   `json:"description" validate:"required"`
	Images               []string `json:"images,omitempty"`
	LabelledPrice        float64  `json:"labelledPrice" validate:"required,gt=0"`
	Price                float64  `json:"price" validate:"required,gt=0"`
	Stock                *int     `json:"stock" validate:"required,min=0"`
	Category             string   `json:"category" validate:"required"`
	Subcategory          string   `json:"subcategory" validate:"required"`
	IsOrganic            *bool    `json:"isOrganic,omitempty"`
	OrganicCertification string   `json:"organicCertification,omitempty"`
	Ingredients          []string `json:"ingredients,omitempty"`
	Allergens            []string `json:"allergens,omitempty"`
	Calories             *float64 `json:"calories,omitempty" validate:"omitempty,gte=0"`
	Protein              *float64 `json:"protein,omitempty" validate:"omitempty,gte=0"`
	Carbs                *float64 `json:"carbs,omitempty" validate:"omitempty,gte=0"`
	Fat                  *float64 `json:"fat,omitempty" validate:"omitempty,gte=0"`
	Fiber                *float64 `json:"fiber,omitempty" validate:"omitempty,gte=0"`
}

// ReviewProductRequest is the admin approve/reject payload.
type ReviewProductRequest struct {
	Action          string `json:"action" validate:"required,oneof=approve reject"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

// UpdateProductRequest is the admin product edit payload; nil fields are untouched.
type UpdateProductRequest struct {
	Name          *string  `json:"productname,omitempty"`
	AltName       *string  `json:"altName,omitempty"`
	Description   *string  `json:"description,omitempty"`
	Images        []string `json:"images,omitempty"`
	LabelledPrice *float64 `json:"labelledPrice,omitempty" validate:"omitempty,gt=0"`
	Price         *float64 `json:"price,omitempty" validate:"omitempty,gt=0"`
	Stock         *int     `json:"stock,omitempty" validate:"omitempty,min=0"`
	IsAvailable   *bool    `json:"isAvailable,omitempty"`
	Category      *string  `json:"category,omitempty"`
	Subcategory   *string  `json:"subcategory,omitempty"`
}
