package products

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Product approval statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Product is the item stored in the products DynamoDB table.
// product_id is the stable external identity (PK), distinct from any
// storage-internal key the original system carried.
type Product struct {
	ProductID            string     `dynamodbav:"product_id" json:"product_id"`
	Name                 string     `dynamodbav:"productname" json:"productname"`
	AltName              string     `dynamodbav:"alt_name,omitempty" json:"altName,omitempty"`
	Description          string     `dynamodbav:"description" json:"description"`
	Images               []string   `dynamodbav:"images,omitempty" json:"images"`
	LabelledPrice        float64    `dynamodbav:"labelled_price" json:"labelledPrice"`
	Price                float64    `dynamodbav:"price" json:"price"`
	Stock                int        `dynamodbav:"stock" json:"stock"`
	IsAvailable          bool       `dynamodbav:"is_available" json:"isAvailable"`
	Status               string     `dynamodbav:"status" json:"status"` // pending | approved | rejected
	Category             string     `dynamodbav:"category" json:"category"`
	Subcategory          string     `dynamodbav:"subcategory" json:"subcategory"`
	IsOrganic            bool       `dynamodbav:"is_organic" json:"isOrganic"`
	OrganicCertification string     `dynamodbav:"organic_certification,omitempty" json:"organicCertification,omitempty"`
	Ingredients          []string   `dynamodbav:"ingredients,omitempty" json:"ingredients,omitempty"`
	Allergens            []string   `dynamodbav:"allergens,omitempty" json:"allergens,omitempty"`
	Calories             *float64   `dynamodbav:"calories,omitempty" json:"calories,omitempty"`
	Protein              *float64   `dynamodbav:"protein,omitempty" json:"protein,omitempty"`
	Carbs                *float64   `dynamodbav:"carbs,omitempty" json:"carbs,omitempty"`
	Fat                  *float64   `dynamodbav:"fat,omitempty" json:"fat,omitempty"`
	Fiber                *float64   `dynamodbav:"fiber,omitempty" json:"fiber,omitempty"`
	SubmittedBy          string     `dynamodbav:"submitted_by" json:"submittedBy"`
	SubmittedAt          time.Time  `dynamodbav:"submitted_at" json:"submittedAt"`
	ReviewedBy           string     `dynamodbav:"reviewed_by,omitempty" json:"reviewedBy,omitempty"`
	ReviewedAt           *time.Time `dynamodbav:"reviewed_at,omitempty" json:"reviewedAt,omitempty"`
	RejectionReason      string     `dynamodbav:"rejection_reason,omitempty" json:"rejectionReason,omitempty"`
	CreatedAt            time.Time  `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `dynamodbav:"updated_at" json:"updatedAt"`
}

// FirstImage returns the primary product image, or "" when none was uploaded.
func (p *Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Summary is the slice of product fields denormalized into cart and order
// responses for display.
type Summary struct {
	ProductID   string   `json:"product_id"`
	Name        string   `json:"productname"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	Price       float64  `json:"price"`
	Stock       int      `json:"stock"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
}

// Summarize projects a Product into its display summary.
func (p *Product) Summarize() Summary {
	return Summary{
		ProductID:   p.ProductID,
		Name:        p.Name,
		Description: p.Description,
		Images:      p.Images,
		Price:       p.Price,
		Stock:       p.Stock,
		Category:    p.Category,
		Subcategory: p.Subcategory,
	}
}

// NewProductID generates an external product id ("P" + timestamp + random suffix).
func NewProductID() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:5])
	return fmt.Sprintf("P%d%s", time.Now().UnixMilli(), suffix)
}
