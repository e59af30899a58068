package entity

import (
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/lifecycle"
)

// Quote is a buyer request for pricing that moves through the lifecycle.
type Quote struct {
	ID          string           `json:"id" gorm:"primaryKey;size:32"`
	QuoteNumber string           `json:"quote_number" gorm:"size:32;not null;uniqueIndex"`
	Status      lifecycle.Status `json:"status" gorm:"size:16;not null;default:draft;index"`
	ClerkUserID string           `json:"clerk_user_id" gorm:"size:64;not null;index"`
	// UserType is the buyer classification captured at submission, for display only.
	UserType    string `json:"user_type" gorm:"size:16"`
	CompanyName string `json:"company_name" gorm:"size:256"`
	ContactName string `json:"contact_name" gorm:"size:128"`
	Notes       string `json:"notes" gorm:"type:text"`

	EstimatedTotal float64  `json:"estimated_total" gorm:"default:0"`
	Subtotal       *float64 `json:"subtotal"`
	TaxTotal       *float64 `json:"tax_total"`
	DiscountTotal  *float64 `json:"discount_total"`
	FinalTotal     *float64 `json:"final_total"`
	Currency       string   `json:"currency" gorm:"size:8;not null;default:INR"`
	PricingVisible bool     `json:"pricing_visible" gorm:"not null;default:false"`

	SubmittedAt        *time.Time `json:"submitted_at"`
	ReviewingStartedAt *time.Time `json:"reviewing_started_at"`
	ApprovedAt         *time.Time `json:"approved_at"`
	ApprovedBy         *string    `json:"approved_by" gorm:"size:64"`
	RejectedAt         *time.Time `json:"rejected_at"`
	RejectedBy         *string    `json:"rejected_by" gorm:"size:64"`
	RejectionReason    string     `json:"rejection_reason" gorm:"type:text"`
	ConvertedAt        *time.Time `json:"converted_at"`
	OrderID            *string    `json:"order_id" gorm:"size:32"`
	ExpiresAt          *time.Time `json:"expires_at" gorm:"index"`
	ExpiredAt          *time.Time `json:"expired_at"`

	Version   int       `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []QuoteItem `json:"items,omitempty" gorm:"foreignKey:QuoteID"`
}

func (Quote) TableName() string {
	return "quotes"
}

// QuoteItem is one requested line on a quote.
type QuoteItem struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	QuoteID     string    `json:"quote_id" gorm:"size:32;not null;index"`
	ProductID   string    `json:"product_id" gorm:"size:64;not null"`
	VariantID   *string   `json:"variant_id" gorm:"size:64"`
	ProductName string    `json:"product_name" gorm:"size:256"`
	SKU         string    `json:"sku" gorm:"size:64"`
	Quantity    int       `json:"quantity" gorm:"not null"`
	UnitPrice   *float64  `json:"unit_price"`   // catalogue price at request time
	QuotedPrice *float64  `json:"quoted_price"` // set by sales during review
	Note        string    `json:"note" gorm:"type:text"`
	SortOrder   int       `json:"sort_order" gorm:"default:0"`
	CreatedAt   time.Time `json:"created_at"`
}

func (QuoteItem) TableName() string {
	return "quote_items"
}

// Total returns the current total: final pricing when set, otherwise the estimate.
func (q *Quote) Total() float64 {
	if q.FinalTotal != nil {
		return *q.FinalTotal
	}
	return q.EstimatedTotal
}

// Redacted returns a copy with admin pricing stripped, for buyers without pricing access.
func (q Quote) Redacted() Quote {
	q.Subtotal = nil
	q.TaxTotal = nil
	q.DiscountTotal = nil
	q.FinalTotal = nil
	if len(q.Items) > 0 {
		items := make([]QuoteItem, len(q.Items))
		copy(items, q.Items)
		for i := range items {
			items[i].QuotedPrice = nil
		}
		q.Items = items
	}
	return q
}
