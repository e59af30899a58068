package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BasketItem is one staged line in a buyer's basket.
type BasketItem struct {
	ID          string   `json:"id"`
	ProductID   string   `json:"product_id"`
	VariantID   *string  `json:"variant_id,omitempty"`
	ProductName string   `json:"product_name,omitempty"`
	SKU         string   `json:"sku,omitempty"`
	Quantity    int      `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Note        string   `json:"note,omitempty"`
}

// SameLine reports whether two items refer to the same (product, variant) pair.
func (b BasketItem) SameLine(other BasketItem) bool {
	if b.ProductID != other.ProductID {
		return false
	}
	if b.VariantID == nil || other.VariantID == nil {
		return b.VariantID == nil && other.VariantID == nil
	}
	return *b.VariantID == *other.VariantID
}

// BasketItems is stored as an ordered JSON array.
type BasketItems []BasketItem

func (b BasketItems) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (b *BasketItems) Scan(value interface{}) error {
	if value == nil {
		*b = BasketItems{}
		return nil
	}
	raw, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan basket items: %w", err)
	}
	return json.Unmarshal(raw, b)
}

// QuoteBasket is the single pre-submission staging list of a buyer. It has no status.
type QuoteBasket struct {
	ID          string      `json:"id" gorm:"primaryKey;size:32"`
	ClerkUserID string      `json:"clerk_user_id" gorm:"size:64;not null;uniqueIndex"`
	Items       BasketItems `json:"items" gorm:"type:json;not null"`
	Version     int         `json:"version" gorm:"not null;default:1"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (QuoteBasket) TableName() string {
	return "quote_baskets"
}
