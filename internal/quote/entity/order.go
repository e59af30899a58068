package entity

import "time"

const OrderStatusPendingPayment = "pending_payment"

// Order is materialized from a converted quote.
type Order struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	OrderNumber string    `json:"order_number" gorm:"size:32;not null;uniqueIndex"`
	QuoteID     string    `json:"quote_id" gorm:"size:32;not null;uniqueIndex"`
	ClerkUserID string    `json:"clerk_user_id" gorm:"size:64;not null;index"`
	Status      string    `json:"status" gorm:"size:24;not null;default:pending_payment"`
	Total       float64   `json:"total"`
	Currency    string    `json:"currency" gorm:"size:8"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID          string   `json:"id" gorm:"primaryKey;size:32"`
	OrderID     string   `json:"order_id" gorm:"size:32;not null;index"`
	ProductID   string   `json:"product_id" gorm:"size:64;not null"`
	VariantID   *string  `json:"variant_id" gorm:"size:64"`
	ProductName string   `json:"product_name" gorm:"size:256"`
	SKU         string   `json:"sku" gorm:"size:64"`
	Quantity    int      `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	SortOrder   int      `json:"sort_order"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
