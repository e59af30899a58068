package repository

import (
	"context"
	"errors"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"gorm.io/gorm"
)

// OrderRepository persists orders materialized from converted quotes.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts an order with its items.
func (r *OrderRepository) Create(ctx context.Context, o *entity.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	var o entity.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("id = ?", id).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// FindByQuote returns the order created from a quote, if any.
func (r *OrderRepository) FindByQuote(ctx context.Context, quoteID string) (*entity.Order, error) {
	var o entity.Order
	err := r.db.WithContext(ctx).Where("quote_id = ?", quoteID).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// GenerateCode returns the next order number ORD-{year}-{4 digits}.
func (r *OrderRepository) GenerateCode(ctx context.Context) (string, error) {
	return generateCode(ctx, r.db, &entity.Order{}, "order_number", "ORD")
}
