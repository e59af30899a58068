package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BasketRepository stores one basket row per buyer.
type BasketRepository struct {
	db *gorm.DB
}

func NewBasketRepository(db *gorm.DB) *BasketRepository {
	return &BasketRepository{db: db}
}

// FindByUser returns the buyer's basket or ErrNotFound.
func (r *BasketRepository) FindByUser(ctx context.Context, clerkUserID string) (*entity.QuoteBasket, error) {
	var b entity.QuoteBasket
	err := r.db.WithContext(ctx).Where("clerk_user_id = ?", clerkUserID).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if b.Items == nil {
		b.Items = entity.BasketItems{}
	}
	return &b, nil
}

// Create inserts a new basket. ErrConflict means another request created it first.
func (r *BasketRepository) Create(ctx context.Context, b *entity.QuoteBasket) error {
	if b.ID == "" {
		b.ID = newID()
	}
	if b.Version == 0 {
		b.Version = 1
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "clerk_user_id"}}, DoNothing: true}).
		Create(b)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// UpdateItems overwrites the items if the basket is still at version. On success b.Version
// is advanced to match the stored row.
func (r *BasketRepository) UpdateItems(ctx context.Context, b *entity.QuoteBasket, items entity.BasketItems) error {
	if items == nil {
		items = entity.BasketItems{}
	}
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&entity.QuoteBasket{}).
		Where("id = ? AND version = ?", b.ID, b.Version).
		Updates(map[string]interface{}{
			"items":      items,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	b.Items = items
	b.Version++
	b.UpdatedAt = now
	return nil
}
