package repository

import (
	"context"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"gorm.io/gorm"
)

// MessageRepository stores quote conversation messages.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m *entity.QuoteMessage) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// FindByQuote returns the thread of a quote, oldest first.
func (r *MessageRepository) FindByQuote(ctx context.Context, quoteID string) ([]entity.QuoteMessage, error) {
	var items []entity.QuoteMessage
	err := r.db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}
