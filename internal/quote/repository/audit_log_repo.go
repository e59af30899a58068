package repository

import (
	"context"
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"gorm.io/gorm"
)

// AuditLogRepository reads and appends quote history. It has no update or delete path.
type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// append inserts entry using tx, assigning the next per-quote sequence number.
// Callers run it inside the transaction that changed the quote.
func (r *AuditLogRepository) append(tx *gorm.DB, entry *entity.QuoteAuditLog) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var last int
	err := tx.Model(&entity.QuoteAuditLog{}).
		Select("COALESCE(MAX(seq), 0)").
		Where("quote_id = ?", entry.QuoteID).
		Scan(&last).Error
	if err != nil {
		return err
	}
	entry.Seq = last + 1

	return tx.Create(entry).Error
}

// FindByQuote returns the history of one quote, oldest first.
func (r *AuditLogRepository) FindByQuote(ctx context.Context, quoteID string) ([]entity.QuoteAuditLog, error) {
	var items []entity.QuoteAuditLog
	err := r.db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Order("seq ASC").
		Find(&items).Error
	return items, err
}

// FindSince returns all history rows created at or after since, for exports.
func (r *AuditLogRepository) FindSince(ctx context.Context, since time.Time, limit int) ([]entity.QuoteAuditLog, error) {
	var items []entity.QuoteAuditLog
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at ASC, seq ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
