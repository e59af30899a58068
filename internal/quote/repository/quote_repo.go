package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/lifecycle"
	"gorm.io/gorm"
)

// QuoteRepository persists quotes and their items.
type QuoteRepository struct {
	db       *gorm.DB
	auditLog *AuditLogRepository
}

func NewQuoteRepository(db *gorm.DB, auditLog *AuditLogRepository) *QuoteRepository {
	return &QuoteRepository{db: db, auditLog: auditLog}
}

// QuoteChange is one guarded mutation of a quote plus the history row describing it.
type QuoteChange struct {
	QuoteID     string
	FromStatus  lifecycle.Status
	FromVersion int
	Updates     map[string]interface{}
	// Items replaces the quote lines when non-nil.
	Items []entity.QuoteItem
	Audit *entity.QuoteAuditLog
}

// FindByID loads a quote with its items.
func (r *QuoteRepository) FindByID(ctx context.Context, id string) (*entity.Quote, error) {
	var q entity.Quote
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("id = ?", id).
		First(&q).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

// FindAll lists quotes. Supported filters: clerk_user_id, status, search.
func (r *QuoteRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Quote, int64, error) {
	var items []entity.Quote
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Quote{})

	if owner := filters["clerk_user_id"]; owner != "" {
		query = query.Where("clerk_user_id = ?", owner)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if search := filters["search"]; search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("(LOWER(quote_number) LIKE ? OR LOWER(company_name) LIKE ?)", like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindExpirable returns approved quotes whose validity ended at or before now.
func (r *QuoteRepository) FindExpirable(ctx context.Context, now time.Time, limit int) ([]entity.Quote, error) {
	var items []entity.Quote
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", string(lifecycle.StatusApproved), now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// FindConvertedWithoutOrder returns converted quotes whose allocated order row is missing.
func (r *QuoteRepository) FindConvertedWithoutOrder(ctx context.Context, limit int) ([]entity.Quote, error) {
	var items []entity.Quote
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("status = ? AND order_id IS NOT NULL", string(lifecycle.StatusConverted)).
		Where("NOT EXISTS (SELECT 1 FROM orders WHERE orders.quote_id = quotes.id)").
		Order("converted_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// Create inserts a new quote with its items and its first history row atomically. A
// quote number taken by a concurrent insert yields ErrDuplicate.
func (r *QuoteRepository) Create(ctx context.Context, q *entity.Quote, audit *entity.QuoteAuditLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(q).Error; err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("insert quote %s: %w", q.QuoteNumber, ErrDuplicate)
			}
			return fmt.Errorf("insert quote: %w", err)
		}
		if audit == nil {
			return nil
		}
		audit.QuoteID = q.ID
		if err := r.auditLog.append(tx, audit); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		return nil
	})
}

// Apply writes change only if the quote is still in FromStatus at FromVersion, and appends
// the history row in the same transaction. A stale read yields ErrConflict and writes nothing.
func (r *QuoteRepository) Apply(ctx context.Context, change *QuoteChange) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := make(map[string]interface{}, len(change.Updates)+2)
		for k, v := range change.Updates {
			updates[k] = v
		}
		updates["version"] = gorm.Expr("version + 1")
		updates["updated_at"] = time.Now()

		result := tx.Model(&entity.Quote{}).
			Where("id = ? AND status = ? AND version = ?", change.QuoteID, string(change.FromStatus), change.FromVersion).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("update quote: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}

		if change.Items != nil {
			if err := tx.Where("quote_id = ?", change.QuoteID).Delete(&entity.QuoteItem{}).Error; err != nil {
				return fmt.Errorf("delete quote items: %w", err)
			}
			if len(change.Items) > 0 {
				if err := tx.Create(&change.Items).Error; err != nil {
					return fmt.Errorf("insert quote items: %w", err)
				}
			}
		}

		if change.Audit != nil {
			change.Audit.QuoteID = change.QuoteID
			if err := r.auditLog.append(tx, change.Audit); err != nil {
				return fmt.Errorf("insert audit entry: %w", err)
			}
		}
		return nil
	})
}

// GenerateCode returns the next quote number QT-{year}-{4 digits}.
func (r *QuoteRepository) GenerateCode(ctx context.Context) (string, error) {
	return generateCode(ctx, r.db, &entity.Quote{}, "quote_number", "QT")
}

// generateCode finds the highest code of the current year for prefix and returns the next one.
func generateCode(ctx context.Context, db *gorm.DB, model interface{}, column, prefix string) (string, error) {
	year := time.Now().Format("2006")
	head := fmt.Sprintf("%s-%s-", prefix, year)

	var maxCode string
	err := db.WithContext(ctx).
		Model(model).
		Select(fmt.Sprintf("COALESCE(MAX(%s), '')", column)).
		Where(column+" LIKE ?", head+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, head+"%04d", &seq)
	}
	seq++
	return fmt.Sprintf("%s%04d", head, seq), nil
}
