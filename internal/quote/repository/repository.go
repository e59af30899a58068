package repository

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a conditional write matched no row: the record changed since it was read.
	ErrConflict = errors.New("record was modified concurrently")
	// ErrDuplicate means an insert hit a unique index.
	ErrDuplicate = errors.New("duplicate key")
)

// Repositories groups the quote repositories.
type Repositories struct {
	Quote    *QuoteRepository
	AuditLog *AuditLogRepository
	Basket   *BasketRepository
	Profile  *ProfileRepository
	Order    *OrderRepository
	Message  *MessageRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	auditLog := NewAuditLogRepository(db)
	return &Repositories{
		Quote:    NewQuoteRepository(db, auditLog),
		AuditLog: auditLog,
		Basket:   NewBasketRepository(db),
		Profile:  NewProfileRepository(db),
		Order:    NewOrderRepository(db),
		Message:  NewMessageRepository(db),
	}
}

func newID() string {
	return uuid.New().String()[:32]
}

// isDuplicateKey recognizes unique violations from all three drivers, translated or not.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}
