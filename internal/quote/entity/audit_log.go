package entity

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrAuditImmutable is returned when anything tries to change a written audit row.
var ErrAuditImmutable = errors.New("quote audit log entries are append-only")

// Audit action types.
const (
	AuditStatusChanged            = "status_changed"
	AuditPricingUpdated           = "pricing_updated"
	AuditPricingVisibilityChanged = "pricing_visibility_changed"
	AuditApproved                 = "approved"
	AuditRejected                 = "rejected"
	AuditConverted                = "converted"
	AuditExpired                  = "expired"
	AuditItemsUpdated             = "items_updated"
	AuditCreated                  = "created"
)

// QuoteAuditLog is one append-only history row. Rows are inserted in the same transaction
// as the quote change they describe and are never updated or deleted.
type QuoteAuditLog struct {
	ID         string   `json:"id" gorm:"primaryKey;size:32"`
	QuoteID    string   `json:"quote_id" gorm:"size:32;not null;index:idx_quote_audit_quote"`
	ActionType string   `json:"action_type" gorm:"size:32;not null"`
	OldStatus  string   `json:"old_status" gorm:"size:16"`
	NewStatus  string   `json:"new_status" gorm:"size:16"`
	OldTotal   *float64 `json:"old_total"`
	NewTotal   *float64 `json:"new_total"`

	PricingChanged bool `json:"pricing_changed" gorm:"not null;default:false"`

	// Admin identity is empty for buyer and system actions.
	AdminClerkID *string `json:"admin_clerk_id" gorm:"size:64"`
	AdminName    *string `json:"admin_name" gorm:"size:128"`
	AdminRole    *string `json:"admin_role" gorm:"size:32"`
	ActorID      string  `json:"actor_id" gorm:"size:64;not null"`

	Notes     string    `json:"notes" gorm:"type:text"`
	Metadata  JSONB     `json:"metadata" gorm:"type:json"`
	Seq       int       `json:"seq" gorm:"not null;index:idx_quote_audit_quote"`
	CreatedAt time.Time `json:"created_at"`
}

func (QuoteAuditLog) TableName() string {
	return "quote_audit_logs"
}

// Redacted strips totals for buyers who may not see pricing.
func (l QuoteAuditLog) Redacted() QuoteAuditLog {
	l.OldTotal = nil
	l.NewTotal = nil
	return l
}

func (QuoteAuditLog) BeforeUpdate(*gorm.DB) error {
	return ErrAuditImmutable
}

func (QuoteAuditLog) BeforeDelete(*gorm.DB) error {
	return ErrAuditImmutable
}
