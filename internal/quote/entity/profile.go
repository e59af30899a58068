package entity

import "time"

// Account types.
const (
	AccountIndividual = "individual"
	AccountBusiness   = "business"
)

// Verification states of a business account.
const (
	VerificationUnverified = "unverified"
	VerificationPending    = "pending"
	VerificationVerified   = "verified"
	VerificationRejected   = "rejected"
)

// BuyerProfile holds the buyer classification the permission checks are evaluated against.
type BuyerProfile struct {
	ClerkUserID        string     `json:"clerk_user_id" gorm:"primaryKey;size:64"`
	AccountType        string     `json:"account_type" gorm:"size:16;not null;default:individual"`
	CompanyName        string     `json:"company_name" gorm:"size:256"`
	GSTIN              string     `json:"gstin" gorm:"size:32"`
	VerificationStatus string     `json:"verification_status" gorm:"size:16;not null;default:unverified"`
	VerifiedAt         *time.Time `json:"verified_at"`
	VerifiedBy         *string    `json:"verified_by" gorm:"size:64"`
	VerificationNotes  string     `json:"verification_notes" gorm:"type:text"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (BuyerProfile) TableName() string {
	return "buyer_profiles"
}

// IsVerified reports whether a business account passed verification.
func (p *BuyerProfile) IsVerified() bool {
	return p.AccountType == AccountBusiness && p.VerificationStatus == VerificationVerified
}
