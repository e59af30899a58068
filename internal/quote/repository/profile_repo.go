package repository

import (
	"context"
	"errors"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository persists buyer profiles.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) FindByUser(ctx context.Context, clerkUserID string) (*entity.BuyerProfile, error) {
	var p entity.BuyerProfile
	err := r.db.WithContext(ctx).Where("clerk_user_id = ?", clerkUserID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Save inserts or fully overwrites a profile.
func (r *ProfileRepository) Save(ctx context.Context, p *entity.BuyerProfile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "clerk_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"account_type", "company_name", "gstin", "verification_status", "verified_at", "verified_by", "verification_notes", "updated_at"}),
		}).
		Create(p).Error
}
