package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/permission"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const profileCachePrefix = "quote:buyer-profile:"

// BuyerClass is the live classification of a buyer used for permission checks.
type BuyerClass struct {
	UserType   permission.UserType `json:"user_type"`
	IsVerified bool                `json:"is_verified"`
}

// ClassifyProfile maps a stored profile to a buyer class. A missing profile is an individual.
func ClassifyProfile(p *entity.BuyerProfile) BuyerClass {
	if p == nil || p.AccountType != entity.AccountBusiness {
		return BuyerClass{UserType: permission.UserTypeIndividual}
	}
	if p.IsVerified() {
		return BuyerClass{UserType: permission.UserTypeVerified, IsVerified: true}
	}
	return BuyerClass{UserType: permission.UserTypeBusiness}
}

// ProfileService resolves buyer classes, cached in redis when available.
type ProfileService struct {
	repo   *repository.ProfileRepository
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewProfileService(repo *repository.ProfileRepository, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{repo: repo, rdb: rdb, ttl: ttl, logger: logger}
}

// Classify returns the current class of a buyer. Cache failures fall back to the database.
func (s *ProfileService) Classify(ctx context.Context, userID string) (BuyerClass, error) {
	if cls, ok := s.cached(ctx, userID); ok {
		return cls, nil
	}

	p, err := s.repo.FindByUser(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return BuyerClass{}, persistenceErr("load buyer profile", err)
	}
	cls := ClassifyProfile(p)
	s.store(ctx, userID, cls)
	return cls, nil
}

// GetProfile returns the stored profile, or a default individual profile.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*entity.BuyerProfile, error) {
	p, err := s.repo.FindByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &entity.BuyerProfile{
			ClerkUserID:        userID,
			AccountType:        entity.AccountIndividual,
			VerificationStatus: entity.VerificationUnverified,
		}, nil
	}
	if err != nil {
		return nil, persistenceErr("load buyer profile", err)
	}
	return p, nil
}

// SetVerificationRequest changes a buyer's business verification.
type SetVerificationRequest struct {
	Status      string `json:"status" binding:"required"`
	CompanyName string `json:"company_name"`
	GSTIN       string `json:"gstin"`
	Notes       string `json:"notes"`
}

// SetVerification updates verification by an admin and drops the cached class.
func (s *ProfileService) SetVerification(ctx context.Context, actor Actor, userID string, req *SetVerificationRequest) (*entity.BuyerProfile, error) {
	if !actor.IsAdmin {
		return nil, &AuthorizationError{Action: "verify", Reason: "only admins can change buyer verification"}
	}
	switch req.Status {
	case entity.VerificationUnverified, entity.VerificationPending, entity.VerificationVerified, entity.VerificationRejected:
	default:
		return nil, validationErr("status", fmt.Sprintf("unknown verification status '%s'", req.Status))
	}

	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p.AccountType = entity.AccountBusiness
	p.VerificationStatus = req.Status
	p.VerificationNotes = strings.TrimSpace(req.Notes)
	if req.CompanyName != "" {
		p.CompanyName = req.CompanyName
	}
	if req.GSTIN != "" {
		p.GSTIN = req.GSTIN
	}
	if req.Status == entity.VerificationVerified {
		p.VerifiedAt = &now
		p.VerifiedBy = &actor.UserID
	} else {
		p.VerifiedAt = nil
		p.VerifiedBy = nil
	}
	p.UpdatedAt = now

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, persistenceErr("save buyer profile", err)
	}
	s.Invalidate(ctx, userID)

	s.logger.Info("buyer verification changed",
		zap.String("buyer_id", userID),
		zap.String("status", req.Status),
		zap.String("admin_id", actor.UserID))
	return p, nil
}

// Invalidate drops the cached class of a buyer.
func (s *ProfileService) Invalidate(ctx context.Context, userID string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, profileCachePrefix+userID).Err(); err != nil {
		s.logger.Warn("drop cached buyer profile", zap.String("buyer_id", userID), zap.Error(err))
	}
}

func (s *ProfileService) cached(ctx context.Context, userID string) (BuyerClass, bool) {
	if s.rdb == nil {
		return BuyerClass{}, false
	}
	raw, err := s.rdb.Get(ctx, profileCachePrefix+userID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("read cached buyer profile", zap.String("buyer_id", userID), zap.Error(err))
		}
		return BuyerClass{}, false
	}
	var cls BuyerClass
	if err := json.Unmarshal(raw, &cls); err != nil || !cls.UserType.Valid() {
		return BuyerClass{}, false
	}
	return cls, true
}

func (s *ProfileService) store(ctx context.Context, userID string, cls BuyerClass) {
	if s.rdb == nil || s.ttl <= 0 {
		return
	}
	raw, _ := json.Marshal(cls)
	if err := s.rdb.Set(ctx, profileCachePrefix+userID, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("cache buyer profile", zap.String("buyer_id", userID), zap.Error(err))
	}
}
