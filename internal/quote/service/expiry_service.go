package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const expirySweepLockKey = "quote:expiry-sweep:lock"

// releaseLockScript deletes the lock only while it still holds our token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrSweepLocked is returned when another sweep holds the lock.
var ErrSweepLocked = errors.New("another expiry sweep is running")

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	Checked  int `json:"checked"`
	Expired  int `json:"expired"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Warnings int `json:"warnings"`

	// orders created for converted quotes that were missing one
	OrdersRepaired int `json:"orders_repaired"`
	OrdersFailed   int `json:"orders_failed"`
}

// ExpiryService expires approved quotes whose validity ended and creates orders that were
// missed at conversion. It goes through QuoteService like any other caller.
type ExpiryService struct {
	quoteRepo *repository.QuoteRepository
	quotes    *QuoteService
	rdb       *redis.Client
	batchSize int
	lockTTL   time.Duration
	logger    *zap.Logger
}

func NewExpiryService(quoteRepo *repository.QuoteRepository, quotes *QuoteService, rdb *redis.Client, batchSize int, logger *zap.Logger) *ExpiryService {
	if batchSize <= 0 {
		batchSize = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpiryService{
		quoteRepo: quoteRepo,
		quotes:    quotes,
		rdb:       rdb,
		batchSize: batchSize,
		lockTTL:   10 * time.Minute,
		logger:    logger,
	}
}

// Sweep expires one batch of overdue quotes, then repairs one batch of converted quotes
// without an order. With redis configured, overlapping sweeps return ErrSweepLocked.
func (s *ExpiryService) Sweep(ctx context.Context) (*SweepResult, error) {
	release, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	due, err := s.quoteRepo.FindExpirable(ctx, s.quotes.now(), s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("find expirable quotes: %w", err)
	}

	result := &SweepResult{Checked: len(due)}
	actor := SystemActor()
	for _, q := range due {
		res, err := s.quotes.MarkExpired(ctx, actor, q.ID)
		var conflict *ConflictError
		switch {
		case err == nil:
			result.Expired++
			if res.Warning != "" {
				result.Warnings++
			}
		case errors.As(err, &conflict), IsTransitionError(err):
			// converted or expired by someone else since the query
			result.Skipped++
		default:
			result.Failed++
			s.logger.Error("expire quote", zap.String("quote_id", q.ID), zap.Error(err))
		}
	}

	if err := s.repairOrders(ctx, actor, result); err != nil {
		return nil, err
	}

	s.logger.Info("expiry sweep finished",
		zap.Int("checked", result.Checked),
		zap.Int("expired", result.Expired),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("orders_repaired", result.OrdersRepaired),
		zap.Int("orders_failed", result.OrdersFailed))
	return result, nil
}

func (s *ExpiryService) repairOrders(ctx context.Context, actor Actor, result *SweepResult) error {
	orphans, err := s.quoteRepo.FindConvertedWithoutOrder(ctx, s.batchSize)
	if err != nil {
		return fmt.Errorf("find converted quotes without order: %w", err)
	}
	for _, q := range orphans {
		if _, err := s.quotes.EnsureOrder(ctx, actor, q.ID); err != nil {
			result.OrdersFailed++
			s.logger.Error("repair order", zap.String("quote_id", q.ID), zap.Error(err))
			continue
		}
		result.OrdersRepaired++
	}
	return nil
}

func (s *ExpiryService) lock(ctx context.Context) (func(), error) {
	if s.rdb == nil {
		return func() {}, nil
	}
	token := uuid.New().String()
	ok, err := s.rdb.SetNX(ctx, expirySweepLockKey, token, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, ErrSweepLocked
	}
	return func() {
		if err := releaseLockScript.Run(context.Background(), s.rdb, []string{expirySweepLockKey}, token).Err(); err != nil {
			s.logger.Warn("release sweep lock", zap.Error(err))
		}
	}, nil
}
