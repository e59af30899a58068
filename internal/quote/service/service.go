package service

import (
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options configures the quote services.
type Options struct {
	ValidityDays    int
	Currency        string
	ProfileCacheTTL time.Duration
	SweepBatchSize  int
}

// Services groups the quote services.
type Services struct {
	Quote   *QuoteService
	Basket  *BasketService
	Profile *ProfileService
	Order   *OrderService
	Expiry  *ExpiryService
	Export  *ExportService
}

// NewServices wires the services. rdb may be nil; caching and sweep locking are then skipped.
func NewServices(repos *repository.Repositories, rdb *redis.Client, opts Options, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}

	quote := NewQuoteService(repos.Quote, repos.AuditLog, repos.Message, logger.Named("quote"))
	quote.SetValidityDays(opts.ValidityDays)
	quote.SetCurrency(opts.Currency)

	order := NewOrderService(repos.Order)
	quote.SetOrderCreator(order)

	return &Services{
		Quote:   quote,
		Basket:  NewBasketService(repos.Basket, quote, logger.Named("basket")),
		Profile: NewProfileService(repos.Profile, rdb, opts.ProfileCacheTTL, logger.Named("profile")),
		Order:   order,
		Expiry:  NewExpiryService(repos.Quote, quote, rdb, opts.SweepBatchSize, logger.Named("expiry")),
		Export:  NewExportService(repos.Quote, repos.AuditLog),
	}
}
