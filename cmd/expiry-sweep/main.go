// Command expiry-sweep expires approved quotes whose validity has ended and creates orders
// missed at conversion. It is meant to run from cron; overlapping runs skip while another
// one holds the redis lock.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/config"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/database"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/repository"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/service"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/shared/notify"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	services := service.NewServices(repository.NewRepositories(db), rdb, service.Options{
		ValidityDays:   cfg.Quote.ValidityDays,
		Currency:       cfg.Quote.Currency,
		SweepBatchSize: cfg.Quote.SweepBatchSize,
	}, logger)
	services.Quote.SetNotifier(service.NewWebhookNotifier(
		notify.NewWebhookClient(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret, cfg.Notify.Timeout),
	))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := services.Expiry.Sweep(ctx)
	if errors.Is(err, service.ErrSweepLocked) {
		logger.Info("Another sweep is running, skipping")
		return
	}
	if err != nil {
		logger.Error("Expiry sweep failed", zap.Error(err))
		os.Exit(1)
	}
	if res.Failed > 0 || res.OrdersFailed > 0 {
		os.Exit(2)
	}
}
