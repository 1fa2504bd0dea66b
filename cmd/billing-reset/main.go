package main

import (
	"autorag-api/internal/config"
	"autorag-api/internal/logger"
	"autorag-api/internal/repository"
	"autorag-api/internal/services"
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// billing-reset rolls every subscription whose billing date has passed into
// a fresh 30 day window. Run it from a scheduler.
func main() {
	if err := godotenv.Load(); err != nil {
		logger.Logger.Warnf("Error loading .env file: %v", err)
	}

	cfg := config.Load()
	if err := logger.Configure(cfg.Server.LogLevel, cfg.Server.LogFile); err != nil {
		logger.Logger.Fatalf("Failed to configure logger: %v", err)
	}

	redisClient, err := services.NewRedisClient(cfg.Cache)
	if err != nil {
		logger.Logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	subscriptionService := services.NewSubscriptionService(
		repository.NewSubscriptionRepository(redisClient),
		repository.NewRateLimitRepository(redisClient),
		cfg.RateLimit,
		time.Now,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	renewed, err := subscriptionService.RenewDue(ctx)
	if err != nil {
		logger.Logger.WithFields(logrus.Fields{"renewed": renewed, "error": err}).Fatal("Billing reset failed")
	}
	logger.LogEvent(logrus.InfoLevel, "Billing reset complete", logrus.Fields{"renewed": renewed})
}
