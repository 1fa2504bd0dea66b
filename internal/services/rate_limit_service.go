package services

import (
	"autorag-api/internal/config"
	"autorag-api/internal/logger"
	"autorag-api/internal/models"
	apperrors "autorag-api/internal/pkg/errors"
	"autorag-api/internal/repository"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

type RateLimitService interface {
	Check(ctx context.Context, userID string, tier models.Tier) error
	Record(ctx context.Context, userID string) error
}

type rateLimitService struct {
	repo   repository.RateLimitRepository
	config *config.RateLimitConfig
}

func NewRateLimitService(repo repository.RateLimitRepository, cfg *config.RateLimitConfig) RateLimitService {
	return &rateLimitService{
		repo:   repo,
		config: cfg,
	}
}

// Check compares the hourly counter with the tier ceiling. An unreadable
// counter denies the request with ErrStoreUnavailable.
func (s *rateLimitService) Check(ctx context.Context, userID string, tier models.Tier) error {
	limit := s.config.HourlyLimit(tier)
	if limit < 0 {
		return nil
	}

	count, err := s.repo.Count(ctx, userID)
	if err != nil {
		logger.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"step":    "rate_limit_check",
			"error":   err,
		}).Error("Rate limit counter unavailable")
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}

	if count >= limit {
		return &apperrors.RateLimitedError{
			Limit:      limit,
			Count:      count,
			RetryAfter: s.config.RetryAfter,
			ResetIn:    s.resetIn(ctx, userID),
		}
	}
	return nil
}

// resetIn reports the seconds left in the open window, falling back to a
// full window when the TTL cannot be read.
func (s *rateLimitService) resetIn(ctx context.Context, userID string) int {
	ttl, err := s.repo.TTL(ctx, userID)
	if err != nil || ttl <= 0 {
		return int(s.config.Window.Seconds())
	}
	return int(ttl.Seconds())
}

func (s *rateLimitService) Record(ctx context.Context, userID string) error {
	_, err := s.repo.Increment(ctx, userID, s.config.Window)
	return err
}
