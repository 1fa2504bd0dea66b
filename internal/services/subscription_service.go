package services

import (
	"autorag-api/internal/config"
	"autorag-api/internal/logger"
	"autorag-api/internal/models"
	apperrors "autorag-api/internal/pkg/errors"
	"autorag-api/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type SubscriptionService interface {
	Resolve(ctx context.Context, userID string) (*models.Subscription, error)
	Status(ctx context.Context, userID string) (*models.UsageStats, error)
	Create(ctx context.Context, userID string, tier models.Tier) (*models.Subscription, error)
	RecordQuery(ctx context.Context, userID string) (*models.Subscription, error)
	RenewDue(ctx context.Context) (int, error)
}

type subscriptionService struct {
	repo       repository.SubscriptionRepository
	rateRepo   repository.RateLimitRepository
	rateConfig *config.RateLimitConfig
	now        func() time.Time
}

func NewSubscriptionService(
	repo repository.SubscriptionRepository,
	rateRepo repository.RateLimitRepository,
	rateConfig *config.RateLimitConfig,
	now func() time.Time,
) SubscriptionService {
	if now == nil {
		now = time.Now
	}
	return &subscriptionService{
		repo:       repo,
		rateRepo:   rateRepo,
		rateConfig: rateConfig,
		now:        now,
	}
}

// Resolve returns the caller's subscription, synthesising an unsaved basic
// record when none exists. Store failures deny the request.
func (s *subscriptionService) Resolve(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.repo.Get(ctx, userID)
	if err != nil {
		logger.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"step":    "resolve_subscription",
			"error":   err,
		}).Error("Subscription lookup failed")
		return nil, fmt.Errorf("%w: %v", apperrors.ErrNotSubscribed, err)
	}

	if sub == nil {
		return models.NewDefaultSubscription(userID, s.now()), nil
	}

	if !sub.Active() {
		return nil, fmt.Errorf("%w: subscription is %s", apperrors.ErrNotSubscribed, sub.Status)
	}
	return sub, nil
}

func (s *subscriptionService) Status(ctx context.Context, userID string) (*models.UsageStats, error) {
	sub, err := s.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	hourly, err := s.rateRepo.Count(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	resetIn, err := s.rateRepo.TTL(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}

	return &models.UsageStats{
		Tier:              sub.Tier,
		Status:            string(sub.Status),
		UsedQueries:       sub.UsedQueries,
		MonthlyQueryLimit: sub.MonthlyQueryLimit,
		RemainingQueries:  sub.Remaining(),
		HourlyCount:       hourly,
		HourlyLimit:       s.rateConfig.HourlyLimit(sub.Tier),
		HourlyResetIn:     int(resetIn.Seconds()),
		NextBillingDate:   sub.NextBillingDate,
		Persisted:         sub.Persisted,
	}, nil
}

// Create starts a new billing window on the requested tier. Usage already
// consumed in the current window is kept when the tier changes.
func (s *subscriptionService) Create(ctx context.Context, userID string, tier models.Tier) (*models.Subscription, error) {
	if !tier.Valid() {
		return nil, apperrors.InvalidInput(fmt.Errorf("unknown tier %q", tier))
	}

	existing, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}

	now := s.now()
	sub := models.NewDefaultSubscription(userID, now)
	sub.Tier = tier
	sub.MonthlyQueryLimit = config.ParamsFor(tier).MonthlyQueryLimit
	if existing != nil && existing.Active() && !existing.BillingDue(now) {
		sub.UsedQueries = existing.UsedQueries
		sub.LastBillingDate = existing.LastBillingDate
		sub.NextBillingDate = existing.NextBillingDate
	}

	if err := s.repo.Save(ctx, sub); err != nil {
		return nil, err
	}

	logger.LogEvent(logrus.InfoLevel, "Subscription saved", logrus.Fields{
		"user_id": userID,
		"tier":    tier,
	})
	return sub, nil
}

func (s *subscriptionService) RecordQuery(ctx context.Context, userID string) (*models.Subscription, error) {
	return s.repo.IncrementUsage(ctx, userID, s.now())
}

// RenewDue resets usage on every subscription whose billing date passed.
// Each listed record is renewed against its current stored state, so tier
// changes and queries that land after listing are kept.
func (s *subscriptionService) RenewDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	renewed := 0
	for _, sub := range due {
		_, written, err := s.repo.RenewIfDue(ctx, sub.UserID, now)
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.LogEvent(logrus.WarnLevel, "Subscription removed before renewal", logrus.Fields{
				"user_id": sub.UserID,
			})
			continue
		}
		if err != nil {
			return renewed, err
		}
		if written {
			renewed++
		}
	}
	return renewed, nil
}
