package services

import (
	"autorag-api/internal/models"
	"autorag-api/internal/repository"
	"context"
	"time"
)

const (
	defaultUsageWindow = 30 * 24 * time.Hour
	maxUsageEvents     = 100
)

type UsageService interface {
	GetUsage(ctx context.Context, userID string, from, to time.Time) (*UsageReport, error)
}

type UsageReport struct {
	Summary *models.UsageSummary `json:"summary"`
	Events  []models.UsageEvent  `json:"events"`
}

type usageService struct {
	repo repository.UsageEventRepository
	now  func() time.Time
}

func NewUsageService(repo repository.UsageEventRepository) UsageService {
	return &usageService{
		repo: repo,
		now:  time.Now,
	}
}

// GetUsage defaults to the last 30 days when the range is open.
func (s *usageService) GetUsage(ctx context.Context, userID string, from, to time.Time) (*UsageReport, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-defaultUsageWindow)
	}

	summary, err := s.repo.GetUserSummary(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	events, err := s.repo.GetUserEvents(ctx, userID, from, to, maxUsageEvents)
	if err != nil {
		return nil, err
	}

	return &UsageReport{
		Summary: summary,
		Events:  events,
	}, nil
}
