package repository

import (
	"autorag-api/internal/models"
	"context"
	"time"

	"gorm.io/gorm"
)

type UsageEventRepository interface {
	Create(ctx context.Context, event *models.UsageEvent) error
	GetUserEvents(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.UsageEvent, error)
	GetUserSummary(ctx context.Context, userID string, from, to time.Time) (*models.UsageSummary, error)
}

type usageEventRepository struct {
	db *gorm.DB
}

func NewUsageEventRepository(db *gorm.DB) UsageEventRepository {
	return &usageEventRepository{db: db}
}

func (r *usageEventRepository) Create(ctx context.Context, event *models.UsageEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *usageEventRepository) GetUserEvents(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.UsageEvent, error) {
	var events []models.UsageEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND timestamp BETWEEN ? AND ?", userID, from, to).
		Order("timestamp desc").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *usageEventRepository) GetUserSummary(ctx context.Context, userID string, from, to time.Time) (*models.UsageSummary, error) {
	var row struct {
		Queries           int64
		TotalCost         float64
		AverageConfidence float64
		DegradedQueries   int64
	}

	err := r.db.WithContext(ctx).Model(&models.UsageEvent{}).
		Select(`COUNT(*) AS queries,
			COALESCE(SUM(cost), 0) AS total_cost,
			COALESCE(AVG(confidence), 0) AS average_confidence,
			COUNT(*) FILTER (WHERE degraded) AS degraded_queries`).
		Where("user_id = ? AND timestamp BETWEEN ? AND ?", userID, from, to).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	return &models.UsageSummary{
		UserID:            userID,
		From:              from,
		To:                to,
		Queries:           row.Queries,
		TotalCost:         row.TotalCost,
		AverageConfidence: row.AverageConfidence,
		DegradedQueries:   row.DegradedQueries,
	}, nil
}
