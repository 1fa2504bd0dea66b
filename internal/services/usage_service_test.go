package services

import (
	"autorag-api/internal/models"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsageRepo struct {
	from, to time.Time
	limit    int
	events   []models.UsageEvent
	err      error
}

func (f *fakeUsageRepo) Create(ctx context.Context, event *models.UsageEvent) error {
	f.events = append(f.events, *event)
	return f.err
}

func (f *fakeUsageRepo) GetUserEvents(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.UsageEvent, error) {
	f.limit = limit
	return f.events, f.err
}

func (f *fakeUsageRepo) GetUserSummary(ctx context.Context, userID string, from, to time.Time) (*models.UsageSummary, error) {
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	return &models.UsageSummary{UserID: userID, From: from, To: to, Queries: int64(len(f.events))}, nil
}

func TestGetUsageDefaultsToLast30Days(t *testing.T) {
	repo := &fakeUsageRepo{events: []models.UsageEvent{{UserID: "u1"}}}
	svc := &usageService{repo: repo, now: func() time.Time { return testNow }}

	report, err := svc.GetUsage(context.Background(), "u1", time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.True(t, testNow.Equal(repo.to))
	assert.True(t, testNow.Add(-30*24*time.Hour).Equal(repo.from))
	assert.Equal(t, 100, repo.limit)
	assert.EqualValues(t, 1, report.Summary.Queries)
	assert.Len(t, report.Events, 1)
}

func TestGetUsageRepositoryError(t *testing.T) {
	svc := NewUsageService(&fakeUsageRepo{err: errors.New("db down")})

	_, err := svc.GetUsage(context.Background(), "u1", time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestPostgresSinkWritesThroughRepository(t *testing.T) {
	repo := &fakeUsageRepo{}
	sink := NewPostgresAnalyticsSink(repo)

	require.NoError(t, sink.WriteEvent(context.Background(), models.UsageEvent{UserID: "u1"}))
	require.Len(t, repo.events, 1)
	assert.NoError(t, sink.Close())
}
