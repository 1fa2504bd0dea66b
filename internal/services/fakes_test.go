package services

import (
	"autorag-api/internal/config"
	"autorag-api/internal/models"
	"autorag-api/internal/repository"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testNow = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

func testRateConfig() *config.RateLimitConfig {
	return &config.RateLimitConfig{
		Limits: map[models.Tier]int{
			models.TierBasic:       10,
			models.TierPremium:     100,
			models.TierEnterprise:  1000,
			models.TierSpecialized: 100,
		},
		Window:     config.RateLimitWindow,
		RetryAfter: config.RetryAfterSeconds,
	}
}

type testStore struct {
	mr       *miniredis.Miniredis
	client   *redis.Client
	subs     repository.SubscriptionRepository
	rates    repository.RateLimitRepository
	rateConf *config.RateLimitConfig
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &testStore{
		mr:       mr,
		client:   client,
		subs:     repository.NewSubscriptionRepository(client, repository.WithMaxRetries(100)),
		rates:    repository.NewRateLimitRepository(client),
		rateConf: testRateConfig(),
	}
}

func (s *testStore) subscriptionService() SubscriptionService {
	return NewSubscriptionService(s.subs, s.rates, s.rateConf, func() time.Time { return testNow })
}

func (s *testStore) rateLimitService() RateLimitService {
	return NewRateLimitService(s.rates, s.rateConf)
}

func (s *testStore) seed(t *testing.T, userID string, tier models.Tier, limit, used int) {
	t.Helper()
	sub := models.NewDefaultSubscription(userID, testNow.Add(-24*time.Hour))
	sub.Tier = tier
	sub.MonthlyQueryLimit = limit
	sub.UsedQueries = used
	if err := s.subs.Save(context.Background(), sub); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSearcher struct {
	mu       sync.Mutex
	passages []models.Passage
	err      error
	opts     []SearchOptions
}

func (f *fakeSearcher) Query(ctx context.Context, vector []float32, opts SearchOptions) ([]models.Passage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.passages, nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	answer   string
	err      error
	requests []GenerateRequest
}

func (f *fakeGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeAnalytics struct {
	mu     sync.Mutex
	events []models.UsageEvent
	err    error
}

func (f *fakeAnalytics) WriteEvent(ctx context.Context, event models.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakeAnalytics) Close() error { return nil }

func (f *fakeAnalytics) Events() []models.UsageEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.UsageEvent(nil), f.events...)
}

type fakeWeather struct {
	data *models.WeatherData
	err  error
}

func (f *fakeWeather) Fetch(ctx context.Context, lat, lon float64) (*models.WeatherData, error) {
	return f.data, f.err
}
