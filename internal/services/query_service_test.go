package services

import (
	"autorag-api/internal/config"
	"autorag-api/internal/models"
	apperrors "autorag-api/internal/pkg/errors"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateFixture struct {
	store     *testStore
	embedder  *fakeEmbedder
	searcher  *fakeSearcher
	generator *fakeGenerator
	analytics *fakeAnalytics
	gate      *QueryService
}

func newGateFixture(t *testing.T, opts ...QueryServiceOption) *gateFixture {
	t.Helper()
	f := &gateFixture{
		store:    newTestStore(t),
		embedder: &fakeEmbedder{},
		searcher: &fakeSearcher{passages: []models.Passage{
			{ID: "doc-1", Source: "ICAR rice advisory", Content: "Transplant at 20x15 cm spacing.", Score: 0.8},
			{ID: "doc-2", Title: "Soil health card", Content: "Apply 120 kg N per hectare.", Score: 0.6},
		}},
		generator: &fakeGenerator{answer: "Use 20x15 cm spacing and split nitrogen doses."},
		analytics: &fakeAnalytics{},
	}
	opts = append([]QueryServiceOption{WithClock(func() time.Time { return testNow })}, opts...)
	f.gate = NewQueryService(
		f.store.subscriptionService(),
		f.store.rateLimitService(),
		f.embedder,
		f.searcher,
		f.generator,
		f.analytics,
		opts...,
	)
	return f
}

func (f *gateFixture) usedQueries(t *testing.T, userID string) int {
	t.Helper()
	sub, err := f.store.subs.Get(context.Background(), userID)
	require.NoError(t, err)
	if sub == nil {
		return 0
	}
	return sub.UsedQueries
}

func (f *gateFixture) hourlyCount(t *testing.T, userID string) int {
	t.Helper()
	count, err := f.store.rates.Count(context.Background(), userID)
	require.NoError(t, err)
	return count
}

func TestHandleQueryBasicUser(t *testing.T) {
	f := newGateFixture(t)

	resp, err := f.gate.HandleQuery(context.Background(), "u1", models.QueryRequest{Query: "What spacing for paddy?"})
	require.NoError(t, err)
	f.gate.Wait()

	assert.Equal(t, models.TierBasic, resp.Tier)
	assert.Equal(t, 0.0, resp.Cost)
	assert.Equal(t, 49, resp.UsageRemaining)
	assert.Equal(t, "Use 20x15 cm spacing and split nitrogen doses.", resp.Answer)
	assert.Equal(t, []string{"ICAR rice advisory", "Soil health card"}, resp.Sources)
	assert.InDelta(t, 0.7, resp.Confidence, 1e-9)
	assert.Nil(t, resp.EnhancedFeatures)
	assert.Empty(t, resp.Error)

	assert.Equal(t, 1, f.usedQueries(t, "u1"))
	assert.Equal(t, 1, f.hourlyCount(t, "u1"))

	events := f.analytics.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].UserID)
	assert.Equal(t, models.TierBasic, events[0].Tier)

	require.Len(t, f.searcher.opts, 1)
	assert.Equal(t, 3, f.searcher.opts[0].TopK)
}

func TestHandleQueryQuotaExceeded(t *testing.T) {
	f := newGateFixture(t)
	f.store.seed(t, "u2", models.TierEnterprise, 1000, 1000)

	resp, err := f.gate.HandleQuery(context.Background(), "u2", models.QueryRequest{Query: "Forecast demand"})
	f.gate.Wait()
	assert.Nil(t, resp)

	var quotaErr *apperrors.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 1000, quotaErr.Limit)
	assert.Equal(t, 1000, quotaErr.Used)
	assert.InDelta(t, 0.02, quotaErr.Cost, 1e-9)

	assert.Zero(t, f.embedder.Calls())
	assert.Zero(t, f.generator.Calls())
	assert.Empty(t, f.analytics.Events())
	assert.Equal(t, 1000, f.usedQueries(t, "u2"))
}

func TestHandleQueryRateLimited(t *testing.T) {
	f := newGateFixture(t)
	f.store.seed(t, "u3", models.TierPremium, 1000, 7)
	require.NoError(t, f.store.mr.Set("rate_limit:u3", "100"))

	resp, err := f.gate.HandleQuery(context.Background(), "u3", models.QueryRequest{Query: "Best urea price?"})
	f.gate.Wait()
	assert.Nil(t, resp)

	var rateErr *apperrors.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 100, rateErr.Limit)
	assert.Equal(t, 3600, rateErr.RetryAfter)

	assert.Equal(t, 7, f.usedQueries(t, "u3"))
	assert.Equal(t, 100, f.hourlyCount(t, "u3"))
	assert.Zero(t, f.embedder.Calls())
}

func TestHandleQueryRateCounterUnreadable(t *testing.T) {
	f := newGateFixture(t)
	require.NoError(t, f.store.mr.Set("rate_limit:u4", "garbage"))

	_, err := f.gate.HandleQuery(context.Background(), "u4", models.QueryRequest{Query: "Irrigation schedule"})
	f.gate.Wait()

	require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.Zero(t, f.embedder.Calls())
}

func TestHandleQueryInactiveSubscription(t *testing.T) {
	f := newGateFixture(t)
	sub := models.NewDefaultSubscription("u5", testNow)
	sub.Status = models.StatusExpired
	require.NoError(t, f.store.subs.Save(context.Background(), sub))

	_, err := f.gate.HandleQuery(context.Background(), "u5", models.QueryRequest{Query: "Pest control"})
	f.gate.Wait()

	require.ErrorIs(t, err, apperrors.ErrNotSubscribed)
}

func TestHandleQuerySubscriptionStoreDown(t *testing.T) {
	f := newGateFixture(t)
	require.NoError(t, f.store.mr.Set("subscription:u6", "{broken"))

	_, err := f.gate.HandleQuery(context.Background(), "u6", models.QueryRequest{Query: "Pest control"})
	f.gate.Wait()

	require.ErrorIs(t, err, apperrors.ErrNotSubscribed)
	assert.Zero(t, f.embedder.Calls())
}

func TestHandleQueryInvalidRequest(t *testing.T) {
	f := newGateFixture(t)

	_, err := f.gate.HandleQuery(context.Background(), "u1", models.QueryRequest{Query: "   "})
	f.gate.Wait()

	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, f.embedder.Calls())
	assert.Zero(t, f.hourlyCount(t, "u1"))
}

func TestHandleQueryDegradedAnswerStillMetered(t *testing.T) {
	f := newGateFixture(t)
	f.generator.err = errors.New("model overloaded")

	resp, err := f.gate.HandleQuery(context.Background(), "u1", models.QueryRequest{Query: "Soil pH fix?"})
	require.NoError(t, err)
	f.gate.Wait()

	assert.True(t, resp.Degraded())
	assert.Equal(t, models.DegradedAnswer, resp.Answer)
	assert.Equal(t, []string{}, resp.Sources)
	assert.Zero(t, resp.Confidence)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, models.TierBasic, resp.Tier)
	assert.Equal(t, 49, resp.UsageRemaining)

	assert.Equal(t, 1, f.usedQueries(t, "u1"))
	assert.Equal(t, 1, f.hourlyCount(t, "u1"))
	require.Len(t, f.analytics.Events(), 1)
	assert.True(t, f.analytics.Events()[0].Degraded)
}

func TestHandleQuerySearchFailureDegrades(t *testing.T) {
	f := newGateFixture(t)
	f.searcher.err = errors.New("index missing")

	resp, err := f.gate.HandleQuery(context.Background(), "u1", models.QueryRequest{Query: "Seed rate?"})
	require.NoError(t, err)
	f.gate.Wait()

	assert.True(t, resp.Degraded())
	assert.Zero(t, f.generator.Calls())
}

func TestHandleQuerySequentialCallsCountExactly(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	first, err := f.gate.HandleQuery(ctx, "u1", models.QueryRequest{Query: "first"})
	require.NoError(t, err)
	second, err := f.gate.HandleQuery(ctx, "u1", models.QueryRequest{Query: "second"})
	require.NoError(t, err)
	f.gate.Wait()

	assert.Equal(t, 49, first.UsageRemaining)
	assert.Equal(t, 48, second.UsageRemaining)
	assert.Equal(t, 2, f.usedQueries(t, "u1"))
	assert.Equal(t, 2, f.hourlyCount(t, "u1"))
}

func TestHandleQueryConfidenceClamped(t *testing.T) {
	f := newGateFixture(t)
	f.store.seed(t, "ent", models.TierEnterprise, 10000, 0)
	f.searcher.passages = []models.Passage{{ID: "a", Content: "x", Score: 0.95}}

	resp, err := f.gate.HandleQuery(context.Background(), "ent", models.QueryRequest{Query: "Yield outlook"})
	require.NoError(t, err)
	f.gate.Wait()

	assert.Equal(t, 1.0, resp.Confidence)
}

func TestHandleQueryPremiumEnrichment(t *testing.T) {
	f := newGateFixture(t)
	kv := NewRedisKVStore(f.store.client)
	quotes := `[{"commodity":"paddy","market":"Thanjavur","price":2183,"unit":"quintal","currency":"INR"}]`
	require.NoError(t, kv.Put(context.Background(), "market:crops", quotes, 0))

	f.gate.market = NewMarketService(kv)
	f.gate.weather = &fakeWeather{data: &models.WeatherData{TemperatureC: 31.5, Humidity: 70, Description: "haze"}}
	f.store.seed(t, "prem", models.TierPremium, 1000, 10)

	resp, err := f.gate.HandleQuery(context.Background(), "prem", models.QueryRequest{
		Query:               "When to harvest paddy?",
		DomainFocus:         []string{"Crops"},
		ResponseDetailLevel: 3,
		RealTimeData:        true,
		LocationContext:     json.RawMessage(`{"lat":10.78,"lon":79.13}`),
	})
	require.NoError(t, err)
	f.gate.Wait()

	assert.Equal(t, models.TierPremium, resp.Tier)
	assert.InDelta(t, 0.15, resp.Cost, 1e-9)
	assert.Equal(t, 989, resp.UsageRemaining)

	require.NotNil(t, resp.EnhancedFeatures)
	require.Len(t, resp.EnhancedFeatures.MarketData, 1)
	assert.Equal(t, "paddy", resp.EnhancedFeatures.MarketData[0].Commodity)
	require.NotNil(t, resp.EnhancedFeatures.WeatherData)
	assert.Equal(t, "haze", resp.EnhancedFeatures.WeatherData.Description)
	assert.False(t, resp.EnhancedFeatures.PriorityProcessing)
	assert.False(t, resp.EnhancedFeatures.RealTimeUpdates)

	require.Len(t, f.searcher.opts, 1)
	assert.Equal(t, map[string][]string{"domain": {"crops"}}, f.searcher.opts[0].Filter)
	assert.Equal(t, 8, f.searcher.opts[0].TopK)
}

func TestHandleQueryEnrichmentFailureIsNotFatal(t *testing.T) {
	f := newGateFixture(t, WithWeatherService(&fakeWeather{err: errors.New("timeout")}))
	f.store.seed(t, "prem", models.TierPremium, 1000, 0)

	resp, err := f.gate.HandleQuery(context.Background(), "prem", models.QueryRequest{
		Query:           "Will it rain?",
		LocationContext: json.RawMessage(`{"latitude":10.78,"longitude":79.13}`),
	})
	require.NoError(t, err)
	f.gate.Wait()

	assert.False(t, resp.Degraded())
	assert.Nil(t, resp.EnhancedFeatures)
}

func TestHandleQueryEnterprisePriority(t *testing.T) {
	f := newGateFixture(t, WithModels(map[models.Tier]string{
		models.TierBasic:      "small-model",
		models.TierEnterprise: "large-model",
	}))
	f.store.seed(t, "ent", models.TierEnterprise, 10000, 0)

	resp, err := f.gate.HandleQuery(context.Background(), "ent", models.QueryRequest{
		Query:        "Optimise fertiliser plan",
		RealTimeData: true,
	})
	require.NoError(t, err)
	f.gate.Wait()

	require.NotNil(t, resp.EnhancedFeatures)
	assert.True(t, resp.EnhancedFeatures.PriorityProcessing)
	assert.True(t, resp.EnhancedFeatures.RealTimeUpdates)

	require.Equal(t, 1, f.generator.Calls())
	req := f.generator.requests[0]
	assert.Equal(t, "large-model", req.Model)
	assert.Equal(t, 1024, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "[1] Transplant at 20x15 cm spacing.")
}

func TestHandleQueryModelFallsBackToBasic(t *testing.T) {
	f := newGateFixture(t, WithModels(map[models.Tier]string{models.TierBasic: "small-model"}))
	f.store.seed(t, "spec", models.TierSpecialized, 5000, 0)

	_, err := f.gate.HandleQuery(context.Background(), "spec", models.QueryRequest{Query: "Disease ID"})
	require.NoError(t, err)
	f.gate.Wait()

	require.Equal(t, 1, f.generator.Calls())
	assert.Equal(t, "small-model", f.generator.requests[0].Model)
}

func TestHandleQueryAnalyticsFailureIgnored(t *testing.T) {
	f := newGateFixture(t)
	f.analytics.err = errors.New("sink down")

	resp, err := f.gate.HandleQuery(context.Background(), "u1", models.QueryRequest{Query: "Mulching?"})
	require.NoError(t, err)
	f.gate.Wait()

	assert.False(t, resp.Degraded())
	assert.Equal(t, 1, f.hourlyCount(t, "u1"))
}

func TestSourcesOfDeduplicatesAndCaps(t *testing.T) {
	passages := []models.Passage{
		{ID: "1", Source: "A"},
		{ID: "2", Source: "A"},
		{ID: "3", Title: "B"},
		{ID: "4"},
		{ID: "5", Source: "C"},
		{ID: "6", Source: "D"},
		{ID: "7", Source: "E"},
	}

	assert.Equal(t, []string{"A", "B", "4", "C", "D"}, sourcesOf(passages))
	assert.Equal(t, []string{}, sourcesOf(nil))
}

func TestBuildMessagesCitations(t *testing.T) {
	msgs := buildMessages(config.ParamsFor(models.TierBasic), models.QueryRequest{
		Query:            "Q?",
		IncludeCitations: true,
		DomainFocus:      []string{"soil", "water"},
	}, nil)

	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "Cite passages inline")
	assert.Contains(t, msgs[0].Content, "Focus areas: soil, water.")
	assert.Equal(t, "Question: Q?", msgs[1].Content)
}
