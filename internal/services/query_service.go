package services

import (
	"autorag-api/internal/config"
	"autorag-api/internal/logger"
	"autorag-api/internal/models"
	apperrors "autorag-api/internal/pkg/errors"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultBackgroundTimeout = 10 * time.Second

// QueryGate is the metered entry point for natural-language queries.
type QueryGate interface {
	HandleQuery(ctx context.Context, userID string, req models.QueryRequest) (*models.QueryResponse, error)
}

type QueryService struct {
	subscriptions SubscriptionService
	rateLimits    RateLimitService
	embedder      Embedder
	searcher      VectorSearcher
	generator     TextGenerator
	analytics     AnalyticsSink
	weather       WeatherService
	market        MarketService
	models        map[models.Tier]string

	now               func() time.Time
	backgroundTimeout time.Duration
	background        sync.WaitGroup
}

type QueryServiceOption func(*QueryService)

func WithWeatherService(w WeatherService) QueryServiceOption {
	return func(s *QueryService) { s.weather = w }
}

func WithMarketService(m MarketService) QueryServiceOption {
	return func(s *QueryService) { s.market = m }
}

func WithModels(m map[models.Tier]string) QueryServiceOption {
	return func(s *QueryService) { s.models = m }
}

func WithClock(now func() time.Time) QueryServiceOption {
	return func(s *QueryService) { s.now = now }
}

func WithBackgroundTimeout(d time.Duration) QueryServiceOption {
	return func(s *QueryService) {
		if d > 0 {
			s.backgroundTimeout = d
		}
	}
}

func NewQueryService(
	subscriptions SubscriptionService,
	rateLimits RateLimitService,
	embedder Embedder,
	searcher VectorSearcher,
	generator TextGenerator,
	analytics AnalyticsSink,
	opts ...QueryServiceOption,
) *QueryService {
	s := &QueryService{
		subscriptions:     subscriptions,
		rateLimits:        rateLimits,
		embedder:          embedder,
		searcher:          searcher,
		generator:         generator,
		analytics:         analytics,
		now:               time.Now,
		backgroundTimeout: defaultBackgroundTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.analytics == nil {
		s.analytics = NopAnalyticsSink{}
	}
	return s
}

// HandleQuery resolves the tier, enforces the hourly and monthly limits,
// answers the query and meters it. Limit violations come back as typed
// errors; processing failures come back as a degraded answer.
func (s *QueryService) HandleQuery(ctx context.Context, userID string, req models.QueryRequest) (*models.QueryResponse, error) {
	start := s.now()
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err)
	}

	sub, err := s.subscriptions.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.rateLimits.Check(ctx, userID, sub.Tier); err != nil {
		return nil, err
	}

	params := config.ParamsFor(sub.Tier)
	cost := config.QueryCost(sub.Tier, req.ResponseDetailLevel)

	if sub.QuotaExhausted() {
		return nil, &apperrors.QuotaExceededError{
			Limit: sub.MonthlyQueryLimit,
			Used:  sub.UsedQueries,
			Cost:  cost,
		}
	}

	resp, err := s.answer(ctx, params, req)
	if err != nil {
		logger.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"tier":    sub.Tier,
			"step":    "process_query",
			"error":   err,
		}).Warn("Query processing failed, returning degraded answer")
		resp = degradedResponse()
	}
	resp.Tier = sub.Tier
	resp.Cost = cost
	resp.ProcessingTime = s.now().Sub(start).Milliseconds()

	s.recordUsage(ctx, userID, req, resp)

	updated, err := s.subscriptions.RecordQuery(ctx, userID)
	if err != nil {
		logger.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"step":    "persist_quota",
			"error":   err,
		}).Error("Failed to persist query usage")
		resp.UsageRemaining = max(sub.Remaining()-1, 0)
	} else {
		resp.UsageRemaining = updated.Remaining()
	}

	return resp, nil
}

// Wait blocks until background usage writes have finished.
func (s *QueryService) Wait() {
	s.background.Wait()
}

func (s *QueryService) answer(ctx context.Context, params config.TierParams, req models.QueryRequest) (*models.QueryResponse, error) {
	vector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	var passages []models.Passage
	var features *models.EnhancedFeatures

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		passages, err = s.searcher.Query(gctx, vector, SearchOptions{
			TopK:   params.ContextK,
			Filter: domainFilter(req.DomainFocus),
		})
		return err
	})
	if params.EnhancedData {
		g.Go(func() error {
			features = s.enrich(gctx, req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("context retrieval: %w", err)
	}

	text, err := s.generator.Generate(ctx, GenerateRequest{
		Model:       s.modelFor(params.Tier),
		Messages:    buildMessages(params, req, passages),
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}

	if params.RealTime {
		if features == nil {
			features = &models.EnhancedFeatures{}
		}
		features.RealTimeUpdates = req.RealTimeData
		features.PriorityProcessing = true
	}
	if features.Empty() {
		features = nil
	}

	scores := make([]float64, len(passages))
	for i, p := range passages {
		scores[i] = p.Score
	}

	return &models.QueryResponse{
		Answer:           text,
		Sources:          sourcesOf(passages),
		Confidence:       config.Confidence(params.Tier, scores),
		EnhancedFeatures: features,
	}, nil
}

// enrich gathers market and weather data. Failures leave the field empty.
func (s *QueryService) enrich(ctx context.Context, req models.QueryRequest) *models.EnhancedFeatures {
	features := &models.EnhancedFeatures{}

	if s.market != nil {
		quotes, err := s.market.Snapshot(ctx, req.DomainFocus)
		if err != nil {
			logger.LogEvent(logrus.WarnLevel, "Market data unavailable", logrus.Fields{"error": err})
		} else {
			features.MarketData = quotes
		}
	}

	if lat, lon, ok := req.Coordinates(); ok && s.weather != nil {
		weather, err := s.weather.Fetch(ctx, lat, lon)
		if err != nil {
			logger.LogEvent(logrus.WarnLevel, "Weather data unavailable", logrus.Fields{"error": err})
		} else {
			features.WeatherData = weather
		}
	}

	return features
}

// recordUsage writes the analytics event and bumps the hourly counter after
// the response is built. Failures are logged and never retried.
func (s *QueryService) recordUsage(ctx context.Context, userID string, req models.QueryRequest, resp *models.QueryResponse) {
	event := models.NewUsageEvent(userID, req, resp, s.now())

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.backgroundTimeout)
		defer cancel()

		if err := s.analytics.WriteEvent(bgCtx, event); err != nil {
			logger.Logger.WithFields(logrus.Fields{
				"user_id": userID,
				"step":    "analytics",
				"error":   err,
			}).Error("Failed to write usage event")
		}
		if err := s.rateLimits.Record(bgCtx, userID); err != nil {
			logger.Logger.WithFields(logrus.Fields{
				"user_id": userID,
				"step":    "rate_limit_increment",
				"error":   err,
			}).Error("Failed to increment rate limit counter")
		}
	}()
}

func (s *QueryService) modelFor(tier models.Tier) string {
	if m, ok := s.models[tier]; ok && m != "" {
		return m
	}
	return s.models[models.TierBasic]
}

func degradedResponse() *models.QueryResponse {
	return &models.QueryResponse{
		Answer:     models.DegradedAnswer,
		Sources:    []string{},
		Confidence: 0,
		Error:      "query processing failed",
	}
}

func domainFilter(domains []string) map[string][]string {
	if len(domains) == 0 {
		return nil
	}
	return map[string][]string{"domain": domains}
}

// sourcesOf lists up to MaxSources distinct passage labels in rank order.
func sourcesOf(passages []models.Passage) []string {
	sources := make([]string, 0, models.MaxSources)
	seen := make(map[string]struct{})
	for _, p := range passages {
		if len(sources) == models.MaxSources {
			break
		}
		label := p.Label()
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		sources = append(sources, label)
	}
	return sources
}

func buildMessages(params config.TierParams, req models.QueryRequest, passages []models.Passage) []Message {
	var system strings.Builder
	system.WriteString("You are an agricultural advisor. Ground every answer in the numbered context passages. ")
	system.WriteString("If the context does not cover the question, say so. ")
	system.WriteString(params.DetailInstruction)
	if req.IncludeCitations {
		system.WriteString(" Cite passages inline as [n].")
	}
	if len(req.DomainFocus) > 0 {
		system.WriteString(" Focus areas: ")
		system.WriteString(strings.Join(req.DomainFocus, ", "))
		system.WriteString(".")
	}

	var user strings.Builder
	if len(passages) > 0 {
		user.WriteString("Context:\n")
		for i, p := range passages {
			fmt.Fprintf(&user, "[%d] %s\n", i+1, strings.TrimSpace(p.Content))
		}
		user.WriteString("\n")
	}
	user.WriteString("Question: ")
	user.WriteString(req.Query)

	return []Message{
		{Role: RoleSystem, Content: system.String()},
		{Role: RoleUser, Content: user.String()},
	}
}
