package services

import (
	"autorag-api/internal/config"
	"autorag-api/internal/models"
	"math"
)

type TierPricing struct {
	config.TierParams
	HourlyLimit int `json:"hourlyLimit"`
}

type PricingService interface {
	Tiers() []TierPricing
	Estimate(tier models.Tier, responseDetailLevel, queriesPerMonth int) models.PricingEstimate
}

type pricingService struct {
	rateConfig *config.RateLimitConfig
}

func NewPricingService(rateConfig *config.RateLimitConfig) PricingService {
	return &pricingService{rateConfig: rateConfig}
}

func (s *pricingService) Tiers() []TierPricing {
	out := make([]TierPricing, 0, len(config.TierOrder))
	for _, tier := range config.TierOrder {
		out = append(out, TierPricing{
			TierParams:  config.ParamsFor(tier),
			HourlyLimit: s.rateConfig.HourlyLimit(tier),
		})
	}
	return out
}

// Estimate prices a month of usage. Queries past the monthly cap would be
// rejected, so they are not billed.
func (s *pricingService) Estimate(tier models.Tier, responseDetailLevel, queriesPerMonth int) models.PricingEstimate {
	params := config.ParamsFor(tier)
	perQuery := config.QueryCost(tier, responseDetailLevel)

	billable := queriesPerMonth
	if billable > params.MonthlyQueryLimit {
		billable = params.MonthlyQueryLimit
	}
	usage := round2(perQuery * float64(billable))

	return models.PricingEstimate{
		Tier:              params.Tier,
		CostPerQuery:      perQuery,
		QueriesPerMonth:   queriesPerMonth,
		IncludedQueries:   params.MonthlyQueryLimit,
		BillableQueries:   billable,
		MonthlyPrice:      params.MonthlyPrice,
		EstimatedUsage:    usage,
		EstimatedTotal:    round2(params.MonthlyPrice + usage),
		ExceedsMonthlyCap: queriesPerMonth > params.MonthlyQueryLimit,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
