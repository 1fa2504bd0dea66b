package config

import (
	"autorag-api/internal/models"
	"math"
)

// TierParams drives everything that differs between subscription tiers.
type TierParams struct {
	Tier                 models.Tier `json:"tier"`
	ContextK             int         `json:"contextK"`
	MaxTokens            int         `json:"maxTokens"`
	Temperature          float64     `json:"temperature"`
	BaseCost             float64     `json:"baseCost"`
	ConfidenceMultiplier float64     `json:"confidenceMultiplier"`
	MonthlyQueryLimit    int         `json:"monthlyQueryLimit"`
	MonthlyPrice         float64     `json:"monthlyPrice"`
	EnhancedData         bool        `json:"enhancedData"`
	RealTime             bool        `json:"realTime"`
	DetailInstruction    string      `json:"-"`
}

var Tiers = map[models.Tier]TierParams{
	models.TierBasic: {
		Tier:                 models.TierBasic,
		ContextK:             3,
		MaxTokens:            256,
		Temperature:          0.7,
		BaseCost:             0,
		ConfidenceMultiplier: 1.0,
		MonthlyQueryLimit:    models.DefaultMonthlyQueryLimit,
		MonthlyPrice:         0,
		DetailInstruction:    "Answer briefly in plain language.",
	},
	models.TierPremium: {
		Tier:                 models.TierPremium,
		ContextK:             8,
		MaxTokens:            512,
		Temperature:          0.5,
		BaseCost:             0.05,
		ConfidenceMultiplier: 1.15,
		MonthlyQueryLimit:    1000,
		MonthlyPrice:         29,
		EnhancedData:         true,
		DetailInstruction:    "Give a detailed, practical answer with concrete recommendations.",
	},
	models.TierEnterprise: {
		Tier:                 models.TierEnterprise,
		ContextK:             15,
		MaxTokens:            1024,
		Temperature:          0.3,
		BaseCost:             0.02,
		ConfidenceMultiplier: 1.25,
		MonthlyQueryLimit:    10000,
		MonthlyPrice:         199,
		EnhancedData:         true,
		RealTime:             true,
		DetailInstruction:    "Give a comprehensive analysis with risks, quantities and operational steps.",
	},
	models.TierSpecialized: {
		Tier:                 models.TierSpecialized,
		ContextK:             12,
		MaxTokens:            768,
		Temperature:          0.4,
		BaseCost:             0.08,
		ConfidenceMultiplier: 1.2,
		MonthlyQueryLimit:    5000,
		MonthlyPrice:         99,
		EnhancedData:         true,
		DetailInstruction:    "Answer as a domain specialist, citing agronomic evidence for each claim.",
	},
}

// TierOrder is the display order of tiers on the pricing endpoint.
var TierOrder = []models.Tier{
	models.TierBasic,
	models.TierPremium,
	models.TierSpecialized,
	models.TierEnterprise,
}

// ParamsFor falls back to basic for unknown tiers.
func ParamsFor(tier models.Tier) TierParams {
	if p, ok := Tiers[tier]; ok {
		return p
	}
	return Tiers[models.TierBasic]
}

// QueryCost is baseCost[tier] * responseDetailLevel, rounded to micro units.
func QueryCost(tier models.Tier, responseDetailLevel int) float64 {
	if responseDetailLevel <= 0 {
		responseDetailLevel = models.DefaultResponseDetailLevel
	}
	return roundMicros(ParamsFor(tier).BaseCost * float64(responseDetailLevel))
}

// Confidence scales the mean passage score by the tier multiplier and
// clamps the result to [0, 1].
func Confidence(tier models.Tier, scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	c := sum / float64(len(scores)) * ParamsFor(tier).ConfidenceMultiplier
	return math.Max(0, math.Min(1, c))
}

func roundMicros(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
