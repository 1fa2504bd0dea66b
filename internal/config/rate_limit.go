package config

import (
	"autorag-api/internal/models"
	"time"
)

const (
	RateLimitWindow = time.Hour
	// RetryAfterSeconds is a fixed hint, not the time left in the window.
	RetryAfterSeconds = 3600
)

type RateLimitConfig struct {
	Limits     map[models.Tier]int
	Window     time.Duration
	RetryAfter int
}

// NewRateLimitConfig reads hourly ceilings from BASIC, PREMIUM and
// ENTERPRISE. Specialized shares the premium ceiling. A negative value
// disables the ceiling for that tier.
func NewRateLimitConfig() *RateLimitConfig {
	premium := getEnvInt("PREMIUM", 100)
	return &RateLimitConfig{
		Limits: map[models.Tier]int{
			models.TierBasic:       getEnvInt("BASIC", 10),
			models.TierPremium:     premium,
			models.TierEnterprise:  getEnvInt("ENTERPRISE", 1000),
			models.TierSpecialized: premium,
		},
		Window:     RateLimitWindow,
		RetryAfter: RetryAfterSeconds,
	}
}

func (c *RateLimitConfig) HourlyLimit(tier models.Tier) int {
	if limit, ok := c.Limits[tier]; ok {
		return limit
	}
	return c.Limits[models.TierBasic]
}
