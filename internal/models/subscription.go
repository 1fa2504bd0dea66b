package models

import (
	"fmt"
	"strings"
	"time"
)

type Tier string

const (
	TierBasic       Tier = "basic"
	TierPremium     Tier = "premium"
	TierEnterprise  Tier = "enterprise"
	TierSpecialized Tier = "specialized"
)

func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierPremium, TierEnterprise, TierSpecialized:
		return true
	}
	return false
}

// ParseTier accepts tier names case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
)

const (
	DefaultMonthlyQueryLimit = 50
	BillingPeriod            = 30 * 24 * time.Hour
)

// Subscription is stored as a JSON blob keyed by user id.
type Subscription struct {
	UserID            string             `json:"userId"`
	Tier              Tier               `json:"tier"`
	MonthlyQueryLimit int                `json:"monthlyQueryLimit"`
	UsedQueries       int                `json:"usedQueries"`
	Status            SubscriptionStatus `json:"status"`
	LastBillingDate   time.Time          `json:"lastBillingDate"`
	NextBillingDate   time.Time          `json:"nextBillingDate"`

	// Persisted is false for a default record that has not been written yet.
	Persisted bool `json:"-"`
}

// NewDefaultSubscription synthesises the basic record handed to users
// without a stored subscription.
func NewDefaultSubscription(userID string, now time.Time) *Subscription {
	return &Subscription{
		UserID:            userID,
		Tier:              TierBasic,
		MonthlyQueryLimit: DefaultMonthlyQueryLimit,
		UsedQueries:       0,
		Status:            StatusActive,
		LastBillingDate:   now,
		NextBillingDate:   now.Add(BillingPeriod),
	}
}

func (s *Subscription) Active() bool {
	return s.Status == StatusActive
}

func (s *Subscription) QuotaExhausted() bool {
	return s.UsedQueries >= s.MonthlyQueryLimit
}

func (s *Subscription) Remaining() int {
	if s.UsedQueries >= s.MonthlyQueryLimit {
		return 0
	}
	return s.MonthlyQueryLimit - s.UsedQueries
}

// BillingDue reports whether the billing window has rolled over.
func (s *Subscription) BillingDue(now time.Time) bool {
	return !s.NextBillingDate.IsZero() && !now.Before(s.NextBillingDate)
}

// Renew resets usage and opens the next 30 day window.
func (s *Subscription) Renew(now time.Time) {
	s.UsedQueries = 0
	s.LastBillingDate = now
	s.NextBillingDate = now.Add(BillingPeriod)
}
