package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const MaxEventQueryLength = 100

// UsageEvent is the append-only analytics record written once per query.
type UsageEvent struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string    `gorm:"type:varchar(128);index;not null" json:"userId"`
	Tier         Tier      `gorm:"type:varchar(20);not null" json:"tier"`
	Query        string    `gorm:"type:varchar(400)" json:"query"`
	Domains      string    `gorm:"type:varchar(700)" json:"domains"`
	Cost         float64   `json:"cost"`
	Confidence   float64   `json:"confidence"`
	ProcessingMs int64     `json:"processingMs"`
	Degraded     bool      `json:"degraded"`
	Timestamp    time.Time `gorm:"index;not null" json:"timestamp"`
}

func (UsageEvent) TableName() string {
	return "usage_events"
}

func (e *UsageEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return nil
}

// NewUsageEvent builds the analytics record for a processed query.
func NewUsageEvent(userID string, req QueryRequest, resp *QueryResponse, at time.Time) UsageEvent {
	return UsageEvent{
		ID:           uuid.New(),
		UserID:       userID,
		Tier:         resp.Tier,
		Query:        TruncateQuery(req.Query),
		Domains:      strings.Join(req.DomainFocus, ","),
		Cost:         resp.Cost,
		Confidence:   resp.Confidence,
		ProcessingMs: resp.ProcessingTime,
		Degraded:     resp.Degraded(),
		Timestamp:    at,
	}
}

// Blobs, Doubles and Indexes lay the event out the way columnar analytics
// datasets expect it.
func (e UsageEvent) Blobs() []string {
	return []string{e.UserID, e.Query, e.Domains, string(e.Tier)}
}

func (e UsageEvent) Doubles() []float64 {
	return []float64{e.Cost, e.Confidence, float64(e.ProcessingMs)}
}

func (e UsageEvent) Indexes() []string {
	return []string{e.UserID}
}

// TruncateQuery cuts a query to MaxEventQueryLength runes.
func TruncateQuery(q string) string {
	if utf8.RuneCountInString(q) <= MaxEventQueryLength {
		return q
	}
	runes := []rune(q)
	return string(runes[:MaxEventQueryLength])
}

type UsageSummary struct {
	UserID            string    `json:"userId"`
	From              time.Time `json:"from"`
	To                time.Time `json:"to"`
	Queries           int64     `json:"queries"`
	TotalCost         float64   `json:"totalCost"`
	AverageConfidence float64   `json:"averageConfidence"`
	DegradedQueries   int64     `json:"degradedQueries"`
}

type UsageStats struct {
	Tier              Tier   `json:"tier"`
	Status            string `json:"status"`
	UsedQueries       int    `json:"usedQueries"`
	MonthlyQueryLimit int    `json:"monthlyQueryLimit"`
	RemainingQueries  int    `json:"remainingQueries"`
	HourlyCount       int    `json:"hourlyCount"`
	HourlyLimit       int    `json:"hourlyLimit"`
	// HourlyResetIn is the number of seconds until the hourly window closes,
	// zero when no window is open.
	HourlyResetIn   int       `json:"hourlyResetIn"`
	NextBillingDate time.Time `json:"nextBillingDate"`
	Persisted       bool      `json:"persisted"`
}

type CreateSubscriptionRequest struct {
	UserID string `json:"userId,omitempty" validate:"omitempty,max=128"`
	Tier   string `json:"tier" validate:"required,oneof=basic premium enterprise specialized"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	return validate.Struct(r)
}

type PricingRequest struct {
	Tier                string `json:"tier" validate:"required,oneof=basic premium enterprise specialized"`
	ResponseDetailLevel int    `json:"responseDetailLevel" validate:"gte=0,lte=10"`
	QueriesPerMonth     int    `json:"queriesPerMonth" validate:"gte=0"`
}

func (r *PricingRequest) Validate() error {
	return validate.Struct(r)
}

type PricingEstimate struct {
	Tier              Tier    `json:"tier"`
	CostPerQuery      float64 `json:"costPerQuery"`
	QueriesPerMonth   int     `json:"queriesPerMonth"`
	IncludedQueries   int     `json:"includedQueries"`
	BillableQueries   int     `json:"billableQueries"`
	MonthlyPrice      float64 `json:"monthlyPrice"`
	EstimatedUsage    float64 `json:"estimatedUsageCost"`
	EstimatedTotal    float64 `json:"estimatedTotal"`
	ExceedsMonthlyCap bool    `json:"exceedsMonthlyCap"`
}
