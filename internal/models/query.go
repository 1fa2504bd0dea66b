package models

import (
	"encoding/json"
	"strings"
)

const (
	DefaultResponseDetailLevel = 1
	MaxSources                 = 5
	DegradedAnswer             = "Unable to process query at this time"
)

type QueryRequest struct {
	Query               string          `json:"query" validate:"required,notblank,max=4000"`
	UserID              string          `json:"userId,omitempty" validate:"omitempty,max=128"`
	DomainFocus         []string        `json:"domainFocus,omitempty" validate:"omitempty,max=10,dive,required,max=64"`
	ResponseDetailLevel int             `json:"responseDetailLevel,omitempty" validate:"gte=0,lte=10"`
	IncludeCitations    bool            `json:"includeCitations,omitempty"`
	RealTimeData        bool            `json:"realTimeData,omitempty"`
	LocationContext     json.RawMessage `json:"locationContext,omitempty"`
}

// Normalize applies request defaults and tidies domain tags.
func (r *QueryRequest) Normalize() {
	r.Query = strings.TrimSpace(r.Query)
	if r.ResponseDetailLevel <= 0 {
		r.ResponseDetailLevel = DefaultResponseDetailLevel
	}

	seen := make(map[string]struct{}, len(r.DomainFocus))
	domains := r.DomainFocus[:0]
	for _, d := range r.DomainFocus {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		domains = append(domains, d)
	}
	r.DomainFocus = domains
}

func (r *QueryRequest) Validate() error {
	return validate.Struct(r)
}

// Coordinates extracts a lat/lon pair from the opaque location context.
// Both {"lat","lon"} and {"latitude","longitude"} spellings are accepted.
func (r *QueryRequest) Coordinates() (lat, lon float64, ok bool) {
	if len(r.LocationContext) == 0 {
		return 0, 0, false
	}

	var loc struct {
		Lat       *float64 `json:"lat"`
		Lon       *float64 `json:"lon"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(r.LocationContext, &loc); err != nil {
		return 0, 0, false
	}

	switch {
	case loc.Lat != nil && loc.Lon != nil:
		return *loc.Lat, *loc.Lon, true
	case loc.Latitude != nil && loc.Longitude != nil:
		return *loc.Latitude, *loc.Longitude, true
	}
	return 0, 0, false
}

type QueryResponse struct {
	Answer           string            `json:"answer"`
	Sources          []string          `json:"sources"`
	Confidence       float64           `json:"confidence"`
	Tier             Tier              `json:"tier"`
	Cost             float64           `json:"cost"`
	UsageRemaining   int               `json:"usageRemaining"`
	ProcessingTime   int64             `json:"processingTime"`
	EnhancedFeatures *EnhancedFeatures `json:"enhancedFeatures,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Degraded reports whether the answer is the fallback produced on failure.
func (r *QueryResponse) Degraded() bool {
	return r.Answer == DegradedAnswer
}

type EnhancedFeatures struct {
	MarketData         []MarketQuote `json:"marketData,omitempty"`
	WeatherData        *WeatherData  `json:"weatherData,omitempty"`
	RealTimeUpdates    bool          `json:"realTimeUpdates,omitempty"`
	PriorityProcessing bool          `json:"priorityProcessing,omitempty"`
}

func (f *EnhancedFeatures) Empty() bool {
	return f == nil || (len(f.MarketData) == 0 && f.WeatherData == nil && !f.RealTimeUpdates && !f.PriorityProcessing)
}

type MarketQuote struct {
	Commodity string  `json:"commodity"`
	Market    string  `json:"market,omitempty"`
	Price     float64 `json:"price"`
	Unit      string  `json:"unit,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	UpdatedAt string  `json:"updatedAt,omitempty"`
}

type WeatherData struct {
	TemperatureC float64 `json:"temperatureC"`
	Humidity     int     `json:"humidity"`
	Description  string  `json:"description"`
	Location     string  `json:"location,omitempty"`
}

// Passage is a retrieved context chunk.
type Passage struct {
	ID      string  `json:"id"`
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Domain  string  `json:"domain,omitempty"`
	Source  string  `json:"source,omitempty"`
	Score   float64 `json:"score"`
}

// Label is the string surfaced in a response's sources list.
func (p Passage) Label() string {
	switch {
	case p.Source != "":
		return p.Source
	case p.Title != "":
		return p.Title
	}
	return p.ID
}

type ErrorResponse struct {
	Error                string   `json:"error"`
	Code                 string   `json:"code,omitempty"`
	SubscriptionRequired bool     `json:"subscriptionRequired,omitempty"`
	RetryAfter           string   `json:"retryAfter,omitempty"`
	Cost                 *float64 `json:"cost,omitempty"`
	UpgradeRequired      bool     `json:"upgradeRequired,omitempty"`
}
