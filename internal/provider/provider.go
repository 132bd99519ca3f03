package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ratepulse/ratepulse/internal/observability/metrics"
)

// Availability describes whether a sellable rate was found for a source.
type Availability string

const (
	AvailabilityAvailable Availability = "AVAILABLE"
	AvailabilityNoRate    Availability = "NO_RATE"
)

// Confidence grades how trustworthy an extracted price is.
type Confidence string

const (
	ConfidenceHigh Confidence = "HIGH"
	ConfidenceMed  Confidence = "MED"
	ConfidenceLow  Confidence = "LOW"
)

var (
	// ErrRateLimited indicates the upstream returned HTTP 429.
	ErrRateLimited = fmt.Errorf("%w: rate limit exceeded", metrics.ErrProviderFailure)
	// ErrUnavailable indicates the upstream failed or returned a non-2xx status.
	ErrUnavailable = fmt.Errorf("%w: upstream request failed", metrics.ErrProviderFailure)
)

// DetailsQuery identifies one property-details lookup.
type DetailsQuery struct {
	PropertyToken string
	CheckIn       time.Time
	CheckOut      time.Time
	Adults        int
	Children      int
	Currency      string
	Country       string
	Language      string
}

// SourcePrice is a single OTA price entry extracted from a details response.
type SourcePrice struct {
	Source           string
	Official         bool
	TotalLowest      float64
	TotalBeforeTax   float64
	NightlyLowest    float64
	NightlyBeforeTax float64
}

// DetailsResult carries the parsed details response plus the raw payload
// retained for audit storage.
type DetailsResult struct {
	SearchID string
	Prices   []SourcePrice
	Raw      json.RawMessage
}

// Suggestion is one autocomplete or hotel search hit used during
// competitor onboarding.
type Suggestion struct {
	Name          string
	PropertyToken string
	Subtitle      string
	Rating        float64
	Reviews       int
}

// Client talks to the upstream hotel rate provider.
type Client interface {
	PropertyDetails(ctx context.Context, q DetailsQuery) (*DetailsResult, error)
	HotelSearch(ctx context.Context, query string) ([]Suggestion, error)
	Autocomplete(ctx context.Context, query string) ([]Suggestion, error)
}
