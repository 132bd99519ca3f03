package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ratepulse/ratepulse/internal/config"
	"github.com/ratepulse/ratepulse/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	engineHotels       = "google_hotels"
	engineAutocomplete = "google_hotels_autocomplete"

	defaultTimeout = 30 * time.Second
)

// SerpAPIClient fetches hotel pricing from the SerpApi search endpoint.
type SerpAPIClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
	metrics *metrics.SchedulerMetrics
}

// NewSerpAPIClient builds the upstream client from application config.
func NewSerpAPIClient(cfg config.Config, log *zap.Logger) *SerpAPIClient {
	return &SerpAPIClient{
		baseURL: strings.TrimSpace(cfg.ProviderBaseURL),
		apiKey:  strings.TrimSpace(cfg.ProviderAPIKey),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log.Named("provider.serpapi"),
		metrics: metrics.Scheduler(),
	}
}

type rateBlock struct {
	Lowest                   string  `json:"lowest"`
	ExtractedLowest          float64 `json:"extracted_lowest"`
	BeforeTaxesFees          string  `json:"before_taxes_fees"`
	ExtractedBeforeTaxesFees float64 `json:"extracted_before_taxes_fees"`
}

type priceEntry struct {
	Source       string     `json:"source"`
	Official     bool       `json:"official"`
	RatePerNight *rateBlock `json:"rate_per_night"`
	TotalRate    *rateBlock `json:"total_rate"`
}

type detailsResponse struct {
	SearchMetadata struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"search_metadata"`
	Prices []priceEntry `json:"prices"`
}

type searchResponse struct {
	Properties []struct {
		Name          string  `json:"name"`
		PropertyToken string  `json:"property_token"`
		Description   string  `json:"description"`
		OverallRating float64 `json:"overall_rating"`
		Reviews       int     `json:"reviews"`
	} `json:"properties"`
}

type autocompleteResponse struct {
	Suggestions []struct {
		Value         string `json:"value"`
		PropertyToken string `json:"property_token"`
		Subtitle      string `json:"subtitle"`
	} `json:"suggestions"`
}

// PropertyDetails fetches the pricing snapshot for one property and stay window.
func (c *SerpAPIClient) PropertyDetails(ctx context.Context, q DetailsQuery) (*DetailsResult, error) {
	params := url.Values{}
	params.Set("engine", engineHotels)
	// q is required by the API even when property_token drives the lookup.
	params.Set("q", "hotel")
	params.Set("property_token", q.PropertyToken)
	params.Set("check_in_date", q.CheckIn.Format("2006-01-02"))
	params.Set("check_out_date", q.CheckOut.Format("2006-01-02"))
	params.Set("adults", strconv.Itoa(defaultInt(q.Adults, 2)))
	params.Set("children", strconv.Itoa(q.Children))
	params.Set("currency", defaultString(q.Currency, "VND"))
	params.Set("gl", defaultString(q.Country, "vn"))
	params.Set("hl", defaultString(q.Language, "vi"))

	body, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	var decoded detailsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode details response: %v", ErrUnavailable, err)
	}

	result := &DetailsResult{
		SearchID: decoded.SearchMetadata.ID,
		Raw:      json.RawMessage(body),
		Prices:   make([]SourcePrice, 0, len(decoded.Prices)),
	}
	for _, price := range decoded.Prices {
		result.Prices = append(result.Prices, SourcePrice{
			Source:           price.Source,
			Official:         price.Official,
			TotalLowest:      extractAmount(price.TotalRate, false),
			TotalBeforeTax:   extractAmount(price.TotalRate, true),
			NightlyLowest:    extractAmount(price.RatePerNight, false),
			NightlyBeforeTax: extractAmount(price.RatePerNight, true),
		})
	}
	return result, nil
}

// HotelSearch queries the hotels engine by free text, used during
// competitor onboarding to resolve a property token.
func (c *SerpAPIClient) HotelSearch(ctx context.Context, query string) ([]Suggestion, error) {
	checkIn := time.Now().UTC().AddDate(0, 0, 7)

	params := url.Values{}
	params.Set("engine", engineHotels)
	params.Set("q", query)
	params.Set("check_in_date", checkIn.Format("2006-01-02"))
	params.Set("check_out_date", checkIn.AddDate(0, 0, 1).Format("2006-01-02"))
	params.Set("adults", "2")
	params.Set("currency", "VND")
	params.Set("gl", "vn")
	params.Set("hl", "vi")

	body, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", ErrUnavailable, err)
	}

	suggestions := make([]Suggestion, 0, len(decoded.Properties))
	for _, property := range decoded.Properties {
		suggestions = append(suggestions, Suggestion{
			Name:          property.Name,
			PropertyToken: property.PropertyToken,
			Subtitle:      property.Description,
			Rating:        property.OverallRating,
			Reviews:       property.Reviews,
		})
	}
	return suggestions, nil
}

// Autocomplete returns lightweight suggestions for a partial hotel name.
func (c *SerpAPIClient) Autocomplete(ctx context.Context, query string) ([]Suggestion, error) {
	params := url.Values{}
	params.Set("engine", engineAutocomplete)
	params.Set("q", query)

	body, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	var decoded autocompleteResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode autocomplete response: %v", ErrUnavailable, err)
	}

	suggestions := make([]Suggestion, 0, len(decoded.Suggestions))
	for _, suggestion := range decoded.Suggestions {
		suggestions = append(suggestions, Suggestion{
			Name:          suggestion.Value,
			PropertyToken: suggestion.PropertyToken,
			Subtitle:      suggestion.Subtitle,
		})
	}
	return suggestions, nil
}

func (c *SerpAPIClient) fetch(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.ObserveProviderCall(time.Since(start))
	if err != nil {
		c.metrics.IncProviderCall("network_error")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.metrics.IncProviderCall("rate_limited")
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.IncProviderCall("http_error")
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.IncProviderCall("network_error")
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	c.metrics.IncProviderCall("ok")
	return body, nil
}

// extractAmount prefers the numeric extracted field and falls back to
// parsing the display string, which may carry currency formatting.
func extractAmount(block *rateBlock, beforeTax bool) float64 {
	if block == nil {
		return 0
	}
	if beforeTax {
		if block.ExtractedBeforeTaxesFees > 0 {
			return block.ExtractedBeforeTaxesFees
		}
		return parseDisplayAmount(block.BeforeTaxesFees)
	}
	if block.ExtractedLowest > 0 {
		return block.ExtractedLowest
	}
	return parseDisplayAmount(block.Lowest)
}

func parseDisplayAmount(value string) float64 {
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	parsed, err := strconv.ParseFloat(digits.String(), 64)
	if err != nil {
		return 0
	}
	return parsed
}

func defaultInt(value, def int) int {
	if value <= 0 {
		return def
	}
	return value
}

func defaultString(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

var _ Client = (*SerpAPIClient)(nil)
