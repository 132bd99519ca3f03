package domain

import (
	"math"
	"strings"

	"github.com/ratepulse/ratepulse/internal/provider"
)

// Canonical OTA names. The upstream returns inconsistent variants
// ("Agoda.com" vs "Agoda"); unmapped sources pass through trimmed.
var sourceAliases = map[string]string{
	"agoda.com":        "Agoda",
	"agoda":            "Agoda",
	"booking.com":      "Booking.com",
	"booking":          "Booking.com",
	"expedia.com":      "Expedia",
	"expedia":          "Expedia",
	"hotels.com":       "Hotels.com (Expedia)",
	"traveloka.com":    "Traveloka",
	"traveloka":        "Traveloka",
	"trip.com":         "Trip.com",
	"ctrip":            "Trip.com",
	"ctrip.com":        "Trip.com",
	"google":           "Google",
	"google.com":       "Google",
	"trivago":          "Trivago",
	"trivago.com":      "Trivago",
	"official site":    "Official Site",
	"official website": "Official Site",
}

// NormalizeSource maps an upstream OTA name to its canonical form.
func NormalizeSource(source string) string {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return "Unknown"
	}
	if canonical, ok := sourceAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// NormalizedRate is a provider price entry reduced to one representative
// price with a confidence grade.
type NormalizedRate struct {
	Source             string
	Price              int64
	AvailabilityStatus provider.Availability
	DataConfidence     provider.Confidence
	PriceSourceLevel   int
	IsOfficial         bool
}

// NormalizeRates selects a representative price per source using a
// four-level priority:
//  1. total before taxes/fees
//  2. total lowest
//  3. nightly before taxes/fees x length of stay
//  4. nightly lowest x length of stay
func NormalizeRates(prices []provider.SourcePrice, lengthOfStay int) []NormalizedRate {
	if lengthOfStay <= 0 {
		lengthOfStay = 1
	}

	rates := make([]NormalizedRate, 0, len(prices))
	for _, price := range prices {
		representative, level := selectRepresentative(price, lengthOfStay)

		rate := NormalizedRate{
			Source:           NormalizeSource(price.Source),
			Price:            representative,
			PriceSourceLevel: level,
			IsOfficial:       price.Official,
		}
		switch {
		case level == 0:
			rate.AvailabilityStatus = provider.AvailabilityNoRate
			rate.DataConfidence = provider.ConfidenceLow
		case level == 1:
			rate.AvailabilityStatus = provider.AvailabilityAvailable
			rate.DataConfidence = provider.ConfidenceHigh
		default:
			rate.AvailabilityStatus = provider.AvailabilityAvailable
			rate.DataConfidence = provider.ConfidenceMed
		}
		rates = append(rates, rate)
	}
	return rates
}

func selectRepresentative(price provider.SourcePrice, lengthOfStay int) (int64, int) {
	if price.TotalBeforeTax > 0 {
		return int64(math.Round(price.TotalBeforeTax)), 1
	}
	if price.TotalLowest > 0 {
		return int64(math.Round(price.TotalLowest)), 2
	}
	if price.NightlyBeforeTax > 0 {
		return int64(math.Round(price.NightlyBeforeTax * float64(lengthOfStay))), 3
	}
	if price.NightlyLowest > 0 {
		return int64(math.Round(price.NightlyLowest * float64(lengthOfStay))), 4
	}
	return 0, 0
}
