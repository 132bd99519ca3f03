package domain

import (
	"math"
	"sort"

	"github.com/bwmarrin/snowflake"
)

const (
	DemandStrong = "STRONG"
	DemandNormal = "NORMAL"
	DemandWeak   = "WEAK"

	ConfidenceHigh = "HIGH"
	ConfidenceMed  = "MED"
	ConfidenceLow  = "LOW"
)

// Confidence thresholds.
const (
	minCompsHigh          = 3
	minSourcesHigh        = 2
	minBeforeTaxRatioHigh = 0.6
)

// RatePoint is the latest observation for one (competitor, source).
// Price 0 marks a NO_RATE observation.
type RatePoint struct {
	CompetitorID snowflake.ID
	Source       string
	Price        int64
	// 1 = total before taxes, the strongest signal.
	PriceSourceLevel int
}

type Aggregate struct {
	Min              int64
	Median           int64
	Max              int64
	Avg              int64
	CompetitorCount  int
	NoRateCount      int
	DemandStrength   string
	MarketConfidence string
}

// AggregateRates reduces the latest per-source observations to the
// market summary persisted on a snapshot. Priced rows feed the
// statistics; NO_RATE rows feed the demand signal, since sold-out
// inventory surfaces upstream as a missing rate.
func AggregateRates(points []RatePoint) Aggregate {
	prices := make([]int64, 0, len(points))
	competitors := make(map[snowflake.ID]struct{})
	sources := make(map[string]struct{})
	noRate := 0
	beforeTax := 0

	for _, point := range points {
		if point.Price <= 0 {
			noRate++
			continue
		}
		prices = append(prices, point.Price)
		competitors[point.CompetitorID] = struct{}{}
		sources[point.Source] = struct{}{}
		if point.PriceSourceLevel == 1 {
			beforeTax++
		}
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })

	agg := Aggregate{
		CompetitorCount: len(competitors),
		NoRateCount:     noRate,
	}
	if len(prices) > 0 {
		agg.Min = prices[0]
		agg.Max = prices[len(prices)-1]
		agg.Median = median(prices)

		var sum int64
		for _, p := range prices {
			sum += p
		}
		agg.Avg = int64(math.Round(float64(sum) / float64(len(prices))))
	}

	agg.DemandStrength = demandStrength(noRate, len(points))
	beforeTaxRatio := 0.0
	if len(prices) > 0 {
		beforeTaxRatio = float64(beforeTax) / float64(len(prices))
	}
	agg.MarketConfidence = confidence(len(competitors), len(sources), beforeTaxRatio)
	return agg
}

// median averages the two middle values for even-length input.
func median(sorted []int64) int64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return int64(math.Round(float64(sorted[mid-1]+sorted[mid]) / 2))
}

func demandStrength(noRateCount, total int) string {
	if total == 0 {
		return DemandNormal
	}
	ratio := float64(noRateCount) / float64(total)
	switch {
	case ratio >= 0.5:
		return DemandStrong
	case ratio >= 0.2:
		return DemandNormal
	default:
		return DemandWeak
	}
}

func confidence(competitorCount, sourceCount int, beforeTaxRatio float64) string {
	if competitorCount >= minCompsHigh && sourceCount >= minSourcesHigh && beforeTaxRatio >= minBeforeTaxRatioHigh {
		return ConfidenceHigh
	}
	if competitorCount >= 2 && sourceCount >= 1 {
		return ConfidenceMed
	}
	return ConfidenceLow
}
