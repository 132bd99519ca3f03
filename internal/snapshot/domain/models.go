package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// MarketSnapshot is the point-in-time market aggregate for one
// (hotel, as-of date, stay date). Builders upsert on the unique key so a
// re-run replaces the same row. MyRate stays null until the tenant's own
// pricing feed is wired in.
type MarketSnapshot struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	HotelID          snowflake.ID `json:"hotel_id" gorm:"column:hotel_id;not null;uniqueIndex:ux_market_snapshots_key,priority:1"`
	AsOfDate         time.Time    `json:"as_of_date" gorm:"type:date;not null;uniqueIndex:ux_market_snapshots_key,priority:2"`
	StayDate         time.Time    `json:"stay_date" gorm:"type:date;not null;uniqueIndex:ux_market_snapshots_key,priority:3"`
	Frequency        Frequency    `json:"frequency" gorm:"type:text;not null;uniqueIndex:ux_market_snapshots_key,priority:4"`
	OffsetDays       int          `json:"offset_days" gorm:"not null"`
	MyRate           *int64       `json:"my_rate,omitempty"`
	MinPrice         int64        `json:"min_price" gorm:"not null;default:0"`
	MedianPrice      int64        `json:"median_price" gorm:"not null;default:0"`
	MaxPrice         int64        `json:"max_price" gorm:"not null;default:0"`
	AvgPrice         int64        `json:"avg_price" gorm:"not null;default:0"`
	CompetitorCount  int          `json:"competitor_count" gorm:"not null;default:0"`
	NoRateCount      int          `json:"no_rate_count" gorm:"not null;default:0"`
	DemandStrength   string       `json:"demand_strength" gorm:"type:text;not null"`
	MarketConfidence string       `json:"market_confidence" gorm:"type:text;not null"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// TableName sets the database table name.
func (MarketSnapshot) TableName() string { return "market_snapshots" }
