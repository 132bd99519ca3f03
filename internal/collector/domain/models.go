package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RawResponse is the audit record of one upstream fetch attempt, success
// or failure. Payload holds the provider body verbatim and is nulled by
// the retention purge after its short diagnostic window.
type RawResponse struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	HotelID      snowflake.ID `json:"hotel_id" gorm:"column:hotel_id;not null;index"`
	CompetitorID snowflake.ID `json:"competitor_id" gorm:"not null;index:ix_raw_responses_comp_stay,priority:1"`
	SearchID     string       `json:"search_id" gorm:"type:text"`
	StayDate     time.Time    `json:"stay_date" gorm:"type:date;not null;index:ix_raw_responses_comp_stay,priority:2"`
	OffsetDays   int          `json:"offset_days" gorm:"not null"`
	Success      bool         `json:"success" gorm:"not null"`
	Payload      string       `json:"payload,omitempty" gorm:"type:text"`
	ErrorDetail  string       `json:"error_detail,omitempty" gorm:"type:text"`
	FetchedAt    time.Time    `json:"fetched_at" gorm:"not null;index"`
}

// TableName sets the database table name.
func (RawResponse) TableName() string { return "raw_responses" }

// CompetitorRate is one normalized observation for an OTA source.
// Append-only; the latest row per (competitor, stay date, source) is the
// current market view.
type CompetitorRate struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	HotelID            snowflake.ID `json:"hotel_id" gorm:"column:hotel_id;not null;index:ix_competitor_rates_hotel_stay,priority:1"`
	CompetitorID       snowflake.ID `json:"competitor_id" gorm:"not null;index"`
	StayDate           time.Time    `json:"stay_date" gorm:"type:date;not null;index:ix_competitor_rates_hotel_stay,priority:2"`
	OffsetDays         int          `json:"offset_days" gorm:"not null"`
	Source             string       `json:"source" gorm:"type:text;not null"`
	Price              int64        `json:"price" gorm:"not null;default:0"`
	Currency           string       `json:"currency" gorm:"type:text;not null"`
	AvailabilityStatus string       `json:"availability_status" gorm:"type:text;not null"`
	DataConfidence     string       `json:"data_confidence" gorm:"type:text;not null"`
	PriceSourceLevel   int          `json:"price_source_level" gorm:"not null;default:0"`
	IsOfficial         bool         `json:"is_official" gorm:"not null;default:false"`
	ObservedAt         time.Time    `json:"observed_at" gorm:"not null;index"`
}

// TableName sets the database table name.
func (CompetitorRate) TableName() string { return "competitor_rates" }
