package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Reason codes carried in Basis, comma separated.
const (
	ReasonOverpriced         = "OVERPRICED"
	ReasonUnderpriced        = "UNDERPRICED"
	ReasonHighDemandBuffer   = "HIGH_DEMAND_BUFFER"
	ReasonLowDemandCaution   = "LOW_DEMAND_CAUTION"
	ReasonCompetitorsNoRates = "COMPETITORS_NO_RATES"
)

// Recommendation is one pricing suggestion for a stay date. At most one
// pending row exists per (hotel, stay date); new generations expire the
// stale pending row in the same transaction.
type Recommendation struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	HotelID        snowflake.ID `json:"hotel_id" gorm:"column:hotel_id;not null;index:ix_recommendations_hotel_stay,priority:1"`
	StayDate       time.Time    `json:"stay_date" gorm:"type:date;not null;index:ix_recommendations_hotel_stay,priority:2"`
	AsOfDate       time.Time    `json:"as_of_date" gorm:"type:date;not null"`
	CurrentPrice   *int64       `json:"current_price,omitempty"`
	SuggestedPrice int64        `json:"suggested_price" gorm:"not null"`
	DeltaPct       float64      `json:"delta_pct"`
	Basis          string       `json:"basis" gorm:"type:text"`
	Confidence     string       `json:"confidence" gorm:"type:text"`
	Status         Status       `json:"status" gorm:"type:text;not null;index"`
	DecidedBy      string       `json:"decided_by,omitempty" gorm:"type:text"`
	DecidedAt      *time.Time   `json:"decided_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TableName sets the database table name.
func (Recommendation) TableName() string { return "recommendations" }
