package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Competitor is a tracked property for one hotel. Rows are never hard
// deleted once rate history exists; removal flips Active off.
type Competitor struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	HotelID       snowflake.ID `json:"hotel_id" gorm:"column:hotel_id;not null;index:ux_competitors_hotel_token,priority:1"`
	Name          string       `json:"name" gorm:"type:text;not null"`
	PropertyToken string       `json:"property_token" gorm:"type:text;not null;index:ux_competitors_hotel_token,priority:2"`
	Active        bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Competitor) TableName() string { return "competitors" }
