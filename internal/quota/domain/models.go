package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TenantQuota tracks one hotel's searches for a monthly period.
// quota_cap = 0 means unlimited.
type TenantQuota struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	HotelID      snowflake.ID `json:"hotel_id" gorm:"column:hotel_id;not null;index:ux_tenant_quotas_hotel_period,priority:1"`
	PeriodKey    string       `json:"period_key" gorm:"type:text;not null;index:ux_tenant_quotas_hotel_period,priority:2"`
	SearchesUsed int64        `json:"searches_used" gorm:"not null;default:0"`
	QuotaCap     int64        `json:"quota_cap" gorm:"not null;default:0"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TenantQuota) TableName() string { return "tenant_quotas" }

// SystemBudget tracks platform-wide searches for a daily period. Once
// safe_mode_on flips it stays on for the rest of the period.
type SystemBudget struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	PeriodKey    string       `json:"period_key" gorm:"type:text;not null;uniqueIndex:ux_system_budgets_period"`
	SearchesUsed int64        `json:"searches_used" gorm:"not null;default:0"`
	BudgetLimit  int64        `json:"budget_limit" gorm:"not null;default:0"`
	SafeModeOn   bool         `json:"safe_mode_on" gorm:"not null;default:false"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SystemBudget) TableName() string { return "system_budgets" }
