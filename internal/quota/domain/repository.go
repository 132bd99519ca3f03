package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	EnsureTenantPeriod(ctx context.Context, db *gorm.DB, row *TenantQuota) error
	EnsureSystemPeriod(ctx context.Context, db *gorm.DB, row *SystemBudget) error

	// TryIncrementTenant applies the guarded increment and reports rows
	// affected; zero means the cap is exhausted.
	TryIncrementTenant(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, periodKey string, now time.Time) (int64, error)

	// TryIncrementSystem applies the guarded increment, flipping
	// safe_mode_on when usage crosses highWater * budget_limit in the same
	// statement; zero rows means budget exhausted or safe mode already on.
	TryIncrementSystem(ctx context.Context, db *gorm.DB, periodKey string, highWater float64, now time.Time) (int64, error)

	GetTenant(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, periodKey string) (*TenantQuota, error)
	GetSystem(ctx context.Context, db *gorm.DB, periodKey string) (*SystemBudget, error)
}
