package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	quotadomain "github.com/ratepulse/ratepulse/internal/quota/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() quotadomain.Repository {
	return &repo{}
}

func (r *repo) EnsureTenantPeriod(ctx context.Context, db *gorm.DB, row *quotadomain.TenantQuota) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenant_quotas (id, hotel_id, period_key, searches_used, quota_cap, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?)
		 ON CONFLICT (hotel_id, period_key) DO NOTHING`,
		row.ID,
		row.HotelID,
		row.PeriodKey,
		row.QuotaCap,
		row.CreatedAt,
		row.UpdatedAt,
	).Error
}

func (r *repo) EnsureSystemPeriod(ctx context.Context, db *gorm.DB, row *quotadomain.SystemBudget) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO system_budgets (id, period_key, searches_used, budget_limit, safe_mode_on, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?, ?, ?)
		 ON CONFLICT (period_key) DO NOTHING`,
		row.ID,
		row.PeriodKey,
		row.BudgetLimit,
		false,
		row.CreatedAt,
		row.UpdatedAt,
	).Error
}

func (r *repo) TryIncrementTenant(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, periodKey string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE tenant_quotas
		 SET searches_used = searches_used + 1, updated_at = ?
		 WHERE hotel_id = ? AND period_key = ?
		   AND (quota_cap = 0 OR searches_used < quota_cap)`,
		now,
		hotelID,
		periodKey,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) TryIncrementSystem(ctx context.Context, db *gorm.DB, periodKey string, highWater float64, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE system_budgets
		 SET searches_used = searches_used + 1,
		     safe_mode_on = CASE WHEN (searches_used + 1) >= (budget_limit * ?) THEN TRUE ELSE safe_mode_on END,
		     updated_at = ?
		 WHERE period_key = ?
		   AND NOT safe_mode_on
		   AND searches_used < budget_limit`,
		highWater,
		now,
		periodKey,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) GetTenant(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, periodKey string) (*quotadomain.TenantQuota, error) {
	var row quotadomain.TenantQuota
	err := db.WithContext(ctx).Raw(
		`SELECT id, hotel_id, period_key, searches_used, quota_cap, created_at, updated_at
		 FROM tenant_quotas WHERE hotel_id = ? AND period_key = ?`,
		hotelID,
		periodKey,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) GetSystem(ctx context.Context, db *gorm.DB, periodKey string) (*quotadomain.SystemBudget, error) {
	var row quotadomain.SystemBudget
	err := db.WithContext(ctx).Raw(
		`SELECT id, period_key, searches_used, budget_limit, safe_mode_on, created_at, updated_at
		 FROM system_budgets WHERE period_key = ?`,
		periodKey,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}
