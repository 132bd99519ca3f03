package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	recdomain "github.com/ratepulse/ratepulse/internal/recommendation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() recdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rec *recdomain.Recommendation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO recommendations (id, hotel_id, stay_date, as_of_date, current_price, suggested_price, delta_pct, basis, confidence, status, decided_by, decided_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.HotelID,
		rec.StayDate,
		rec.AsOfDate,
		rec.CurrentPrice,
		rec.SuggestedPrice,
		rec.DeltaPct,
		rec.Basis,
		rec.Confidence,
		rec.Status,
		rec.DecidedBy,
		rec.DecidedAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, hotelID, id snowflake.ID) (*recdomain.Recommendation, error) {
	var rec recdomain.Recommendation
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM recommendations WHERE hotel_id = ? AND id = ? LIMIT 1`,
		hotelID, id,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, status recdomain.Status) ([]recdomain.Recommendation, error) {
	var recs []recdomain.Recommendation
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM recommendations WHERE hotel_id = ? AND status = ? ORDER BY stay_date ASC`,
		hotelID, status,
	).Scan(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *repo) ExpirePending(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, stayDate time.Time, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE recommendations
		 SET status = ?, updated_at = ?
		 WHERE hotel_id = ? AND stay_date = ? AND status = ?`,
		recdomain.StatusExpired, now, hotelID, stayDate, recdomain.StatusPending,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Decide(ctx context.Context, db *gorm.DB, hotelID, id snowflake.ID, status recdomain.Status, decidedBy string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE recommendations
		 SET status = ?, decided_by = ?, decided_at = ?, updated_at = ?
		 WHERE hotel_id = ? AND id = ? AND status = ?`,
		status, decidedBy, now, now, hotelID, id, recdomain.StatusPending,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ExpireOverdue(ctx context.Context, db *gorm.DB, today time.Time, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE recommendations
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND stay_date < ?`,
		recdomain.StatusExpired, now, recdomain.StatusPending, today,
	)
	return res.RowsAffected, res.Error
}
