package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	snapshotdomain "github.com/ratepulse/ratepulse/internal/snapshot/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() snapshotdomain.Repository {
	return &repo{}
}

func (r *repo) ListActiveHotelIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT hotel_id FROM competitors WHERE active ORDER BY hotel_id ASC`,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) LatestRates(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, stayDate, observedBefore time.Time) ([]snapshotdomain.RatePoint, error) {
	var points []snapshotdomain.RatePoint
	err := db.WithContext(ctx).Raw(
		`SELECT r.competitor_id, r.source, r.price, r.price_source_level
		 FROM competitor_rates r
		 JOIN competitors c ON c.id = r.competitor_id AND c.active
		 JOIN (
			SELECT competitor_id, source, MAX(observed_at) AS observed_at
			FROM competitor_rates
			WHERE hotel_id = ? AND stay_date = ? AND observed_at < ?
			GROUP BY competitor_id, source
		 ) latest ON latest.competitor_id = r.competitor_id
			AND latest.source = r.source
			AND latest.observed_at = r.observed_at
		 WHERE r.hotel_id = ? AND r.stay_date = ?`,
		hotelID, stayDate, observedBefore,
		hotelID, stayDate,
	).Scan(&points).Error
	if err != nil {
		return nil, err
	}
	return points, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, snap *snapshotdomain.MarketSnapshot) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO market_snapshots (id, hotel_id, as_of_date, stay_date, frequency, offset_days, my_rate, min_price, median_price, max_price, avg_price, competitor_count, no_rate_count, demand_strength, market_confidence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (hotel_id, as_of_date, stay_date, frequency) DO UPDATE SET
			offset_days = excluded.offset_days,
			my_rate = excluded.my_rate,
			min_price = excluded.min_price,
			median_price = excluded.median_price,
			max_price = excluded.max_price,
			avg_price = excluded.avg_price,
			competitor_count = excluded.competitor_count,
			no_rate_count = excluded.no_rate_count,
			demand_strength = excluded.demand_strength,
			market_confidence = excluded.market_confidence,
			updated_at = excluded.updated_at`,
		snap.ID,
		snap.HotelID,
		snap.AsOfDate,
		snap.StayDate,
		snap.Frequency,
		snap.OffsetDays,
		snap.MyRate,
		snap.MinPrice,
		snap.MedianPrice,
		snap.MaxPrice,
		snap.AvgPrice,
		snap.CompetitorCount,
		snap.NoRateCount,
		snap.DemandStrength,
		snap.MarketConfidence,
		snap.CreatedAt,
		snap.UpdatedAt,
	).Error
}

func (r *repo) Exists(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, asOfDate time.Time, frequency snapshotdomain.Frequency) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM market_snapshots WHERE hotel_id = ? AND as_of_date = ? AND frequency = ?`,
		hotelID, asOfDate, frequency,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListByAsOf(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, asOfDate time.Time, frequency snapshotdomain.Frequency) ([]snapshotdomain.MarketSnapshot, error) {
	var snaps []snapshotdomain.MarketSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM market_snapshots
		 WHERE hotel_id = ? AND as_of_date = ? AND frequency = ?
		 ORDER BY stay_date ASC`,
		hotelID, asOfDate, frequency,
	).Scan(&snaps).Error
	if err != nil {
		return nil, err
	}
	return snaps, nil
}
