package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// ListActiveHotelIDs returns every hotel with at least one active
	// competitor.
	ListActiveHotelIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)

	// LatestRates returns the newest observation per (competitor, source)
	// for a stay date, restricted to active competitors and observations
	// strictly before the cutoff. NO_RATE rows are included.
	LatestRates(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, stayDate, observedBefore time.Time) ([]RatePoint, error)

	// Upsert inserts or replaces the row for the snapshot's unique key.
	Upsert(ctx context.Context, db *gorm.DB, snap *MarketSnapshot) error

	// Exists reports whether any snapshot row exists for the triple.
	Exists(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, asOfDate time.Time, frequency Frequency) (bool, error)

	// ListByAsOf returns the snapshots for one hotel and as-of date,
	// ordered by stay date. Consumed by the recommendation engine.
	ListByAsOf(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, asOfDate time.Time, frequency Frequency) ([]MarketSnapshot, error)
}
