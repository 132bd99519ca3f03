package retention

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ratepulse/ratepulse/internal/clock"
	"github.com/ratepulse/ratepulse/internal/policy"
	recrepo "github.com/ratepulse/ratepulse/internal/recommendation/repository"
	recservice "github.com/ratepulse/ratepulse/internal/recommendation/service"
	snapshotrepo "github.com/ratepulse/ratepulse/internal/snapshot/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupPurger(t *testing.T, pol policy.Policy) (*Purger, *gorm.DB, time.Time) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	for _, stmt := range []string{
		`CREATE TABLE raw_responses (
			id INTEGER PRIMARY KEY,
			hotel_id INTEGER NOT NULL,
			competitor_id INTEGER NOT NULL,
			search_id TEXT,
			stay_date DATE NOT NULL,
			offset_days INTEGER NOT NULL,
			success BOOLEAN NOT NULL,
			payload TEXT,
			error_detail TEXT,
			fetched_at DATETIME NOT NULL
		)`,
		`CREATE TABLE competitor_rates (
			id INTEGER PRIMARY KEY,
			hotel_id INTEGER NOT NULL,
			competitor_id INTEGER NOT NULL,
			stay_date DATE NOT NULL,
			offset_days INTEGER NOT NULL,
			source TEXT NOT NULL,
			price INTEGER NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			availability_status TEXT NOT NULL,
			data_confidence TEXT NOT NULL,
			price_source_level INTEGER NOT NULL DEFAULT 0,
			is_official BOOLEAN NOT NULL DEFAULT 0,
			observed_at DATETIME NOT NULL
		)`,
		`CREATE TABLE market_snapshots (
			id INTEGER PRIMARY KEY,
			hotel_id INTEGER NOT NULL,
			as_of_date DATE NOT NULL,
			stay_date DATE NOT NULL,
			frequency TEXT NOT NULL,
			offset_days INTEGER NOT NULL,
			my_rate INTEGER,
			min_price INTEGER NOT NULL DEFAULT 0,
			median_price INTEGER NOT NULL DEFAULT 0,
			max_price INTEGER NOT NULL DEFAULT 0,
			avg_price INTEGER NOT NULL DEFAULT 0,
			competitor_count INTEGER NOT NULL DEFAULT 0,
			no_rate_count INTEGER NOT NULL DEFAULT 0,
			demand_strength TEXT NOT NULL,
			market_confidence TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (hotel_id, as_of_date, stay_date, frequency)
		)`,
		`CREATE TABLE recommendations (
			id INTEGER PRIMARY KEY,
			hotel_id INTEGER NOT NULL,
			stay_date DATE NOT NULL,
			as_of_date DATE NOT NULL,
			current_price INTEGER,
			suggested_price INTEGER NOT NULL,
			delta_pct REAL NOT NULL DEFAULT 0,
			basis TEXT,
			confidence TEXT,
			status TEXT NOT NULL,
			decided_by TEXT,
			decided_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	node, err := snowflake.NewNode(6)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	now := time.Date(2026, 6, 1, 0, 30, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)
	holder := policy.NewStaticHolder(pol)

	recSvc := recservice.New(recservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fake,
		Policy:    holder,
		Repo:      recrepo.Provide(),
		Snapshots: snapshotrepo.Provide(),
	})

	purger := New(Params{
		DB:                db,
		Log:               zap.NewNop(),
		Clock:             fake,
		Policy:            holder,
		RecommendationSvc: recSvc,
	})
	return purger, db, now
}

func seedRawResponse(t *testing.T, db *gorm.DB, id int64, payload string, fetchedAt time.Time) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO raw_responses (id, hotel_id, competitor_id, search_id, stay_date, offset_days, success, payload, error_detail, fetched_at)
		 VALUES (?, 100, 200, 'search-1', ?, 7, 1, ?, '', ?)`,
		id, fetchedAt.AddDate(0, 0, 7), payload, fetchedAt,
	).Error
	if err != nil {
		t.Fatalf("seed raw response: %v", err)
	}
}

func seedRate(t *testing.T, db *gorm.DB, id int64, stayDate, observedAt time.Time) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO competitor_rates (id, hotel_id, competitor_id, stay_date, offset_days, source, price, currency, availability_status, data_confidence, price_source_level, is_official, observed_at)
		 VALUES (?, 100, 200, ?, 7, 'Agoda.com', 1000000, 'VND', 'AVAILABLE', 'HIGH', 1, 0, ?)`,
		id, stayDate, observedAt,
	).Error
	if err != nil {
		t.Fatalf("seed rate: %v", err)
	}
}

func seedSnapshotRow(t *testing.T, db *gorm.DB, id int64, asOf time.Time, frequency string) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO market_snapshots (id, hotel_id, as_of_date, stay_date, frequency, offset_days, min_price, median_price, max_price, avg_price, competitor_count, no_rate_count, demand_strength, market_confidence, created_at, updated_at)
		 VALUES (?, 100, ?, ?, ?, 7, 1000000, 1000000, 1000000, 1000000, 2, 0, 'NORMAL', 'MED', ?, ?)`,
		id, asOf, asOf.AddDate(0, 0, 7), frequency, asOf, asOf,
	).Error
	if err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
}

func seedRecommendation(t *testing.T, db *gorm.DB, id int64, status string, stayDate, updatedAt time.Time) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO recommendations (id, hotel_id, stay_date, as_of_date, suggested_price, delta_pct, basis, confidence, status, created_at, updated_at)
		 VALUES (?, 100, ?, ?, 1000000, 0, 'OVERPRICED', 'MED', ?, ?, ?)`,
		id, stayDate, updatedAt, status, updatedAt, updatedAt,
	).Error
	if err != nil {
		t.Fatalf("seed recommendation: %v", err)
	}
}

func countRows(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestRunClearsOldRawPayloadsKeepsRows(t *testing.T) {
	purger, db, now := setupPurger(t, policy.Default())

	// Past the diagnostic window: payload goes, row stays.
	seedRawResponse(t, db, 1, `{"old":true}`, now.AddDate(0, 0, -10))
	// Exactly at the cutoff: retained, the comparison is strict.
	seedRawResponse(t, db, 2, `{"edge":true}`, now.AddDate(0, 0, -7))
	// Fresh.
	seedRawResponse(t, db, 3, `{"fresh":true}`, now.Add(-time.Hour))

	summary, err := purger.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RawPayloadsCleared != 1 {
		t.Fatalf("expected 1 payload cleared, got %+v", summary)
	}
	if summary.CategoryErrors != 0 {
		t.Fatalf("unexpected category errors: %+v", summary)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM raw_responses`); got != 3 {
		t.Fatalf("audit rows must survive, got %d", got)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM raw_responses WHERE payload IS NULL`); got != 1 {
		t.Fatalf("expected exactly one nulled payload, got %d", got)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM raw_responses WHERE id = 2 AND payload IS NOT NULL`); got != 1 {
		t.Fatalf("cutoff boundary row lost its payload")
	}
}

func TestRunPurgesPastStayRates(t *testing.T) {
	purger, db, now := setupPurger(t, policy.Default())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Stay passed more than the grace window ago.
	seedRate(t, db, 1, today.AddDate(0, 0, -8), now.Add(-time.Hour))
	// Exactly at the grace boundary: retained.
	seedRate(t, db, 2, today.AddDate(0, 0, -7), now.Add(-time.Hour))
	// Future stay.
	seedRate(t, db, 3, today.AddDate(0, 0, 7), now.Add(-time.Hour))

	summary, err := purger.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.PastStayRatesPurged != 1 {
		t.Fatalf("expected 1 past-stay rate purged, got %+v", summary)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM competitor_rates`); got != 2 {
		t.Fatalf("expected 2 surviving rates, got %d", got)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM competitor_rates WHERE id = 1`); got != 0 {
		t.Fatalf("past-stay rate survived the purge")
	}
}

func TestRunKeepsMonthlySnapshotsLonger(t *testing.T) {
	purger, db, now := setupPurger(t, policy.Default())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	seedSnapshotRow(t, db, 1, today.AddDate(0, 0, -5), "daily")
	seedSnapshotRow(t, db, 2, today, "daily")
	// Monthly rows outlive the daily window by a year.
	seedSnapshotRow(t, db, 3, today.AddDate(0, -6, 0), "monthly")
	seedSnapshotRow(t, db, 4, today.AddDate(0, -13, 0), "monthly")

	summary, err := purger.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.OldSnapshotsPurged != 2 {
		t.Fatalf("expected 2 snapshots purged, got %+v", summary)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM market_snapshots WHERE id IN (2, 3)`); got != 2 {
		t.Fatalf("expected fresh daily and mid-age monthly to survive, got %d", got)
	}
}

func TestRunPurgesStaleObservations(t *testing.T) {
	pol := policy.Default()
	pol.Scheduler.PurgeBatchSize = 2
	purger, db, now := setupPurger(t, pol)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Five stale observations force the delete through multiple batches.
	for i := int64(1); i <= 5; i++ {
		seedRate(t, db, i, today.AddDate(0, 0, 7), now.AddDate(0, 0, -95))
	}
	seedRate(t, db, 6, today.AddDate(0, 0, 7), now.Add(-time.Hour))

	summary, err := purger.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.OldCompetitorRatesPurged != 5 {
		t.Fatalf("expected 5 stale observations purged, got %+v", summary)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM competitor_rates`); got != 1 {
		t.Fatalf("expected 1 surviving observation, got %d", got)
	}
}

func TestRunExpiresThenDeletesRecommendations(t *testing.T) {
	purger, db, now := setupPurger(t, policy.Default())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Pending for a stay date that passed: must expire, not vanish.
	seedRecommendation(t, db, 1, "pending", today.AddDate(0, 0, -2), now.AddDate(0, 0, -3))
	// Expired long past grace: deleted.
	seedRecommendation(t, db, 2, "expired", today.AddDate(0, 0, -20), now.AddDate(0, 0, -10))
	// Expired within grace: retained.
	seedRecommendation(t, db, 3, "expired", today.AddDate(0, 0, -10), now.AddDate(0, 0, -2))
	// Accepted rows are history, never purged here.
	seedRecommendation(t, db, 4, "accepted", today.AddDate(0, 0, -20), now.AddDate(0, 0, -10))

	summary, err := purger.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RecommendationsExpired != 1 {
		t.Fatalf("expected 1 pending expired, got %+v", summary)
	}
	if summary.ExpiredRecommendationsPurged != 1 {
		t.Fatalf("expected 1 expired row purged, got %+v", summary)
	}

	var status string
	if err := db.Raw(`SELECT status FROM recommendations WHERE id = 1`).Scan(&status).Error; err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != "expired" {
		t.Fatalf("pending row should expire first, got %q", status)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM recommendations WHERE id = 2`); got != 0 {
		t.Fatalf("stale expired row survived")
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM recommendations WHERE id IN (3, 4)`); got != 2 {
		t.Fatalf("grace-window or decided rows were purged")
	}
}
