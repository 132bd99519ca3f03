package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ratepulse/ratepulse/internal/clock"
	"github.com/ratepulse/ratepulse/internal/policy"
	recdomain "github.com/ratepulse/ratepulse/internal/recommendation/domain"
	snapshotdomain "github.com/ratepulse/ratepulse/internal/snapshot/domain"
	"github.com/ratepulse/ratepulse/internal/snapshot/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recommendationStub struct {
	mu    sync.Mutex
	calls int
}

func (r *recommendationStub) Generate(ctx context.Context, hotelID snowflake.ID, asOfDate time.Time) (*recdomain.GenerateSummary, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return &recdomain.GenerateSummary{}, nil
}

func (r *recommendationStub) ListPending(ctx context.Context, hotelID string) ([]recdomain.Recommendation, error) {
	return nil, nil
}

func (r *recommendationStub) Accept(ctx context.Context, hotelID, id, decidedBy string) (*recdomain.Recommendation, error) {
	return nil, nil
}

func (r *recommendationStub) Reject(ctx context.Context, hotelID, id, decidedBy string) (*recdomain.Recommendation, error) {
	return nil, nil
}

func (r *recommendationStub) ExpireOverdue(ctx context.Context) (int64, error) {
	return 0, nil
}

func (r *recommendationStub) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func setupSnapshotService(t *testing.T, rec recdomain.Service, pol policy.Policy) (snapshotdomain.Service, *gorm.DB, *clock.FakeClock) {
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
		`CREATE TABLE competitors (
			id INTEGER PRIMARY KEY,
			hotel_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			property_token TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
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
	} {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC))

	service := New(Params{
		DB:                db,
		Log:               zap.NewNop(),
		GenID:             node,
		Clock:             fake,
		Policy:            policy.NewStaticHolder(pol),
		Repo:              repository.Provide(),
		RecommendationSvc: rec,
	})
	return service, db, fake
}

func seedCompetitor(t *testing.T, db *gorm.DB, id, hotelID snowflake.ID, active bool) {
	t.Helper()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	err := db.Exec(
		`INSERT INTO competitors (id, hotel_id, name, property_token, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, hotelID, fmt.Sprintf("Hotel %d", id), fmt.Sprintf("tok-%d", id), active, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed competitor: %v", err)
	}
}

func seedRate(t *testing.T, db *gorm.DB, id, hotelID, competitorID snowflake.ID, stayDate time.Time, source string, price int64, level int, observedAt time.Time) {
	t.Helper()
	availability := "AVAILABLE"
	confidence := "HIGH"
	if price <= 0 {
		availability = "NO_RATE"
		confidence = "LOW"
	}
	err := db.Exec(
		`INSERT INTO competitor_rates (id, hotel_id, competitor_id, stay_date, offset_days, source, price, currency, availability_status, data_confidence, price_source_level, is_official, observed_at)
		 VALUES (?, ?, ?, ?, 7, ?, ?, 'VND', ?, ?, ?, 0, ?)`,
		id, hotelID, competitorID, stayDate, source, price, availability, confidence, level, observedAt,
	).Error
	if err != nil {
		t.Fatalf("seed rate: %v", err)
	}
}

func snapshotPolicy(offsets ...int) policy.Policy {
	pol := policy.Default()
	pol.OffsetDays = offsets
	return pol
}

func TestBuildAggregatesLatestRates(t *testing.T) {
	rec := &recommendationStub{}
	service, db, fake := setupSnapshotService(t, rec, snapshotPolicy(7))
	hotelID := snowflake.ID(100)
	seedCompetitor(t, db, 1, hotelID, true)
	seedCompetitor(t, db, 2, hotelID, true)

	stay := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	now := fake.Now()
	// Competitor 1 has a superseded Agoda price; only the newest counts.
	seedRate(t, db, 10, hotelID, 1, stay, "Agoda", 1200000, 1, now.Add(-6*time.Hour))
	seedRate(t, db, 11, hotelID, 1, stay, "Agoda", 1000000, 1, now.Add(-1*time.Hour))
	seedRate(t, db, 12, hotelID, 2, stay, "Booking.com", 2000000, 2, now.Add(-2*time.Hour))
	seedRate(t, db, 13, hotelID, 2, stay, "Agoda", 0, 0, now.Add(-2*time.Hour))

	summary, err := service.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if summary.TotalHotels != 1 || summary.TotalSnapshots != 1 || summary.TotalFailed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if rec.Calls() != 1 {
		t.Fatalf("expected recommendation generation once, got %d", rec.Calls())
	}

	var snap struct {
		MinPrice        int64
		MedianPrice     int64
		MaxPrice        int64
		AvgPrice        int64
		CompetitorCount int
		NoRateCount     int
	}
	if err := db.Raw(`SELECT min_price, median_price, max_price, avg_price, competitor_count, no_rate_count FROM market_snapshots`).Scan(&snap).Error; err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.MinPrice != 1000000 || snap.MaxPrice != 2000000 || snap.MedianPrice != 1500000 || snap.AvgPrice != 1500000 {
		t.Fatalf("unexpected aggregates: %+v", snap)
	}
	if snap.CompetitorCount != 2 || snap.NoRateCount != 1 {
		t.Fatalf("unexpected counts: %+v", snap)
	}
}

func TestBuildUpsertsOnRerun(t *testing.T) {
	service, db, fake := setupSnapshotService(t, &recommendationStub{}, snapshotPolicy(7))
	hotelID := snowflake.ID(100)
	seedCompetitor(t, db, 1, hotelID, true)
	seedCompetitor(t, db, 2, hotelID, true)

	stay := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	seedRate(t, db, 10, hotelID, 1, stay, "Agoda", 1000000, 1, fake.Now().Add(-time.Hour))
	seedRate(t, db, 11, hotelID, 2, stay, "Booking.com", 1400000, 1, fake.Now().Add(-time.Hour))

	if _, err := service.Build(context.Background()); err != nil {
		t.Fatalf("first build: %v", err)
	}
	// A newer price lands before the rebuild.
	seedRate(t, db, 12, hotelID, 1, stay, "Agoda", 1100000, 1, fake.Now().Add(-time.Minute))
	if _, err := service.Build(context.Background()); err != nil {
		t.Fatalf("second build: %v", err)
	}

	var rows int64
	if err := db.Raw(`SELECT COUNT(1) FROM market_snapshots`).Scan(&rows).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected rerun to upsert the same row, got %d rows", rows)
	}

	var minPrice int64
	if err := db.Raw(`SELECT min_price FROM market_snapshots`).Scan(&minPrice).Error; err != nil {
		t.Fatalf("read: %v", err)
	}
	if minPrice != 1100000 {
		t.Fatalf("expected rebuilt aggregate, got min %d", minPrice)
	}
}

func TestBuildExcludesInactiveCompetitors(t *testing.T) {
	service, db, fake := setupSnapshotService(t, &recommendationStub{}, snapshotPolicy(7))
	hotelID := snowflake.ID(100)
	seedCompetitor(t, db, 1, hotelID, true)
	seedCompetitor(t, db, 2, hotelID, false)

	stay := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	seedRate(t, db, 10, hotelID, 1, stay, "Agoda", 1000000, 1, fake.Now().Add(-time.Hour))
	seedRate(t, db, 11, hotelID, 2, stay, "Booking.com", 500000, 1, fake.Now().Add(-time.Hour))

	if _, err := service.Build(context.Background()); err != nil {
		t.Fatalf("build: %v", err)
	}

	var snap struct {
		MinPrice        int64
		CompetitorCount int
	}
	if err := db.Raw(`SELECT min_price, competitor_count FROM market_snapshots`).Scan(&snap).Error; err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.MinPrice != 1000000 || snap.CompetitorCount != 1 {
		t.Fatalf("expected removed competitor excluded, got %+v", snap)
	}
}

func TestBackfillMissingOnlySkipsExisting(t *testing.T) {
	service, db, _ := setupSnapshotService(t, &recommendationStub{}, snapshotPolicy(7))
	hotelID := snowflake.ID(100)
	seedCompetitor(t, db, 1, hotelID, true)
	seedCompetitor(t, db, 2, hotelID, true)

	asOf := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	stay := asOf.AddDate(0, 0, 7)
	seedRate(t, db, 10, hotelID, 1, stay, "Agoda", 1000000, 1, asOf.Add(10*time.Hour))
	seedRate(t, db, 11, hotelID, 2, stay, "Booking.com", 1200000, 1, asOf.Add(11*time.Hour))

	req := snapshotdomain.BackfillRequest{
		From:      asOf,
		To:        asOf,
		Frequency: snapshotdomain.FrequencyDaily,
	}
	first, err := service.Backfill(context.Background(), req)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if first.TotalSnapshots != 1 {
		t.Fatalf("expected one snapshot written, got %+v", first)
	}

	req.MissingOnly = true
	second, err := service.Backfill(context.Background(), req)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if second.TotalSnapshots != 0 || second.TotalSkipped != 1 {
		t.Fatalf("expected missing-only to skip, got %+v", second)
	}
}

func TestBackfillRejectsUnknownFrequency(t *testing.T) {
	service, _, _ := setupSnapshotService(t, &recommendationStub{}, snapshotPolicy(7))

	_, err := service.Backfill(context.Background(), snapshotdomain.BackfillRequest{
		From:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Frequency: "hourly",
	})
	if err != snapshotdomain.ErrInvalidFrequency {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}
