package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ratepulse/ratepulse/internal/clock"
	collectordomain "github.com/ratepulse/ratepulse/internal/collector/domain"
	"github.com/ratepulse/ratepulse/internal/policy"
	quotadomain "github.com/ratepulse/ratepulse/internal/quota/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type collectorStub struct {
	mu      sync.Mutex
	targets []collectordomain.FetchTarget
	failFor map[snowflake.ID]error
	block   bool
}

func (c *collectorStub) Fetch(ctx context.Context, target collectordomain.FetchTarget) (*collectordomain.FetchOutcome, error) {
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c.mu.Lock()
	c.targets = append(c.targets, target)
	c.mu.Unlock()
	if err, ok := c.failFor[target.CompetitorID]; ok {
		return nil, err
	}
	return &collectordomain.FetchOutcome{SearchID: "search-1", RatesStored: 2}, nil
}

func (c *collectorStub) ManualScan(ctx context.Context, req collectordomain.ManualScanRequest) (*collectordomain.ManualScanResult, error) {
	return nil, errors.New("not implemented")
}

func (c *collectorStub) Targets() []collectordomain.FetchTarget {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]collectordomain.FetchTarget(nil), c.targets...)
}

type quotaStub struct {
	mu     sync.Mutex
	grants int
	served int
	reason quotadomain.DenyReason
}

func (q *quotaStub) Reserve(ctx context.Context, hotelID string) (quotadomain.Reservation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.served++
	if q.grants >= 0 && q.served > q.grants {
		reason := q.reason
		if reason == "" {
			reason = quotadomain.DenySystemBudget
		}
		return quotadomain.Reservation{Allowed: false, Reason: reason}, nil
	}
	return quotadomain.Reservation{Allowed: true}, nil
}

func (q *quotaStub) TenantUsage(ctx context.Context, hotelID string) (*quotadomain.TenantUsage, error) {
	return &quotadomain.TenantUsage{}, nil
}

func (q *quotaStub) SystemUsage(ctx context.Context) (*quotadomain.SystemUsage, error) {
	return &quotadomain.SystemUsage{}, nil
}

func setupScheduler(t *testing.T, collector collectordomain.Service, quota quotadomain.Service, pol policy.Policy) (*Scheduler, *gorm.DB, *clock.FakeClock) {
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
			updated_at DATETIME NOT NULL,
			UNIQUE (hotel_id, property_token)
		)`,
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
	} {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	sched, err := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		CollectorSvc: collector,
		QuotaSvc:     quota,
		GenID:        node,
		Clock:        fake,
		Policy:       policy.NewStaticHolder(pol),
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return sched, db, fake
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

func seedFetch(t *testing.T, db *gorm.DB, id, hotelID, competitorID snowflake.ID, stayDate, fetchedAt time.Time, success bool) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO raw_responses (id, hotel_id, competitor_id, search_id, stay_date, offset_days, success, payload, error_detail, fetched_at)
		 VALUES (?, ?, ?, '', ?, 7, ?, '', '', ?)`,
		id, hotelID, competitorID, stayDate, success, fetchedAt,
	).Error
	if err != nil {
		t.Fatalf("seed fetch: %v", err)
	}
}

func refreshPolicy(offsets ...int) policy.Policy {
	pol := policy.Default()
	pol.OffsetDays = offsets
	return pol
}

func TestRunOnceRefreshesDueItems(t *testing.T) {
	collector := &collectorStub{}
	sched, db, fake := setupScheduler(t, collector, &quotaStub{grants: -1}, refreshPolicy(7))
	hotelID := snowflake.ID(100)
	seedCompetitor(t, db, 1, hotelID, true)
	seedCompetitor(t, db, 2, hotelID, true)
	seedCompetitor(t, db, 3, hotelID, false)

	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.TotalChecked != 2 || summary.Refreshed != 2 || summary.BudgetUsed != 2 {
		t.Fatalf("expected both active competitors refreshed, got %+v", summary)
	}

	wantStay := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	for _, target := range collector.Targets() {
		if !target.StayDate.Equal(wantStay) || target.OffsetDays != 7 {
			t.Fatalf("unexpected target: %+v", target)
		}
	}

	// A successful fetch written inside the staleness window makes the
	// pair fresh; an immediate second run has nothing to do.
	now := fake.Now()
	seedFetch(t, db, 10, hotelID, 1, wantStay, now, true)
	seedFetch(t, db, 11, hotelID, 2, wantStay, now, true)

	again, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.TotalChecked != 0 {
		t.Fatalf("expected idempotent second run, got %+v", again)
	}
}

func TestRunOnceSkipsFreshAndPicksStale(t *testing.T) {
	collector := &collectorStub{}
	sched, db, fake := setupScheduler(t, collector, &quotaStub{grants: -1}, refreshPolicy(7))
	hotelID := snowflake.ID(100)
	seedCompetitor(t, db, 1, hotelID, true)
	seedCompetitor(t, db, 2, hotelID, true)

	stay := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	now := fake.Now()
	// Offset 7 falls in the 2h band: 10 minutes old is fresh, 3 hours is stale.
	seedFetch(t, db, 10, hotelID, 1, stay, now.Add(-10*time.Minute), true)
	seedFetch(t, db, 11, hotelID, 2, stay, now.Add(-3*time.Hour), true)

	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.TotalChecked != 1 || summary.Refreshed != 1 {
		t.Fatalf("expected only the stale pair, got %+v", summary)
	}
	targets := collector.Targets()
	if len(targets) != 1 || targets[0].CompetitorID != 2 {
		t.Fatalf("expected competitor 2 refreshed, got %+v", targets)
	}
}

func TestRunOnceFailedFetchDoesNotMarkFresh(t *testing.T) {
	collector := &collectorStub{}
	sched, db, fake := setupScheduler(t, collector, &quotaStub{grants: -1}, refreshPolicy(7))
	hotelID := snowflake.ID(100)
	seedCompetitor(t, db, 1, hotelID, true)

	stay := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	// Only a failed attempt exists, recent. The pair stays due.
	seedFetch(t, db, 10, hotelID, 1, stay, fake.Now().Add(-5*time.Minute), false)

	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.TotalChecked != 1 {
		t.Fatalf("expected failed fetch to leave the pair due, got %+v", summary)
	}
}

func TestRunOnceQuotaExhaustionSkipsRemainder(t *testing.T) {
	collector := &collectorStub{}
	quota := &quotaStub{grants: 1, reason: quotadomain.DenySystemBudget}
	pol := refreshPolicy(7)
	pol.Scheduler.Workers = 1
	sched, db, _ := setupScheduler(t, collector, quota, pol)
	hotelID := snowflake.ID(100)
	for i := 1; i <= 3; i++ {
		seedCompetitor(t, db, snowflake.ID(i), hotelID, true)
	}

	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.Refreshed != 1 || summary.Skipped != 2 || summary.BudgetUsed != 1 {
		t.Fatalf("expected 1 refreshed / 2 skipped, got %+v", summary)
	}
	if len(collector.Targets()) != 1 {
		t.Fatalf("expected denied items to skip the fetch, got %d calls", len(collector.Targets()))
	}
}

func TestRunOnceOrdersNeverFetchedFirstAndCapsBatch(t *testing.T) {
	collector := &collectorStub{}
	pol := refreshPolicy(7)
	pol.Scheduler.BatchLimit = 2
	pol.Scheduler.Workers = 1
	sched, db, fake := setupScheduler(t, collector, &quotaStub{grants: -1}, pol)
	hotelID := snowflake.ID(100)
	seedCompetitor(t, db, 1, hotelID, true)
	seedCompetitor(t, db, 2, hotelID, true)
	seedCompetitor(t, db, 3, hotelID, true)

	stay := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	now := fake.Now()
	// 1 was fetched 3h ago, 2 was fetched 5h ago, 3 never.
	seedFetch(t, db, 10, hotelID, 1, stay, now.Add(-3*time.Hour), true)
	seedFetch(t, db, 11, hotelID, 2, stay, now.Add(-5*time.Hour), true)

	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.TotalChecked != 2 {
		t.Fatalf("expected batch limit to cap work, got %+v", summary)
	}
	targets := collector.Targets()
	if len(targets) != 2 || targets[0].CompetitorID != 3 || targets[1].CompetitorID != 2 {
		t.Fatalf("expected never-fetched then stalest, got %+v", targets)
	}
}

func TestRunOnceIsolatesFetchFailures(t *testing.T) {
	collector := &collectorStub{
		failFor: map[snowflake.ID]error{2: errors.New("upstream down")},
	}
	pol := refreshPolicy(7)
	pol.Scheduler.Workers = 1
	sched, db, _ := setupScheduler(t, collector, &quotaStub{grants: -1}, pol)
	hotelID := snowflake.ID(100)
	for i := 1; i <= 3; i++ {
		seedCompetitor(t, db, snowflake.ID(i), hotelID, true)
	}

	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("expected item failures kept out of the run error, got %v", err)
	}
	if summary.Refreshed != 2 || summary.Failed != 1 {
		t.Fatalf("expected 2 refreshed / 1 failed, got %+v", summary)
	}
	// The failed item consumed its reservation.
	if summary.BudgetUsed != 3 {
		t.Fatalf("expected 3 reservations consumed, got %d", summary.BudgetUsed)
	}
}

func TestRunOnceDeadlineReturnsPartialSummary(t *testing.T) {
	collector := &collectorStub{block: true}
	pol := refreshPolicy(7)
	pol.Scheduler.Workers = 1
	pol.Scheduler.RunTimeout = 50 * time.Millisecond
	sched, db, _ := setupScheduler(t, collector, &quotaStub{grants: -1}, pol)
	hotelID := snowflake.ID(100)
	for i := 1; i <= 3; i++ {
		seedCompetitor(t, db, snowflake.ID(i), hotelID, true)
	}

	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("expected soft timeout, got %v", err)
	}
	if summary == nil || summary.Refreshed != 0 {
		t.Fatalf("expected partial summary with no refreshes, got %+v", summary)
	}
	if summary.Failed+summary.Skipped != summary.TotalChecked {
		t.Fatalf("expected every item accounted for, got %+v", summary)
	}
}

func TestRunOnceUsesNewestFetchPerCompetitor(t *testing.T) {
	collector := &collectorStub{}
	sched, db, fake := setupScheduler(t, collector, &quotaStub{grants: -1}, refreshPolicy(7))
	hotelID := snowflake.ID(100)
	seedCompetitor(t, db, 1, hotelID, true)
	seedCompetitor(t, db, 2, hotelID, true)

	stay := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	now := fake.Now()
	// Each competitor carries fetch history. Only the newest successful
	// row decides freshness, regardless of insertion order.
	seedFetch(t, db, 10, hotelID, 1, stay, now.Add(-6*time.Hour), true)
	seedFetch(t, db, 11, hotelID, 1, stay, now.Add(-15*time.Minute), true)
	seedFetch(t, db, 12, hotelID, 2, stay, now.Add(-20*time.Minute), true)
	seedFetch(t, db, 13, hotelID, 2, stay, now.Add(-4*time.Hour), true)

	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.TotalChecked != 0 {
		t.Fatalf("expected fresh history to leave nothing due, got %+v", summary)
	}
	if len(collector.Targets()) != 0 {
		t.Fatalf("expected no fetches, got %+v", collector.Targets())
	}
}
