package retention

import (
	"context"
	"time"

	"github.com/ratepulse/ratepulse/internal/clock"
	"github.com/ratepulse/ratepulse/internal/policy"
	recdomain "github.com/ratepulse/ratepulse/internal/recommendation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB                *gorm.DB
	Log               *zap.Logger
	Clock             clock.Clock
	Policy            *policy.Holder
	RecommendationSvc recdomain.Service
}

// Purger applies the retention windows. Every category runs in bounded
// batches and is isolated: one failing category never blocks the rest.
type Purger struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	policy *policy.Holder
	recSvc recdomain.Service
}

// PurgeSummary reports one cleanup pass.
type PurgeSummary struct {
	RawPayloadsCleared           int64     `json:"raw_payloads_cleared"`
	RawResponsesPurged           int64     `json:"raw_responses_purged"`
	PastStayRatesPurged          int64     `json:"past_stay_rates_purged"`
	OldSnapshotsPurged           int64     `json:"old_snapshots_purged"`
	OldCompetitorRatesPurged     int64     `json:"old_competitor_rates_purged"`
	RecommendationsExpired       int64     `json:"recommendations_expired"`
	ExpiredRecommendationsPurged int64     `json:"expired_recommendations_purged"`
	CategoryErrors               int       `json:"category_errors"`
	StartedAt                    time.Time `json:"started_at"`
	CompletedAt                  time.Time `json:"completed_at"`
}

func New(p Params) *Purger {
	return &Purger{
		db:     p.DB,
		log:    p.Log.Named("retention.purger"),
		clock:  p.Clock,
		policy: p.Policy,
		recSvc: p.RecommendationSvc,
	}
}

func (p *Purger) Run(ctx context.Context) (*PurgeSummary, error) {
	pol := p.policy.Get()
	now := p.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	batch := pol.Scheduler.PurgeBatchSize
	if batch <= 0 {
		batch = 500
	}

	summary := &PurgeSummary{StartedAt: now}

	categories := []struct {
		name string
		run  func() (int64, error)
	}{
		{"raw_payloads", func() (int64, error) {
			cutoff := now.AddDate(0, 0, -pol.Retention.RawResponseDays)
			return p.clearRawPayloads(ctx, cutoff, batch)
		}},
		{"raw_responses", func() (int64, error) {
			cutoff := now.AddDate(0, 0, -pol.Retention.CompetitorRateMaxDays)
			return p.batchDelete(ctx, batch,
				`DELETE FROM raw_responses WHERE id IN (
					SELECT id FROM raw_responses WHERE fetched_at < ? LIMIT ?
				)`, cutoff)
		}},
		{"past_stay_rates", func() (int64, error) {
			cutoff := today.AddDate(0, 0, -pol.Retention.PastStayGraceDays)
			return p.batchDelete(ctx, batch,
				`DELETE FROM competitor_rates WHERE id IN (
					SELECT id FROM competitor_rates WHERE stay_date < ? LIMIT ?
				)`, cutoff)
		}},
		{"old_snapshots", func() (int64, error) {
			dailyCutoff := today.AddDate(0, 0, -pol.Retention.SnapshotDays)
			purged, err := p.batchDelete(ctx, batch,
				`DELETE FROM market_snapshots WHERE id IN (
					SELECT id FROM market_snapshots WHERE frequency <> 'monthly' AND as_of_date < ? LIMIT ?
				)`, dailyCutoff)
			if err != nil {
				return purged, err
			}
			monthlyCutoff := today.AddDate(0, -pol.Retention.MonthlySnapshotMonths, 0)
			monthly, err := p.batchDelete(ctx, batch,
				`DELETE FROM market_snapshots WHERE id IN (
					SELECT id FROM market_snapshots WHERE frequency = 'monthly' AND as_of_date < ? LIMIT ?
				)`, monthlyCutoff)
			return purged + monthly, err
		}},
		{"old_competitor_rates", func() (int64, error) {
			cutoff := now.AddDate(0, 0, -pol.Retention.CompetitorRateMaxDays)
			return p.batchDelete(ctx, batch,
				`DELETE FROM competitor_rates WHERE id IN (
					SELECT id FROM competitor_rates WHERE observed_at < ? LIMIT ?
				)`, cutoff)
		}},
	}

	for _, category := range categories {
		count, err := category.run()
		if err != nil {
			summary.CategoryErrors++
			p.log.Error("purge category failed",
				zap.String("category", category.name),
				zap.Error(err),
			)
		}
		switch category.name {
		case "raw_payloads":
			summary.RawPayloadsCleared = count
		case "raw_responses":
			summary.RawResponsesPurged = count
		case "past_stay_rates":
			summary.PastStayRatesPurged = count
		case "old_snapshots":
			summary.OldSnapshotsPurged = count
		case "old_competitor_rates":
			summary.OldCompetitorRatesPurged = count
		}
	}

	// Recommendations expire before they delete so a pending row never
	// vanishes without passing through the expired state.
	expired, err := p.recSvc.ExpireOverdue(ctx)
	if err != nil {
		summary.CategoryErrors++
		p.log.Error("purge category failed", zap.String("category", "expire_recommendations"), zap.Error(err))
	}
	summary.RecommendationsExpired = expired

	graceCutoff := now.AddDate(0, 0, -pol.Retention.RecommendationGraceDays)
	purged, err := p.batchDelete(ctx, batch,
		`DELETE FROM recommendations WHERE id IN (
			SELECT id FROM recommendations WHERE status = 'expired' AND updated_at < ? LIMIT ?
		)`, graceCutoff)
	if err != nil {
		summary.CategoryErrors++
		p.log.Error("purge category failed", zap.String("category", "expired_recommendations"), zap.Error(err))
	}
	summary.ExpiredRecommendationsPurged = purged

	summary.CompletedAt = p.clock.Now().UTC()
	p.log.Info("retention purge finished",
		zap.Int64("raw_payloads_cleared", summary.RawPayloadsCleared),
		zap.Int64("past_stay_rates_purged", summary.PastStayRatesPurged),
		zap.Int64("old_snapshots_purged", summary.OldSnapshotsPurged),
		zap.Int64("old_competitor_rates_purged", summary.OldCompetitorRatesPurged),
		zap.Int64("expired_recommendations_purged", summary.ExpiredRecommendationsPurged),
		zap.Int("category_errors", summary.CategoryErrors),
	)
	return summary, nil
}

// clearRawPayloads nulls the stored provider body past the diagnostic
// window but keeps the row for the fetch audit trail.
func (p *Purger) clearRawPayloads(ctx context.Context, cutoff time.Time, batch int) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res := p.db.WithContext(ctx).Exec(
			`UPDATE raw_responses SET payload = NULL WHERE id IN (
				SELECT id FROM raw_responses WHERE payload IS NOT NULL AND payload <> '' AND fetched_at < ? LIMIT ?
			)`, cutoff, batch)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
		if res.RowsAffected < int64(batch) {
			return total, nil
		}
	}
}

func (p *Purger) batchDelete(ctx context.Context, batch int, query string, cutoff time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res := p.db.WithContext(ctx).Exec(query, cutoff, batch)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
		if res.RowsAffected < int64(batch) {
			return total, nil
		}
	}
}
