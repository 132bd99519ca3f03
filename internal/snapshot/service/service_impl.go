package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ratepulse/ratepulse/internal/clock"
	"github.com/ratepulse/ratepulse/internal/policy"
	recdomain "github.com/ratepulse/ratepulse/internal/recommendation/domain"
	snapshotdomain "github.com/ratepulse/ratepulse/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB                *gorm.DB
	Log               *zap.Logger
	GenID             *snowflake.Node
	Clock             clock.Clock
	Policy            *policy.Holder
	Repo              snapshotdomain.Repository
	RecommendationSvc recdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	policy *policy.Holder
	repo   snapshotdomain.Repository
	recSvc recdomain.Service
}

func New(p Params) snapshotdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("snapshot.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
		repo:   p.Repo,
		recSvc: p.RecommendationSvc,
	}
}

func (s *Service) Build(ctx context.Context) (*snapshotdomain.BuildSummary, error) {
	now := s.clock.Now().UTC()
	asOf := truncateToDay(now)

	summary := &snapshotdomain.BuildSummary{StartedAt: now}

	hotels, err := s.repo.ListActiveHotelIDs(ctx, s.db)
	if err != nil {
		return nil, err
	}
	summary.TotalHotels = len(hotels)

	for _, hotelID := range hotels {
		written, err := s.buildHotel(ctx, hotelID, asOf, snapshotdomain.FrequencyDaily, now)
		if err != nil {
			summary.TotalFailed++
			s.log.Error("snapshot build failed for hotel",
				zap.String("hotel_id", hotelID.String()),
				zap.Error(err),
			)
			continue
		}
		summary.TotalSnapshots += written

		if written > 0 {
			if _, err := s.recSvc.Generate(ctx, hotelID, asOf); err != nil {
				s.log.Warn("recommendation generation failed after snapshot",
					zap.String("hotel_id", hotelID.String()),
					zap.Error(err),
				)
			}
		}
	}

	summary.CompletedAt = s.clock.Now().UTC()
	s.log.Info("snapshot build finished",
		zap.Int("hotels", summary.TotalHotels),
		zap.Int("snapshots", summary.TotalSnapshots),
		zap.Int("failed", summary.TotalFailed),
	)
	return summary, nil
}

func (s *Service) Backfill(ctx context.Context, req snapshotdomain.BackfillRequest) (*snapshotdomain.BuildSummary, error) {
	if !req.Frequency.Valid() {
		return nil, snapshotdomain.ErrInvalidFrequency
	}
	now := s.clock.Now().UTC()
	from := truncateToDay(req.From)
	to := truncateToDay(req.To)
	if to.Before(from) {
		from, to = to, from
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.policy.Get().Scheduler.SnapshotLimit
	}

	summary := &snapshotdomain.BuildSummary{StartedAt: now}

	hotels, err := s.repo.ListActiveHotelIDs(ctx, s.db)
	if err != nil {
		return nil, err
	}
	summary.TotalHotels = len(hotels)

	for asOf := from; !asOf.After(to); asOf = asOf.AddDate(0, 0, 1) {
		for _, hotelID := range hotels {
			if summary.TotalSnapshots >= limit {
				summary.CompletedAt = s.clock.Now().UTC()
				return summary, nil
			}
			if req.MissingOnly {
				exists, err := s.repo.Exists(ctx, s.db, hotelID, asOf, req.Frequency)
				if err != nil {
					summary.TotalFailed++
					continue
				}
				if exists {
					summary.TotalSkipped++
					continue
				}
			}
			// A backfilled day only sees observations made up to its end.
			written, err := s.buildHotel(ctx, hotelID, asOf, req.Frequency, asOf.AddDate(0, 0, 1))
			if err != nil {
				summary.TotalFailed++
				s.log.Error("snapshot backfill failed for hotel",
					zap.String("hotel_id", hotelID.String()),
					zap.String("as_of", asOf.Format("2006-01-02")),
					zap.Error(err),
				)
				continue
			}
			summary.TotalSnapshots += written
		}
	}

	summary.CompletedAt = s.clock.Now().UTC()
	return summary, nil
}

// buildHotel writes one snapshot per policy offset that has data.
// Offsets without any observation produce no row.
func (s *Service) buildHotel(ctx context.Context, hotelID snowflake.ID, asOf time.Time, frequency snapshotdomain.Frequency, observedBefore time.Time) (int, error) {
	pol := s.policy.Get()
	now := s.clock.Now().UTC()
	written := 0

	for _, offset := range pol.OffsetDays {
		stayDate := asOf.AddDate(0, 0, offset)

		points, err := s.repo.LatestRates(ctx, s.db, hotelID, stayDate, observedBefore)
		if err != nil {
			return written, err
		}
		if len(points) == 0 {
			continue
		}

		agg := snapshotdomain.AggregateRates(points)
		snap := &snapshotdomain.MarketSnapshot{
			ID:               s.genID.Generate(),
			HotelID:          hotelID,
			AsOfDate:         asOf,
			StayDate:         stayDate,
			Frequency:        frequency,
			OffsetDays:       offset,
			MinPrice:         agg.Min,
			MedianPrice:      agg.Median,
			MaxPrice:         agg.Max,
			AvgPrice:         agg.Avg,
			CompetitorCount:  agg.CompetitorCount,
			NoRateCount:      agg.NoRateCount,
			DemandStrength:   agg.DemandStrength,
			MarketConfidence: agg.MarketConfidence,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.repo.Upsert(ctx, s.db, snap); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
