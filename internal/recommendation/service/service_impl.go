package service

import (
	"context"
	"math"
	"strings"
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

// Demand strength scales the suggested price around the market median.
var demandMultipliers = map[string]float64{
	snapshotdomain.DemandStrong: 1.05,
	snapshotdomain.DemandNormal: 1.00,
	snapshotdomain.DemandWeak:   0.95,
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Policy    *policy.Holder
	Repo      recdomain.Repository
	Snapshots snapshotdomain.Repository
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	policy    *policy.Holder
	repo      recdomain.Repository
	snapshots snapshotdomain.Repository
}

func New(p Params) recdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("recommendation.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		policy:    p.Policy,
		repo:      p.Repo,
		snapshots: p.Snapshots,
	}
}

// Generate walks the day's snapshots and writes a pending suggestion for
// every stay date priced outside the policy thresholds. Each insert
// expires the previous pending row in the same transaction, keeping at
// most one pending suggestion per (hotel, stay date).
func (s *Service) Generate(ctx context.Context, hotelID snowflake.ID, asOfDate time.Time) (*recdomain.GenerateSummary, error) {
	pol := s.policy.Get()
	now := s.clock.Now().UTC()

	snaps, err := s.snapshots.ListByAsOf(ctx, s.db, hotelID, asOfDate, snapshotdomain.FrequencyDaily)
	if err != nil {
		return nil, err
	}

	summary := &recdomain.GenerateSummary{}
	for _, snap := range snaps {
		if snap.CompetitorCount < pol.Pricing.MinCompetitors {
			continue
		}
		if snap.MedianPrice <= 0 || snap.MyRate == nil || *snap.MyRate <= 0 {
			continue
		}

		myRate := *snap.MyRate
		gapPct := float64(myRate-snap.MedianPrice) / float64(snap.MedianPrice)
		multiplier, ok := demandMultipliers[snap.DemandStrength]
		if !ok {
			multiplier = 1.0
		}

		var reasons []string
		switch {
		case gapPct > pol.Pricing.OverpricedThreshold:
			reasons = append(reasons, recdomain.ReasonOverpriced)
			if snap.DemandStrength == snapshotdomain.DemandStrong {
				reasons = append(reasons, recdomain.ReasonHighDemandBuffer)
			}
			if snap.NoRateCount > 0 {
				reasons = append(reasons, recdomain.ReasonCompetitorsNoRates)
			}
		case gapPct < pol.Pricing.UnderpricedThreshold:
			reasons = append(reasons, recdomain.ReasonUnderpriced)
			if snap.DemandStrength == snapshotdomain.DemandWeak {
				reasons = append(reasons, recdomain.ReasonLowDemandCaution)
			}
		default:
			// Competitive pricing needs no suggestion.
			continue
		}

		suggested := int64(math.Round(float64(snap.MedianPrice) * multiplier))
		deltaPct := float64(suggested-myRate) / float64(myRate)

		rec := &recdomain.Recommendation{
			ID:             s.genID.Generate(),
			HotelID:        hotelID,
			StayDate:       snap.StayDate,
			AsOfDate:       asOfDate,
			CurrentPrice:   &myRate,
			SuggestedPrice: suggested,
			DeltaPct:       deltaPct,
			Basis:          strings.Join(reasons, ","),
			Confidence:     snap.MarketConfidence,
			Status:         recdomain.StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			expired, err := s.repo.ExpirePending(ctx, tx, hotelID, snap.StayDate, now)
			if err != nil {
				return err
			}
			summary.Expired += int(expired)
			return s.repo.Insert(ctx, tx, rec)
		})
		if err != nil {
			return summary, err
		}
		summary.Generated++
	}

	s.log.Debug("recommendations generated",
		zap.String("hotel_id", hotelID.String()),
		zap.Int("generated", summary.Generated),
		zap.Int("expired", summary.Expired),
	)
	return summary, nil
}

func (s *Service) ListPending(ctx context.Context, hotelID string) ([]recdomain.Recommendation, error) {
	id, err := parseHotelID(hotelID)
	if err != nil {
		return nil, err
	}

	// Overdue rows expire on read so callers never see a pending
	// suggestion for a stay date that already passed.
	if _, err := s.ExpireOverdue(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListByStatus(ctx, s.db, id, recdomain.StatusPending)
}

func (s *Service) Accept(ctx context.Context, hotelID, id, decidedBy string) (*recdomain.Recommendation, error) {
	return s.decide(ctx, hotelID, id, recdomain.StatusAccepted, decidedBy)
}

func (s *Service) Reject(ctx context.Context, hotelID, id, decidedBy string) (*recdomain.Recommendation, error) {
	return s.decide(ctx, hotelID, id, recdomain.StatusRejected, decidedBy)
}

func (s *Service) decide(ctx context.Context, hotelID, id string, status recdomain.Status, decidedBy string) (*recdomain.Recommendation, error) {
	hid, err := parseHotelID(hotelID)
	if err != nil {
		return nil, err
	}
	rid, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, recdomain.ErrInvalidID
	}
	now := s.clock.Now().UTC()

	rows, err := s.repo.Decide(ctx, s.db, hid, rid, status, decidedBy, now)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		existing, err := s.repo.FindByID(ctx, s.db, hid, rid)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, recdomain.ErrNotFound
		}
		return nil, recdomain.ErrConflict
	}
	return s.repo.FindByID(ctx, s.db, hid, rid)
}

func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	now := s.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.repo.ExpireOverdue(ctx, s.db, today, now)
}

func parseHotelID(hotelID string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(hotelID))
	if err != nil {
		return 0, recdomain.ErrInvalidHotelID
	}
	return id, nil
}
