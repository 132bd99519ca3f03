package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ratepulse/ratepulse/internal/clock"
	collectordomain "github.com/ratepulse/ratepulse/internal/collector/domain"
	competitordomain "github.com/ratepulse/ratepulse/internal/competitor/domain"
	"github.com/ratepulse/ratepulse/internal/policy"
	"github.com/ratepulse/ratepulse/internal/provider"
	quotadomain "github.com/ratepulse/ratepulse/internal/quota/domain"
	"github.com/ratepulse/ratepulse/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCurrency = "VND"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *policy.Holder
	Repo        collectordomain.Repository
	Competitors competitordomain.Repository
	Provider    provider.Client
	Quota       quotadomain.Service
	Limiter     *ratelimit.ScanLimiter
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *policy.Holder
	repo        collectordomain.Repository
	competitors competitordomain.Repository
	provider    provider.Client
	quota       quotadomain.Service
	limiter     *ratelimit.ScanLimiter
}

func New(p Params) collectordomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("collector.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		repo:        p.Repo,
		competitors: p.Competitors,
		provider:    p.Provider,
		quota:       p.Quota,
		limiter:     p.Limiter,
	}
}

// Fetch calls the provider once and records the attempt. Exactly one raw
// response row is written whether the call succeeds or fails; rate rows
// only on success, in the same transaction.
func (s *Service) Fetch(ctx context.Context, target collectordomain.FetchTarget) (*collectordomain.FetchOutcome, error) {
	pol := s.policy.Get()
	now := s.clock.Now().UTC()

	fetchCtx, cancel := context.WithTimeout(ctx, pol.Scheduler.FetchTimeout)
	defer cancel()

	result, err := s.provider.PropertyDetails(fetchCtx, provider.DetailsQuery{
		PropertyToken: target.PropertyToken,
		CheckIn:       target.StayDate,
		CheckOut:      target.StayDate.AddDate(0, 0, 1),
		Currency:      defaultCurrency,
	})
	if err != nil {
		raw := &collectordomain.RawResponse{
			ID:           s.genID.Generate(),
			HotelID:      target.HotelID,
			CompetitorID: target.CompetitorID,
			StayDate:     target.StayDate,
			OffsetDays:   target.OffsetDays,
			Success:      false,
			ErrorDetail:  err.Error(),
			FetchedAt:    now,
		}
		if insErr := s.repo.InsertRawResponse(ctx, s.db, raw); insErr != nil {
			err = errors.Join(err, insErr)
		}
		return nil, err
	}

	normalized := collectordomain.NormalizeRates(result.Prices, 1)
	rates := make([]collectordomain.CompetitorRate, 0, len(normalized))
	for _, rate := range normalized {
		rates = append(rates, collectordomain.CompetitorRate{
			ID:                 s.genID.Generate(),
			HotelID:            target.HotelID,
			CompetitorID:       target.CompetitorID,
			StayDate:           target.StayDate,
			OffsetDays:         target.OffsetDays,
			Source:             rate.Source,
			Price:              rate.Price,
			Currency:           defaultCurrency,
			AvailabilityStatus: string(rate.AvailabilityStatus),
			DataConfidence:     string(rate.DataConfidence),
			PriceSourceLevel:   rate.PriceSourceLevel,
			IsOfficial:         rate.IsOfficial,
			ObservedAt:         now,
		})
	}

	raw := &collectordomain.RawResponse{
		ID:           s.genID.Generate(),
		HotelID:      target.HotelID,
		CompetitorID: target.CompetitorID,
		SearchID:     result.SearchID,
		StayDate:     target.StayDate,
		OffsetDays:   target.OffsetDays,
		Success:      true,
		Payload:      string(result.Raw),
		FetchedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertRawResponse(ctx, tx, raw); err != nil {
			return err
		}
		return s.repo.InsertRates(ctx, tx, rates)
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("rates stored",
		zap.String("competitor_id", target.CompetitorID.String()),
		zap.String("stay_date", target.StayDate.Format("2006-01-02")),
		zap.Int("rates", len(rates)),
	)
	return &collectordomain.FetchOutcome{
		SearchID:    result.SearchID,
		RatesStored: len(rates),
	}, nil
}

// ManualScan refreshes one competitor across every configured offset.
// Each offset reserves quota separately; a denial skips that offset only.
func (s *Service) ManualScan(ctx context.Context, req collectordomain.ManualScanRequest) (*collectordomain.ManualScanResult, error) {
	hotelID, err := snowflake.ParseString(strings.TrimSpace(req.HotelID))
	if err != nil {
		return nil, collectordomain.ErrInvalidHotelID
	}
	competitorID, err := snowflake.ParseString(strings.TrimSpace(req.CompetitorID))
	if err != nil {
		return nil, collectordomain.ErrInvalidCompetitor
	}

	competitor, err := s.competitors.FindByID(ctx, s.db, hotelID, competitorID)
	if err != nil {
		return nil, err
	}
	if competitor == nil || !competitor.Active {
		return nil, collectordomain.ErrCompetitorNotFound
	}

	allowed, err := s.limiter.AllowManualScan(ctx, req.HotelID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, collectordomain.ErrScanRateLimited
	}

	lockToken, locked, err := s.limiter.TryLockScan(ctx, req.HotelID, req.CompetitorID)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, collectordomain.ErrScanInProgress
	}
	defer func() {
		_ = s.limiter.ReleaseScan(context.WithoutCancel(ctx), req.HotelID, req.CompetitorID, lockToken)
	}()

	pol := s.policy.Get()
	today := truncateToDay(s.clock.Now().UTC())

	result := &collectordomain.ManualScanResult{
		CompetitorID: competitorID.String(),
		Outcomes:     make([]collectordomain.ScanOutcome, 0, len(pol.OffsetDays)),
	}
	for _, offset := range pol.OffsetDays {
		stayDate := today.AddDate(0, 0, offset)
		outcome := collectordomain.ScanOutcome{
			OffsetDays: offset,
			StayDate:   stayDate.Format("2006-01-02"),
		}

		reservation, err := s.quota.Reserve(ctx, req.HotelID)
		if err != nil {
			outcome.Status = collectordomain.ScanFailed
			outcome.Reason = err.Error()
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}
		if !reservation.Allowed {
			outcome.Status = collectordomain.ScanSkipped
			outcome.Reason = string(reservation.Reason)
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}

		result.BudgetUsed++
		fetched, err := s.Fetch(ctx, collectordomain.FetchTarget{
			HotelID:       hotelID,
			CompetitorID:  competitorID,
			PropertyToken: competitor.PropertyToken,
			StayDate:      stayDate,
			OffsetDays:    offset,
		})
		if err != nil {
			outcome.Status = collectordomain.ScanFailed
			outcome.Reason = err.Error()
		} else {
			outcome.Status = collectordomain.ScanRefreshed
			outcome.Rates = fetched.RatesStored
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	s.log.Info("manual scan finished",
		zap.String("hotel_id", req.HotelID),
		zap.String("competitor_id", req.CompetitorID),
		zap.Int("budget_used", result.BudgetUsed),
	)
	return result, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
