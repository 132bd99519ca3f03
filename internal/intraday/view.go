package intraday

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ratepulse/ratepulse/internal/clock"
	"github.com/ratepulse/ratepulse/internal/policy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidHotelID = errors.New("intraday: invalid hotel id")

// Cache freshness relative to the staleness band for the offset.
const (
	StatusFresh   = "FRESH"
	StatusStale   = "STALE"
	StatusExpired = "EXPIRED"
)

// Rate is one source's latest observation for a stay date. Price is nil
// when the source reported no rate.
type Rate struct {
	Source             string     `json:"source"`
	Price              *int64     `json:"price"`
	PriceSourceLevel   int        `json:"price_source_level"`
	DataConfidence     string     `json:"data_confidence"`
	AvailabilityStatus string     `json:"availability_status"`
	IsOfficial         bool       `json:"is_official"`
	ObservedAt         *time.Time `json:"observed_at"`
}

// Competitor carries every deduplicated source rate plus the cheapest
// one surfaced as the headline.
type Competitor struct {
	CompetitorID       snowflake.ID `json:"competitor_id"`
	Name               string       `json:"name"`
	Price              *int64       `json:"price"`
	AvailabilityStatus string       `json:"availability_status"`
	DataConfidence     string       `json:"data_confidence"`
	Source             string       `json:"source"`
	ObservedAt         *time.Time   `json:"observed_at"`
	Rates              []Rate       `json:"rates"`
}

type OffsetView struct {
	OffsetDays     int          `json:"offset_days"`
	StayDate       time.Time    `json:"stay_date"`
	MyRate         *int64       `json:"my_rate"`
	Competitors    []Competitor `json:"competitors"`
	CacheStatus    string       `json:"cache_status"`
	FetchedAt      *time.Time   `json:"fetched_at"`
	BeforeTaxRatio float64      `json:"before_tax_ratio"`
}

type Service interface {
	View(ctx context.Context, hotelID string, offsets []int) ([]OffsetView, error)
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Policy *policy.Holder
}

type service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	policy *policy.Holder
}

func New(p Params) Service {
	return &service{
		db:     p.DB,
		log:    p.Log.Named("intraday.service"),
		clock:  p.Clock,
		policy: p.Policy,
	}
}

type rateRow struct {
	CompetitorID       snowflake.ID
	Name               string
	Source             string
	Price              int64
	PriceSourceLevel   int
	DataConfidence     string
	AvailabilityStatus string
	IsOfficial         bool
	ObservedAt         time.Time
}

type rosterRow struct {
	ID   snowflake.ID
	Name string
}

// View assembles the dashboard projection for the requested offsets.
// Rows stay scoped to the hotel throughout; competitors with no
// observations still appear with an empty rate list.
func (s *service) View(ctx context.Context, hotelID string, offsets []int) ([]OffsetView, error) {
	hid, err := snowflake.ParseString(strings.TrimSpace(hotelID))
	if err != nil {
		return nil, ErrInvalidHotelID
	}

	pol := s.policy.Get()
	if len(offsets) == 0 {
		offsets = pol.OffsetDays
	}

	now := s.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var roster []rosterRow
	err = s.db.WithContext(ctx).Raw(
		`SELECT id, name FROM competitors WHERE hotel_id = ? AND active ORDER BY name`, hid,
	).Scan(&roster).Error
	if err != nil {
		return nil, err
	}

	views := make([]OffsetView, 0, len(offsets))
	for _, offset := range offsets {
		stayDate := today.AddDate(0, 0, offset)

		var rows []rateRow
		err := s.db.WithContext(ctx).Raw(
			`SELECT r.competitor_id, c.name, r.source, r.price, r.price_source_level,
			        r.data_confidence, r.availability_status, r.is_official, r.observed_at
			 FROM competitor_rates r
			 JOIN competitors c ON c.id = r.competitor_id AND c.active
			 WHERE r.hotel_id = ? AND r.stay_date = ?
			   AND r.observed_at = (
			       SELECT MAX(r2.observed_at) FROM competitor_rates r2
			       WHERE r2.competitor_id = r.competitor_id
			         AND r2.source = r.source
			         AND r2.stay_date = r.stay_date
			   )`, hid, stayDate,
		).Scan(&rows).Error
		if err != nil {
			return nil, err
		}

		views = append(views, s.assembleOffset(ctx, hid, offset, stayDate, now, pol, roster, rows))
	}
	return views, nil
}

func (s *service) assembleOffset(ctx context.Context, hid snowflake.ID, offset int, stayDate, now time.Time, pol policy.Policy, roster []rosterRow, rows []rateRow) OffsetView {
	byCompetitor := make(map[snowflake.ID][]Rate, len(roster))
	var priced, beforeTax int
	for _, row := range rows {
		rate := Rate{
			Source:             row.Source,
			PriceSourceLevel:   row.PriceSourceLevel,
			DataConfidence:     row.DataConfidence,
			AvailabilityStatus: row.AvailabilityStatus,
			IsOfficial:         row.IsOfficial,
		}
		observed := row.ObservedAt
		rate.ObservedAt = &observed
		if row.Price > 0 {
			price := row.Price
			rate.Price = &price
			priced++
			if row.PriceSourceLevel == 1 {
				beforeTax++
			}
		}
		byCompetitor[row.CompetitorID] = append(byCompetitor[row.CompetitorID], rate)
	}

	competitors := make([]Competitor, 0, len(roster))
	for _, member := range roster {
		rates := byCompetitor[member.ID]
		sort.SliceStable(rates, func(i, j int) bool {
			// Priced sources first, cheapest leading.
			if rates[i].Price == nil {
				return false
			}
			if rates[j].Price == nil {
				return true
			}
			return *rates[i].Price < *rates[j].Price
		})

		competitor := Competitor{
			CompetitorID:       member.ID,
			Name:               member.Name,
			AvailabilityStatus: "NO_RATE",
			DataConfidence:     "LOW",
			Rates:              rates,
		}
		if len(rates) > 0 {
			best := rates[0]
			competitor.Price = best.Price
			competitor.AvailabilityStatus = best.AvailabilityStatus
			competitor.DataConfidence = best.DataConfidence
			competitor.Source = best.Source
			competitor.ObservedAt = best.ObservedAt
		}
		competitors = append(competitors, competitor)
	}

	var ratio float64
	if priced > 0 {
		ratio = float64(beforeTax) / float64(priced)
	}

	status, fetchedAt := s.freshness(ctx, hid, stayDate, now, pol.RefreshIntervalFor(offset), len(roster))

	return OffsetView{
		OffsetDays:  offset,
		StayDate:    stayDate,
		Competitors: competitors,
		// MyRate fills in once the pricing feed supplies a BAR.
		MyRate:         nil,
		CacheStatus:    status,
		FetchedAt:      fetchedAt,
		BeforeTaxRatio: ratio,
	}
}

// freshness grades the offset by its oldest successful fetch. The whole
// offset is only as fresh as its most neglected competitor.
func (s *service) freshness(ctx context.Context, hid snowflake.ID, stayDate, now time.Time, interval time.Duration, rosterSize int) (string, *time.Time) {
	if rosterSize == 0 {
		return StatusExpired, nil
	}

	// The newest-per-competitor reduction happens here rather than as a
	// MAX() in SQL; an aggregated timestamp loses its declared column
	// type on the sqlite driver and scans back as a string.
	var rows []struct {
		CompetitorID snowflake.ID
		FetchedAt    time.Time
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT competitor_id, fetched_at FROM raw_responses
		 WHERE hotel_id = ? AND stay_date = ? AND success`, hid, stayDate,
	).Scan(&rows).Error
	if err != nil {
		s.log.Warn("freshness probe failed", zap.Error(err))
		return StatusExpired, nil
	}

	latest := make(map[snowflake.ID]time.Time, len(rows))
	for _, row := range rows {
		if cur, ok := latest[row.CompetitorID]; !ok || row.FetchedAt.After(cur) {
			latest[row.CompetitorID] = row.FetchedAt
		}
	}
	if len(latest) == 0 {
		return StatusExpired, nil
	}

	var oldest time.Time
	for _, fetched := range latest {
		if oldest.IsZero() || fetched.Before(oldest) {
			oldest = fetched
		}
	}

	if len(latest) < rosterSize {
		// Part of the roster has never been fetched for this stay date.
		return StatusStale, &oldest
	}
	if now.Sub(oldest) < interval {
		return StatusFresh, &oldest
	}
	return StatusStale, &oldest
}
