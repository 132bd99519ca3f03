package repository

import (
	"context"

	collectordomain "github.com/ratepulse/ratepulse/internal/collector/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() collectordomain.Repository {
	return &repo{}
}

func (r *repo) InsertRawResponse(ctx context.Context, db *gorm.DB, raw *collectordomain.RawResponse) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO raw_responses (id, hotel_id, competitor_id, search_id, stay_date, offset_days, success, payload, error_detail, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		raw.ID,
		raw.HotelID,
		raw.CompetitorID,
		raw.SearchID,
		raw.StayDate,
		raw.OffsetDays,
		raw.Success,
		raw.Payload,
		raw.ErrorDetail,
		raw.FetchedAt,
	).Error
}

func (r *repo) InsertRates(ctx context.Context, db *gorm.DB, rates []collectordomain.CompetitorRate) error {
	for i := range rates {
		rate := &rates[i]
		err := db.WithContext(ctx).Exec(
			`INSERT INTO competitor_rates (id, hotel_id, competitor_id, stay_date, offset_days, source, price, currency, availability_status, data_confidence, price_source_level, is_official, observed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rate.ID,
			rate.HotelID,
			rate.CompetitorID,
			rate.StayDate,
			rate.OffsetDays,
			rate.Source,
			rate.Price,
			rate.Currency,
			rate.AvailabilityStatus,
			rate.DataConfidence,
			rate.PriceSourceLevel,
			rate.IsOfficial,
			rate.ObservedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}
