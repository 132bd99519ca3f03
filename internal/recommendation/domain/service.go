package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidHotelID = errors.New("recommendation: invalid hotel id")
	ErrInvalidID      = errors.New("recommendation: invalid id")
	ErrNotFound       = errors.New("recommendation: not found")
	ErrConflict       = errors.New("recommendation: already decided")
)

// GenerateSummary reports one generation pass for a hotel.
type GenerateSummary struct {
	Generated int `json:"generated"`
	Expired   int `json:"expired"`
}

type Service interface {
	// Generate derives suggestions from the latest daily snapshots for
	// the as-of date. Snapshots without an own rate or with too few
	// competitors are skipped.
	Generate(ctx context.Context, hotelID snowflake.ID, asOfDate time.Time) (*GenerateSummary, error)

	// ListPending expires overdue rows first, then returns pending
	// recommendations ordered by stay date.
	ListPending(ctx context.Context, hotelID string) ([]Recommendation, error)

	Accept(ctx context.Context, hotelID, id, decidedBy string) (*Recommendation, error)
	Reject(ctx context.Context, hotelID, id, decidedBy string) (*Recommendation, error)

	// ExpireOverdue is the time-driven pending -> expired transition,
	// also invoked by the retention purge.
	ExpireOverdue(ctx context.Context) (int64, error)
}
