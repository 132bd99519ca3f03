package domain

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidFrequency = errors.New("snapshot: invalid frequency")

// BuildSummary reports one builder pass. Per-hotel failures are counted,
// never fatal.
type BuildSummary struct {
	TotalHotels    int       `json:"total_hotels"`
	TotalSnapshots int       `json:"total_snapshots"`
	TotalFailed    int       `json:"total_failed"`
	TotalSkipped   int       `json:"total_skipped"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// BackfillRequest rebuilds snapshots for a past as-of range. MissingOnly
// leaves existing (hotel, as-of) rows untouched.
type BackfillRequest struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Frequency   Frequency `json:"frequency"`
	MissingOnly bool      `json:"missing_only"`
	Limit       int       `json:"limit"`
}

type Service interface {
	// Build aggregates today's market view for every hotel with active
	// competitors and triggers recommendation generation per hotel.
	Build(ctx context.Context) (*BuildSummary, error)

	Backfill(ctx context.Context, req BackfillRequest) (*BuildSummary, error)
}
