package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidHotelID     = errors.New("collector: invalid hotel id")
	ErrInvalidCompetitor  = errors.New("collector: invalid competitor id")
	ErrCompetitorNotFound = errors.New("collector: competitor not found")
	ErrScanRateLimited    = errors.New("collector: manual scan limit reached")
	ErrScanInProgress     = errors.New("collector: scan already running for competitor")
)

// FetchTarget identifies one (competitor, stay date) fetch. The caller
// must already hold a quota reservation.
type FetchTarget struct {
	HotelID       snowflake.ID
	CompetitorID  snowflake.ID
	PropertyToken string
	StayDate      time.Time
	OffsetDays    int
}

// FetchOutcome reports what one successful fetch stored.
type FetchOutcome struct {
	SearchID    string
	RatesStored int
}

// ScanStatus is the per-offset outcome of a manual scan.
type ScanStatus string

const (
	ScanRefreshed ScanStatus = "refreshed"
	ScanSkipped   ScanStatus = "skipped"
	ScanFailed    ScanStatus = "failed"
)

type ScanOutcome struct {
	OffsetDays int        `json:"offset_days"`
	StayDate   string     `json:"stay_date"`
	Status     ScanStatus `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Rates      int        `json:"rates,omitempty"`
}

type ManualScanRequest struct {
	HotelID      string `json:"hotel_id"`
	CompetitorID string `json:"competitor_id"`
}

type ManualScanResult struct {
	CompetitorID string        `json:"competitor_id"`
	Outcomes     []ScanOutcome `json:"outcomes"`
	BudgetUsed   int           `json:"budget_used"`
}

type Service interface {
	// Fetch performs one provider call and persists the raw response and
	// normalized rates. It never consumes quota and never retries inline.
	Fetch(ctx context.Context, target FetchTarget) (*FetchOutcome, error)

	// ManualScan runs a tenant-initiated scan across all configured
	// offsets, reserving quota per offset.
	ManualScan(ctx context.Context, req ManualScanRequest) (*ManualScanResult, error)
}
