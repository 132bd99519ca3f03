package domain

import (
	"context"
	"errors"
)

var ErrInvalidHotelID = errors.New("quota: invalid hotel id")

// DenyReason names why a reservation was refused.
type DenyReason string

const (
	DenyTenantQuota  DenyReason = "tenant_quota"
	DenySystemBudget DenyReason = "system_budget"
	DenySafeMode     DenyReason = "safe_mode"
)

// Reservation is the outcome of one admission attempt. A denied
// reservation is a normal outcome, not an error.
type Reservation struct {
	Allowed bool       `json:"allowed"`
	Reason  DenyReason `json:"reason,omitempty"`
}

type TenantUsage struct {
	PeriodKey    string `json:"period_key"`
	SearchesUsed int64  `json:"searches_used"`
	QuotaCap     int64  `json:"quota_cap"`
	Remaining    int64  `json:"remaining"`
	Allowed      bool   `json:"allowed"`
}

type SystemUsage struct {
	PeriodKey    string `json:"period_key"`
	SearchesUsed int64  `json:"searches_used"`
	BudgetLimit  int64  `json:"budget_limit"`
	SafeModeOn   bool   `json:"safe_mode_on"`
	Allowed      bool   `json:"allowed"`
}

// Service is the admission ledger for upstream searches. Reserve is the
// only mutation; completed work is never rolled back on later denials.
type Service interface {
	Reserve(ctx context.Context, hotelID string) (Reservation, error)
	TenantUsage(ctx context.Context, hotelID string) (*TenantUsage, error)
	SystemUsage(ctx context.Context) (*SystemUsage, error)
}
