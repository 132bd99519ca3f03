package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "provider",
			err:  fmt.Errorf("fetch hotel rates: %w", ErrProviderFailure),
			want: SchedulerJobReasonProvider,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddItems(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "ratepulse",
		Environment: "test",
	})

	metrics.AddItems("rate_scan", ItemOutcomeRefreshed, 3)
	metrics.AddItems("rate_scan", ItemOutcomeSkipped, 0)

	got := testutil.ToFloat64(metrics.itemsTotal.WithLabelValues("rate_scan", ItemOutcomeRefreshed))
	if got != 3 {
		t.Fatalf("expected refreshed count 3, got %v", got)
	}
	skipped := testutil.ToFloat64(metrics.itemsTotal.WithLabelValues("rate_scan", ItemOutcomeSkipped))
	if skipped != 0 {
		t.Fatalf("expected zero count to be ignored, got %v", skipped)
	}
}

func TestQuotaDenialCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{Environment: "test"})

	metrics.IncQuotaDenial(QuotaDenialSafeMode)
	metrics.IncQuotaDenial(QuotaDenialSafeMode)

	got := testutil.ToFloat64(metrics.quotaDenials.WithLabelValues(QuotaDenialSafeMode))
	if got != 2 {
		t.Fatalf("expected 2 safe mode denials, got %v", got)
	}
}
