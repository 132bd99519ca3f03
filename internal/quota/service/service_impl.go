package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/ratepulse/ratepulse/internal/clock"
	"github.com/ratepulse/ratepulse/internal/observability/metrics"
	"github.com/ratepulse/ratepulse/internal/policy"
	quotadomain "github.com/ratepulse/ratepulse/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tenantPeriodLayout = "2006-01"
	systemPeriodLayout = "2006-01-02"
)

// errReservationDenied aborts the reservation transaction so denied
// attempts leave no counter mutated.
var errReservationDenied = errors.New("quota: reservation denied")

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy *policy.Holder
	Repo   quotadomain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	policy *policy.Holder
	repo   quotadomain.Repository
}

func New(p Params) quotadomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("quota.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
		repo:   p.Repo,
	}
}

// Reserve admits or denies one upstream search. Both counters move in a
// single transaction; a denial anywhere rolls the whole attempt back, so
// the ledger never overshoots under concurrency.
func (s *Service) Reserve(ctx context.Context, hotelID string) (quotadomain.Reservation, error) {
	hid, err := parseHotelID(hotelID)
	if err != nil {
		return quotadomain.Reservation{}, err
	}

	pol := s.policy.Get().Quota
	now := s.clock.Now().UTC()
	tenantPeriod := now.Format(tenantPeriodLayout)
	systemPeriod := now.Format(systemPeriodLayout)

	reservation := quotadomain.Reservation{}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.EnsureTenantPeriod(ctx, tx, &quotadomain.TenantQuota{
			ID:        s.genID.Generate(),
			HotelID:   hid,
			PeriodKey: tenantPeriod,
			QuotaCap:  pol.TenantMonthlyQuota,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		if err := s.repo.EnsureSystemPeriod(ctx, tx, &quotadomain.SystemBudget{
			ID:          s.genID.Generate(),
			PeriodKey:   systemPeriod,
			BudgetLimit: pol.SystemDailyBudget,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}

		// System gate first: budget and safe-mode denials take
		// precedence over tenant quota.
		rows, err := s.repo.TryIncrementSystem(ctx, tx, systemPeriod, pol.SafeModeHighWater, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			reservation.Reason = quotadomain.DenySystemBudget
			current, err := s.repo.GetSystem(ctx, tx, systemPeriod)
			if err != nil {
				return err
			}
			if current != nil && current.SafeModeOn {
				reservation.Reason = quotadomain.DenySafeMode
			}
			return errReservationDenied
		}

		rows, err = s.repo.TryIncrementTenant(ctx, tx, hid, tenantPeriod, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			reservation.Reason = quotadomain.DenyTenantQuota
			return errReservationDenied
		}

		reservation.Allowed = true
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, errReservationDenied) {
			metrics.Scheduler().IncQuotaDenial(string(reservation.Reason))
			s.log.Debug("reservation denied",
				zap.String("hotel_id", hid.String()),
				zap.String("reason", string(reservation.Reason)),
			)
			return reservation, nil
		}
		return quotadomain.Reservation{}, txErr
	}

	return reservation, nil
}

func (s *Service) TenantUsage(ctx context.Context, hotelID string) (*quotadomain.TenantUsage, error) {
	hid, err := parseHotelID(hotelID)
	if err != nil {
		return nil, err
	}

	pol := s.policy.Get().Quota
	period := s.clock.Now().UTC().Format(tenantPeriodLayout)

	row, err := s.repo.GetTenant(ctx, s.db, hid, period)
	if err != nil {
		return nil, err
	}

	usage := &quotadomain.TenantUsage{
		PeriodKey: period,
		QuotaCap:  pol.TenantMonthlyQuota,
	}
	if row != nil {
		usage.SearchesUsed = row.SearchesUsed
		usage.QuotaCap = row.QuotaCap
	}
	if usage.QuotaCap == 0 {
		usage.Remaining = -1
		usage.Allowed = true
	} else {
		usage.Remaining = usage.QuotaCap - usage.SearchesUsed
		if usage.Remaining < 0 {
			usage.Remaining = 0
		}
		usage.Allowed = usage.SearchesUsed < usage.QuotaCap
	}
	return usage, nil
}

func (s *Service) SystemUsage(ctx context.Context) (*quotadomain.SystemUsage, error) {
	pol := s.policy.Get().Quota
	period := s.clock.Now().UTC().Format(systemPeriodLayout)

	row, err := s.repo.GetSystem(ctx, s.db, period)
	if err != nil {
		return nil, err
	}

	usage := &quotadomain.SystemUsage{
		PeriodKey:   period,
		BudgetLimit: pol.SystemDailyBudget,
	}
	if row != nil {
		usage.SearchesUsed = row.SearchesUsed
		usage.BudgetLimit = row.BudgetLimit
		usage.SafeModeOn = row.SafeModeOn
	}
	usage.Allowed = !usage.SafeModeOn && usage.SearchesUsed < usage.BudgetLimit
	return usage, nil
}

func parseHotelID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, quotadomain.ErrInvalidHotelID
	}
	return id, nil
}
