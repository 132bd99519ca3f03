package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ratepulse/ratepulse/internal/clock"
	collectordomain "github.com/ratepulse/ratepulse/internal/collector/domain"
	obsmetrics "github.com/ratepulse/ratepulse/internal/observability/metrics"
	"github.com/ratepulse/ratepulse/internal/policy"
	quotadomain "github.com/ratepulse/ratepulse/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const jobRateRefresh = "rate_refresh"

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	CollectorSvc collectordomain.Service
	QuotaSvc     quotadomain.Service
	GenID        *snowflake.Node
	Clock        clock.Clock
	Policy       *policy.Holder
	Config       Config `optional:"true"`
}

type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	policy       *policy.Holder
	collectorSvc collectordomain.Service
	quotaSvc     quotadomain.Service
}

// RunSummary reports one refresh pass. A run cut short by its deadline
// still produces a summary of the work that finished.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	TotalChecked int       `json:"total_checked"`
	Refreshed    int       `json:"refreshed"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	BudgetUsed   int       `json:"budget_used"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.CollectorSvc == nil || p.QuotaSvc == nil || p.GenID == nil || p.Clock == nil || p.Policy == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy,
		collectorSvc: p.CollectorSvc,
		quotaSvc:     p.QuotaSvc,
	}, nil
}

// RunOnce executes a single refresh pass: find stale (competitor,
// offset) pairs, then fetch each behind a quota reservation. Items are
// isolated; one failure never aborts the rest. Hitting the run deadline
// is a soft timeout: the partial summary is returned without error.
func (s *Scheduler) RunOnce(parent context.Context) (*RunSummary, error) {
	pol := s.policy.Get()
	now := s.clock.Now().UTC()
	start := time.Now()

	ctx, cancel := context.WithTimeout(parent, pol.Scheduler.RunTimeout)
	defer cancel()

	run := &jobRun{
		job:       jobRateRefresh,
		runID:     s.genID.Generate().String(),
		batchSize: pol.Scheduler.BatchLimit,
		startedAt: start,
	}
	log := s.log.With(
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(run.job)
	s.logJobStart(run)

	summary := &RunSummary{
		RunID:     run.runID,
		StartedAt: now,
	}

	items, err := s.dueItems(ctx, pol, now)
	if err != nil {
		schedMetrics.IncJobError(run.job, err)
		run.IncError()
		s.logJobFinish(run)
		return nil, err
	}
	summary.TotalChecked = len(items)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pol.Scheduler.Workers)

	for _, item := range items {
		g.Go(func() error {
			outcome, budget := s.refreshItem(gctx, run, item)
			mu.Lock()
			defer mu.Unlock()
			summary.BudgetUsed += budget
			switch outcome {
			case obsmetrics.ItemOutcomeRefreshed:
				summary.Refreshed++
			case obsmetrics.ItemOutcomeSkipped:
				summary.Skipped++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.CompletedAt = s.clock.Now().UTC()
	schedMetrics.ObserveJobDuration(run.job, time.Since(start))
	run.AddProcessed(summary.Refreshed)
	s.logJobFinish(run)

	if ctx.Err() != nil {
		schedMetrics.IncJobTimeout(run.job)
		log.Warn("run deadline reached, returning partial summary",
			zap.Duration("timeout", pol.Scheduler.RunTimeout),
			zap.Int("refreshed", summary.Refreshed),
			zap.Int("remaining", summary.TotalChecked-summary.Refreshed-summary.Skipped-summary.Failed),
		)
	}
	return summary, nil
}

// refreshItem handles one due pair. Returns the item outcome and the
// quota consumed (0 or 1).
func (s *Scheduler) refreshItem(ctx context.Context, run *jobRun, item dueItem) (string, int) {
	schedMetrics := obsmetrics.Scheduler()

	if ctx.Err() != nil {
		schedMetrics.AddItems(run.job, obsmetrics.ItemOutcomeSkipped, 1)
		return obsmetrics.ItemOutcomeSkipped, 0
	}

	reservation, err := s.quotaSvc.Reserve(ctx, item.HotelID.String())
	if err != nil {
		s.logItemError(run, item, "quota reservation failed", err)
		schedMetrics.AddItems(run.job, obsmetrics.ItemOutcomeFailed, 1)
		return obsmetrics.ItemOutcomeFailed, 0
	}
	if !reservation.Allowed {
		s.logItemSkipped(run, item, string(reservation.Reason))
		schedMetrics.AddItems(run.job, obsmetrics.ItemOutcomeSkipped, 1)
		return obsmetrics.ItemOutcomeSkipped, 0
	}

	_, err = s.collectorSvc.Fetch(ctx, collectordomain.FetchTarget{
		HotelID:       item.HotelID,
		CompetitorID:  item.CompetitorID,
		PropertyToken: item.PropertyToken,
		StayDate:      item.StayDate,
		OffsetDays:    item.OffsetDays,
	})
	if err != nil {
		s.logItemError(run, item, "fetch failed", err)
		schedMetrics.AddItems(run.job, obsmetrics.ItemOutcomeFailed, 1)
		return obsmetrics.ItemOutcomeFailed, 1
	}

	schedMetrics.AddItems(run.job, obsmetrics.ItemOutcomeRefreshed, 1)
	return obsmetrics.ItemOutcomeRefreshed, 1
}

// RunForever drives RunOnce on a fixed interval until the context is
// canceled. Used by the headless worker binary.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
