package scheduler

import (
	"sync"
	"time"

	obsmetrics "github.com/ratepulse/ratepulse/internal/observability/metrics"
	"go.uber.org/zap"
)

type jobRun struct {
	job            string
	runID          string
	batchSize      int
	startedAt      time.Time
	processedCount int
	errorCount     int

	mu sync.Mutex
}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.mu.Lock()
	r.processedCount += count
	r.mu.Unlock()
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.errorCount++
	r.mu.Unlock()
}

func (r *jobRun) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processedCount, r.errorCount
}

func (s *Scheduler) logJobStart(run *jobRun) {
	if run == nil {
		return
	}
	s.log.Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Scheduler) logJobFinish(run *jobRun) {
	if run == nil {
		return
	}
	processed, errored := run.counts()
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("processed_count", processed),
		zap.Int("error_count", errored),
	}
	if errored > 0 {
		s.log.Warn("scheduler.job.finish", fields...)
		return
	}
	s.log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logItemError(run *jobRun, item dueItem, msg string, err error) {
	if err == nil {
		return
	}
	run.IncError()
	s.log.Error(msg,
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("hotel_id", item.HotelID.String()),
		zap.String("competitor_id", item.CompetitorID.String()),
		zap.Int("offset_days", item.OffsetDays),
		zap.String("error_type", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	)
}

func (s *Scheduler) logItemSkipped(run *jobRun, item dueItem, reason string) {
	s.log.Debug("item skipped",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("hotel_id", item.HotelID.String()),
		zap.String("competitor_id", item.CompetitorID.String()),
		zap.Int("offset_days", item.OffsetDays),
		zap.String("reason", reason),
	)
}
