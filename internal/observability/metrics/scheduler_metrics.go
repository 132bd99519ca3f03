package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Config carries constant labels applied to every scheduler metric.
type Config struct {
	ServiceName string
	Environment string
}

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonProvider             = "provider"
	SchedulerJobReasonUnknown              = "unknown"
)

const (
	ItemOutcomeRefreshed = "refreshed"
	ItemOutcomeSkipped   = "skipped"
	ItemOutcomeFailed    = "failed"
)

const (
	QuotaDenialTenantQuota  = "tenant_quota"
	QuotaDenialSystemBudget = "system_budget"
	QuotaDenialSafeMode     = "safe_mode"
	QuotaDenialManualCap    = "manual_cap"
)

// ErrProviderFailure marks upstream rate provider errors for classification.
// Provider clients wrap their failures with it.
var ErrProviderFailure = errors.New("rate provider failure")

// SchedulerMetrics captures scan pipeline health signals.
type SchedulerMetrics struct {
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobTimeouts   *prometheus.CounterVec
	jobErrors     *prometheus.CounterVec
	itemsTotal    *prometheus.CounterVec
	quotaDenials  *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	providerTime  prometheus.Observer
	runLoopLag    prometheus.Observer
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "ratepulse"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ratepulse_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "ratepulse_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency to protect scan freshness.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ratepulse_scheduler_job_timeouts_total",
		Help:        "Scheduler job deadline hits that truncate scan batches.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ratepulse_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	itemsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ratepulse_scheduler_items_total",
		Help:        "Scan candidates handled per run by outcome.",
		ConstLabels: constLabels,
	}, []string{"job", "outcome"})
	quotaDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ratepulse_quota_denials_total",
		Help:        "Scan admissions denied by the quota gate, by reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	providerCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ratepulse_provider_calls_total",
		Help:        "Upstream rate provider calls by status.",
		ConstLabels: constLabels,
	}, []string{"status"})
	providerTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "ratepulse_provider_call_duration_seconds",
		Help:        "Upstream rate provider call latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "ratepulse_scheduler_runloop_lag_seconds",
		Help:        "Scheduler run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		itemsTotal,
		quotaDenials,
		providerCalls,
		providerTime,
		runLoopLag,
	)

	return &SchedulerMetrics{
		jobRuns:       jobRuns,
		jobDuration:   jobDuration,
		jobTimeouts:   jobTimeouts,
		jobErrors:     jobErrors,
		itemsTotal:    itemsTotal,
		quotaDenials:  quotaDenials,
		providerCalls: providerCalls,
		providerTime:  providerTime,
		runLoopLag:    runLoopLag,
	}
}

// IncJobRun increments the run counter for a scheduler job.
func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the scheduler job.
func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the scheduler job error counter with classification.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || m.jobErrors == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
}

// AddItems increments the item outcome counter for a job by count.
func (m *SchedulerMetrics) AddItems(job, outcome string, count int) {
	if m == nil || m.itemsTotal == nil || count <= 0 {
		return
	}
	m.itemsTotal.WithLabelValues(job, outcome).Add(float64(count))
}

// IncQuotaDenial increments the quota denial counter for a reason.
func (m *SchedulerMetrics) IncQuotaDenial(reason string) {
	if m == nil || m.quotaDenials == nil {
		return
	}
	m.quotaDenials.WithLabelValues(reason).Inc()
}

// IncProviderCall increments the provider call counter for a status.
func (m *SchedulerMetrics) IncProviderCall(status string) {
	if m == nil || m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(status).Inc()
}

// ObserveProviderCall records upstream call latency in seconds.
func (m *SchedulerMetrics) ObserveProviderCall(duration time.Duration) {
	if m == nil || m.providerTime == nil {
		return
	}
	m.providerTime.Observe(duration.Seconds())
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifySchedulerJobReason maps scheduler job errors to low-cardinality reasons.
func ClassifySchedulerJobReason(err error) string {
	if err == nil {
		return SchedulerJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SchedulerJobReasonDeadlineExceeded
	}
	if errors.Is(err, ErrProviderFailure) {
		return SchedulerJobReasonProvider
	}
	if isDBLockTimeout(err) {
		return SchedulerJobReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return SchedulerJobReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return SchedulerJobReasonUniqueViolation
	}
	return SchedulerJobReasonUnknown
}

// IsSchedulerErrorRetryable reports whether the scheduler error should be retried.
func IsSchedulerErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBLockTimeout(err) || isSerializationFailure(err)
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
