package policy

import (
	"errors"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Policy carries the tunable scheduling, quota, and retention parameters.
// Values are intentionally configuration, not code: operators adjust them
// without a deploy via the watched policy file.
type Policy struct {
	// Stay-date lookback offsets tracked per competitor (days before stay).
	OffsetDays []int `mapstructure:"offsetDays"`

	// Staleness bands: a fetched observation for an offset in
	// [0, MaxOffsetDays] is considered due again after RefreshInterval.
	StalenessBands []StalenessBand `mapstructure:"stalenessBands"`

	Quota     QuotaPolicy     `mapstructure:"quota"`
	Scheduler SchedulerPolicy `mapstructure:"scheduler"`
	Retention RetentionPolicy `mapstructure:"retention"`
	Pricing   PricingPolicy   `mapstructure:"pricing"`
}

type StalenessBand struct {
	MaxOffsetDays   int           `mapstructure:"maxOffsetDays"`
	RefreshInterval time.Duration `mapstructure:"refreshInterval"`
}

type QuotaPolicy struct {
	SystemDailyBudget  int64 `mapstructure:"systemDailyBudget"`
	TenantMonthlyQuota int64 `mapstructure:"tenantMonthlyQuota"`
	// Fraction of the system budget at which safe mode engages.
	SafeModeHighWater float64 `mapstructure:"safeModeHighWater"`
	// Per-tenant daily manual scan ceiling (spam prevention, not billing).
	MaxManualScansPerDay int `mapstructure:"maxManualScansPerDay"`
}

type SchedulerPolicy struct {
	BatchLimit     int           `mapstructure:"batchLimit"`
	Workers        int           `mapstructure:"workers"`
	RunTimeout     time.Duration `mapstructure:"runTimeout"`
	FetchTimeout   time.Duration `mapstructure:"fetchTimeout"`
	SnapshotLimit  int           `mapstructure:"snapshotLimit"`
	PurgeBatchSize int           `mapstructure:"purgeBatchSize"`
}

type RetentionPolicy struct {
	RawResponseDays         int `mapstructure:"rawResponseDays"`
	PastStayGraceDays       int `mapstructure:"pastStayGraceDays"`
	SnapshotDays            int `mapstructure:"snapshotDays"`
	MonthlySnapshotMonths   int `mapstructure:"monthlySnapshotMonths"`
	CompetitorRateMaxDays   int `mapstructure:"competitorRateMaxDays"`
	RecommendationGraceDays int `mapstructure:"recommendationGraceDays"`
}

type PricingPolicy struct {
	// Gap versus market median beyond which a suggestion is produced.
	OverpricedThreshold  float64 `mapstructure:"overpricedThreshold"`
	UnderpricedThreshold float64 `mapstructure:"underpricedThreshold"`
	MinCompetitors       int     `mapstructure:"minCompetitors"`
}

func Default() Policy {
	return Policy{
		OffsetDays: []int{7, 14, 30, 60, 90},
		StalenessBands: []StalenessBand{
			{MaxOffsetDays: 14, RefreshInterval: 2 * time.Hour},
			{MaxOffsetDays: 30, RefreshInterval: 8 * time.Hour},
			{MaxOffsetDays: 365, RefreshInterval: 24 * time.Hour},
		},
		Quota: QuotaPolicy{
			SystemDailyBudget:    500,
			TenantMonthlyQuota:   200,
			SafeModeHighWater:    0.9,
			MaxManualScansPerDay: 20,
		},
		Scheduler: SchedulerPolicy{
			BatchLimit:     20,
			Workers:        4,
			RunTimeout:     4 * time.Minute,
			FetchTimeout:   30 * time.Second,
			SnapshotLimit:  500,
			PurgeBatchSize: 500,
		},
		Retention: RetentionPolicy{
			RawResponseDays:         7,
			PastStayGraceDays:       7,
			SnapshotDays:            3,
			MonthlySnapshotMonths:   12,
			CompetitorRateMaxDays:   90,
			RecommendationGraceDays: 7,
		},
		Pricing: PricingPolicy{
			OverpricedThreshold:  0.15,
			UnderpricedThreshold: -0.15,
			MinCompetitors:       2,
		},
	}
}

// RefreshIntervalFor returns the staleness interval for an offset.
func (p Policy) RefreshIntervalFor(offsetDays int) time.Duration {
	bands := append([]StalenessBand(nil), p.StalenessBands...)
	sort.Slice(bands, func(i, j int) bool { return bands[i].MaxOffsetDays < bands[j].MaxOffsetDays })
	for _, band := range bands {
		if offsetDays <= band.MaxOffsetDays {
			return band.RefreshInterval
		}
	}
	if len(bands) > 0 {
		return bands[len(bands)-1].RefreshInterval
	}
	return 24 * time.Hour
}

// Holder exposes the current policy and swaps it atomically on reload.
type Holder struct {
	current atomic.Value // holds Policy
}

// NewHolder reads the policy file and watches it for changes. A missing
// file is not an error: compiled defaults apply.
func NewHolder() (*Holder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/ratepulse/config")
	v.AddConfigPath("/etc/ratepulse")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RATEPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	} else if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	holder := &Holder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := Default()
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[policy] reload failed: %v", err)
			return
		}
		if err := validate(updated); err != nil {
			log.Printf("[policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticHolder wraps a fixed policy, used by tests.
func NewStaticHolder(p Policy) *Holder {
	h := &Holder{}
	h.current.Store(p)
	return h
}

func (h *Holder) Get() Policy {
	return h.current.Load().(Policy)
}

func validate(p Policy) error {
	if len(p.OffsetDays) == 0 {
		return errors.New("policy: offsetDays must not be empty")
	}
	for _, d := range p.OffsetDays {
		if d <= 0 {
			return errors.New("policy: offsetDays must be positive")
		}
	}
	if p.Quota.SafeModeHighWater <= 0 || p.Quota.SafeModeHighWater > 1 {
		return errors.New("policy: safeModeHighWater must be in (0, 1]")
	}
	if p.Scheduler.Workers <= 0 {
		return errors.New("policy: scheduler workers must be positive")
	}
	if p.Scheduler.BatchLimit <= 0 {
		return errors.New("policy: scheduler batchLimit must be positive")
	}
	return nil
}
