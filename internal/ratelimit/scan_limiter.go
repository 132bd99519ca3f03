package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ratepulse/ratepulse/internal/config"
	"github.com/ratepulse/ratepulse/internal/policy"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyManualScan  = "ratepulse:scan:hotel:%s"
	keySearchQuery = "ratepulse:search:hotel:%s"
	keyScanLock    = "ratepulse:scan:lock:%s:%s"
	scanLockTTL    = 2 * time.Minute
	searchRate     = 1.0 // tokens per second
	searchBurst    = 10
	secondsPerDay  = 24 * 60 * 60
)

// ScanLimiter throttles tenant-facing scan and search endpoints. It is a
// spam gate in front of the quota ledger, not a substitute for it.
// With no redis configured every check passes.
type ScanLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker
	policy *policy.Holder
}

func NewScanLimiter(cfg config.Config, holder *policy.Holder) *ScanLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return &ScanLimiter{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &ScanLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		policy:  holder,
	}
}

func (l *ScanLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowManualScan enforces the per-hotel daily manual scan ceiling as a
// slow-refill bucket sized to the daily cap.
func (l *ScanLimiter) AllowManualScan(ctx context.Context, hotelID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}

	limit := l.policy.Get().Quota.MaxManualScansPerDay
	if limit <= 0 {
		return true, nil
	}

	rate := float64(limit) / float64(secondsPerDay)
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyManualScan, strings.TrimSpace(hotelID)), rate, limit)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// AllowSearch throttles autocomplete lookups per hotel.
func (l *ScanLimiter) AllowSearch(ctx context.Context, hotelID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keySearchQuery, strings.TrimSpace(hotelID)), searchRate, searchBurst)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// TryLockScan takes a short lock so concurrent manual scans for the same
// competitor collapse to one upstream fetch.
func (l *ScanLimiter) TryLockScan(ctx context.Context, hotelID, competitorID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	key := fmt.Sprintf(keyScanLock, strings.TrimSpace(hotelID), strings.TrimSpace(competitorID))
	return l.locker.TryLock(ctx, key, scanLockTTL)
}

func (l *ScanLimiter) ReleaseScan(ctx context.Context, hotelID, competitorID, token string) error {
	if !l.Enabled() {
		return nil
	}
	key := fmt.Sprintf(keyScanLock, strings.TrimSpace(hotelID), strings.TrimSpace(competitorID))
	return l.locker.Release(ctx, key, token)
}
