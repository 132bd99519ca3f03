package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ratepulse/ratepulse/internal/policy"
)

// dueItem is one (competitor, offset) pair whose observation is stale.
type dueItem struct {
	CompetitorID  snowflake.ID
	HotelID       snowflake.ID
	PropertyToken string
	OffsetDays    int
	StayDate      time.Time
	LastFetched   *time.Time
}

// dueItems collects every stale (competitor, offset) pair across all
// active competitors, oldest observation first, capped at the batch
// limit. A pair is due when no successful fetch for its stay date is
// newer than the staleness interval of its offset band.
func (s *Scheduler) dueItems(ctx context.Context, pol policy.Policy, now time.Time) ([]dueItem, error) {
	today := truncateToDay(now)

	var roster []struct {
		ID            snowflake.ID
		HotelID       snowflake.ID
		PropertyToken string
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, hotel_id, property_token FROM competitors WHERE active ORDER BY id`,
	).Scan(&roster).Error
	if err != nil {
		return nil, err
	}

	var items []dueItem
	for _, offset := range pol.OffsetDays {
		stayDate := today.AddDate(0, 0, offset)
		cutoff := now.Add(-pol.RefreshIntervalFor(offset))

		latest, err := s.latestFetches(ctx, stayDate)
		if err != nil {
			return nil, err
		}

		for _, member := range roster {
			last, fetched := latest[member.ID]
			if fetched && !last.Before(cutoff) {
				continue
			}
			item := dueItem{
				CompetitorID:  member.ID,
				HotelID:       member.HotelID,
				PropertyToken: member.PropertyToken,
				OffsetDays:    offset,
				StayDate:      stayDate,
			}
			if fetched {
				at := last
				item.LastFetched = &at
			}
			items = append(items, item)
		}
	}

	// Never-fetched pairs go first, then the stalest observations.
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.LastFetched == nil && b.LastFetched != nil:
			return true
		case a.LastFetched != nil && b.LastFetched == nil:
			return false
		case a.LastFetched != nil && b.LastFetched != nil && !a.LastFetched.Equal(*b.LastFetched):
			return a.LastFetched.Before(*b.LastFetched)
		case a.CompetitorID != b.CompetitorID:
			return a.CompetitorID < b.CompetitorID
		default:
			return a.OffsetDays < b.OffsetDays
		}
	})

	if limit := pol.Scheduler.BatchLimit; limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// latestFetches reduces the fetch audit to the newest successful fetch
// per competitor for one stay date. The reduction runs in Go rather than
// as a MAX() aggregate; an aggregated timestamp loses its declared
// column type on the sqlite driver and scans back as a string.
func (s *Scheduler) latestFetches(ctx context.Context, stayDate time.Time) (map[snowflake.ID]time.Time, error) {
	var rows []struct {
		CompetitorID snowflake.ID
		FetchedAt    time.Time
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT competitor_id, fetched_at FROM raw_responses
		 WHERE stay_date = ? AND success`, stayDate,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	latest := make(map[snowflake.ID]time.Time, len(rows))
	for _, row := range rows {
		if cur, ok := latest[row.CompetitorID]; !ok || row.FetchedAt.After(cur) {
			latest[row.CompetitorID] = row.FetchedAt
		}
	}
	return latest, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
