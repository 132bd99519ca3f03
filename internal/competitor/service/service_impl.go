package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ratepulse/ratepulse/internal/cache"
	"github.com/ratepulse/ratepulse/internal/clock"
	competitordomain "github.com/ratepulse/ratepulse/internal/competitor/domain"
	"github.com/ratepulse/ratepulse/internal/provider"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	searchCacheTTL    = 24 * time.Hour
	searchMinQueryLen = 2
	searchMaxResults  = 10
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     competitordomain.Repository
	Provider provider.Client
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     competitordomain.Repository
	provider provider.Client
	searches cache.Cache[string, []competitordomain.SearchSuggestion]
}

func New(p Params) competitordomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("competitor.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		provider: p.Provider,
		searches: cache.NewTTLCache[string, []competitordomain.SearchSuggestion](),
	}
}

// Add registers a competitor. Re-adding a property token that was soft
// deleted reactivates the existing row instead of inserting a duplicate.
func (s *Service) Add(ctx context.Context, req competitordomain.AddRequest) (*competitordomain.Response, error) {
	hotelID, err := parseHotelID(req.HotelID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, competitordomain.ErrInvalidName
	}
	token := strings.TrimSpace(req.PropertyToken)
	if token == "" {
		return nil, competitordomain.ErrInvalidToken
	}

	existing, err := s.repo.FindByToken(ctx, s.db, hotelID, token)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.Active {
			if _, err := s.repo.SetActive(ctx, s.db, hotelID, existing.ID, true); err != nil {
				return nil, err
			}
			existing.Active = true
		}
		if existing.Name != name {
			if err := s.repo.Rename(ctx, s.db, hotelID, existing.ID, name); err != nil {
				return nil, err
			}
			existing.Name = name
		}
		return toResponse(existing), nil
	}

	now := s.clock.Now()
	c := &competitordomain.Competitor{
		ID:            s.genID.Generate(),
		HotelID:       hotelID,
		Name:          name,
		PropertyToken: token,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, c); err != nil {
		return nil, err
	}

	s.log.Info("competitor added",
		zap.String("hotel_id", hotelID.String()),
		zap.String("competitor_id", c.ID.String()),
	)
	return toResponse(c), nil
}

func (s *Service) List(ctx context.Context, hotelID string) ([]competitordomain.Response, error) {
	id, err := parseHotelID(hotelID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListActive(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	resp := make([]competitordomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

// Remove soft deletes; rate history rows stay behind for snapshots.
func (s *Service) Remove(ctx context.Context, hotelID, id string) error {
	hid, err := parseHotelID(hotelID)
	if err != nil {
		return err
	}
	cid, err := competitordomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return competitordomain.ErrInvalidID
	}

	affected, err := s.repo.SetActive(ctx, s.db, hid, cid, false)
	if err != nil {
		return err
	}
	if affected == 0 {
		return competitordomain.ErrNotFound
	}
	return nil
}

// Search resolves onboarding suggestions, serving repeat queries from the
// in-process cache to spare upstream quota.
func (s *Service) Search(ctx context.Context, hotelID, query string) (*competitordomain.SearchResult, error) {
	if _, err := parseHotelID(hotelID); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(query)
	if len(trimmed) < searchMinQueryLen {
		return &competitordomain.SearchResult{Suggestions: []competitordomain.SearchSuggestion{}}, nil
	}

	key := normalizeQuery(trimmed)
	if cached, ok := s.searches.Get(key); ok {
		return &competitordomain.SearchResult{Suggestions: cached, FromCache: true}, nil
	}

	hits, err := s.provider.HotelSearch(ctx, trimmed)
	if err != nil {
		return nil, err
	}

	suggestions := make([]competitordomain.SearchSuggestion, 0, len(hits))
	for _, hit := range hits {
		if strings.TrimSpace(hit.PropertyToken) == "" {
			continue
		}
		suggestions = append(suggestions, competitordomain.SearchSuggestion{
			Name:          hit.Name,
			PropertyToken: hit.PropertyToken,
			Subtitle:      hit.Subtitle,
			Rating:        hit.Rating,
			Reviews:       hit.Reviews,
		})
		if len(suggestions) == searchMaxResults {
			break
		}
	}

	s.searches.Set(key, suggestions, searchCacheTTL)
	return &competitordomain.SearchResult{Suggestions: suggestions}, nil
}

func parseHotelID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, competitordomain.ErrInvalidHotelID
	}
	return id, nil
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func toResponse(c *competitordomain.Competitor) *competitordomain.Response {
	return &competitordomain.Response{
		ID:            c.ID.String(),
		HotelID:       c.HotelID.String(),
		Name:          c.Name,
		PropertyToken: c.PropertyToken,
		Active:        c.Active,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}
