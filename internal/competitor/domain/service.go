package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidHotelID = errors.New("competitor: invalid hotel id")
	ErrInvalidID      = errors.New("competitor: invalid id")
	ErrInvalidName    = errors.New("competitor: name is required")
	ErrInvalidToken   = errors.New("competitor: property token is required")
	ErrNotFound       = errors.New("competitor: not found")
)

type Service interface {
	Add(ctx context.Context, req AddRequest) (*Response, error)
	List(ctx context.Context, hotelID string) ([]Response, error)
	Remove(ctx context.Context, hotelID, id string) error
	Search(ctx context.Context, hotelID, query string) (*SearchResult, error)
}

type AddRequest struct {
	HotelID       string `json:"hotel_id"`
	Name          string `json:"name"`
	PropertyToken string `json:"property_token"`
}

type Response struct {
	ID            string    `json:"id"`
	HotelID       string    `json:"hotel_id"`
	Name          string    `json:"name"`
	PropertyToken string    `json:"property_token"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type SearchSuggestion struct {
	Name          string  `json:"name"`
	PropertyToken string  `json:"property_token"`
	Subtitle      string  `json:"subtitle,omitempty"`
	Rating        float64 `json:"rating,omitempty"`
	Reviews       int     `json:"reviews,omitempty"`
}

type SearchResult struct {
	Suggestions []SearchSuggestion `json:"data"`
	FromCache   bool               `json:"fromCache"`
}

// ParseID parses a snowflake id carried as a string.
func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
