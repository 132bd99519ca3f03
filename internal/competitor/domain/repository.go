package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, competitor *Competitor) error
	SetActive(ctx context.Context, db *gorm.DB, hotelID, id snowflake.ID, active bool) (int64, error)
	Rename(ctx context.Context, db *gorm.DB, hotelID, id snowflake.ID, name string) error
	FindByID(ctx context.Context, db *gorm.DB, hotelID, id snowflake.ID) (*Competitor, error)
	FindByToken(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, propertyToken string) (*Competitor, error)
	ListActive(ctx context.Context, db *gorm.DB, hotelID snowflake.ID) ([]Competitor, error)
}
