package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	InsertRawResponse(ctx context.Context, db *gorm.DB, raw *RawResponse) error
	InsertRates(ctx context.Context, db *gorm.DB, rates []CompetitorRate) error
}
