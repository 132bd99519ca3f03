package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rec *Recommendation) error
	FindByID(ctx context.Context, db *gorm.DB, hotelID, id snowflake.ID) (*Recommendation, error)
	ListByStatus(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, status Status) ([]Recommendation, error)

	// ExpirePending expires any pending row for the pair, returning rows
	// affected. Used inside the expire-then-insert transaction.
	ExpirePending(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, stayDate time.Time, now time.Time) (int64, error)

	// Decide moves a pending row to a terminal status. Zero rows means
	// the row is missing, owned by another hotel, or already decided.
	Decide(ctx context.Context, db *gorm.DB, hotelID, id snowflake.ID, status Status, decidedBy string, now time.Time) (int64, error)

	// ExpireOverdue expires every pending row whose stay date has passed.
	ExpireOverdue(ctx context.Context, db *gorm.DB, today time.Time, now time.Time) (int64, error)
}
