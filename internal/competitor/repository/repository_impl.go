package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	competitordomain "github.com/ratepulse/ratepulse/internal/competitor/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() competitordomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *competitordomain.Competitor) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO competitors (id, hotel_id, name, property_token, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.HotelID,
		c.Name,
		c.PropertyToken,
		c.Active,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, hotelID, id snowflake.ID, active bool) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE competitors SET active = ?, updated_at = ? WHERE hotel_id = ? AND id = ?`,
		active,
		time.Now().UTC(),
		hotelID,
		id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Rename(ctx context.Context, db *gorm.DB, hotelID, id snowflake.ID, name string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE competitors SET name = ?, updated_at = ? WHERE hotel_id = ? AND id = ?`,
		name,
		time.Now().UTC(),
		hotelID,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, hotelID, id snowflake.ID) (*competitordomain.Competitor, error) {
	var competitor competitordomain.Competitor
	err := db.WithContext(ctx).Raw(
		`SELECT id, hotel_id, name, property_token, active, created_at, updated_at
		 FROM competitors WHERE hotel_id = ? AND id = ?`,
		hotelID,
		id,
	).Scan(&competitor).Error
	if err != nil {
		return nil, err
	}
	if competitor.ID == 0 {
		return nil, nil
	}
	return &competitor, nil
}

func (r *repo) FindByToken(ctx context.Context, db *gorm.DB, hotelID snowflake.ID, propertyToken string) (*competitordomain.Competitor, error) {
	var competitor competitordomain.Competitor
	err := db.WithContext(ctx).Raw(
		`SELECT id, hotel_id, name, property_token, active, created_at, updated_at
		 FROM competitors WHERE hotel_id = ? AND property_token = ?`,
		hotelID,
		propertyToken,
	).Scan(&competitor).Error
	if err != nil {
		return nil, err
	}
	if competitor.ID == 0 {
		return nil, nil
	}
	return &competitor, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, hotelID snowflake.ID) ([]competitordomain.Competitor, error) {
	var competitors []competitordomain.Competitor
	err := db.WithContext(ctx).Raw(
		`SELECT id, hotel_id, name, property_token, active, created_at, updated_at
		 FROM competitors WHERE hotel_id = ? AND active ORDER BY created_at ASC`,
		hotelID,
	).Scan(&competitors).Error
	if err != nil {
		return nil, err
	}
	return competitors, nil
}
