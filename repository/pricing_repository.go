package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PricingRepositoryImpl implements PricingRepository
type PricingRepositoryImpl struct {
	*BaseRepository[models.UrgencyPricing, models.UrgencyPricingFilter]
}

func NewPricingRepository(db *gorm.DB) PricingRepository {
	return &PricingRepositoryImpl{BaseRepository: NewBaseRepository[models.UrgencyPricing, models.UrgencyPricingFilter](db)}
}

// Upsert inserts or replaces the pricing row identified by cache_key.
// A recalculated price for the same parameters always supersedes the old row.
func (r *PricingRepositoryImpl) Upsert(ctx context.Context, pricing *models.UrgencyPricing) error {
	if pricing == nil {
		return nil
	}
	db := r.getDB(ctx)
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"current_price":          clause.Expr{SQL: "EXCLUDED.current_price"},
			"current_multiplier":     clause.Expr{SQL: "EXCLUDED.current_multiplier"},
			"base_price":             clause.Expr{SQL: "EXCLUDED.base_price"},
			"market_adjusted_base":   clause.Expr{SQL: "EXCLUDED.market_adjusted_base"},
			"urgency_premium":        clause.Expr{SQL: "EXCLUDED.urgency_premium"},
			"urgency_level":          clause.Expr{SQL: "EXCLUDED.urgency_level"},
			"days_until_check_in":    clause.Expr{SQL: "EXCLUDED.days_until_check_in"},
			"hours_until_check_in":   clause.Expr{SQL: "EXCLUDED.hours_until_check_in"},
			"target_date":            clause.Expr{SQL: "EXCLUDED.target_date"},
			"projections":            clause.Expr{SQL: "EXCLUDED.projections"},
			"increase_rate_per_day":  clause.Expr{SQL: "EXCLUDED.increase_rate_per_day"},
			"increase_rate_per_hour": clause.Expr{SQL: "EXCLUDED.increase_rate_per_hour"},
			"peak_price":             clause.Expr{SQL: "EXCLUDED.peak_price"},
			"calculated_at":          clause.Expr{SQL: "EXCLUDED.calculated_at"},
			"expires_at":             clause.Expr{SQL: "EXCLUDED.expires_at"},
		}),
	}).Create(pricing).Error
}

func (r *PricingRepositoryImpl) ByCacheKey(ctx context.Context, cacheKey string) (*models.UrgencyPricing, error) {
	db := r.getDB(ctx)
	var row models.UrgencyPricing
	err := db.Where("cache_key = ?", cacheKey).Last(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *PricingRepositoryImpl) ByFilter(ctx context.Context, filter models.UrgencyPricingFilter, orderBy string, limit, offset int) ([]*models.UrgencyPricing, error) {
	db := r.getDB(ctx)
	db = r.applyFilter(db, filter)
	if orderBy != "" {
		db = db.Order(orderBy)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	var rows []*models.UrgencyPricing
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteExpired removes pricing rows whose expires_at is before the cutoff.
// Returns the number of rows removed.
func (r *PricingRepositoryImpl) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	db := r.getDB(ctx)
	res := db.Where("expires_at < ?", cutoff).Delete(&models.UrgencyPricing{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *PricingRepositoryImpl) applyFilter(db *gorm.DB, filter models.UrgencyPricingFilter) *gorm.DB {
	if filter.CacheKey != nil {
		db = db.Where("cache_key = ?", *filter.CacheKey)
	}
	if filter.UrgencyLevel != nil {
		db = db.Where("urgency_level = ?", *filter.UrgencyLevel)
	}
	if filter.TargetAfter != nil {
		db = db.Where("target_date >= ?", *filter.TargetAfter)
	}
	if filter.TargetBefore != nil {
		db = db.Where("target_date <= ?", *filter.TargetBefore)
	}
	if filter.ExpiresBefore != nil {
		db = db.Where("expires_at < ?", *filter.ExpiresBefore)
	}
	return db
}
