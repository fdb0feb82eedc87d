package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarketDemandRepositoryImpl implements MarketDemandRepository
type MarketDemandRepositoryImpl struct {
	*BaseRepository[models.MarketDemand, models.MarketDemandFilter]
}

func NewMarketDemandRepository(db *gorm.DB) MarketDemandRepository {
	return &MarketDemandRepositoryImpl{BaseRepository: NewBaseRepository[models.MarketDemand, models.MarketDemandFilter](db)}
}

// Upsert inserts or replaces the demand row for (date, city).
func (r *MarketDemandRepositoryImpl) Upsert(ctx context.Context, demand *models.MarketDemand) error {
	if demand == nil {
		return nil
	}
	demand.Date = utils.TruncateToDay(demand.Date)
	db := r.getDB(ctx)
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}, {Name: "city"}},
		DoUpdates: clause.Assignments(map[string]any{
			"base_multiplier":        clause.Expr{SQL: "EXCLUDED.base_multiplier"},
			"day_of_week_multiplier": clause.Expr{SQL: "EXCLUDED.day_of_week_multiplier"},
			"seasonal_multiplier":    clause.Expr{SQL: "EXCLUDED.seasonal_multiplier"},
			"event_multiplier":       clause.Expr{SQL: "EXCLUDED.event_multiplier"},
			"total_multiplier":       clause.Expr{SQL: "EXCLUDED.total_multiplier"},
			"updated_at":             clause.Expr{SQL: "EXCLUDED.updated_at"},
		}),
	}).Create(demand).Error
}

func (r *MarketDemandRepositoryImpl) ByDateAndCity(ctx context.Context, date time.Time, city string) (*models.MarketDemand, error) {
	db := r.getDB(ctx)
	var row models.MarketDemand
	err := db.Where("date = ? AND city = ?", utils.TruncateToDay(date), city).Last(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
