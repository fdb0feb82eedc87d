package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PricingEventRepositoryImpl implements PricingEventRepository
type PricingEventRepositoryImpl struct {
	*BaseRepository[models.PricingEvent, models.PricingEventFilter]
}

func NewPricingEventRepository(db *gorm.DB) PricingEventRepository {
	return &PricingEventRepositoryImpl{BaseRepository: NewBaseRepository[models.PricingEvent, models.PricingEventFilter](db)}
}

// Upsert inserts or replaces the event row identified by event_id.
func (r *PricingEventRepositoryImpl) Upsert(ctx context.Context, event *models.PricingEvent) error {
	if event == nil {
		return nil
	}
	db := r.getDB(ctx)
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"name":       clause.Expr{SQL: "EXCLUDED.name"},
			"start_date": clause.Expr{SQL: "EXCLUDED.start_date"},
			"end_date":   clause.Expr{SQL: "EXCLUDED.end_date"},
			"multiplier": clause.Expr{SQL: "EXCLUDED.multiplier"},
			"cities":     clause.Expr{SQL: "EXCLUDED.cities"},
			"updated_at": clause.Expr{SQL: "EXCLUDED.updated_at"},
		}),
	}).Create(event).Error
}

func (r *PricingEventRepositoryImpl) ByEventID(ctx context.Context, eventID uuid.UUID) (*models.PricingEvent, error) {
	db := r.getDB(ctx)
	var row models.PricingEvent
	err := db.Where("event_id = ?", eventID).Last(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListActiveOn returns events whose inclusive date range covers the given day.
func (r *PricingEventRepositoryImpl) ListActiveOn(ctx context.Context, date time.Time) ([]*models.PricingEvent, error) {
	db := r.getDB(ctx)
	day := utils.TruncateToDay(date)
	var rows []*models.PricingEvent
	if err := db.Where("start_date <= ? AND end_date >= ?", day, day).Order("multiplier DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PricingEventRepositoryImpl) ListAll(ctx context.Context) ([]*models.PricingEvent, error) {
	db := r.getDB(ctx)
	var rows []*models.PricingEvent
	if err := db.Order("start_date ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteEndedBefore removes events whose end_date is before the cutoff.
func (r *PricingEventRepositoryImpl) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db := r.getDB(ctx)
	res := db.Where("end_date < ?", utils.TruncateToDay(cutoff)).Delete(&models.PricingEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
