// Package models contains the persistence and domain models for urgency pricing
package models

import (
	"time"

	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// MarketDemand is the durable breakdown of the demand multiplier for a (date, city) pair.
// Upserted by its natural key (date, city).
type MarketDemand struct {
	ID                  uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	Date                time.Time `json:"date" gorm:"column:date;not null;uniqueIndex:idx_market_demands_date_city"`
	City                string    `json:"city" gorm:"column:city;size:64;not null;default:'';uniqueIndex:idx_market_demands_date_city"`
	BaseMultiplier      float64   `json:"base_multiplier" gorm:"column:base_multiplier;not null"`
	DayOfWeekMultiplier float64   `json:"day_of_week_multiplier" gorm:"column:day_of_week_multiplier;not null"`
	SeasonalMultiplier  float64   `json:"seasonal_multiplier" gorm:"column:seasonal_multiplier;not null"`
	EventMultiplier     float64   `json:"event_multiplier" gorm:"column:event_multiplier;not null"`
	TotalMultiplier     float64   `json:"total_multiplier" gorm:"column:total_multiplier;not null"`
	UpdatedAt           time.Time `json:"updated_at" gorm:"column:updated_at;not null"`
}

// TableName returns the table name for MarketDemand
func (MarketDemand) TableName() string {
	return "market_demands"
}

// MarketDemandFilter defines filter criteria for market demand queries
type MarketDemandFilter struct {
	City       *string
	DateAfter  *time.Time
	DateBefore *time.Time
}

// PricingEvent is a demand-affecting event (holiday, festival, conference)
// with an inclusive date range and an optional city scope.
// Among overlapping events the highest multiplier wins.
type PricingEvent struct {
	ID         uint           `json:"-" gorm:"primaryKey;autoIncrement"`
	EventID    uuid.UUID      `json:"event_id" gorm:"column:event_id;type:uuid;uniqueIndex;not null"`
	Name       string         `json:"name" gorm:"column:name;size:255;not null"`
	StartDate  time.Time      `json:"start_date" gorm:"column:start_date;not null;index"`
	EndDate    time.Time      `json:"end_date" gorm:"column:end_date;not null;index"`
	Multiplier float64        `json:"multiplier" gorm:"column:multiplier;not null"`
	Cities     pq.StringArray `json:"cities" gorm:"column:cities;type:text[]"`
	CreatedAt  time.Time      `json:"created_at" gorm:"column:created_at;not null"`
	UpdatedAt  time.Time      `json:"updated_at" gorm:"column:updated_at;not null"`
}

// TableName returns the table name for PricingEvent
func (PricingEvent) TableName() string {
	return "pricing_events"
}

// AppliesTo reports whether the event covers the given date and city.
// An empty city matches events regardless of their city scope; an event
// with no cities applies everywhere.
func (e *PricingEvent) AppliesTo(date time.Time, city string) bool {
	day := utils.TruncateToDay(date)
	start := utils.TruncateToDay(e.StartDate)
	end := utils.TruncateToDay(e.EndDate)
	if day.Before(start) || day.After(end) {
		return false
	}
	if city == "" || len(e.Cities) == 0 {
		return true
	}
	for _, c := range e.Cities {
		if c == city {
			return true
		}
	}
	return false
}

// PricingEventFilter defines filter criteria for event queries
type PricingEventFilter struct {
	EventID      *uuid.UUID
	ActiveOn     *time.Time
	City         *string
	EndingBefore *time.Time
}
