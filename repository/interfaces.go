// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
}

// PricingRepository defines durable storage of computed pricing results.
// Writes are idempotent: the unique cache key is the natural key.
type PricingRepository interface {
	Repository[models.UrgencyPricing, models.UrgencyPricingFilter]
	Upsert(ctx context.Context, pricing *models.UrgencyPricing) error
	ByCacheKey(ctx context.Context, cacheKey string) (*models.UrgencyPricing, error)
	ByFilter(ctx context.Context, filter models.UrgencyPricingFilter, orderBy string, limit, offset int) ([]*models.UrgencyPricing, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// MarketDemandRepository defines durable storage of demand breakdown rows,
// upserted by their (date, city) natural key.
type MarketDemandRepository interface {
	Repository[models.MarketDemand, models.MarketDemandFilter]
	Upsert(ctx context.Context, demand *models.MarketDemand) error
	ByDateAndCity(ctx context.Context, date time.Time, city string) (*models.MarketDemand, error)
}

// PricingEventRepository defines durable storage of demand-affecting events,
// upserted by their event UUID.
type PricingEventRepository interface {
	Repository[models.PricingEvent, models.PricingEventFilter]
	Upsert(ctx context.Context, event *models.PricingEvent) error
	ByEventID(ctx context.Context, eventID uuid.UUID) (*models.PricingEvent, error)
	ListActiveOn(ctx context.Context, date time.Time) ([]*models.PricingEvent, error)
	ListAll(ctx context.Context) ([]*models.PricingEvent, error)
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
