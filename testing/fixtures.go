// Package testing provides test utilities and database setup for testing the pricing system
package testing

import (
	"fmt"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/pkg/cache"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestPricing creates a stored pricing row for the given target date.
// The cache key matches what the flow would generate for the same inputs,
// so recalculation tests can parse steepness and market factor back out.
func (tf *TestFixtures) CreateTestPricing(targetDate time.Time, basePrice float64, ttl time.Duration) (*models.UrgencyPricing, error) {
	now := utils.UTCNow()
	day := utils.TruncateToDay(targetDate)
	days := utils.DaysBetween(now, day)

	pricing := &models.UrgencyPricing{
		CacheKey:           cache.GenerateCacheKey(day, basePrice, utils.DefaultUrgencySteepness, 1.0),
		CurrentPrice:       basePrice * 1.5,
		CurrentMultiplier:  1.5,
		BasePrice:          basePrice,
		MarketAdjustedBase: basePrice,
		UrgencyPremium:     basePrice * 0.5,
		UrgencyLevel:       models.UrgencyLevelMedium,
		DaysUntilCheckIn:   days,
		HoursUntilCheckIn:  days * 24,
		TargetDate:         day,
		PeakPrice:          basePrice * 7.0,
		CalculatedAt:       now,
		ExpiresAt:          now.Add(ttl),
	}

	if err := tf.DB.DB.Create(pricing).Error; err != nil {
		return nil, fmt.Errorf("failed to create test pricing: %w", err)
	}

	return pricing, nil
}

// CreateTestDemand creates a stored demand breakdown for the given date and city
func (tf *TestFixtures) CreateTestDemand(date time.Time, city string, total float64) (*models.MarketDemand, error) {
	demand := &models.MarketDemand{
		Date:                utils.TruncateToDay(date),
		City:                city,
		BaseMultiplier:      1.0,
		DayOfWeekMultiplier: 1.0,
		SeasonalMultiplier:  1.0,
		EventMultiplier:     total,
		TotalMultiplier:     total,
		UpdatedAt:           utils.UTCNow(),
	}

	if err := tf.DB.DB.Create(demand).Error; err != nil {
		return nil, fmt.Errorf("failed to create test demand: %w", err)
	}

	return demand, nil
}

// CreateTestEvent creates a pricing event covering [start, end] with the given cities
func (tf *TestFixtures) CreateTestEvent(name string, start, end time.Time, multiplier float64, cities ...string) (*models.PricingEvent, error) {
	now := utils.UTCNow()
	event := &models.PricingEvent{
		EventID:    uuid.New(),
		Name:       name,
		StartDate:  utils.TruncateToDay(start),
		EndDate:    utils.TruncateToDay(end),
		Multiplier: multiplier,
		Cities:     pq.StringArray(cities),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := tf.DB.DB.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to create test event: %w", err)
	}

	return event, nil
}
