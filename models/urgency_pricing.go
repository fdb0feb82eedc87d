package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/Amaterasu/utils"
)

// UrgencyLevel represents the coarse urgency bucket derived from days until the target date
type UrgencyLevel string

const (
	UrgencyLevelLow      UrgencyLevel = "LOW"
	UrgencyLevelMedium   UrgencyLevel = "MEDIUM"
	UrgencyLevelHigh     UrgencyLevel = "HIGH"
	UrgencyLevelCritical UrgencyLevel = "CRITICAL"
)

// String returns the string representation of the level
func (l UrgencyLevel) String() string {
	return string(l)
}

// Valid checks if the level is valid
func (l UrgencyLevel) Valid() bool {
	switch l {
	case UrgencyLevelLow, UrgencyLevelMedium, UrgencyLevelHigh, UrgencyLevelCritical:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for UrgencyLevel
func (l *UrgencyLevel) Scan(value any) error {
	if value == nil {
		*l = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*l = UrgencyLevel(v)
	case []byte:
		*l = UrgencyLevel(string(v))
	default:
		return fmt.Errorf("cannot scan %T into UrgencyLevel", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for UrgencyLevel
func (l UrgencyLevel) Value() (driver.Value, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid UrgencyLevel: %s", l)
	}
	return string(l), nil
}

// CacheTTL returns the cache lifetime assigned to pricing computed at this level
func (l UrgencyLevel) CacheTTL() time.Duration {
	switch l {
	case UrgencyLevelCritical:
		return utils.CriticalCacheTTL
	case UrgencyLevelHigh:
		return utils.HighCacheTTL
	case UrgencyLevelMedium:
		return utils.MediumCacheTTL
	default:
		return utils.LowCacheTTL
	}
}

// UrgencyContext carries the inputs of a single pricing calculation.
// It is ephemeral: built per request after sanitization, never persisted.
type UrgencyContext struct {
	TargetDate             time.Time `json:"target_date"`
	CurrentDate            time.Time `json:"current_date"`
	DaysUntilCheckIn       int       `json:"days_until_check_in"`
	HoursUntilCheckIn      int       `json:"hours_until_check_in"`
	BasePrice              float64   `json:"base_price"`
	UrgencySteepness       float64   `json:"urgency_steepness"`
	MarketDemandMultiplier float64   `json:"market_demand_multiplier"`
	LookbackWindow         int       `json:"lookback_window"`
	TransactionType        string    `json:"transaction_type,omitempty"`
	IncludeProjections     bool      `json:"include_projections"`
}

// PriceProjection is a forecasted future point on the same urgency curve,
// expressed relative to the current price.
type PriceProjection struct {
	DaysOut             int          `json:"days_out"`
	HoursOut            int          `json:"hours_out"`
	ProjectedPrice      float64      `json:"projected_price"`
	ProjectedMultiplier float64      `json:"projected_multiplier"`
	PriceIncrease       float64      `json:"price_increase"`
	PercentageIncrease  float64      `json:"percentage_increase"`
	UrgencyLevel        UrgencyLevel `json:"urgency_level"`
	ProjectedAt         time.Time    `json:"projected_at"`
}

// ProjectionList stores projections as a serialized JSON array
type ProjectionList []PriceProjection

// Value implements the driver.Valuer interface for ProjectionList
func (p ProjectionList) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for ProjectionList
func (p *ProjectionList) Scan(value any) error {
	if value == nil {
		*p = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into ProjectionList", value)
	}
}

// UrgencyPricing is the computed, cacheable pricing result.
// Immutable once produced; superseded by the next calculation, never mutated.
type UrgencyPricing struct {
	ID                  uint           `json:"-" gorm:"primaryKey;autoIncrement"`
	CacheKey            string         `json:"cache_key,omitempty" gorm:"column:cache_key;uniqueIndex;size:255"`
	CurrentPrice        float64        `json:"current_price" gorm:"column:current_price;not null"`
	CurrentMultiplier   float64        `json:"current_multiplier" gorm:"column:current_multiplier;not null"`
	BasePrice           float64        `json:"base_price" gorm:"column:base_price;not null"`
	MarketAdjustedBase  float64        `json:"market_adjusted_base" gorm:"column:market_adjusted_base;not null"`
	UrgencyPremium      float64        `json:"urgency_premium" gorm:"column:urgency_premium;not null"`
	UrgencyLevel        UrgencyLevel   `json:"urgency_level" gorm:"column:urgency_level;size:16;not null;index"`
	DaysUntilCheckIn    int            `json:"days_until_check_in" gorm:"column:days_until_check_in;not null"`
	HoursUntilCheckIn   int            `json:"hours_until_check_in" gorm:"column:hours_until_check_in;not null"`
	TransactionType     string         `json:"transaction_type,omitempty" gorm:"column:transaction_type;size:64"`
	TargetDate          time.Time      `json:"target_date" gorm:"column:target_date;not null;index"`
	Projections         ProjectionList `json:"projections,omitempty" gorm:"column:projections;type:jsonb"`
	IncreaseRatePerDay  float64        `json:"increase_rate_per_day" gorm:"column:increase_rate_per_day"`
	IncreaseRatePerHour float64        `json:"increase_rate_per_hour" gorm:"column:increase_rate_per_hour"`
	PeakPrice           float64        `json:"peak_price" gorm:"column:peak_price"`
	CalculatedAt        time.Time      `json:"calculated_at" gorm:"column:calculated_at;not null"`
	ExpiresAt           time.Time      `json:"expires_at" gorm:"column:expires_at;not null;index"`
}

// TableName returns the table name for UrgencyPricing
func (UrgencyPricing) TableName() string {
	return "urgency_pricings"
}

// IsExpired reports whether the result has passed its TTL at the given instant
func (p *UrgencyPricing) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// UrgencyPricingFilter defines filter criteria for pricing queries
type UrgencyPricingFilter struct {
	CacheKey      *string
	UrgencyLevel  *UrgencyLevel
	TargetAfter   *time.Time
	TargetBefore  *time.Time
	ExpiresBefore *time.Time
}
