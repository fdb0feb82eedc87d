// Package services provides the pure calculation services for urgency pricing
package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"github.com/google/uuid"
)

// MarketDemandConfig holds the multiplier tables composing the demand factor.
// Tables are data, not computed curves; presets exist for typical markets.
type MarketDemandConfig struct {
	BaseMultiplier float64     `json:"base_multiplier"`
	DayOfWeek      [7]float64  `json:"day_of_week"` // indexed by time.Weekday (Sunday = 0)
	Seasonal       [12]float64 `json:"seasonal"`    // indexed by month (January = 0)
}

// MarketDemandConfigPatch carries a partial config update; nil fields keep the current value
type MarketDemandConfigPatch struct {
	BaseMultiplier *float64
	DayOfWeek      *[7]float64
	Seasonal       *[12]float64
}

// defaultSeasonal peaks in June-August and December, troughs in January-February
var defaultSeasonal = [12]float64{0.85, 0.85, 0.95, 1.00, 1.05, 1.20, 1.25, 1.25, 1.05, 1.00, 0.95, 1.20}

// UrbanDemandConfig returns the weekday-premium preset (business travel markets)
func UrbanDemandConfig() MarketDemandConfig {
	return MarketDemandConfig{
		BaseMultiplier: 1.0,
		// Sun, Mon, Tue, Wed, Thu, Fri, Sat
		DayOfWeek: [7]float64{0.80, 1.25, 1.25, 1.25, 1.25, 1.10, 0.80},
		Seasonal:  defaultSeasonal,
	}
}

// ResortDemandConfig returns the weekend-premium preset (leisure markets)
func ResortDemandConfig() MarketDemandConfig {
	return MarketDemandConfig{
		BaseMultiplier: 1.0,
		// Sun, Mon, Tue, Wed, Thu, Fri, Sat
		DayOfWeek: [7]float64{1.40, 0.70, 0.70, 0.70, 0.70, 1.00, 1.40},
		Seasonal:  defaultSeasonal,
	}
}

// DemandPreset resolves a named preset ("urban" or "resort")
func DemandPreset(name string) (MarketDemandConfig, error) {
	switch name {
	case "urban":
		return UrbanDemandConfig(), nil
	case "resort":
		return ResortDemandConfig(), nil
	default:
		return MarketDemandConfig{}, fmt.Errorf("unknown demand preset: %s", name)
	}
}

// DemandBreakdown exposes the individual factors of the demand multiplier.
// Total is always the exact product of the other four fields.
type DemandBreakdown struct {
	Base      float64 `json:"base"`
	DayOfWeek float64 `json:"day_of_week"`
	Seasonal  float64 `json:"seasonal"`
	Event     float64 `json:"event"`
	Total     float64 `json:"total"`
}

// MarketDemandCalculator composes day-of-week, seasonal, and event multipliers
// into one demand factor for a (date, city) pair.
//
// One instance is shared across request handlers and batch goroutines, so
// the config and event map are guarded by an RWMutex. Reads never suspend.
type MarketDemandCalculator struct {
	mu     sync.RWMutex
	config MarketDemandConfig
	events map[uuid.UUID]models.PricingEvent
}

// NewMarketDemandCalculator creates a calculator with the given config and no events
func NewMarketDemandCalculator(config MarketDemandConfig) *MarketDemandCalculator {
	return &MarketDemandCalculator{
		config: config,
		events: make(map[uuid.UUID]models.PricingEvent),
	}
}

// CalculateMultiplier returns the composed demand multiplier for date and optional city
func (c *MarketDemandCalculator) CalculateMultiplier(date time.Time, city string) float64 {
	return c.CalculateDemandBreakdown(date, city).Total
}

// CalculateDemandBreakdown returns each demand factor plus their exact product.
// Both entry points share this composition so the two never drift.
func (c *MarketDemandCalculator) CalculateDemandBreakdown(date time.Time, city string) DemandBreakdown {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := date.UTC()
	b := DemandBreakdown{
		Base:      c.config.BaseMultiplier,
		DayOfWeek: c.config.DayOfWeek[d.Weekday()],
		Seasonal:  c.config.Seasonal[int(d.Month())-1],
		Event:     c.eventMultiplier(d, city),
	}
	b.Total = b.Base * b.DayOfWeek * b.Seasonal * b.Event
	return b
}

// eventMultiplier scans registered events; among all that apply to the
// date/city the highest multiplier wins. Defaults to 1.0 when none apply.
// Callers hold at least a read lock.
func (c *MarketDemandCalculator) eventMultiplier(date time.Time, city string) float64 {
	multiplier := 1.0
	for _, ev := range c.events {
		if ev.AppliesTo(date, city) && ev.Multiplier > multiplier {
			multiplier = ev.Multiplier
		}
	}
	return multiplier
}

// AddEvent registers a demand-affecting event; an existing event with the
// same ID is replaced.
func (c *MarketDemandCalculator) AddEvent(event models.PricingEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[event.EventID] = event
}

// RemoveEvent drops an event by ID; returns false when the event is unknown
func (c *MarketDemandCalculator) RemoveEvent(eventID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.events[eventID]; !ok {
		return false
	}
	delete(c.events, eventID)
	return true
}

// Events returns a snapshot of the registered events
func (c *MarketDemandCalculator) Events() []models.PricingEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.PricingEvent, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev)
	}
	return out
}

// UpdateConfig merges a partial config; unset fields keep their current value
func (c *MarketDemandCalculator) UpdateConfig(patch MarketDemandConfigPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if patch.BaseMultiplier != nil {
		c.config.BaseMultiplier = *patch.BaseMultiplier
	}
	if patch.DayOfWeek != nil {
		c.config.DayOfWeek = *patch.DayOfWeek
	}
	if patch.Seasonal != nil {
		c.config.Seasonal = *patch.Seasonal
	}
}

// Config returns a copy of the current configuration
func (c *MarketDemandCalculator) Config() MarketDemandConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}
