// Package dto contains request and response shapes for the pricing API
package dto

import (
	"time"

	"github.com/amirphl/Amaterasu/models"
)

// PricingCalculationRequest is the public request shape for a single pricing calculation.
// Dates accept either RFC3339 timestamps or plain YYYY-MM-DD days.
type PricingCalculationRequest struct {
	TargetDate             string   `json:"target_date" validate:"required"`
	BasePrice              float64  `json:"base_price" validate:"required"`
	City                   string   `json:"city,omitempty"`
	UrgencySteepness       *float64 `json:"urgency_steepness,omitempty"`
	MarketDemandMultiplier *float64 `json:"market_demand_multiplier,omitempty"`
	LookbackWindow         *int     `json:"lookback_window,omitempty"`
	TransactionType        string   `json:"transaction_type,omitempty"`
	IncludeProjections     *bool    `json:"include_projections,omitempty"`
	CurrentDate            string   `json:"current_date,omitempty"`
}

// PricingResponse is the per-calculation response envelope
type PricingResponse struct {
	Success  bool                   `json:"success"`
	Data     *models.UrgencyPricing `json:"data,omitempty"`
	Error    *ErrorDetail           `json:"error,omitempty"`
	Metadata ResponseMetadata       `json:"metadata"`
}

// BatchPricingRequest wraps up to 100 single calculation requests
type BatchPricingRequest struct {
	Requests []PricingCalculationRequest `json:"requests" validate:"required,min=1,max=100,dive"`
}

// BatchPricingResponse carries per-item responses plus aggregate counts
type BatchPricingResponse struct {
	Success  bool              `json:"success"`
	Results  []PricingResponse `json:"results"`
	Metadata BatchMetadata     `json:"metadata"`
}

// BatchMetadata summarizes a batch run
type BatchMetadata struct {
	RequestID              string `json:"request_id"`
	TotalRequests          int    `json:"total_requests"`
	SuccessfulRequests     int    `json:"successful_requests"`
	FailedRequests         int    `json:"failed_requests"`
	TotalCalculationTimeMs int64  `json:"total_calculation_time_ms"`
}

// CalendarPricingRequest asks for pricing across a set of dates (calendar views)
type CalendarPricingRequest struct {
	BasePrice float64  `json:"base_price" validate:"required,gt=0"`
	Dates     []string `json:"dates" validate:"required,min=1,max=90"`
	City      string   `json:"city,omitempty"`
	Steepness *float64 `json:"steepness,omitempty"`
}

// CalendarPricingResponse maps date strings to pricing results.
// Dates whose calculation failed are omitted.
type CalendarPricingResponse struct {
	Message string                            `json:"message"`
	Pricing map[string]*models.UrgencyPricing `json:"pricing"`
}

// RegisterEventRequest registers a demand-affecting event
type RegisterEventRequest struct {
	EventName  string   `json:"event_name" validate:"required,min=1,max=255"`
	StartDate  string   `json:"start_date" validate:"required"`
	EndDate    string   `json:"end_date" validate:"required"`
	Cities     []string `json:"cities,omitempty"`
	Multiplier float64  `json:"multiplier" validate:"required,gt=0"`
}

// RegisterEventResponse confirms event registration
type RegisterEventResponse struct {
	Message   string    `json:"message"`
	EventID   string    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CacheStatsResponse reports cache observability counters
type CacheStatsResponse struct {
	MemoryEntries    int    `json:"memory_entries"`
	MemoryCapacity   int    `json:"memory_capacity"`
	DistributedKeys  int64  `json:"distributed_keys"`
	DistributedState string `json:"distributed_state"`
	Hits             uint64 `json:"hits"`
	Misses           uint64 `json:"misses"`
}

// CleanupResponse reports the outcome of an expired-entry sweep
type CleanupResponse struct {
	Message        string `json:"message"`
	RemovedEntries int    `json:"removed_entries"`
	RemovedRows    int64  `json:"removed_rows"`
}
