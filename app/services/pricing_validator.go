package services

import (
	"fmt"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/utils"
)

// PricingValidator is the gatekeeper for urgency contexts and public pricing
// requests. Every rule produces one field-level error; all are collected so
// the caller sees the complete picture instead of the first violation.
type PricingValidator struct {
	now func() time.Time
}

// NewPricingValidator creates a validator; clock defaults to UTC now when nil
func NewPricingValidator(clock func() time.Time) *PricingValidator {
	if clock == nil {
		clock = utils.UTCNow
	}
	return &PricingValidator{now: clock}
}

// ValidateContext checks a fully-built urgency context
func (v *PricingValidator) ValidateContext(ctx *models.UrgencyContext) []dto.FieldError {
	var errs []dto.FieldError

	if ctx.TargetDate.IsZero() {
		errs = append(errs, dto.FieldError{Field: "target_date", Message: "target date is required"})
	}
	if !ctx.TargetDate.IsZero() && !ctx.CurrentDate.IsZero() && !ctx.TargetDate.After(ctx.CurrentDate) {
		errs = append(errs, dto.FieldError{Field: "target_date", Message: "target date must be after the current date"})
	}
	if ctx.BasePrice <= 0 {
		errs = append(errs, dto.FieldError{Field: "base_price", Message: "base price must be greater than zero"})
	} else if ctx.BasePrice > utils.MaxBasePrice {
		errs = append(errs, dto.FieldError{Field: "base_price", Message: fmt.Sprintf("base price must not exceed %.0f", utils.MaxBasePrice)})
	}
	if ctx.UrgencySteepness <= 0 {
		errs = append(errs, dto.FieldError{Field: "urgency_steepness", Message: "urgency steepness must be greater than zero"})
	} else if ctx.UrgencySteepness > utils.MaxUrgencySteepness {
		errs = append(errs, dto.FieldError{Field: "urgency_steepness", Message: fmt.Sprintf("urgency steepness must not exceed %.1f", utils.MaxUrgencySteepness)})
	}
	if ctx.MarketDemandMultiplier < utils.MinMarketDemandMultiplier || ctx.MarketDemandMultiplier > utils.MaxMarketDemandMultiplier {
		errs = append(errs, dto.FieldError{Field: "market_demand_multiplier", Message: fmt.Sprintf("market demand multiplier must be between %.1f and %.1f", utils.MinMarketDemandMultiplier, utils.MaxMarketDemandMultiplier)})
	}
	if ctx.LookbackWindow <= 0 {
		errs = append(errs, dto.FieldError{Field: "lookback_window", Message: "lookback window must be greater than zero"})
	} else if ctx.LookbackWindow > utils.MaxLookbackWindowDays {
		errs = append(errs, dto.FieldError{Field: "lookback_window", Message: fmt.Sprintf("lookback window must not exceed %d days", utils.MaxLookbackWindowDays)})
	}
	if ctx.DaysUntilCheckIn < 0 {
		errs = append(errs, dto.FieldError{Field: "days_until_check_in", Message: "days until check-in must not be negative"})
	}
	if ctx.HoursUntilCheckIn < 0 {
		errs = append(errs, dto.FieldError{Field: "hours_until_check_in", Message: "hours until check-in must not be negative"})
	}

	return errs
}

// ValidatePricingRequest checks a raw public request before sanitization
func (v *PricingValidator) ValidatePricingRequest(req *dto.PricingCalculationRequest) []dto.FieldError {
	var errs []dto.FieldError

	current := v.now()
	if req.CurrentDate != "" {
		if parsed, err := parseFlexibleDate(req.CurrentDate); err != nil {
			errs = append(errs, dto.FieldError{Field: "current_date", Message: "current date must be an RFC3339 timestamp or a YYYY-MM-DD day"})
		} else {
			current = parsed
		}
	}

	if req.TargetDate == "" {
		errs = append(errs, dto.FieldError{Field: "target_date", Message: "target date is required"})
	} else if target, err := parseFlexibleDate(req.TargetDate); err != nil {
		errs = append(errs, dto.FieldError{Field: "target_date", Message: "target date must be an RFC3339 timestamp or a YYYY-MM-DD day"})
	} else if !target.After(current) {
		errs = append(errs, dto.FieldError{Field: "target_date", Message: "target date must be after the current date"})
	}

	if req.BasePrice <= 0 {
		errs = append(errs, dto.FieldError{Field: "base_price", Message: "base price must be greater than zero"})
	} else if req.BasePrice > utils.MaxBasePrice {
		errs = append(errs, dto.FieldError{Field: "base_price", Message: fmt.Sprintf("base price must not exceed %.0f", utils.MaxBasePrice)})
	}
	if req.UrgencySteepness != nil {
		if *req.UrgencySteepness <= 0 {
			errs = append(errs, dto.FieldError{Field: "urgency_steepness", Message: "urgency steepness must be greater than zero"})
		} else if *req.UrgencySteepness > utils.MaxUrgencySteepness {
			errs = append(errs, dto.FieldError{Field: "urgency_steepness", Message: fmt.Sprintf("urgency steepness must not exceed %.1f", utils.MaxUrgencySteepness)})
		}
	}
	if req.MarketDemandMultiplier != nil {
		if *req.MarketDemandMultiplier < utils.MinMarketDemandMultiplier || *req.MarketDemandMultiplier > utils.MaxMarketDemandMultiplier {
			errs = append(errs, dto.FieldError{Field: "market_demand_multiplier", Message: fmt.Sprintf("market demand multiplier must be between %.1f and %.1f", utils.MinMarketDemandMultiplier, utils.MaxMarketDemandMultiplier)})
		}
	}
	if req.LookbackWindow != nil {
		if *req.LookbackWindow <= 0 {
			errs = append(errs, dto.FieldError{Field: "lookback_window", Message: "lookback window must be greater than zero"})
		} else if *req.LookbackWindow > utils.MaxLookbackWindowDays {
			errs = append(errs, dto.FieldError{Field: "lookback_window", Message: fmt.Sprintf("lookback window must not exceed %d days", utils.MaxLookbackWindowDays)})
		}
	}

	return errs
}

// SanitizePricingRequest fills defaults and converts string dates into a
// typed urgency context. This is the boundary where the wire shape becomes
// the internal one; it assumes ValidatePricingRequest passed.
func (v *PricingValidator) SanitizePricingRequest(req *dto.PricingCalculationRequest) (*models.UrgencyContext, error) {
	current := v.now()
	if req.CurrentDate != "" {
		parsed, err := parseFlexibleDate(req.CurrentDate)
		if err != nil {
			return nil, fmt.Errorf("invalid current date: %w", err)
		}
		current = parsed
	}

	target, err := parseFlexibleDate(req.TargetDate)
	if err != nil {
		return nil, fmt.Errorf("invalid target date: %w", err)
	}

	ctx := &models.UrgencyContext{
		TargetDate:             utils.TimeToUTC(target),
		CurrentDate:            utils.TimeToUTC(current),
		DaysUntilCheckIn:       utils.DaysBetween(current, target),
		HoursUntilCheckIn:      utils.HoursBetween(current, target),
		BasePrice:              req.BasePrice,
		UrgencySteepness:       utils.DefaultUrgencySteepness,
		MarketDemandMultiplier: 1.0,
		LookbackWindow:         utils.DefaultLookbackWindowDays,
		TransactionType:        req.TransactionType,
		IncludeProjections:     true,
	}
	if req.UrgencySteepness != nil {
		ctx.UrgencySteepness = *req.UrgencySteepness
	}
	if req.MarketDemandMultiplier != nil {
		ctx.MarketDemandMultiplier = *req.MarketDemandMultiplier
	}
	if req.LookbackWindow != nil {
		ctx.LookbackWindow = *req.LookbackWindow
	}
	if req.IncludeProjections != nil {
		ctx.IncludeProjections = *req.IncludeProjections
	}

	return ctx, nil
}

// parseFlexibleDate accepts RFC3339 timestamps and plain YYYY-MM-DD days
func parseFlexibleDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return utils.ParseDay(s)
}
