package services

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/utils"
)

// Calculation error sentinels; these signal violated preconditions and are
// fatal to the single calculation, never partially applied.
var (
	ErrInvalidSteepness      = errors.New("urgency steepness must be greater than zero")
	ErrInvalidLookbackWindow = errors.New("lookback window must be greater than zero")
)

// ValidationError aggregates all field-level violations of one request
type ValidationError struct {
	Fields []dto.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid pricing context: " + strings.Join(msgs, "; ")
}

// AsValidationError unwraps err into a *ValidationError when possible
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// MultiplierInput carries the parameters of a single multiplier evaluation
type MultiplierInput struct {
	DaysOut              int
	HoursOut             int
	Steepness            float64
	LookbackWindow       int // days
	UseHourlyGranularity bool
}

// projectionOffsets maps urgency level to the day offsets of the projection batch
var projectionOffsets = map[models.UrgencyLevel][]int{
	models.UrgencyLevelCritical: {1},
	models.UrgencyLevelHigh:     {1, 2, 3},
	models.UrgencyLevelMedium:   {3, 5, 7},
	models.UrgencyLevelLow:      {7, 14, 21},
}

// UrgencyCalculator is the stateless mathematical core: it turns a validated
// urgency context into a full pricing result with projections.
type UrgencyCalculator struct {
	validator *PricingValidator
	now       func() time.Time
}

// NewUrgencyCalculator creates a calculator; clock defaults to UTC now when nil
func NewUrgencyCalculator(validator *PricingValidator, clock func() time.Time) *UrgencyCalculator {
	if clock == nil {
		clock = utils.UTCNow
	}
	return &UrgencyCalculator{
		validator: validator,
		now:       clock,
	}
}

// CalculateUrgencyLevel classifies days-until-target into a coarse bucket.
// Boundary values belong to the tighter band: exactly 3 days is CRITICAL,
// exactly 7 is HIGH, exactly 14 is MEDIUM.
func CalculateUrgencyLevel(daysOut int) models.UrgencyLevel {
	switch {
	case daysOut <= utils.CriticalDaysThreshold:
		return models.UrgencyLevelCritical
	case daysOut <= utils.HighDaysThreshold:
		return models.UrgencyLevelHigh
	case daysOut <= utils.MediumDaysThreshold:
		return models.UrgencyLevelMedium
	default:
		return models.UrgencyLevelLow
	}
}

// CalculateUrgencyMultiplier evaluates the exponential urgency curve.
//
// The time value (days, or hours when hourly granularity is requested) is
// clamped into [0, lookback], normalized, and fed through
// exp(steepness * (1 - normalized)). At the lookback horizon the multiplier
// is exactly 1.0; it rises towards exp(steepness) as time-out approaches
// zero, bounded by [MinUrgencyMultiplier, MaxUrgencyMultiplier].
func CalculateUrgencyMultiplier(in MultiplierInput) (float64, error) {
	if in.Steepness <= 0 {
		return 0, ErrInvalidSteepness
	}
	if in.LookbackWindow <= 0 {
		return 0, ErrInvalidLookbackWindow
	}

	timeValue := float64(in.DaysOut)
	lookback := float64(in.LookbackWindow)
	if in.UseHourlyGranularity && in.HoursOut >= 0 {
		timeValue = float64(in.HoursOut)
		lookback = float64(in.LookbackWindow) * 24
	}

	clamped := math.Min(math.Max(timeValue, 0), lookback)
	normalized := clamped / lookback

	multiplier := math.Exp(in.Steepness * (1 - normalized))
	multiplier = math.Max(utils.MinUrgencyMultiplier, math.Min(utils.MaxUrgencyMultiplier, multiplier))
	return multiplier, nil
}

// CalculateUrgencyPricing runs the full pricing pipeline for a sanitized context:
// classification, market adjustment, the urgency multiplier, projections,
// peak price, display rates, and cache expiry assignment.
func (u *UrgencyCalculator) CalculateUrgencyPricing(ctx *models.UrgencyContext) (*models.UrgencyPricing, error) {
	if fieldErrs := u.validator.ValidateContext(ctx); len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	level := CalculateUrgencyLevel(ctx.DaysUntilCheckIn)
	useHourly := level == models.UrgencyLevelCritical

	marketAdjustedBase := ctx.BasePrice * ctx.MarketDemandMultiplier

	currentMultiplier, err := CalculateUrgencyMultiplier(MultiplierInput{
		DaysOut:              ctx.DaysUntilCheckIn,
		HoursOut:             ctx.HoursUntilCheckIn,
		Steepness:            ctx.UrgencySteepness,
		LookbackWindow:       ctx.LookbackWindow,
		UseHourlyGranularity: useHourly,
	})
	if err != nil {
		return nil, err
	}

	currentPrice := math.Round(marketAdjustedBase * currentMultiplier)
	urgencyPremium := currentPrice - marketAdjustedBase

	var projections models.ProjectionList
	if ctx.IncludeProjections {
		projections, err = u.generateProjections(ctx, level, currentPrice)
		if err != nil {
			return nil, err
		}
	}

	// Peak is the price one day out, evaluated with daily granularity; it
	// represents the ceiling an operator would see on the curve.
	peakMultiplier, err := CalculateUrgencyMultiplier(MultiplierInput{
		DaysOut:        1,
		Steepness:      ctx.UrgencySteepness,
		LookbackWindow: ctx.LookbackWindow,
	})
	if err != nil {
		return nil, err
	}
	peakPrice := math.Round(marketAdjustedBase * peakMultiplier)

	// Linear-approximation display rates, deliberately not the derivative
	// of the exponential curve.
	increasePerDay := math.Round((peakPrice - currentPrice) / math.Max(1, float64(ctx.DaysUntilCheckIn-1)))
	increasePerHour := math.Round((peakPrice - currentPrice) / math.Max(1, float64(ctx.HoursUntilCheckIn-24)))

	calculatedAt := u.now()
	return &models.UrgencyPricing{
		CurrentPrice:        currentPrice,
		CurrentMultiplier:   currentMultiplier,
		BasePrice:           ctx.BasePrice,
		MarketAdjustedBase:  marketAdjustedBase,
		UrgencyPremium:      urgencyPremium,
		UrgencyLevel:        level,
		DaysUntilCheckIn:    ctx.DaysUntilCheckIn,
		HoursUntilCheckIn:   ctx.HoursUntilCheckIn,
		TransactionType:     ctx.TransactionType,
		TargetDate:          utils.TimeToUTC(ctx.TargetDate),
		Projections:         projections,
		IncreaseRatePerDay:  increasePerDay,
		IncreaseRatePerHour: increasePerHour,
		PeakPrice:           peakPrice,
		CalculatedAt:        calculatedAt,
		ExpiresAt:           calculatedAt.Add(level.CacheTTL()),
	}, nil
}

// generateProjections computes the future points of the urgency curve for
// the offsets assigned to the current urgency level. Offsets that would not
// land strictly before the current days-out are skipped. Deltas are reported
// relative to the current price, not to the previous projection.
func (u *UrgencyCalculator) generateProjections(ctx *models.UrgencyContext, level models.UrgencyLevel, currentPrice float64) (models.ProjectionList, error) {
	offsets := projectionOffsets[level]
	marketAdjustedBase := ctx.BasePrice * ctx.MarketDemandMultiplier

	projections := make(models.ProjectionList, 0, len(offsets))
	for _, offset := range offsets {
		futureDays := ctx.DaysUntilCheckIn - offset
		if futureDays < 0 {
			futureDays = 0
		}
		if futureDays >= ctx.DaysUntilCheckIn {
			continue
		}
		futureHours := ctx.HoursUntilCheckIn - offset*24
		if futureHours < 0 {
			futureHours = 0
		}

		futureLevel := CalculateUrgencyLevel(futureDays)
		multiplier, err := CalculateUrgencyMultiplier(MultiplierInput{
			DaysOut:              futureDays,
			HoursOut:             futureHours,
			Steepness:            ctx.UrgencySteepness,
			LookbackWindow:       ctx.LookbackWindow,
			UseHourlyGranularity: futureLevel == models.UrgencyLevelCritical,
		})
		if err != nil {
			return nil, err
		}

		price := math.Round(marketAdjustedBase * multiplier)
		increase := price - currentPrice
		percentage := 0.0
		if currentPrice > 0 {
			percentage = utils.Round2(increase / currentPrice * 100)
		}

		projections = append(projections, models.PriceProjection{
			DaysOut:             futureDays,
			HoursOut:            futureHours,
			ProjectedPrice:      price,
			ProjectedMultiplier: multiplier,
			PriceIncrease:       increase,
			PercentageIncrease:  percentage,
			UrgencyLevel:        futureLevel,
			ProjectedAt:         utils.TimeToUTC(ctx.CurrentDate).AddDate(0, 0, offset),
		})
	}
	return projections, nil
}
