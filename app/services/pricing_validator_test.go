package services

import (
	"testing"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldNames(errs []dto.FieldError) []string {
	names := make([]string, 0, len(errs))
	for _, e := range errs {
		names = append(names, e.Field)
	}
	return names
}

func TestValidatePricingRequest(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewPricingValidator(fixedClock(now))

	t.Run("Valid", func(t *testing.T) {
		errs := v.ValidatePricingRequest(&dto.PricingCalculationRequest{
			TargetDate: "2026-03-15",
			BasePrice:  120,
		})
		assert.Empty(t, errs)
	})

	t.Run("AllViolationsCollected", func(t *testing.T) {
		steepness := 6.0
		market := 0.01
		lookback := 400
		errs := v.ValidatePricingRequest(&dto.PricingCalculationRequest{
			TargetDate:             "2026-03-15",
			BasePrice:              -5,
			UrgencySteepness:       &steepness,
			MarketDemandMultiplier: &market,
			LookbackWindow:         &lookback,
		})

		names := fieldNames(errs)
		assert.Contains(t, names, "base_price")
		assert.Contains(t, names, "urgency_steepness")
		assert.Contains(t, names, "market_demand_multiplier")
		assert.Contains(t, names, "lookback_window")
		assert.Len(t, errs, 4)
	})

	t.Run("TargetDateRequired", func(t *testing.T) {
		errs := v.ValidatePricingRequest(&dto.PricingCalculationRequest{BasePrice: 100})
		assert.Contains(t, fieldNames(errs), "target_date")
	})

	t.Run("TargetDateInPast", func(t *testing.T) {
		errs := v.ValidatePricingRequest(&dto.PricingCalculationRequest{
			TargetDate: "2026-02-01",
			BasePrice:  100,
		})
		assert.Contains(t, fieldNames(errs), "target_date")
	})

	t.Run("TargetDateRelativeToCallerCurrentDate", func(t *testing.T) {
		errs := v.ValidatePricingRequest(&dto.PricingCalculationRequest{
			TargetDate:  "2026-02-10",
			CurrentDate: "2026-02-01",
			BasePrice:   100,
		})
		assert.Empty(t, errs)
	})

	t.Run("UnparsableDates", func(t *testing.T) {
		errs := v.ValidatePricingRequest(&dto.PricingCalculationRequest{
			TargetDate:  "15/03/2026",
			CurrentDate: "bogus",
			BasePrice:   100,
		})
		names := fieldNames(errs)
		assert.Contains(t, names, "target_date")
		assert.Contains(t, names, "current_date")
	})
}

func TestSanitizePricingRequest(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewPricingValidator(fixedClock(now))

	t.Run("DefaultsFilled", func(t *testing.T) {
		ctx, err := v.SanitizePricingRequest(&dto.PricingCalculationRequest{
			TargetDate: "2026-03-31",
			BasePrice:  120,
		})
		require.NoError(t, err)

		assert.Equal(t, utils.DefaultUrgencySteepness, ctx.UrgencySteepness)
		assert.Equal(t, 1.0, ctx.MarketDemandMultiplier)
		assert.Equal(t, utils.DefaultLookbackWindowDays, ctx.LookbackWindow)
		assert.True(t, ctx.IncludeProjections)
		assert.Equal(t, now, ctx.CurrentDate)
		// 29 whole days between Mar 1 noon and Mar 31 midnight
		assert.Equal(t, 29, ctx.DaysUntilCheckIn)
	})

	t.Run("ExplicitValuesKept", func(t *testing.T) {
		steepness := 3.0
		market := 1.4
		lookback := 60
		include := false
		ctx, err := v.SanitizePricingRequest(&dto.PricingCalculationRequest{
			TargetDate:             "2026-03-31",
			BasePrice:              120,
			UrgencySteepness:       &steepness,
			MarketDemandMultiplier: &market,
			LookbackWindow:         &lookback,
			IncludeProjections:     &include,
		})
		require.NoError(t, err)

		assert.Equal(t, 3.0, ctx.UrgencySteepness)
		assert.Equal(t, 1.4, ctx.MarketDemandMultiplier)
		assert.Equal(t, 60, ctx.LookbackWindow)
		assert.False(t, ctx.IncludeProjections)
	})

	t.Run("RFC3339TargetDate", func(t *testing.T) {
		ctx, err := v.SanitizePricingRequest(&dto.PricingCalculationRequest{
			TargetDate: "2026-03-31T18:30:00Z",
			BasePrice:  120,
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 31, 18, 30, 0, 0, time.UTC), ctx.TargetDate)
	})

	t.Run("InvalidTargetDate", func(t *testing.T) {
		_, err := v.SanitizePricingRequest(&dto.PricingCalculationRequest{
			TargetDate: "soon",
			BasePrice:  120,
		})
		assert.Error(t, err)
	})
}
