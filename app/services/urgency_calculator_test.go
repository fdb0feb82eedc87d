package services

import (
	"math"
	"testing"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCalculateUrgencyLevel(t *testing.T) {
	cases := []struct {
		daysOut int
		want    models.UrgencyLevel
	}{
		{0, models.UrgencyLevelCritical},
		{1, models.UrgencyLevelCritical},
		{3, models.UrgencyLevelCritical},
		{4, models.UrgencyLevelHigh},
		{7, models.UrgencyLevelHigh},
		{8, models.UrgencyLevelMedium},
		{14, models.UrgencyLevelMedium},
		{15, models.UrgencyLevelLow},
		{90, models.UrgencyLevelLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CalculateUrgencyLevel(tc.daysOut), "daysOut=%d", tc.daysOut)
	}
}

func TestCalculateUrgencyMultiplier(t *testing.T) {
	t.Run("CurveValues", func(t *testing.T) {
		// exp(2 * (1 - d/90)) for the default steepness and lookback
		cases := []struct {
			daysOut int
			want    float64
		}{
			{90, 1.0},
			{60, 1.9477},
			{30, 3.7937},
			{21, 4.6336},
			{14, 5.4135},
			{10, 5.9167},
			{7, 6.3246},
			{5, 6.6120},
			{3, 6.9122},
			{2, 7.0675},
			{1, 7.2263},
		}
		for _, tc := range cases {
			got, err := CalculateUrgencyMultiplier(MultiplierInput{
				DaysOut:        tc.daysOut,
				Steepness:      2.0,
				LookbackWindow: 90,
			})
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-3, "daysOut=%d", tc.daysOut)
		}
	})

	t.Run("Bounds", func(t *testing.T) {
		// exp(5) would be ~148; the cap wins
		got, err := CalculateUrgencyMultiplier(MultiplierInput{
			DaysOut:        0,
			Steepness:      5.0,
			LookbackWindow: 90,
		})
		require.NoError(t, err)
		assert.Equal(t, 10.0, got)

		// Beyond the lookback horizon the multiplier stays at the floor
		got, err = CalculateUrgencyMultiplier(MultiplierInput{
			DaysOut:        365,
			Steepness:      2.0,
			LookbackWindow: 90,
		})
		require.NoError(t, err)
		assert.Equal(t, 1.0, got)
	})

	t.Run("Monotonicity", func(t *testing.T) {
		prev := math.Inf(1)
		for days := 0; days <= 90; days++ {
			got, err := CalculateUrgencyMultiplier(MultiplierInput{
				DaysOut:        days,
				Steepness:      2.0,
				LookbackWindow: 90,
			})
			require.NoError(t, err)
			assert.LessOrEqual(t, got, prev, "multiplier must not rise as daysOut grows (days=%d)", days)
			assert.GreaterOrEqual(t, got, 1.0)
			assert.LessOrEqual(t, got, 10.0)
			prev = got
		}
	})

	t.Run("HourlyGranularity", func(t *testing.T) {
		daily, err := CalculateUrgencyMultiplier(MultiplierInput{
			DaysOut:        2,
			Steepness:      2.0,
			LookbackWindow: 90,
		})
		require.NoError(t, err)

		hourly, err := CalculateUrgencyMultiplier(MultiplierInput{
			DaysOut:              2,
			HoursOut:             36,
			Steepness:            2.0,
			LookbackWindow:       90,
			UseHourlyGranularity: true,
		})
		require.NoError(t, err)

		want := math.Exp(2.0 * (1 - 36.0/(90*24)))
		assert.InDelta(t, want, hourly, 1e-9)
		assert.NotEqual(t, daily, hourly)
	})

	t.Run("InvalidInputs", func(t *testing.T) {
		_, err := CalculateUrgencyMultiplier(MultiplierInput{DaysOut: 10, Steepness: 0, LookbackWindow: 90})
		assert.ErrorIs(t, err, ErrInvalidSteepness)

		_, err = CalculateUrgencyMultiplier(MultiplierInput{DaysOut: 10, Steepness: 2.0, LookbackWindow: 0})
		assert.ErrorIs(t, err, ErrInvalidLookbackWindow)
	})
}

func TestCalculateUrgencyPricing(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := fixedClock(now)
	calc := NewUrgencyCalculator(NewPricingValidator(clock), clock)

	makeCtx := func(daysOut int, basePrice, market float64) *models.UrgencyContext {
		target := now.AddDate(0, 0, daysOut)
		return &models.UrgencyContext{
			TargetDate:             target,
			CurrentDate:            now,
			DaysUntilCheckIn:       daysOut,
			HoursUntilCheckIn:      daysOut * 24,
			BasePrice:              basePrice,
			UrgencySteepness:       2.0,
			MarketDemandMultiplier: market,
			LookbackWindow:         90,
			IncludeProjections:     true,
		}
	}

	t.Run("ThirtyDaysOut", func(t *testing.T) {
		pricing, err := calc.CalculateUrgencyPricing(makeCtx(30, 100, 1.0))
		require.NoError(t, err)

		assert.Equal(t, models.UrgencyLevelLow, pricing.UrgencyLevel)
		assert.InDelta(t, 3.7937, pricing.CurrentMultiplier, 1e-3)
		assert.Equal(t, 379.0, pricing.CurrentPrice)
		assert.Equal(t, 100.0, pricing.MarketAdjustedBase)
		assert.Equal(t, 279.0, pricing.UrgencyPremium)
		assert.Equal(t, now, pricing.CalculatedAt)
		assert.Equal(t, now.Add(pricing.UrgencyLevel.CacheTTL()), pricing.ExpiresAt)
	})

	t.Run("TransactionTypeCarried", func(t *testing.T) {
		ctx := makeCtx(30, 100, 1.0)
		ctx.TransactionType = "booking"

		pricing, err := calc.CalculateUrgencyPricing(ctx)
		require.NoError(t, err)
		assert.Equal(t, "booking", pricing.TransactionType)
	})

	t.Run("SevenDaysOutIsHigh", func(t *testing.T) {
		pricing, err := calc.CalculateUrgencyPricing(makeCtx(7, 180, 1.0))
		require.NoError(t, err)

		assert.Equal(t, models.UrgencyLevelHigh, pricing.UrgencyLevel)
		assert.InDelta(t, 6.3246, pricing.CurrentMultiplier, 1e-3)
		assert.Equal(t, 1138.0, pricing.CurrentPrice)
		assert.Greater(t, pricing.PeakPrice, pricing.CurrentPrice)
	})

	t.Run("MarketAdjustment", func(t *testing.T) {
		plain, err := calc.CalculateUrgencyPricing(makeCtx(30, 100, 1.0))
		require.NoError(t, err)
		adjusted, err := calc.CalculateUrgencyPricing(makeCtx(30, 100, 1.5))
		require.NoError(t, err)

		assert.Equal(t, 150.0, adjusted.MarketAdjustedBase)
		assert.InDelta(t, plain.CurrentPrice*1.5, adjusted.CurrentPrice, 1.0)
		assert.Equal(t, plain.CurrentMultiplier, adjusted.CurrentMultiplier)
	})

	t.Run("Idempotent", func(t *testing.T) {
		first, err := calc.CalculateUrgencyPricing(makeCtx(21, 250, 1.2))
		require.NoError(t, err)
		second, err := calc.CalculateUrgencyPricing(makeCtx(21, 250, 1.2))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("CriticalUsesHourlyGranularity", func(t *testing.T) {
		pricing, err := calc.CalculateUrgencyPricing(makeCtx(2, 100, 1.0))
		require.NoError(t, err)

		assert.Equal(t, models.UrgencyLevelCritical, pricing.UrgencyLevel)
		want := math.Exp(2.0 * (1 - 48.0/(90*24)))
		assert.InDelta(t, want, pricing.CurrentMultiplier, 1e-9)
	})

	t.Run("Projections", func(t *testing.T) {
		pricing, err := calc.CalculateUrgencyPricing(makeCtx(30, 100, 1.0))
		require.NoError(t, err)

		// LOW urgency projects 7, 14, and 21 days closer
		require.Len(t, pricing.Projections, 3)
		assert.Equal(t, 23, pricing.Projections[0].DaysOut)
		assert.Equal(t, 16, pricing.Projections[1].DaysOut)
		assert.Equal(t, 9, pricing.Projections[2].DaysOut)
		for _, p := range pricing.Projections {
			assert.GreaterOrEqual(t, p.ProjectedPrice, pricing.CurrentPrice,
				"prices closer to the target must not be cheaper")
			assert.Equal(t, p.ProjectedPrice-pricing.CurrentPrice, p.PriceIncrease)
		}
	})

	t.Run("ProjectionsSkippedWhenDisabled", func(t *testing.T) {
		ctx := makeCtx(30, 100, 1.0)
		ctx.IncludeProjections = false
		pricing, err := calc.CalculateUrgencyPricing(ctx)
		require.NoError(t, err)
		assert.Empty(t, pricing.Projections)
	})

	t.Run("ValidationErrorsAggregate", func(t *testing.T) {
		ctx := makeCtx(30, -5, 1.0)
		ctx.UrgencySteepness = 6.0
		_, err := calc.CalculateUrgencyPricing(ctx)
		require.Error(t, err)

		verr, ok := AsValidationError(err)
		require.True(t, ok)
		fields := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, f.Field)
		}
		assert.Contains(t, fields, "base_price")
		assert.Contains(t, fields, "urgency_steepness")
	})
}
