package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/app/services"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/pkg/cache"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flowNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestFlow(t *testing.T) PricingFlow {
	t.Helper()
	clock := func() time.Time { return flowNow }
	validator := services.NewPricingValidator(clock)
	calculator := services.NewUrgencyCalculator(validator, clock)

	demandConfig, err := services.DemandPreset("resort")
	require.NoError(t, err)
	demandCalc := services.NewMarketDemandCalculator(demandConfig)

	tiered := cache.NewTieredCache(cache.NewMemoryCache(100), nil, nil)
	return NewPricingFlow(validator, calculator, demandCalc, tiered, nil, nil, nil, nil, clock)
}

func pinnedRequest(targetDate string, basePrice float64) *dto.PricingCalculationRequest {
	market := 1.0
	return &dto.PricingCalculationRequest{
		TargetDate:             targetDate,
		BasePrice:              basePrice,
		MarketDemandMultiplier: &market,
	}
}

func TestCalculatePricing(t *testing.T) {
	ctx := context.Background()

	t.Run("HappyPath", func(t *testing.T) {
		flow := newTestFlow(t)
		resp := flow.CalculatePricing(ctx, pinnedRequest("2026-03-31", 100))

		require.True(t, resp.Success)
		require.NotNil(t, resp.Data)
		assert.False(t, resp.Metadata.CacheHit)
		assert.NotEmpty(t, resp.Metadata.RequestID)
		assert.Equal(t, 100.0, resp.Data.BasePrice)
		assert.Equal(t, "2026-03-31:100:2:1.00", resp.Data.CacheKey)
		assert.Greater(t, resp.Data.CurrentPrice, resp.Data.BasePrice)
	})

	t.Run("SecondCallHitsCache", func(t *testing.T) {
		flow := newTestFlow(t)
		first := flow.CalculatePricing(ctx, pinnedRequest("2026-03-31", 100))
		require.True(t, first.Success)

		second := flow.CalculatePricing(ctx, pinnedRequest("2026-03-31", 100))
		require.True(t, second.Success)
		assert.True(t, second.Metadata.CacheHit)
		assert.Equal(t, first.Data.CurrentPrice, second.Data.CurrentPrice)
	})

	t.Run("MarketDemandResolvedWhenUnpinned", func(t *testing.T) {
		flow := newTestFlow(t)
		// 2026-07-11 is a peak-season Saturday; the resort preset multiplies demand
		resp := flow.CalculatePricing(ctx, &dto.PricingCalculationRequest{
			TargetDate: "2026-07-11",
			BasePrice:  100,
		})

		require.True(t, resp.Success)
		assert.InDelta(t, 100*1.40*1.25, resp.Data.MarketAdjustedBase, 1e-6)
	})

	t.Run("ValidationFailure", func(t *testing.T) {
		flow := newTestFlow(t)
		resp := flow.CalculatePricing(ctx, pinnedRequest("2026-03-31", -5))

		require.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
		assert.Nil(t, resp.Data)
	})

	t.Run("PastTargetDateRejected", func(t *testing.T) {
		flow := newTestFlow(t)
		resp := flow.CalculatePricing(ctx, pinnedRequest("2026-02-01", 100))

		require.False(t, resp.Success)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	})
}

func TestCalculateBatchPricing(t *testing.T) {
	ctx := context.Background()

	t.Run("MixedResults", func(t *testing.T) {
		flow := newTestFlow(t)
		resp, err := flow.CalculateBatchPricing(ctx, &dto.BatchPricingRequest{
			Requests: []dto.PricingCalculationRequest{
				*pinnedRequest("2026-03-15", 100),
				*pinnedRequest("2026-03-20", -1),
				*pinnedRequest("2026-04-01", 200),
			},
		})
		require.NoError(t, err)

		assert.Equal(t, 3, resp.Metadata.TotalRequests)
		assert.Equal(t, 2, resp.Metadata.SuccessfulRequests)
		assert.Equal(t, 1, resp.Metadata.FailedRequests)
		require.Len(t, resp.Results, 3)
		assert.True(t, resp.Results[0].Success)
		assert.False(t, resp.Results[1].Success)
		assert.True(t, resp.Results[2].Success)
	})

	t.Run("EmptyBatchRejected", func(t *testing.T) {
		flow := newTestFlow(t)
		_, err := flow.CalculateBatchPricing(ctx, &dto.BatchPricingRequest{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBatchEmpty)
	})

	t.Run("OversizedBatchRejected", func(t *testing.T) {
		flow := newTestFlow(t)
		requests := make([]dto.PricingCalculationRequest, utils.MaxBatchRequests+1)
		for i := range requests {
			requests[i] = *pinnedRequest("2026-03-15", 100)
		}
		_, err := flow.CalculateBatchPricing(ctx, &dto.BatchPricingRequest{Requests: requests})
		require.Error(t, err)
		assert.True(t, IsBatchTooLarge(err))
	})
}

func TestGetPricingForDates(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidDatesSkipped", func(t *testing.T) {
		flow := newTestFlow(t)
		steepness := 2.0
		resp, err := flow.GetPricingForDates(ctx, &dto.CalendarPricingRequest{
			BasePrice: 100,
			Dates:     []string{"2026-03-15", "not-a-date", "2026-03-20"},
			Steepness: &steepness,
		})
		require.NoError(t, err)

		assert.Len(t, resp.Pricing, 2)
		assert.Contains(t, resp.Pricing, "2026-03-15")
		assert.Contains(t, resp.Pricing, "2026-03-20")
	})

	t.Run("NoDatesRejected", func(t *testing.T) {
		flow := newTestFlow(t)
		_, err := flow.GetPricingForDates(ctx, &dto.CalendarPricingRequest{BasePrice: 100})
		assert.ErrorIs(t, err, ErrNoDatesProvided)
	})

	t.Run("InvalidBasePriceRejected", func(t *testing.T) {
		flow := newTestFlow(t)
		_, err := flow.GetPricingForDates(ctx, &dto.CalendarPricingRequest{
			BasePrice: -10,
			Dates:     []string{"2026-03-15"},
		})
		assert.True(t, IsBasePriceInvalid(err))
	})
}

func TestDownloadCalendarExcel(t *testing.T) {
	flow := newTestFlow(t)
	filename, payload, err := flow.DownloadCalendarExcel(context.Background(), &dto.CalendarPricingRequest{
		BasePrice: 100,
		Dates:     []string{"2026-03-15", "2026-03-20"},
	})
	require.NoError(t, err)

	assert.Equal(t, "pricing_calendar.xlsx", filename)
	assert.NotEmpty(t, payload)
	// xlsx files are zip archives
	assert.Equal(t, []byte{'P', 'K'}, payload[:2])
}

func TestEventLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("RegisterAffectsPricing", func(t *testing.T) {
		flow := newTestFlow(t)
		before := flow.CalculatePricing(ctx, &dto.PricingCalculationRequest{
			TargetDate: "2026-03-18",
			BasePrice:  100,
		})
		require.True(t, before.Success)

		resp, err := flow.RegisterEvent(ctx, &dto.RegisterEventRequest{
			EventName:  "Spring Congress",
			StartDate:  "2026-03-17",
			EndDate:    "2026-03-19",
			Multiplier: 2.0,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.EventID)

		after := flow.CalculatePricing(ctx, &dto.PricingCalculationRequest{
			TargetDate: "2026-03-18",
			BasePrice:  100,
		})
		require.True(t, after.Success)
		assert.InDelta(t, before.Data.MarketAdjustedBase*2.0, after.Data.MarketAdjustedBase, 1e-6)
	})

	t.Run("RegisterValidation", func(t *testing.T) {
		flow := newTestFlow(t)

		_, err := flow.RegisterEvent(ctx, &dto.RegisterEventRequest{
			EventName:  "  ",
			StartDate:  "2026-03-17",
			EndDate:    "2026-03-19",
			Multiplier: 2.0,
		})
		assert.ErrorIs(t, err, ErrEventNameRequired)

		_, err = flow.RegisterEvent(ctx, &dto.RegisterEventRequest{
			EventName:  "Backwards",
			StartDate:  "2026-03-19",
			EndDate:    "2026-03-17",
			Multiplier: 2.0,
		})
		assert.ErrorIs(t, err, ErrEventDatesInvalid)

		_, err = flow.RegisterEvent(ctx, &dto.RegisterEventRequest{
			EventName:  "Free",
			StartDate:  "2026-03-17",
			EndDate:    "2026-03-19",
			Multiplier: 0,
		})
		assert.ErrorIs(t, err, ErrEventMultiplierInvalid)
	})

	t.Run("RemoveUnknownEvent", func(t *testing.T) {
		flow := newTestFlow(t)
		err := flow.RemoveEvent(ctx, uuid.New())
		require.Error(t, err)
		assert.True(t, IsEventNotFound(err))
	})

	t.Run("RemoveRegisteredEvent", func(t *testing.T) {
		flow := newTestFlow(t)
		resp, err := flow.RegisterEvent(ctx, &dto.RegisterEventRequest{
			EventName:  "One Night Only",
			StartDate:  "2026-03-17",
			EndDate:    "2026-03-17",
			Multiplier: 3.0,
		})
		require.NoError(t, err)

		eventID, err := uuid.Parse(resp.EventID)
		require.NoError(t, err)
		assert.NoError(t, flow.RemoveEvent(ctx, eventID))

		events, err := flow.ListEvents(ctx)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestRequestFromStoredRow(t *testing.T) {
	t.Run("RecoversParameters", func(t *testing.T) {
		row := &models.UrgencyPricing{
			CacheKey:  "2026-03-31:100:2.5:1.30",
			BasePrice: 100,
		}
		req, err := requestFromStoredRow(row)
		require.NoError(t, err)

		assert.Equal(t, "2026-03-31", req.TargetDate)
		assert.Equal(t, 100.0, req.BasePrice)
		assert.Equal(t, 2.5, *req.UrgencySteepness)
		assert.Equal(t, 1.3, *req.MarketDemandMultiplier)
	})

	t.Run("MalformedKeys", func(t *testing.T) {
		_, err := requestFromStoredRow(&models.UrgencyPricing{CacheKey: "no-separators"})
		assert.Error(t, err)

		_, err = requestFromStoredRow(&models.UrgencyPricing{CacheKey: "2026-03-31:100:abc:1.00"})
		assert.Error(t, err)
	})
}

// failingPricingRepo errors on every call.
type failingPricingRepo struct{}

func (failingPricingRepo) ByID(context.Context, uint) (*models.UrgencyPricing, error) {
	return nil, assert.AnError
}

func (failingPricingRepo) Save(context.Context, *models.UrgencyPricing) error { return assert.AnError }

func (failingPricingRepo) SaveBatch(context.Context, []*models.UrgencyPricing) error {
	return assert.AnError
}

func (failingPricingRepo) Upsert(context.Context, *models.UrgencyPricing) error {
	return assert.AnError
}

func (failingPricingRepo) ByCacheKey(context.Context, string) (*models.UrgencyPricing, error) {
	return nil, assert.AnError
}

func (failingPricingRepo) ByFilter(context.Context, models.UrgencyPricingFilter, string, int, int) ([]*models.UrgencyPricing, error) {
	return nil, assert.AnError
}

func (failingPricingRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, assert.AnError
}

// stubPricingRepo serves a fixed row set from ByFilter.
type stubPricingRepo struct {
	failingPricingRepo
	rows []*models.UrgencyPricing
}

func (s stubPricingRepo) ByFilter(context.Context, models.UrgencyPricingFilter, string, int, int) ([]*models.UrgencyPricing, error) {
	return s.rows, nil
}

func TestWarmCache(t *testing.T) {
	ctx := context.Background()
	clock := func() time.Time { return flowNow }

	t.Run("StoresUnexpiredRows", func(t *testing.T) {
		fresh := &models.UrgencyPricing{
			CacheKey:     "2026-03-31:100:2:1.00",
			BasePrice:    100,
			UrgencyLevel: models.UrgencyLevelMedium,
			ExpiresAt:    flowNow.Add(time.Hour),
		}
		stale := &models.UrgencyPricing{
			CacheKey:     "2026-03-20:100:2:1.00",
			BasePrice:    100,
			UrgencyLevel: models.UrgencyLevelMedium,
			ExpiresAt:    flowNow.Add(-time.Hour),
		}
		tiered := cache.NewTieredCache(cache.NewMemoryCache(10), nil, nil)
		repo := stubPricingRepo{rows: []*models.UrgencyPricing{fresh, stale}}
		flow := NewPricingFlow(nil, nil, nil, tiered, repo, nil, nil, nil, clock)

		warmed, err := flow.WarmCache(ctx, 50)
		require.NoError(t, err)
		assert.Equal(t, 1, warmed)

		entry, err := tiered.Get(ctx, fresh.CacheKey)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, fresh.CacheKey, entry.Pricing.CacheKey)
	})

	t.Run("NoRepositoryIsNoOp", func(t *testing.T) {
		flow := newTestFlow(t)
		warmed, err := flow.WarmCache(ctx, 50)
		require.NoError(t, err)
		assert.Zero(t, warmed)
	})

	t.Run("StorageFailureSurfaced", func(t *testing.T) {
		tiered := cache.NewTieredCache(cache.NewMemoryCache(10), nil, nil)
		flow := NewPricingFlow(nil, nil, nil, tiered, failingPricingRepo{}, nil, nil, nil, clock)
		_, err := flow.WarmCache(ctx, 50)
		assert.True(t, IsStorageFailed(err))
	})
}

func TestCacheStatsAndCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("StatsAfterOneCalculation", func(t *testing.T) {
		flow := newTestFlow(t)
		resp := flow.CalculatePricing(ctx, pinnedRequest("2026-03-31", 100))
		require.True(t, resp.Success)

		stats, err := flow.CacheStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.MemoryEntries)
		assert.Equal(t, "disabled", stats.DistributedState)

		cleanup, err := flow.CleanupExpired(ctx)
		require.NoError(t, err)
		// Nothing has expired yet
		assert.Zero(t, cleanup.RemovedEntries)
		assert.Zero(t, cleanup.RemovedRows)
	})

	t.Run("NilCacheRejected", func(t *testing.T) {
		flow := NewPricingFlow(nil, nil, nil, nil, nil, nil, nil, nil, nil)
		_, err := flow.CacheStats(ctx)
		assert.True(t, IsCacheNotAvailable(err))
	})

	t.Run("StorageFailureSurfaced", func(t *testing.T) {
		flow := NewPricingFlow(nil, nil, nil, cache.NewTieredCache(cache.NewMemoryCache(10), nil, nil), failingPricingRepo{}, nil, nil, nil, nil)
		_, err := flow.CleanupExpired(ctx)
		assert.True(t, IsStorageFailed(err))
	})
}
