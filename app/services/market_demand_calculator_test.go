package services

import (
	"sync"
	"testing"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemandPreset(t *testing.T) {
	urban, err := DemandPreset("urban")
	require.NoError(t, err)
	assert.Equal(t, 1.25, urban.DayOfWeek[time.Monday])
	assert.Equal(t, 0.80, urban.DayOfWeek[time.Saturday])

	resort, err := DemandPreset("resort")
	require.NoError(t, err)
	assert.Equal(t, 0.70, resort.DayOfWeek[time.Monday])
	assert.Equal(t, 1.40, resort.DayOfWeek[time.Saturday])

	_, err = DemandPreset("airport")
	assert.Error(t, err)
}

func TestCalculateDemandBreakdown(t *testing.T) {
	resort, err := DemandPreset("resort")
	require.NoError(t, err)
	calc := NewMarketDemandCalculator(resort)

	// 2026-07-11 is a Saturday in the July peak
	saturday := time.Date(2026, 7, 11, 0, 0, 0, 0, time.UTC)

	t.Run("FactorsCompose", func(t *testing.T) {
		b := calc.CalculateDemandBreakdown(saturday, "")
		assert.Equal(t, 1.0, b.Base)
		assert.Equal(t, 1.40, b.DayOfWeek)
		assert.Equal(t, 1.25, b.Seasonal)
		assert.Equal(t, 1.0, b.Event)
		assert.InDelta(t, b.Base*b.DayOfWeek*b.Seasonal*b.Event, b.Total, 1e-9)
		assert.Equal(t, b.Total, calc.CalculateMultiplier(saturday, ""))
	})

	t.Run("SeasonalTrough", func(t *testing.T) {
		// 2026-01-12 is a Monday in the January trough
		monday := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
		b := calc.CalculateDemandBreakdown(monday, "")
		assert.Equal(t, 0.70, b.DayOfWeek)
		assert.Equal(t, 0.85, b.Seasonal)
	})
}

func TestEventMultiplier(t *testing.T) {
	resort, err := DemandPreset("resort")
	require.NoError(t, err)
	calc := NewMarketDemandCalculator(resort)

	day := time.Date(2026, 7, 11, 0, 0, 0, 0, time.UTC)

	festival := models.PricingEvent{
		EventID:    uuid.New(),
		Name:       "Festival",
		StartDate:  day.AddDate(0, 0, -1),
		EndDate:    day.AddDate(0, 0, 1),
		Multiplier: 2.5,
	}
	conference := models.PricingEvent{
		EventID:    uuid.New(),
		Name:       "Conference",
		StartDate:  day,
		EndDate:    day,
		Multiplier: 3.5,
		Cities:     []string{"lisbon"},
	}

	t.Run("MaxOfOverlappingEventsWins", func(t *testing.T) {
		calc.AddEvent(festival)
		calc.AddEvent(conference)

		b := calc.CalculateDemandBreakdown(day, "lisbon")
		assert.Equal(t, 3.5, b.Event)

		// The city-scoped conference does not apply in porto
		b = calc.CalculateDemandBreakdown(day, "porto")
		assert.Equal(t, 2.5, b.Event)
	})

	t.Run("OutsideWindowDefaultsToOne", func(t *testing.T) {
		b := calc.CalculateDemandBreakdown(day.AddDate(0, 0, 10), "lisbon")
		assert.Equal(t, 1.0, b.Event)
	})

	t.Run("RemoveEvent", func(t *testing.T) {
		assert.True(t, calc.RemoveEvent(conference.EventID))
		assert.False(t, calc.RemoveEvent(conference.EventID))

		b := calc.CalculateDemandBreakdown(day, "lisbon")
		assert.Equal(t, 2.5, b.Event)
	})

	t.Run("ReplaceEventByID", func(t *testing.T) {
		updated := festival
		updated.Multiplier = 4.0
		calc.AddEvent(updated)

		b := calc.CalculateDemandBreakdown(day, "")
		assert.Equal(t, 4.0, b.Event)
		assert.Len(t, calc.Events(), 1)
	})
}

func TestUpdateConfig(t *testing.T) {
	urban, err := DemandPreset("urban")
	require.NoError(t, err)
	calc := NewMarketDemandCalculator(urban)

	base := 1.3
	calc.UpdateConfig(MarketDemandConfigPatch{BaseMultiplier: &base})

	cfg := calc.Config()
	assert.Equal(t, 1.3, cfg.BaseMultiplier)
	// Unset fields keep their values
	assert.Equal(t, urban.DayOfWeek, cfg.DayOfWeek)
	assert.Equal(t, urban.Seasonal, cfg.Seasonal)
}

func TestConcurrentEventMutation(t *testing.T) {
	resort, err := DemandPreset("resort")
	require.NoError(t, err)
	calc := NewMarketDemandCalculator(resort)

	day := time.Date(2026, 7, 11, 0, 0, 0, 0, time.UTC)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			ev := models.PricingEvent{
				EventID:    uuid.New(),
				Name:       "Popup",
				StartDate:  day,
				EndDate:    day,
				Multiplier: 2.0,
			}
			calc.AddEvent(ev)
			calc.RemoveEvent(ev.EventID)
		}
	}()

	for i := 0; i < 1000; i++ {
		got := calc.CalculateMultiplier(day, "")
		// Saturday in July: 1.40 * 1.25 floor, possibly lifted by the event
		assert.GreaterOrEqual(t, got, 1.40*1.25-1e-9)
	}
	close(stop)
	wg.Wait()
}
