package businessflow

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/app/services"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/pkg/cache"
	"github.com/amirphl/Amaterasu/repository"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/xuri/excelize/v2"
)

// batchConcurrency bounds the number of in-flight calculations per batch request
const batchConcurrency = 8

// PricingFlow defines the pricing use cases exposed to handlers and the scheduler.
type PricingFlow interface {
	CalculatePricing(ctx context.Context, req *dto.PricingCalculationRequest) *dto.PricingResponse
	CalculateBatchPricing(ctx context.Context, req *dto.BatchPricingRequest) (*dto.BatchPricingResponse, error)
	GetPricingForDates(ctx context.Context, req *dto.CalendarPricingRequest) (*dto.CalendarPricingResponse, error)
	DownloadCalendarExcel(ctx context.Context, req *dto.CalendarPricingRequest) (string, []byte, error)
	RegisterEvent(ctx context.Context, req *dto.RegisterEventRequest) (*dto.RegisterEventResponse, error)
	ListEvents(ctx context.Context) ([]models.PricingEvent, error)
	RemoveEvent(ctx context.Context, eventID uuid.UUID) error
	LoadEvents(ctx context.Context) (int, error)
	CacheStats(ctx context.Context) (*dto.CacheStatsResponse, error)
	CleanupExpired(ctx context.Context) (*dto.CleanupResponse, error)
	WarmCache(ctx context.Context, limit int) (int, error)
	RecalculateWindow(ctx context.Context, horizon time.Duration, batchSize int) (recalculated int, failed int, err error)
}

type PricingFlowImpl struct {
	validator   *services.PricingValidator
	calculator  *services.UrgencyCalculator
	demandCalc  *services.MarketDemandCalculator
	cache       *cache.TieredCache
	pricingRepo repository.PricingRepository
	demandRepo  repository.MarketDemandRepository
	eventRepo   repository.PricingEventRepository
	logger      *log.Logger
	now         func() time.Time
}

// NewPricingFlow wires the pricing use cases. The repositories may be nil,
// in which case results live only in the cache.
func NewPricingFlow(
	validator *services.PricingValidator,
	calculator *services.UrgencyCalculator,
	demandCalc *services.MarketDemandCalculator,
	tieredCache *cache.TieredCache,
	pricingRepo repository.PricingRepository,
	demandRepo repository.MarketDemandRepository,
	eventRepo repository.PricingEventRepository,
	logger *log.Logger,
	clock func() time.Time,
) PricingFlow {
	if clock == nil {
		clock = utils.UTCNow
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PricingFlowImpl{
		validator:   validator,
		calculator:  calculator,
		demandCalc:  demandCalc,
		cache:       tieredCache,
		pricingRepo: pricingRepo,
		demandRepo:  demandRepo,
		eventRepo:   eventRepo,
		logger:      logger,
		now:         clock,
	}
}

// CalculatePricing runs the full pipeline for a single request:
// validate, sanitize, resolve market demand, consult the cache, calculate,
// then write back to the cache and (best effort) to storage.
func (f *PricingFlowImpl) CalculatePricing(ctx context.Context, req *dto.PricingCalculationRequest) *dto.PricingResponse {
	start := time.Now()
	requestID := uuid.New().String()

	if fieldErrs := f.validator.ValidatePricingRequest(req); len(fieldErrs) > 0 {
		return errorResponse(requestID, start, "VALIDATION_ERROR", "Request validation failed", fieldErrs)
	}

	uctx, err := f.validator.SanitizePricingRequest(req)
	if err != nil {
		return errorResponse(requestID, start, "VALIDATION_ERROR", err.Error(), nil)
	}

	// Market demand is resolved from the demand model unless the caller pinned it.
	if req.MarketDemandMultiplier == nil && f.demandCalc != nil {
		uctx.MarketDemandMultiplier = f.demandCalc.CalculateMultiplier(uctx.TargetDate, req.City)
	}

	key := cache.GenerateCacheKey(uctx.TargetDate, uctx.BasePrice, uctx.UrgencySteepness, uctx.MarketDemandMultiplier)

	if entry, cacheErr := f.cache.Get(ctx, key); cacheErr == nil && entry != nil {
		pricing := entry.Pricing
		return &dto.PricingResponse{
			Success: true,
			Data:    &pricing,
			Metadata: dto.ResponseMetadata{
				RequestID:         requestID,
				CalculatedAt:      pricing.CalculatedAt.UTC().Format(time.RFC3339),
				CacheHit:          true,
				CalculationTimeMs: time.Since(start).Milliseconds(),
			},
		}
	}

	pricing, err := f.calculator.CalculateUrgencyPricing(uctx)
	if err != nil {
		if verr, ok := services.AsValidationError(err); ok {
			return errorResponse(requestID, start, "VALIDATION_ERROR", "Request validation failed", verr.Fields)
		}
		return errorResponse(requestID, start, "CALCULATION_FAILED", err.Error(), nil)
	}
	pricing.CacheKey = key

	if cacheErr := f.cache.Set(ctx, key, *pricing, pricing.UrgencyLevel.CacheTTL()); cacheErr != nil {
		f.logger.Printf("[WARN] pricing flow: cache write failed for %s: %v", key, cacheErr)
	}

	f.persistResult(ctx, pricing, uctx, req.City)

	return &dto.PricingResponse{
		Success: true,
		Data:    pricing,
		Metadata: dto.ResponseMetadata{
			RequestID:         requestID,
			CalculatedAt:      pricing.CalculatedAt.UTC().Format(time.RFC3339),
			CacheHit:          false,
			CalculationTimeMs: time.Since(start).Milliseconds(),
		},
	}
}

// persistResult mirrors a fresh calculation into storage. Failures are
// logged, never surfaced: the cache result is already good.
func (f *PricingFlowImpl) persistResult(ctx context.Context, pricing *models.UrgencyPricing, uctx *models.UrgencyContext, city string) {
	if f.pricingRepo != nil {
		if err := f.pricingRepo.Upsert(ctx, pricing); err != nil {
			f.logger.Printf("[WARN] pricing flow: pricing upsert failed for %s: %v", pricing.CacheKey, err)
		}
	}
	if f.demandRepo != nil && f.demandCalc != nil {
		breakdown := f.demandCalc.CalculateDemandBreakdown(uctx.TargetDate, city)
		row := &models.MarketDemand{
			Date:                utils.TruncateToDay(uctx.TargetDate),
			City:                city,
			BaseMultiplier:      breakdown.Base,
			DayOfWeekMultiplier: breakdown.DayOfWeek,
			SeasonalMultiplier:  breakdown.Seasonal,
			EventMultiplier:     breakdown.Event,
			TotalMultiplier:     breakdown.Total,
			UpdatedAt:           f.now(),
		}
		if err := f.demandRepo.Upsert(ctx, row); err != nil {
			f.logger.Printf("[WARN] pricing flow: market demand upsert failed: %v", err)
		}
	}
}

// CalculateBatchPricing runs up to MaxBatchRequests calculations with bounded
// concurrency. Individual failures do not fail the batch.
func (f *PricingFlowImpl) CalculateBatchPricing(ctx context.Context, req *dto.BatchPricingRequest) (*dto.BatchPricingResponse, error) {
	start := time.Now()
	if req == nil || len(req.Requests) == 0 {
		return nil, NewBusinessError("BATCH_EMPTY", "Batch must contain at least one request", ErrBatchEmpty)
	}
	if len(req.Requests) > utils.MaxBatchRequests {
		return nil, NewBusinessErrorf("BATCH_TOO_LARGE", "Batch exceeds the maximum of %d requests", ErrBatchTooLarge, utils.MaxBatchRequests)
	}

	results := make([]dto.PricingResponse, len(req.Requests))
	sem := make(chan struct{}, batchConcurrency)
	var wg sync.WaitGroup
	for i := range req.Requests {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = *f.CalculatePricing(ctx, &req.Requests[idx])
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i := range results {
		if results[i].Success {
			succeeded++
		}
	}

	return &dto.BatchPricingResponse{
		Success: true,
		Results: results,
		Metadata: dto.BatchMetadata{
			RequestID:              uuid.New().String(),
			TotalRequests:          len(req.Requests),
			SuccessfulRequests:     succeeded,
			FailedRequests:         len(req.Requests) - succeeded,
			TotalCalculationTimeMs: time.Since(start).Milliseconds(),
		},
	}, nil
}

// GetPricingForDates computes pricing for a calendar of dates with shared
// base price and steepness. Failed dates are skipped, not fatal.
func (f *PricingFlowImpl) GetPricingForDates(ctx context.Context, req *dto.CalendarPricingRequest) (*dto.CalendarPricingResponse, error) {
	if req == nil || len(req.Dates) == 0 {
		return nil, NewBusinessError("NO_DATES", "At least one date is required", ErrNoDatesProvided)
	}
	if len(req.Dates) > utils.MaxCalendarDates {
		return nil, NewBusinessErrorf("TOO_MANY_DATES", "At most %d dates are allowed", ErrTooManyDates, utils.MaxCalendarDates)
	}
	if req.BasePrice <= 0 {
		return nil, NewBusinessError("BASE_PRICE_INVALID", "Base price must be greater than zero", ErrBasePriceInvalid)
	}

	pricing := make(map[string]*models.UrgencyPricing, len(req.Dates))
	for _, rawDate := range req.Dates {
		day, err := utils.ParseDay(rawDate)
		if err != nil {
			f.logger.Printf("[WARN] pricing flow: skipping invalid calendar date %q: %v", rawDate, err)
			continue
		}
		single := &dto.PricingCalculationRequest{
			TargetDate:       rawDate,
			BasePrice:        req.BasePrice,
			City:             req.City,
			UrgencySteepness: req.Steepness,
		}
		resp := f.CalculatePricing(ctx, single)
		if !resp.Success || resp.Data == nil {
			f.logger.Printf("[WARN] pricing flow: calendar date %s failed", rawDate)
			continue
		}
		pricing[utils.FormatDay(day)] = resp.Data
	}

	return &dto.CalendarPricingResponse{
		Message: "Calendar pricing calculated successfully",
		Pricing: pricing,
	}, nil
}

// DownloadCalendarExcel renders the calendar pricing as a single-sheet workbook.
func (f *PricingFlowImpl) DownloadCalendarExcel(ctx context.Context, req *dto.CalendarPricingRequest) (string, []byte, error) {
	calendar, err := f.GetPricingForDates(ctx, req)
	if err != nil {
		return "", nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := xl.GetSheetName(0)
	header := []string{"date", "urgency_level", "days_until_check_in", "multiplier", "base_price", "market_adjusted_base", "current_price", "urgency_premium", "peak_price", "increase_per_day"}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	ri := 0
	for _, rawDate := range req.Dates {
		day, parseErr := utils.ParseDay(rawDate)
		if parseErr != nil {
			continue
		}
		row, ok := calendar.Pricing[utils.FormatDay(day)]
		if !ok {
			continue
		}
		record := []any{
			utils.FormatDay(day),
			row.UrgencyLevel.String(),
			row.DaysUntilCheckIn,
			row.CurrentMultiplier,
			row.BasePrice,
			row.MarketAdjustedBase,
			row.CurrentPrice,
			row.UrgencyPremium,
			row.PeakPrice,
			row.IncreaseRatePerDay,
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
		ri++
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", fmt.Errorf("%w: %v", ErrExportFailed, err))
	}
	return "pricing_calendar.xlsx", buf.Bytes(), nil
}

// RegisterEvent validates, persists, and activates a demand-affecting event.
func (f *PricingFlowImpl) RegisterEvent(ctx context.Context, req *dto.RegisterEventRequest) (*dto.RegisterEventResponse, error) {
	name := strings.TrimSpace(req.EventName)
	if name == "" {
		return nil, NewBusinessError("EVENT_NAME_REQUIRED", "Event name is required", ErrEventNameRequired)
	}
	if req.Multiplier <= 0 {
		return nil, NewBusinessError("EVENT_MULTIPLIER_INVALID", "Event multiplier must be greater than zero", ErrEventMultiplierInvalid)
	}
	startDate, err := utils.ParseDay(req.StartDate)
	if err != nil {
		return nil, NewBusinessErrorf("EVENT_DATE_INVALID", "Invalid start date %q", ErrInvalidDate, req.StartDate)
	}
	endDate, err := utils.ParseDay(req.EndDate)
	if err != nil {
		return nil, NewBusinessErrorf("EVENT_DATE_INVALID", "Invalid end date %q", ErrInvalidDate, req.EndDate)
	}
	if startDate.After(endDate) {
		return nil, NewBusinessError("EVENT_DATES_INVALID", "Event start date must not be after end date", ErrEventDatesInvalid)
	}

	now := f.now()
	event := models.PricingEvent{
		EventID:    uuid.New(),
		Name:       name,
		StartDate:  startDate,
		EndDate:    endDate,
		Multiplier: req.Multiplier,
		Cities:     pq.StringArray(req.Cities),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if f.eventRepo != nil {
		if err := f.eventRepo.Upsert(ctx, &event); err != nil {
			return nil, NewBusinessError("EVENT_SAVE_FAILED", "Failed to save event", err)
		}
	}
	if f.demandCalc != nil {
		f.demandCalc.AddEvent(event)
	}

	return &dto.RegisterEventResponse{
		Message:   "Event registered successfully",
		EventID:   event.EventID.String(),
		CreatedAt: now,
	}, nil
}

// ListEvents returns the active in-memory event set.
func (f *PricingFlowImpl) ListEvents(ctx context.Context) ([]models.PricingEvent, error) {
	if f.eventRepo != nil {
		rows, err := f.eventRepo.ListAll(ctx)
		if err == nil {
			events := make([]models.PricingEvent, 0, len(rows))
			for _, row := range rows {
				if row != nil {
					events = append(events, *row)
				}
			}
			return events, nil
		}
		f.logger.Printf("[WARN] pricing flow: listing events from storage failed, serving in-memory set: %v", err)
	}
	if f.demandCalc == nil {
		return nil, nil
	}
	return f.demandCalc.Events(), nil
}

// RemoveEvent deactivates an event in the demand model and removes it from storage.
func (f *PricingFlowImpl) RemoveEvent(ctx context.Context, eventID uuid.UUID) error {
	removed := false
	if f.demandCalc != nil {
		removed = f.demandCalc.RemoveEvent(eventID)
	}
	if f.eventRepo != nil {
		existing, err := f.eventRepo.ByEventID(ctx, eventID)
		if err != nil {
			return NewBusinessError("EVENT_LOOKUP_FAILED", "Failed to look up event", err)
		}
		if existing != nil {
			removed = true
			past := utils.TruncateToDay(f.now())
			// Keep history: cap the range instead of deleting the row.
			existing.EndDate = past.AddDate(0, 0, -1)
			existing.UpdatedAt = f.now()
			if err := f.eventRepo.Upsert(ctx, existing); err != nil {
				return NewBusinessError("EVENT_SAVE_FAILED", "Failed to deactivate event", err)
			}
		}
	}
	if !removed {
		return NewBusinessError("EVENT_NOT_FOUND", "Event not found", ErrEventNotFound)
	}
	return nil
}

// LoadEvents hydrates the in-memory demand model from storage. Called once at
// startup and periodically by the scheduler.
func (f *PricingFlowImpl) LoadEvents(ctx context.Context) (int, error) {
	if f.eventRepo == nil || f.demandCalc == nil {
		return 0, nil
	}
	rows, err := f.eventRepo.ListAll(ctx)
	if err != nil {
		return 0, NewBusinessError("EVENT_LOAD_FAILED", "Failed to load events", err)
	}
	count := 0
	for _, row := range rows {
		if row == nil {
			continue
		}
		f.demandCalc.AddEvent(*row)
		count++
	}
	return count, nil
}

// CacheStats reports merged counters from both cache tiers.
func (f *PricingFlowImpl) CacheStats(ctx context.Context) (*dto.CacheStatsResponse, error) {
	if f.cache == nil {
		return nil, NewBusinessError("CACHE_NOT_AVAILABLE", "Cache not available", ErrCacheNotAvailable)
	}
	stats := f.cache.Stats(ctx)
	return &dto.CacheStatsResponse{
		MemoryEntries:    stats.MemoryEntries,
		MemoryCapacity:   stats.MemoryCapacity,
		DistributedKeys:  stats.DistributedKeys,
		DistributedState: stats.DistributedState,
		Hits:             stats.Hits,
		Misses:           stats.Misses,
	}, nil
}

// CleanupExpired sweeps expired entries from the memory tier and expired
// rows from storage.
func (f *PricingFlowImpl) CleanupExpired(ctx context.Context) (*dto.CleanupResponse, error) {
	removedEntries := 0
	if f.cache != nil {
		removedEntries = f.cache.CleanupExpired()
	}
	var removedRows int64
	if f.pricingRepo != nil {
		rows, err := f.pricingRepo.DeleteExpired(ctx, f.now())
		if err != nil {
			return nil, NewBusinessError("CLEANUP_FAILED", "Failed to delete expired pricing rows", fmt.Errorf("%w: %v", ErrStorageFailed, err))
		}
		removedRows = rows
	}
	return &dto.CleanupResponse{
		Message:        "Expired pricing cleaned up successfully",
		RemovedEntries: removedEntries,
		RemovedRows:    removedRows,
	}, nil
}

// WarmCache re-populates the cache from stored rows that have not yet
// expired, so a restart does not cold-start the near-term window.
func (f *PricingFlowImpl) WarmCache(ctx context.Context, limit int) (int, error) {
	if f.cache == nil || f.pricingRepo == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = utils.DefaultRecalculationBatchSize
	}

	now := f.now()
	horizon := now.Add(time.Duration(utils.DefaultLookbackWindowDays) * 24 * time.Hour)
	filter := models.UrgencyPricingFilter{
		TargetAfter:  &now,
		TargetBefore: &horizon,
	}
	rows, err := f.pricingRepo.ByFilter(ctx, filter, "target_date ASC", limit, 0)
	if err != nil {
		return 0, NewBusinessError("WARMUP_QUERY_FAILED", "Failed to query pricing rows for cache warm-up", fmt.Errorf("%w: %v", ErrStorageFailed, err))
	}

	scenarios := make([]cache.WarmScenario, 0, len(rows))
	for _, row := range rows {
		if row == nil || row.IsExpired(now) {
			continue
		}
		row := row
		scenarios = append(scenarios, cache.WarmScenario{
			Key: row.CacheKey,
			Compute: func(context.Context) (*models.UrgencyPricing, error) {
				return row, nil
			},
		})
	}
	stored, failed := f.cache.Warm(ctx, scenarios)
	if failed > 0 {
		f.logger.Printf("[WARN] pricing flow: cache warm-up stored %d entries, %d failed", stored, failed)
	}
	return stored, nil
}

// RecalculateWindow refreshes stored pricing whose target date falls within
// the horizon, oldest expiry first. Each row is recalculated with the
// parameters recovered from its cache key so the refreshed result lands on
// the same key.
func (f *PricingFlowImpl) RecalculateWindow(ctx context.Context, horizon time.Duration, batchSize int) (int, int, error) {
	if f.pricingRepo == nil {
		return 0, 0, nil
	}
	if batchSize <= 0 {
		batchSize = utils.DefaultRecalculationBatchSize
	}

	now := f.now()
	until := now.Add(horizon)
	filter := models.UrgencyPricingFilter{
		TargetAfter:  &now,
		TargetBefore: &until,
	}
	rows, err := f.pricingRepo.ByFilter(ctx, filter, "expires_at ASC", batchSize, 0)
	if err != nil {
		return 0, 0, NewBusinessError("RECALCULATION_QUERY_FAILED", "Failed to query pricing rows for recalculation", fmt.Errorf("%w: %v", ErrStorageFailed, err))
	}

	recalculated, failed := 0, 0
	for _, row := range rows {
		if row == nil {
			continue
		}
		req, err := requestFromStoredRow(row)
		if err != nil {
			f.logger.Printf("[WARN] pricing flow: skipping unparsable cache key %q: %v", row.CacheKey, err)
			failed++
			continue
		}
		// Drop the stale cache entry so the calculation actually reruns.
		if f.cache != nil {
			_ = f.cache.Delete(ctx, row.CacheKey)
		}
		resp := f.CalculatePricing(ctx, req)
		if resp.Success {
			recalculated++
		} else {
			failed++
		}
	}
	return recalculated, failed, nil
}

// requestFromStoredRow recovers the calculation inputs from a stored row.
// The cache key encodes day, base price, steepness, and market multiplier.
func requestFromStoredRow(row *models.UrgencyPricing) (*dto.PricingCalculationRequest, error) {
	parts := strings.Split(row.CacheKey, ":")
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed cache key: %q", row.CacheKey)
	}
	steepness, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed steepness in cache key %q: %w", row.CacheKey, err)
	}
	market, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed market multiplier in cache key %q: %w", row.CacheKey, err)
	}
	return &dto.PricingCalculationRequest{
		TargetDate:             parts[0],
		BasePrice:              row.BasePrice,
		UrgencySteepness:       &steepness,
		MarketDemandMultiplier: &market,
	}, nil
}

func errorResponse(requestID string, start time.Time, code, message string, details any) *dto.PricingResponse {
	return &dto.PricingResponse{
		Success: false,
		Error: &dto.ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
		Metadata: dto.ResponseMetadata{
			RequestID:         requestID,
			CalculationTimeMs: time.Since(start).Milliseconds(),
		},
	}
}
