package handlers

import (
	"context"
	"log"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	businessflow "github.com/amirphl/Amaterasu/business_flow"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// PricingHandlerInterface defines the HTTP surface of the pricing API
type PricingHandlerInterface interface {
	CalculatePricing(c fiber.Ctx) error
	CalculateBatch(c fiber.Ctx) error
	CalendarPricing(c fiber.Ctx) error
	DownloadCalendarExcel(c fiber.Ctx) error
	RegisterEvent(c fiber.Ctx) error
	ListEvents(c fiber.Ctx) error
	RemoveEvent(c fiber.Ctx) error
	GetCacheStats(c fiber.Ctx) error
	CleanupExpired(c fiber.Ctx) error
}

// PricingHandler handles pricing calculation endpoints
type PricingHandler struct {
	pricingFlow businessflow.PricingFlow
	validator   *validator.Validate
}

// NewPricingHandler creates a new pricing handler
func NewPricingHandler(pricingFlow businessflow.PricingFlow) PricingHandlerInterface {
	return &PricingHandler{
		pricingFlow: pricingFlow,
		validator:   validator.New(),
	}
}

func (h *PricingHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, code string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    code,
			Details: details,
		},
	})
}

func (h *PricingHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CalculatePricing computes the urgency-adjusted price for one target date
// @Summary Calculate Pricing
// @Description Calculate the urgency-adjusted price for a target check-in date
// @Tags Pricing
// @Accept json
// @Produce json
// @Param request body dto.PricingCalculationRequest true "Pricing calculation data"
// @Success 200 {object} dto.PricingResponse "Pricing calculated successfully"
// @Failure 400 {object} dto.PricingResponse "Validation error or invalid request"
// @Router /api/v1/pricing/calculate [post]
func (h *PricingHandler) CalculatePricing(c fiber.Ctx) error {
	var req dto.PricingCalculationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result := h.pricingFlow.CalculatePricing(h.createRequestContext(c, "/api/v1/pricing/calculate"), &req)
	if !result.Success {
		return c.Status(fiber.StatusBadRequest).JSON(result)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// CalculateBatch computes pricing for up to 100 requests in one call
// @Summary Calculate Batch Pricing
// @Description Calculate pricing for multiple requests; individual failures do not fail the batch
// @Tags Pricing
// @Accept json
// @Produce json
// @Param request body dto.BatchPricingRequest true "Batch pricing data"
// @Success 200 {object} dto.BatchPricingResponse "Batch processed"
// @Failure 400 {object} dto.APIResponse "Validation error or batch too large"
// @Router /api/v1/pricing/batch [post]
func (h *PricingHandler) CalculateBatch(c fiber.Ctx) error {
	var req dto.BatchPricingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result, err := h.pricingFlow.CalculateBatchPricing(h.createRequestContextWithTimeout(c, "/api/v1/pricing/batch", 60*time.Second), &req)
	if err != nil {
		if businessflow.IsBatchTooLarge(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Batch too large", "BATCH_TOO_LARGE", nil)
		}
		log.Println("Batch pricing failed:", err)
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Batch pricing failed", "BATCH_FAILED", err.Error())
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// CalendarPricing computes pricing for a calendar of dates
// @Summary Calendar Pricing
// @Description Calculate pricing for up to 90 dates with a shared base price
// @Tags Pricing
// @Accept json
// @Produce json
// @Param request body dto.CalendarPricingRequest true "Calendar pricing data"
// @Success 200 {object} dto.APIResponse{data=dto.CalendarPricingResponse} "Calendar calculated"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Router /api/v1/pricing/calendar [post]
func (h *PricingHandler) CalendarPricing(c fiber.Ctx) error {
	var req dto.CalendarPricingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result, err := h.pricingFlow.GetPricingForDates(h.createRequestContextWithTimeout(c, "/api/v1/pricing/calendar", 60*time.Second), &req)
	if err != nil {
		log.Println("Calendar pricing failed:", err)
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Calendar pricing failed", "CALENDAR_FAILED", err.Error())
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Calendar pricing calculated", result)
}

// DownloadCalendarExcel returns the calendar pricing as an Excel workbook
// @Summary Download Calendar Pricing Excel
// @Description Calculate calendar pricing and return it as an xlsx attachment
// @Tags Pricing
// @Accept json
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param request body dto.CalendarPricingRequest true "Calendar pricing data"
// @Success 200 {file} file "Excel file"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Router /api/v1/pricing/calendar/export [post]
func (h *PricingHandler) DownloadCalendarExcel(c fiber.Ctx) error {
	var req dto.CalendarPricingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	filename, data, err := h.pricingFlow.DownloadCalendarExcel(h.createRequestContextWithTimeout(c, "/api/v1/pricing/calendar/export", 60*time.Second), &req)
	if err != nil {
		log.Println("Calendar export failed:", err)
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Calendar export failed", "EXPORT_FAILED", err.Error())
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// RegisterEvent registers a demand-affecting event
// @Summary Register Event
// @Description Register a demand-affecting event (holiday, festival, conference)
// @Tags Events
// @Accept json
// @Produce json
// @Param request body dto.RegisterEventRequest true "Event data"
// @Success 201 {object} dto.APIResponse{data=dto.RegisterEventResponse} "Event registered"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Router /api/v1/pricing/events [post]
func (h *PricingHandler) RegisterEvent(c fiber.Ctx) error {
	var req dto.RegisterEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result, err := h.pricingFlow.RegisterEvent(h.createRequestContext(c, "/api/v1/pricing/events"), &req)
	if err != nil {
		log.Println("Event registration failed:", err)
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Event registration failed", "EVENT_REGISTRATION_FAILED", err.Error())
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Event registered", result)
}

// ListEvents lists registered demand-affecting events
// @Summary List Events
// @Tags Events
// @Produce json
// @Success 200 {object} dto.APIResponse "Events retrieved"
// @Failure 500 {object} dto.APIResponse "List failed"
// @Router /api/v1/pricing/events [get]
func (h *PricingHandler) ListEvents(c fiber.Ctx) error {
	events, err := h.pricingFlow.ListEvents(h.createRequestContext(c, "/api/v1/pricing/events"))
	if err != nil {
		log.Println("List events failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "List events failed", "EVENT_LIST_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Events retrieved", events)
}

// RemoveEvent deactivates a registered event
// @Summary Remove Event
// @Tags Events
// @Produce json
// @Param event_id path string true "Event UUID"
// @Success 200 {object} dto.APIResponse "Event removed"
// @Failure 400 {object} dto.APIResponse "Invalid event ID"
// @Failure 404 {object} dto.APIResponse "Event not found"
// @Router /api/v1/pricing/events/{event_id} [delete]
func (h *PricingHandler) RemoveEvent(c fiber.Ctx) error {
	eventID, err := uuid.Parse(c.Params("event_id"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid event ID", "INVALID_EVENT_ID", nil)
	}

	if err := h.pricingFlow.RemoveEvent(h.createRequestContext(c, "/api/v1/pricing/events/:event_id"), eventID); err != nil {
		if businessflow.IsEventNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Event not found", "EVENT_NOT_FOUND", nil)
		}
		log.Println("Remove event failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Remove event failed", "EVENT_REMOVE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Event removed", nil)
}

// GetCacheStats reports pricing cache counters
// @Summary Cache Stats
// @Tags Cache
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.CacheStatsResponse} "Stats retrieved"
// @Failure 500 {object} dto.APIResponse "Stats failed"
// @Router /api/v1/pricing/cache/stats [get]
func (h *PricingHandler) GetCacheStats(c fiber.Ctx) error {
	stats, err := h.pricingFlow.CacheStats(h.createRequestContext(c, "/api/v1/pricing/cache/stats"))
	if err != nil {
		log.Println("Cache stats failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Cache stats failed", "CACHE_STATS_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Cache stats retrieved", stats)
}

// CleanupExpired sweeps expired pricing from the cache and storage
// @Summary Cleanup Expired Pricing
// @Tags Cache
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.CleanupResponse} "Cleanup complete"
// @Failure 500 {object} dto.APIResponse "Cleanup failed"
// @Router /api/v1/pricing/cache/cleanup [post]
func (h *PricingHandler) CleanupExpired(c fiber.Ctx) error {
	result, err := h.pricingFlow.CleanupExpired(h.createRequestContext(c, "/api/v1/pricing/cache/cleanup"))
	if err != nil {
		log.Println("Cleanup failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Cleanup failed", "CLEANUP_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Cleanup complete", result)
}

func (h *PricingHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *PricingHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get(businessflow.RequestIDKey))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
