// Package businessflow contains the core business logic and use cases for pricing workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Calculation errors
	ErrBasePriceInvalid = errors.New("base price must be greater than zero")

	// Batch errors
	ErrBatchEmpty    = errors.New("batch must contain at least one request")
	ErrBatchTooLarge = errors.New("batch exceeds the maximum number of requests")

	// Calendar errors
	ErrNoDatesProvided = errors.New("at least one date is required")
	ErrTooManyDates    = errors.New("too many dates requested")
	ErrInvalidDate     = errors.New("invalid date")

	// Event errors
	ErrEventNameRequired      = errors.New("event name is required")
	ErrEventDatesInvalid      = errors.New("event start date must not be after end date")
	ErrEventMultiplierInvalid = errors.New("event multiplier must be greater than zero")
	ErrEventNotFound          = errors.New("event not found")

	// Infrastructure errors
	ErrCacheNotAvailable = errors.New("cache not available")
	ErrStorageFailed     = errors.New("storage operation failed")
	ErrExportFailed      = errors.New("export generation failed")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsBasePriceInvalid(err error) bool {
	return errors.Is(err, ErrBasePriceInvalid)
}

func IsBatchTooLarge(err error) bool {
	return errors.Is(err, ErrBatchTooLarge)
}

func IsEventNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound)
}

func IsCacheNotAvailable(err error) bool {
	return errors.Is(err, ErrCacheNotAvailable)
}

func IsStorageFailed(err error) bool {
	return errors.Is(err, ErrStorageFailed)
}
