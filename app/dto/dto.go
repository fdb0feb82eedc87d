package dto

// APIResponse represents the standard API response structure
type APIResponse struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	Data     any               `json:"data,omitempty" validate:"omitempty"`
	Error    any               `json:"error,omitempty" validate:"omitempty"`
	Metadata *ResponseMetadata `json:"metadata,omitempty"`
}

// ErrorDetail represents error details in API responses
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty" validate:"omitempty"`
}

// ResponseMetadata carries per-request bookkeeping attached to pricing responses
type ResponseMetadata struct {
	RequestID         string `json:"request_id"`
	CalculatedAt      string `json:"calculated_at"`
	CacheHit          bool   `json:"cache_hit"`
	CalculationTimeMs int64  `json:"calculation_time_ms"`
}

// FieldError is a single field-level validation failure.
// Validation aggregates all field errors instead of stopping at the first.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
