package utils

import (
	"time"
)

// Urgency curve bounds and tunable defaults
const (
	// MinUrgencyMultiplier is the floor applied to the urgency multiplier (base price)
	MinUrgencyMultiplier = 1.0

	// MaxUrgencyMultiplier is the cap applied to the urgency multiplier
	MaxUrgencyMultiplier = 10.0

	// DefaultUrgencySteepness controls how sharply price rises as the target date approaches
	DefaultUrgencySteepness = 2.0

	// MaxUrgencySteepness is the practical cap for the steepness tunable
	MaxUrgencySteepness = 5.0

	// DefaultLookbackWindowDays is the horizon over which the urgency curve is normalized
	DefaultLookbackWindowDays = 90

	// MaxLookbackWindowDays is the cap for the lookback window tunable
	MaxLookbackWindowDays = 365

	// MaxBasePrice is the practical cap for a base price
	MaxBasePrice = 100000.0

	// MinMarketDemandMultiplier is the lower bound for the market demand multiplier
	MinMarketDemandMultiplier = 0.1

	// MaxMarketDemandMultiplier is the upper bound for the market demand multiplier
	MaxMarketDemandMultiplier = 10.0
)

// Urgency level thresholds (days until target; boundary belongs to the tighter band)
const (
	CriticalDaysThreshold = 3
	HighDaysThreshold     = 7
	MediumDaysThreshold   = 14
)

// Cache TTLs keyed by urgency level
const (
	// CriticalCacheTTL is the cache lifetime for critical-urgency pricing (5 minutes)
	CriticalCacheTTL = 5 * time.Minute

	// HighCacheTTL is the cache lifetime for high-urgency pricing (15 minutes)
	HighCacheTTL = 15 * time.Minute

	// MediumCacheTTL is the cache lifetime for medium-urgency pricing (1 hour)
	MediumCacheTTL = time.Hour

	// LowCacheTTL is the cache lifetime for low-urgency pricing (6 hours)
	LowCacheTTL = 6 * time.Hour
)

// Service limits
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400

	// MaxBatchRequests is the maximum number of requests accepted by a batch calculation
	MaxBatchRequests = 100

	// MaxCalendarDates is the maximum number of dates accepted by a calendar calculation
	MaxCalendarDates = 90

	// DefaultRecalculationBatchSize is the number of dates processed per recalculation batch
	DefaultRecalculationBatchSize = 50

	// DefaultMemoryCacheEntries bounds the in-process cache tier
	DefaultMemoryCacheEntries = 1000
)

// ContextKey is the type for request-scoped context values
type ContextKey string

// Request context keys
const (
	RequestIDKey  ContextKey = "request_id"
	UserAgentKey  ContextKey = "user_agent"
	IPAddressKey  ContextKey = "ip_address"
	EndpointKey   ContextKey = "endpoint"
	TimeoutKey    ContextKey = "timeout"
	CancelFuncKey ContextKey = "cancel_func"
)
