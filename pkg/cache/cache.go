// Package cache provides the two-tier pricing cache: a bounded in-process
// tier and a Redis-backed distributed tier behind one interface.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/utils"
)

// Entry is the cached unit: a pricing payload plus its own expiry bookkeeping.
// Dates travel as ISO strings in the Redis wire form via JSON encoding.
type Entry struct {
	Key        string                `json:"key"`
	Pricing    models.UrgencyPricing `json:"pricing"`
	CreatedAt  time.Time             `json:"created_at"`
	ExpiresAt  time.Time             `json:"expires_at"`
	TTLSeconds int                   `json:"ttl_seconds"`
}

// IsExpired reports whether the entry has passed its expiry at the given instant
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Stats reports cache observability counters
type Stats struct {
	MemoryEntries    int
	MemoryCapacity   int
	DistributedKeys  int64
	DistributedState string
	Hits             uint64
	Misses           uint64
}

// Cache is the capability shared by both tiers and by their composition.
// Get returns nil without error on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// Options configures cache construction
type Options struct {
	KeyPrefix  string
	MaxEntries int
	DefaultTTL time.Duration
}

// DefaultOptions returns the baseline cache configuration
func DefaultOptions() Options {
	return Options{
		KeyPrefix:  "pricing",
		MaxEntries: utils.DefaultMemoryCacheEntries,
		DefaultTTL: utils.LowCacheTTL,
	}
}

// GenerateCacheKey derives the deterministic fingerprint of an economically
// equivalent pricing scenario: the calendar day of the target date, the base
// price, the steepness, and the market multiplier rounded to two decimals.
// Requests differing only in time-of-day collapse to the same key.
func GenerateCacheKey(targetDate time.Time, basePrice, steepness, marketMultiplier float64) string {
	return fmt.Sprintf("%s:%g:%g:%.2f",
		utils.FormatDay(targetDate),
		basePrice,
		steepness,
		utils.Round2(marketMultiplier),
	)
}

// NewEntry wraps pricing into a cache entry; ttl falls back to the TTL table
// keyed by the pricing's urgency level when zero.
func NewEntry(key string, pricing models.UrgencyPricing, ttl time.Duration, now time.Time) *Entry {
	if ttl <= 0 {
		ttl = pricing.UrgencyLevel.CacheTTL()
	}
	return &Entry{
		Key:        key,
		Pricing:    pricing,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		TTLSeconds: int(ttl.Seconds()),
	}
}
