package cache

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_cache_hits_total",
			Help: "Total pricing cache hits partitioned by tier",
		},
		[]string{"tier"},
	)

	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricing_cache_misses_total",
			Help: "Total pricing cache misses across both tiers",
		},
	)
)

// TieredCache composes the distributed tier with the in-process tier.
//
// Reads go distributed-first; hits refresh the in-process copy, expired
// distributed entries are deleted and treated as misses, and any
// distributed-store error degrades the read to the in-process tier.
// Writes always land in-process and are best-effort on the distributed
// side: a failed distributed write is logged and never fails the caller.
type TieredCache struct {
	memory      *MemoryCache
	distributed Cache // nil when running memory-only
	logger      *log.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewTieredCache composes the two tiers; distributed may be nil for a
// memory-only deployment.
func NewTieredCache(memory *MemoryCache, distributed Cache, logger *log.Logger) *TieredCache {
	if logger == nil {
		logger = log.Default()
	}
	return &TieredCache{
		memory:      memory,
		distributed: distributed,
		logger:      logger,
	}
}

// Get looks the key up distributed-first with in-process fallback
func (tc *TieredCache) Get(ctx context.Context, key string) (*Entry, error) {
	now := utils.UTCNow()

	if tc.distributed != nil {
		entry, err := tc.distributed.Get(ctx, key)
		switch {
		case err != nil:
			tc.logger.Printf("cache: distributed get failed for %s, falling back to memory: %v", key, err)
		case entry != nil && entry.IsExpired(now):
			if delErr := tc.distributed.Delete(ctx, key); delErr != nil {
				tc.logger.Printf("cache: failed to delete expired entry %s: %v", key, delErr)
			}
			_ = tc.memory.Delete(ctx, key)
			tc.miss()
			return nil, nil
		case entry != nil:
			_ = tc.memory.Set(ctx, key, entry)
			tc.hit("distributed")
			return entry, nil
		default:
			// fall through to the in-process tier
		}
	}

	entry, _ := tc.memory.Get(ctx, key)
	if entry == nil {
		tc.miss()
		return nil, nil
	}
	tc.hit("memory")
	return entry, nil
}

// Set wraps the pricing into an entry and writes both tiers. The ttl falls
// back to the urgency-level TTL table when zero. Distributed write failures
// are logged and swallowed.
func (tc *TieredCache) Set(ctx context.Context, key string, pricing models.UrgencyPricing, ttl time.Duration) error {
	pricing.CacheKey = key
	entry := NewEntry(key, pricing, ttl, utils.UTCNow())

	if err := tc.memory.Set(ctx, key, entry); err != nil {
		return err
	}
	if tc.distributed != nil {
		if err := tc.distributed.Set(ctx, key, entry); err != nil {
			tc.logger.Printf("cache: distributed set failed for %s (memory tier kept): %v", key, err)
		}
	}
	return nil
}

// Delete removes the key from both tiers, tolerating distributed-store errors
func (tc *TieredCache) Delete(ctx context.Context, key string) error {
	if tc.distributed != nil {
		if err := tc.distributed.Delete(ctx, key); err != nil {
			tc.logger.Printf("cache: distributed delete failed for %s: %v", key, err)
		}
	}
	return tc.memory.Delete(ctx, key)
}

// Clear empties both tiers, tolerating distributed-store errors
func (tc *TieredCache) Clear(ctx context.Context) error {
	if tc.distributed != nil {
		if err := tc.distributed.Clear(ctx); err != nil {
			tc.logger.Printf("cache: distributed clear failed: %v", err)
		}
	}
	return tc.memory.Clear(ctx)
}

// CleanupExpired sweeps the in-process tier; the distributed tier expires
// keys on its own via per-key TTLs.
func (tc *TieredCache) CleanupExpired() int {
	return tc.memory.Sweep()
}

// Stats merges both tiers' counters with the hit/miss totals
func (tc *TieredCache) Stats(ctx context.Context) Stats {
	stats, _ := tc.memory.Stats(ctx)
	stats.DistributedState = "disabled"
	if tc.distributed != nil {
		if ds, err := tc.distributed.Stats(ctx); err != nil {
			stats.DistributedState = "unavailable"
		} else {
			stats.DistributedKeys = ds.DistributedKeys
			stats.DistributedState = ds.DistributedState
		}
	}
	stats.Hits = tc.hits.Load()
	stats.Misses = tc.misses.Load()
	return stats
}

// WarmScenario is one pre-computation input for cache warm-up
type WarmScenario struct {
	Key     string
	Compute func(ctx context.Context) (*models.UrgencyPricing, error)
}

// Warm pre-populates the cache by running each scenario's computation and
// storing the result. Used by startup and ops tooling, not the request path.
func (tc *TieredCache) Warm(ctx context.Context, scenarios []WarmScenario) (stored int, failed int) {
	for _, sc := range scenarios {
		pricing, err := sc.Compute(ctx)
		if err != nil || pricing == nil {
			failed++
			continue
		}
		if err := tc.Set(ctx, sc.Key, *pricing, 0); err != nil {
			failed++
			continue
		}
		stored++
	}
	return stored, failed
}

func (tc *TieredCache) hit(tier string) {
	tc.hits.Add(1)
	cacheHitsTotal.WithLabelValues(tier).Inc()
}

func (tc *TieredCache) miss() {
	tc.misses.Add(1)
	cacheMissesTotal.Inc()
}
