package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCache is an in-test distributed tier whose failures are switchable
type stubCache struct {
	entries map[string]*Entry
	fail    bool
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string]*Entry)}
}

func (s *stubCache) Get(_ context.Context, key string) (*Entry, error) {
	if s.fail {
		return nil, errors.New("stub: down")
	}
	return s.entries[key], nil
}

func (s *stubCache) Set(_ context.Context, key string, entry *Entry) error {
	if s.fail {
		return errors.New("stub: down")
	}
	s.entries[key] = entry
	return nil
}

func (s *stubCache) Delete(_ context.Context, key string) error {
	if s.fail {
		return errors.New("stub: down")
	}
	delete(s.entries, key)
	return nil
}

func (s *stubCache) Clear(_ context.Context) error {
	if s.fail {
		return errors.New("stub: down")
	}
	s.entries = make(map[string]*Entry)
	return nil
}

func (s *stubCache) Stats(_ context.Context) (Stats, error) {
	if s.fail {
		return Stats{}, errors.New("stub: down")
	}
	return Stats{DistributedKeys: int64(len(s.entries)), DistributedState: "healthy"}, nil
}

func TestTieredCache(t *testing.T) {
	ctx := context.Background()

	t.Run("SetWritesBothTiers", func(t *testing.T) {
		distributed := newStubCache()
		tc := NewTieredCache(NewMemoryCache(10), distributed, nil)

		require.NoError(t, tc.Set(ctx, "k1", testPricing(models.UrgencyLevelLow), time.Minute))

		assert.Contains(t, distributed.entries, "k1")
		got, err := tc.Get(ctx, "k1")
		require.NoError(t, err)
		require.NotNil(t, got)
	})

	t.Run("DistributedHitRefreshesMemory", func(t *testing.T) {
		distributed := newStubCache()
		memory := NewMemoryCache(10)
		tc := NewTieredCache(memory, distributed, nil)

		entry := NewEntry("k1", testPricing(models.UrgencyLevelLow), time.Minute, utils.UTCNow())
		distributed.entries["k1"] = entry

		got, err := tc.Get(ctx, "k1")
		require.NoError(t, err)
		require.NotNil(t, got)

		inMemory, _ := memory.Get(ctx, "k1")
		assert.NotNil(t, inMemory, "distributed hit should land in the memory tier")
	})

	t.Run("DistributedFailureFallsBackToMemory", func(t *testing.T) {
		distributed := newStubCache()
		tc := NewTieredCache(NewMemoryCache(10), distributed, nil)

		require.NoError(t, tc.Set(ctx, "k1", testPricing(models.UrgencyLevelLow), time.Minute))
		distributed.fail = true

		got, err := tc.Get(ctx, "k1")
		require.NoError(t, err)
		assert.NotNil(t, got, "memory tier must serve the entry when the distributed tier is down")
	})

	t.Run("DistributedWriteFailureDoesNotFailSet", func(t *testing.T) {
		distributed := newStubCache()
		distributed.fail = true
		tc := NewTieredCache(NewMemoryCache(10), distributed, nil)

		assert.NoError(t, tc.Set(ctx, "k1", testPricing(models.UrgencyLevelLow), time.Minute))
	})

	t.Run("ExpiredDistributedEntryIsMiss", func(t *testing.T) {
		distributed := newStubCache()
		tc := NewTieredCache(NewMemoryCache(10), distributed, nil)

		stale := NewEntry("k1", testPricing(models.UrgencyLevelLow), time.Minute, utils.UTCNow().Add(-time.Hour))
		distributed.entries["k1"] = stale

		got, err := tc.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.NotContains(t, distributed.entries, "k1", "expired distributed entry should be deleted")
	})

	t.Run("MemoryOnlyDeployment", func(t *testing.T) {
		tc := NewTieredCache(NewMemoryCache(10), nil, nil)

		require.NoError(t, tc.Set(ctx, "k1", testPricing(models.UrgencyLevelLow), time.Minute))
		got, err := tc.Get(ctx, "k1")
		require.NoError(t, err)
		assert.NotNil(t, got)

		stats := tc.Stats(ctx)
		assert.Equal(t, "disabled", stats.DistributedState)
	})

	t.Run("HitMissCounters", func(t *testing.T) {
		tc := NewTieredCache(NewMemoryCache(10), nil, nil)

		require.NoError(t, tc.Set(ctx, "k1", testPricing(models.UrgencyLevelLow), time.Minute))
		_, _ = tc.Get(ctx, "k1")
		_, _ = tc.Get(ctx, "absent")

		stats := tc.Stats(ctx)
		assert.Equal(t, uint64(1), stats.Hits)
		assert.Equal(t, uint64(1), stats.Misses)
	})

	t.Run("Warm", func(t *testing.T) {
		tc := NewTieredCache(NewMemoryCache(10), nil, nil)

		pricing := testPricing(models.UrgencyLevelLow)
		stored, failed := tc.Warm(ctx, []WarmScenario{
			{Key: "ok", Compute: func(context.Context) (*models.UrgencyPricing, error) { return &pricing, nil }},
			{Key: "bad", Compute: func(context.Context) (*models.UrgencyPricing, error) { return nil, errors.New("boom") }},
		})
		assert.Equal(t, 1, stored)
		assert.Equal(t, 1, failed)

		got, _ := tc.Get(ctx, "ok")
		assert.NotNil(t, got)
	})
}
