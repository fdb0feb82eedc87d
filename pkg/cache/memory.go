package cache

import (
	"context"
	"sync"

	"github.com/amirphl/Amaterasu/utils"
)

// MemoryCache implements the Cache interface with a bounded in-process map.
// Eviction is FIFO: when the cache is full the oldest-inserted entry goes,
// regardless of how recently it was read.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	order      []string
	maxEntries int
}

// NewMemoryCache creates a bounded in-process cache tier
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = utils.DefaultMemoryCacheEntries
	}
	return &MemoryCache{
		entries:    make(map[string]*Entry),
		order:      make([]string, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Get returns the entry for key, or nil on a miss. Expired entries are
// removed and reported as misses.
func (mc *MemoryCache) Get(_ context.Context, key string) (*Entry, error) {
	mc.mu.RLock()
	entry, ok := mc.entries[key]
	mc.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if entry.IsExpired(utils.UTCNow()) {
		mc.mu.Lock()
		mc.removeLocked(key)
		mc.mu.Unlock()
		return nil, nil
	}
	return entry, nil
}

// Set stores the entry, evicting the oldest-inserted one when full
func (mc *MemoryCache) Set(_ context.Context, key string, entry *Entry) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.entries[key]; !exists {
		if len(mc.order) >= mc.maxEntries {
			oldest := mc.order[0]
			mc.order = mc.order[1:]
			delete(mc.entries, oldest)
		}
		mc.order = append(mc.order, key)
	}
	mc.entries[key] = entry
	return nil
}

// Delete removes the entry for key, if any
func (mc *MemoryCache) Delete(_ context.Context, key string) error {
	mc.mu.Lock()
	mc.removeLocked(key)
	mc.mu.Unlock()
	return nil
}

// Clear drops all entries
func (mc *MemoryCache) Clear(_ context.Context) error {
	mc.mu.Lock()
	mc.entries = make(map[string]*Entry)
	mc.order = mc.order[:0]
	mc.mu.Unlock()
	return nil
}

// Stats reports the tier's size and capacity
func (mc *MemoryCache) Stats(_ context.Context) (Stats, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return Stats{
		MemoryEntries:  len(mc.entries),
		MemoryCapacity: mc.maxEntries,
	}, nil
}

// Sweep removes expired entries, returning how many were dropped
func (mc *MemoryCache) Sweep() int {
	now := utils.UTCNow()
	mc.mu.Lock()
	defer mc.mu.Unlock()

	removed := 0
	for key, entry := range mc.entries {
		if entry.IsExpired(now) {
			mc.removeLocked(key)
			removed++
		}
	}
	return removed
}

// removeLocked deletes key from both the map and the insertion order; callers hold mu
func (mc *MemoryCache) removeLocked(key string) {
	if _, ok := mc.entries[key]; !ok {
		return
	}
	delete(mc.entries, key)
	for i, k := range mc.order {
		if k == key {
			mc.order = append(mc.order[:i], mc.order[i+1:]...)
			break
		}
	}
}
