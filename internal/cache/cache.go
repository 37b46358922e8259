// Package cache provides an epoch-tagged, per-user cache for computed
// listings and aggregates.
//
// Every cache key mixes in the owning user's epoch counter. Invalidation
// bumps the epoch, which makes all previously stored entries unreachable in
// O(1) no matter how many filter combinations were cached; the orphaned
// entries age out passively via TTL.
package cache

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

// DefaultTTL is how long a cached result stays servable.
const DefaultTTL = 5 * time.Minute

// Key identifies one cached computation: the operation, its canonicalized
// filter set, pagination, and sort order. Filter map order does not matter;
// fingerprinting sorts the keys.
type Key struct {
	Op        string
	Filters   map[string]string
	PageSize  int32
	PageToken string
	SortBy    string
	SortDesc  bool
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// ResultCache is a per-user, epoch-tagged result cache.
type ResultCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	epochs  map[string]uint64
	entries map[uint64]entry

	now func() time.Time // injectable for tests
}

// New creates a ResultCache with the given TTL. A non-positive ttl falls
// back to DefaultTTL.
func New(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{
		ttl:     ttl,
		epochs:  make(map[string]uint64),
		entries: make(map[uint64]entry),
		now:     time.Now,
	}
}

// Epoch returns the user's current cache generation.
func (c *ResultCache) Epoch(userID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epochs[userID]
}

// Invalidate bumps the user's epoch. Every entry fingerprinted under the
// previous epoch becomes unreachable immediately; nothing is enumerated or
// deleted here, so the cost is constant.
func (c *ResultCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochs[userID]++
}

// fingerprint hashes (user, epoch, key) into the map key for one entry.
func fingerprint(userID string, epoch uint64, key Key) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%d\x00%s\x00", userID, epoch, key.Op)

	names := make([]string, 0, len(key.Filters))
	for name := range key.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(h, "%s=%s\x00", name, key.Filters[name])
	}

	fmt.Fprintf(h, "%d\x00%s\x00%s\x00%t", key.PageSize, key.PageToken, key.SortBy, key.SortDesc)
	return h.Sum64()
}

// GetOrCompute returns the cached value for (user, key) under the user's
// current epoch, or calls compute, stores the result, and returns it.
//
// compute runs outside the cache lock. If a mutation bumps the epoch while
// compute is in flight, the result is stored under the old fingerprint and
// is simply never served again.
func (c *ResultCache) GetOrCompute(userID string, key Key, compute func() (interface{}, error)) (interface{}, error) {
	c.mu.RLock()
	epoch := c.epochs[userID]
	fp := fingerprint(userID, epoch, key)
	cached, ok := c.entries[fp]
	now := c.now()
	c.mu.RUnlock()

	if ok && now.Before(cached.expiresAt) {
		return cached.value, nil
	}

	value, err := compute()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[fp] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.evictExpiredLocked()
	c.mu.Unlock()

	return value, nil
}

// Len reports the number of stored entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictExpiredLocked drops entries past their TTL. Called on the write path
// so orphaned old-epoch entries cannot accumulate; there is no background
// sweeper.
func (c *ResultCache) evictExpiredLocked() {
	now := c.now()
	for fp, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, fp)
		}
	}
}
