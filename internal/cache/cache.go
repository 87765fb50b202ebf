// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

// Package cache provides the tiered snapshot cache: a thread-safe
// key/value store with three TTL classes (realtime, standard, historical)
// and prefix-based invalidation.
//
// The cache is constructed once at process start and passed by handle to
// every component that needs it; there is no package-level singleton.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/dashfeed/dashfeed/internal/config"
	"github.com/dashfeed/dashfeed/internal/metrics"
	"github.com/dashfeed/dashfeed/internal/models"
)

// entry is a cached value with its expiry. Entries are replaced atomically
// under the write lock, never mutated in place, so concurrent readers
// always observe either the complete prior value or the complete new one.
type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	TotalKeys   int64
	LastCleanup time.Time
}

// TieredCache is a thread-safe in-memory cache with class-based TTLs.
//
// Invariants:
//   - expires_at is always in the future at write time
//   - Get never returns a value past its expiry: an expired entry is a
//     clean miss, indistinguishable from absence
type TieredCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	cfg     config.CacheConfig

	statsMu sync.Mutex
	stats   Stats

	// now is injectable for TTL property tests.
	now func() time.Time

	stop chan struct{}
	once sync.Once
}

// New creates a tiered cache and starts its background cleanup loop.
// Call Stop to terminate the loop on shutdown.
func New(cfg config.CacheConfig) *TieredCache {
	c := &TieredCache{
		entries: make(map[string]entry),
		cfg:     cfg,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	c.stats.LastCleanup = c.now()

	go c.cleanupLoop()

	return c
}

// ttlFor maps a freshness class to its configured TTL.
func (c *TieredCache) ttlFor(class models.FreshnessClass) time.Duration {
	switch class {
	case models.ClassRealtime:
		return c.cfg.RealtimeTTL
	case models.ClassHistorical:
		return c.cfg.HistoricalTTL
	default:
		return c.cfg.StandardTTL
	}
}

// Get retrieves a value by key. An absent or expired key is a clean miss;
// expired entries are removed on the way out.
func (c *TieredCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, false
	}

	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock: a writer may have replaced the
		// entry since the read.
		if cur, ok := c.entries[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
			c.recordEviction()
		}
		c.mu.Unlock()
		c.recordMiss()
		return nil, false
	}

	c.recordHit()
	return e.value, true
}

// Set stores a value under the TTL of the given freshness class,
// atomically replacing any previous entry for the key.
func (c *TieredCache) Set(key string, value interface{}, class models.FreshnessClass) {
	ttl := c.ttlFor(class)

	c.mu.Lock()
	c.entries[key] = entry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	total := int64(len(c.entries))
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.TotalKeys = total
	c.statsMu.Unlock()
	metrics.CacheEntries.Set(float64(total))
}

// InvalidatePattern removes every key sharing the given prefix and returns
// the number of entries removed. Used when an entity write makes an entire
// topic's cached values provably wrong.
func (c *TieredCache) InvalidatePattern(prefix string) int {
	c.mu.Lock()
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	total := int64(len(c.entries))
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Evictions += int64(removed)
	c.stats.TotalKeys = total
	c.statsMu.Unlock()
	metrics.CacheEntries.Set(float64(total))

	return removed
}

// GetStats returns a copy of the current cache counters.
func (c *TieredCache) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// HitRate returns the cache hit rate as a percentage.
func (c *TieredCache) HitRate() float64 {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(stats.Hits) / float64(total) * 100.0
}

// Stop terminates the background cleanup loop. Safe to call more than once.
func (c *TieredCache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// cleanupLoop periodically removes expired entries.
func (c *TieredCache) cleanupLoop() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes all expired entries in one pass.
func (c *TieredCache) cleanup() {
	now := c.now()

	c.mu.Lock()
	evictions := int64(0)
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			evictions++
		}
	}
	total := int64(len(c.entries))
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Evictions += evictions
	c.stats.TotalKeys = total
	c.stats.LastCleanup = now
	c.statsMu.Unlock()
	metrics.CacheEntries.Set(float64(total))
}

func (c *TieredCache) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
	metrics.CacheHits.Inc()
}

func (c *TieredCache) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
	metrics.CacheMisses.Inc()
}

func (c *TieredCache) recordEviction() {
	c.statsMu.Lock()
	c.stats.Evictions++
	c.statsMu.Unlock()
	metrics.CacheEvictions.Inc()
}
