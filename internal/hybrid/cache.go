// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package hybrid

import (
	"sync"
	"time"
)

// CacheConfig controls response caching.
type CacheConfig struct {
	Enabled    bool
	TTL        time.Duration
	MaxEntries int
}

type cacheEntry struct {
	recs      []Recommendation
	expiresAt time.Time
}

// responseCache is a small TTL cache for recommendation responses.
// Entries are evicted lazily on access and wholesale when full.
type responseCache struct {
	cfg     CacheConfig
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newResponseCache(cfg CacheConfig) *responseCache {
	return &responseCache{
		cfg:     cfg,
		entries: make(map[string]cacheEntry),
	}
}

func (c *responseCache) get(key string) ([]Recommendation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.recs, true
}

func (c *responseCache) put(key string, recs []Recommendation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictExpiredLocked()
		// still full after expiry sweep: drop everything rather than
		// track LRU order for a cache this small
		if len(c.entries) >= c.cfg.MaxEntries {
			c.entries = make(map[string]cacheEntry)
		}
	}
	c.entries[key] = cacheEntry{
		recs:      recs,
		expiresAt: time.Now().Add(c.cfg.TTL),
	}
}

func (c *responseCache) evictExpiredLocked() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *responseCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
