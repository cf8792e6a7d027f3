// Package router implements the Agent Router (spec.md §4.1): it scores
// every configured agent against an incoming query's keywords, cost, and
// (optionally) semantic similarity, and caches the decision so repeat
// queries skip re-scoring.
package router

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/Miles0sage/agentgate/core"
)

// cacheItem holds one cached RoutingDecision alongside its expiry.
type cacheItem struct {
	decision  core.RoutingDecision
	expiresAt time.Time
}

// DecisionCache is a SHA-256-hash-keyed TTL cache for routing decisions,
// adapted from the teacher's pkg/routing.SimpleCache. The cache key folds
// in an agent-set version that Clear increments, so a decision computed
// before a Clear is never served after it.
type DecisionCache struct {
	mu              sync.RWMutex
	items           map[string]*cacheItem
	maxSize         int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	agentSetVersion uint64

	hits   uint64
	misses uint64
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Size    int
	HitRate float64
}

// NewDecisionCache builds a cache with a background cleanup goroutine that
// evicts expired entries every cleanupInterval.
func NewDecisionCache(maxSize int, cleanupInterval time.Duration) *DecisionCache {
	c := &DecisionCache{
		items:           make(map[string]*cacheItem),
		maxSize:         maxSize,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go c.cleanupRoutine()
	return c
}

// Get returns the cached decision for a query, if present and unexpired
// and computed against the current agent-set version.
func (c *DecisionCache) Get(query string) (core.RoutingDecision, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := c.hashKey(query)
	item, found := c.items[key]
	if !found || time.Now().After(item.expiresAt) {
		c.misses++
		return core.RoutingDecision{}, false
	}
	c.hits++
	decision := item.decision
	decision.Cached = true
	return decision, true
}

// Set stores a decision under a 300s-class TTL.
func (c *DecisionCache) Set(query string, decision core.RoutingDecision, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.maxSize {
		c.evictExpiredLocked()
		if len(c.items) >= c.maxSize {
			c.evictOldestLocked()
		}
	}

	key := c.hashKey(query)
	c.items[key] = &cacheItem{decision: decision, expiresAt: time.Now().Add(ttl)}
}

// Clear empties the cache, e.g. when the agent roster is reloaded.
func (c *DecisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheItem)
	c.agentSetVersion++
}

// Stats returns a snapshot of hit/miss counters.
func (c *DecisionCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{Hits: c.hits, Misses: c.misses, Size: len(c.items), HitRate: rate}
}

// Stop terminates the background cleanup goroutine.
func (c *DecisionCache) Stop() {
	close(c.stopCleanup)
}

// hashKey is called by Get and Set with c.mu already held.
func (c *DecisionCache) hashKey(query string) string {
	version := c.agentSetVersion
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{byte(version)})
	return hex.EncodeToString(h.Sum(nil))
}

func (c *DecisionCache) evictExpiredLocked() {
	now := time.Now()
	for k, v := range c.items {
		if now.After(v.expiresAt) {
			delete(c.items, k)
		}
	}
}

func (c *DecisionCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, v := range c.items {
		if oldestKey == "" || v.expiresAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = v.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

func (c *DecisionCache) cleanupRoutine() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.evictExpiredLocked()
			c.mu.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}
