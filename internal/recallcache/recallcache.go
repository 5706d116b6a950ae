// Package recallcache implements RecallCache: a short-lived, per-query
// cache of ranked recall results that the secondary (background) rerank
// pass rewrites in place once it finishes.
package recallcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

// DefaultTTL is the spec's default cache lifetime for a recall entry.
const DefaultTTL = 60 * time.Second

// Key identifies one cached recall: the same (agent, namespace, query,
// filter) tuple must always hash to the same Key so a repeated query hits
// the cache.
type Key struct {
	Agent           string
	Namespace       string
	NormalizedQuery string
	FilterHash      string
}

// FingerprintFilter hashes the parts of a Filter that affect result
// identity, so two semantically-equal filters collide to the same key
// regardless of field order or zero-value defaults.
func FingerprintFilter(f storage.Filter) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%v\x00%v\x00%s\x00%s\x00",
		f.Category, f.IncludeSoftDeleted, f.MinImportance, formatTimePtr(f.TimeRangeStart), formatTimePtr(f.TimeRangeEnd))
	return hex.EncodeToString(h.Sum(nil))
}

func formatTimePtr(p *int64) string {
	if p == nil {
		return "nil"
	}
	return fmt.Sprintf("%d", *p)
}

// entry is the cache's internal record. version increments on every Set or
// successful CompareAndSwap so a background writer can detect whether the
// key it is about to update still refers to the same logical entry.
type entry struct {
	results    []*types.RecallResult
	searchMode types.SearchMode
	createdAt  time.Time
	version    uint64
}

// Snapshot is the read-only view returned by Get: the cached results, their
// search mode, and the version stamp a caller
// must present to CompareAndSwap a later refresh.
type Snapshot struct {
	Results    []*types.RecallResult
	SearchMode types.SearchMode
	Version    uint64
}

// Cache is a TTL-bounded, compare-and-set-updatable map of recall results.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[Key]*entry
	now     func() time.Time
}

// New builds a Cache with the given TTL (DefaultTTL if ttl <= 0).
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, entries: make(map[Key]*entry), now: time.Now}
}

// Get returns the cached entry for key if present and not expired.
func (c *Cache) Get(key Key) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return Snapshot{}, false
	}
	if c.now().Sub(e.createdAt) > c.ttl {
		return Snapshot{}, false
	}
	return Snapshot{Results: e.results, SearchMode: e.searchMode, Version: e.version}, true
}

// Set stores results under key, replacing any prior entry outright (a fresh
// query result, not a background refresh), and returns the new version
// stamp for a caller that wants to schedule a background refresh against it.
func (c *Cache) Set(key Key, results []*types.RecallResult, mode types.SearchMode) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := &entry{results: results, searchMode: mode, createdAt: c.now(), version: 1}
	if old, ok := c.entries[key]; ok {
		e.version = old.version + 1
	}
	c.entries[key] = e
	return e.version
}

// CompareAndSwap overwrites the results under key with refreshed (the
// secondary reranker's output) only if the entry is still present and its
// version matches expectedVersion — i.e. no newer query has replaced it and
// no other background writer has already applied its own refresh. The TTL
// clock (createdAt) is left untouched: a refresh extends quality, not
// lifetime. Returns whether the swap applied.
func (c *Cache) CompareAndSwap(key Key, expectedVersion uint64, refreshed []*types.RecallResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.version != expectedVersion {
		return false
	}
	e.results = refreshed
	e.version++
	return true
}

// Delete removes key outright, e.g. after a write invalidates it.
func (c *Cache) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of live entries, expired or not (used by
// MetricsHub; callers that care about freshness should call Get).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
