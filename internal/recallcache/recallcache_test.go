package recallcache

import (
	"testing"
	"time"

	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

func newTestCache(at time.Time, ttl time.Duration) *Cache {
	c := New(ttl)
	c.now = func() time.Time { return at }
	return c
}

func TestSetThenGet_ReturnsStoredResults(t *testing.T) {
	now := time.Now()
	c := newTestCache(now, time.Minute)
	key := Key{Agent: "a", NormalizedQuery: "dark mode"}
	results := []*types.RecallResult{{Memory: &types.Memory{ID: "m1"}}}

	c.Set(key, results, types.SearchModeFull)
	snap, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(snap.Results) != 1 || snap.Results[0].Memory.ID != "m1" {
		t.Errorf("unexpected results: %+v", snap.Results)
	}
	if snap.SearchMode != types.SearchModeFull {
		t.Errorf("SearchMode = %v, want full", snap.SearchMode)
	}
}

func TestGet_MissingKeyIsMiss(t *testing.T) {
	c := New(time.Minute)
	if _, ok := c.Get(Key{Agent: "nope"}); ok {
		t.Error("expected cache miss for unknown key")
	}
}

func TestGet_ExpiredEntryIsMiss(t *testing.T) {
	now := time.Now()
	c := newTestCache(now, 10*time.Second)
	key := Key{Agent: "a"}
	c.Set(key, nil, types.SearchModeFull)

	c.now = func() time.Time { return now.Add(11 * time.Second) }
	if _, ok := c.Get(key); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestCompareAndSwap_AppliesWhenVersionMatches(t *testing.T) {
	c := New(time.Minute)
	key := Key{Agent: "a"}
	version := c.Set(key, []*types.RecallResult{{Memory: &types.Memory{ID: "old"}}}, types.SearchModeFull)

	refreshed := []*types.RecallResult{{Memory: &types.Memory{ID: "new"}}}
	if !c.CompareAndSwap(key, version, refreshed) {
		t.Fatal("expected CompareAndSwap to succeed")
	}
	snap, ok := c.Get(key)
	if !ok || snap.Results[0].Memory.ID != "new" {
		t.Errorf("expected refreshed results, got %+v", snap.Results)
	}
}

func TestCompareAndSwap_RejectsStaleVersion(t *testing.T) {
	c := New(time.Minute)
	key := Key{Agent: "a"}
	version := c.Set(key, []*types.RecallResult{{Memory: &types.Memory{ID: "v1"}}}, types.SearchModeFull)
	c.Set(key, []*types.RecallResult{{Memory: &types.Memory{ID: "v2"}}}, types.SearchModeFull) // a newer query replaces the entry

	if c.CompareAndSwap(key, version, []*types.RecallResult{{Memory: &types.Memory{ID: "stale-refresh"}}}) {
		t.Error("expected CompareAndSwap against a stale version to fail")
	}
	snap, _ := c.Get(key)
	if snap.Results[0].Memory.ID != "v2" {
		t.Errorf("expected v2 to survive the rejected swap, got %q", snap.Results[0].Memory.ID)
	}
}

func TestCompareAndSwap_RejectsEvictedKey(t *testing.T) {
	c := New(time.Minute)
	key := Key{Agent: "a"}
	version := c.Set(key, nil, types.SearchModeFull)
	c.Delete(key)

	if c.CompareAndSwap(key, version, []*types.RecallResult{{Memory: &types.Memory{ID: "x"}}}) {
		t.Error("expected CompareAndSwap against an evicted key to fail")
	}
}

func TestFingerprintFilter_StableForEqualFilters(t *testing.T) {
	a := int64(100)
	b := int64(100)
	f1 := storage.Filter{Category: types.CategoryFact, MinImportance: 0.5, TimeRangeStart: &a}
	f2 := storage.Filter{Category: types.CategoryFact, MinImportance: 0.5, TimeRangeStart: &b}
	if FingerprintFilter(f1) != FingerprintFilter(f2) {
		t.Error("expected equal filter contents to fingerprint identically regardless of pointer identity")
	}
}

func TestFingerprintFilter_DiffersForDifferentFilters(t *testing.T) {
	f1 := storage.Filter{Category: types.CategoryFact}
	f2 := storage.Filter{Category: types.CategoryRule}
	if FingerprintFilter(f1) == FingerprintFilter(f2) {
		t.Error("expected different categories to fingerprint differently")
	}
}
