package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/pkg/types"
)

func TestGC_SoftDeletesWeakStaleUnaccessedMemory(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.put(&types.Memory{
		ID: "stale", Agent: "a", Strength: 0.05, AccessCount: 0,
		CreatedAt: now.Add(-100 * 24 * time.Hour),
	})

	l := New(config.LifecycleConfig{WeakStrength: 0.1, StaleAgeDays: 90})
	l.now = fixedNow(now)

	report, err := l.GC(context.Background(), store, "a")
	if err != nil {
		t.Fatalf("GC() error: %v", err)
	}
	if report.SoftDeleted != 1 {
		t.Fatalf("report = %+v, want 1 soft-deleted", report)
	}
	if store.memories["stale"].SoftDeletedAt == nil {
		t.Errorf("expected stale memory to be soft-deleted")
	}
}

func TestGC_KeepsPinnedRegardlessOfStrength(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.put(&types.Memory{
		ID: "pinned", Agent: "a", Strength: 0.01, AccessCount: 0, Pinned: true,
		CreatedAt: now.Add(-365 * 24 * time.Hour),
	})

	l := New(config.LifecycleConfig{})
	l.now = fixedNow(now)

	report, err := l.GC(context.Background(), store, "a")
	if err != nil {
		t.Fatalf("GC() error: %v", err)
	}
	if report.SoftDeleted != 0 {
		t.Errorf("pinned memory should never be soft-deleted, report = %+v", report)
	}
}

func TestGC_HardPurgesPastRetentionWindow(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deletedAt := now.Add(-31 * 24 * time.Hour)
	store.put(&types.Memory{
		ID: "old_soft_deleted", Agent: "a", SoftDeletedAt: &deletedAt,
	})

	l := New(config.LifecycleConfig{HardPurgeDays: 30})
	l.now = fixedNow(now)

	report, err := l.GC(context.Background(), store, "a")
	if err != nil {
		t.Fatalf("GC() error: %v", err)
	}
	if report.HardPurged != 1 {
		t.Fatalf("report = %+v, want 1 hard-purged", report)
	}
	if _, ok := store.memories["old_soft_deleted"]; ok {
		t.Errorf("expected hard-purged memory to be removed from store")
	}
}

func TestGC_KeepsRecentlySoftDeleted(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deletedAt := now.Add(-5 * 24 * time.Hour)
	store.put(&types.Memory{
		ID: "recent_soft_deleted", Agent: "a", SoftDeletedAt: &deletedAt,
	})

	l := New(config.LifecycleConfig{HardPurgeDays: 30})
	l.now = fixedNow(now)

	report, err := l.GC(context.Background(), store, "a")
	if err != nil {
		t.Fatalf("GC() error: %v", err)
	}
	if report.HardPurged != 0 {
		t.Errorf("report = %+v, want 0 hard-purged within retention window", report)
	}
}
