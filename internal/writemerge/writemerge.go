// Package writemerge implements WriteMerge: the write-time decision between
// inserting a new memory and reinforcing an existing near-duplicate.
package writemerge

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

// Action reports which path Write took, for callers that want to log or
// surface it (e.g. EventHub's memory.captured payload).
type Action string

const (
	ActionInserted   Action = "inserted"
	ActionReinforced Action = "reinforced"
	ActionSuperseded Action = "superseded"
)

// Embedder is the subset of *embedder.Embedder WriteMerge depends on.
type Embedder interface {
	EmbedForWrite(ctx context.Context, store storage.Store, text string) ([]float32, error)
}

// Result describes what Write did to m.
type Result struct {
	Action    Action
	MemoryID  string // the id that now holds the canonical record
	MatchedID string // set for Reinforced/Superseded: the pre-existing record involved
}

// WriteMerger is the single entry point ingest calls instead of
// Store.Insert directly, so every write goes through the dedup/merge
// decision uniformly.
type WriteMerger struct {
	embedder  Embedder
	detector  ConflictDetector
	lifecycle config.LifecycleConfig
	now       func() time.Time
}

// New builds a WriteMerger. detector may be nil, in which case rule/
// preference matches are always treated as a reinforcement (never
// superseded) since there is nothing to check them against.
func New(embedder Embedder, detector ConflictDetector, lifecycle config.LifecycleConfig) *WriteMerger {
	return &WriteMerger{embedder: embedder, detector: detector, lifecycle: lifecycle, now: time.Now}
}

// Write embeds m (if not already embedded), finds its nearest neighbor
// within the same (agent, namespace), and either reinforces that neighbor,
// supersedes it, or inserts m as a new record.
//
// The whole decide-then-apply sequence runs synchronously against one
// Store from the calling goroutine without yielding, so it never overlaps
// with another write to the same agent: Store's single-writer contract
// (see internal/storage) is what keeps a concurrent reader from observing
// a half-applied merge, not a separate cross-call transaction handle.
func (w *WriteMerger) Write(ctx context.Context, store storage.Store, m *types.Memory) (Result, error) {
	if len(m.Embedding) == 0 {
		vec, err := w.embedder.EmbedForWrite(ctx, store, m.Text)
		if err != nil {
			return Result{}, fmt.Errorf("writemerge: embed: %w", err)
		}
		if vec != nil {
			m.Embedding = vec
			m.EmbeddingStatus = types.EmbeddingPresent
		} else {
			m.EmbeddingStatus = types.EmbeddingFailed
		}
	}

	threshold := w.lifecycle.MergeThreshold
	if threshold <= 0 {
		threshold = 0.85
	}

	if len(m.Embedding) > 0 {
		filter := storage.Filter{Agent: m.Agent, Namespace: m.Namespace}
		neighbors, err := store.VectorTopK(ctx, m.Embedding, 1, filter)
		if err == nil && len(neighbors) > 0 {
			sim := 1 - neighbors[0].Score
			if sim >= threshold {
				existing, err := store.Get(ctx, m.Agent, neighbors[0].ID)
				if err == nil && existing.SupersededBy == "" {
					return w.applyMatch(ctx, store, existing, m)
				}
			}
		}
	}

	if err := store.Insert(ctx, m); err != nil {
		return Result{}, fmt.Errorf("writemerge: insert: %w", err)
	}
	return Result{Action: ActionInserted, MemoryID: m.ID}, nil
}

func (w *WriteMerger) applyMatch(ctx context.Context, store storage.Store, existing, incoming *types.Memory) (Result, error) {
	isExclusiveCategory := existing.Category == types.CategoryRule || existing.Category == types.CategoryPreference
	if isExclusiveCategory && w.detector != nil && w.detector.Conflicts(existing.Text, incoming.Text) {
		if err := store.Insert(ctx, incoming); err != nil {
			return Result{}, fmt.Errorf("writemerge: insert superseding record: %w", err)
		}
		now := w.now().Unix()
		patch := storage.Patch{SoftDeletedAt: &now, SupersededBy: &incoming.ID}
		if err := store.UpdateFields(ctx, existing.Agent, existing.ID, patch); err != nil {
			return Result{}, fmt.Errorf("writemerge: mark superseded: %w", err)
		}
		return Result{Action: ActionSuperseded, MemoryID: incoming.ID, MatchedID: existing.ID}, nil
	}

	return w.reinforce(ctx, store, existing, incoming)
}

func (w *WriteMerger) reinforce(ctx context.Context, store storage.Store, existing, incoming *types.Memory) (Result, error) {
	delta := w.lifecycle.ReinforceDelta
	if delta <= 0 {
		delta = 0.1
	}
	strength := math.Min(1, existing.Strength+delta)
	importance := math.Max(existing.Importance, incoming.Importance)
	nowUnix := w.now().Unix()
	reinforceCount := existing.ReinforceCount + 1
	provenance := existing.Provenance
	if incoming.Provenance != "" {
		if provenance != "" {
			provenance += ";" + incoming.Provenance
		} else {
			provenance = incoming.Provenance
		}
	}

	patch := storage.Patch{
		Strength:         &strength,
		Importance:       &importance,
		LastReinforcedAt: &nowUnix,
		ReinforceCount:   &reinforceCount,
		Provenance:       &provenance,
	}
	if err := store.UpdateFields(ctx, existing.Agent, existing.ID, patch); err != nil {
		return Result{}, fmt.Errorf("writemerge: reinforce: %w", err)
	}
	return Result{Action: ActionReinforced, MemoryID: existing.ID, MatchedID: existing.ID}, nil
}
