package engine

import (
	"context"
	"time"

	"github.com/asuman/agent-memory/internal/events"
	"github.com/asuman/agent-memory/internal/fuse"
	"github.com/asuman/agent-memory/internal/recallcache"
	"github.com/asuman/agent-memory/internal/rerank"
	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/internal/trigger"
	"github.com/asuman/agent-memory/pkg/types"
)

// RecallRequest is the input to Recall.
type RecallRequest struct {
	Agent     string
	Namespace string
	Query     string
	Limit     int
	Filter    storage.Filter
	// Force bypasses TriggerScorer gating, for the /v1/search debug route.
	Force bool
}

// RecallOutcome is everything the HTTP adapter needs to render a response.
type RecallOutcome struct {
	Results    []*types.RecallResult
	Triggered  bool
	SearchMode types.SearchMode
	Degraded   bool
	Cached     bool
}

// Recall runs the full pipeline: Normalizer -> TriggerScorer -> (cache
// lookup) -> CandidateGen -> Fuser -> Reranker primary -> MMR -> cache
// fill, then kicks off an async secondary rerank pass that rewrites the
// cache entry via compare-and-swap. A deadline (default 2s) bounds the
// whole call; on expiry the best partial ranking assembled so far is
// returned with Degraded=true, matching the cancellation policy for recall
// requests.
func (e *Engine) Recall(ctx context.Context, req RecallRequest) (RecallOutcome, error) {
	normalized, err := e.normalizer.Normalize(req.Query)
	if err != nil {
		return RecallOutcome{}, &Error{Kind: KindValidation, Err: err}
	}

	triggered := req.Force || trigger.ShouldTrigger(req.Query)
	if !triggered {
		return RecallOutcome{Triggered: false, SearchMode: types.SearchModeFull}, nil
	}

	deadlineMS := e.cfg.Search.RecallDeadlineMS
	if deadlineMS <= 0 {
		deadlineMS = 2000
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(deadlineMS)*time.Millisecond)
	defer cancel()

	filter := req.Filter
	filter.Agent = req.Agent
	if filter.Namespace == "" {
		filter.Namespace = req.Namespace
	}

	key := recallcache.Key{
		Agent:           req.Agent,
		Namespace:       req.Namespace,
		NormalizedQuery: normalized.Text,
		FilterHash:      recallcache.FingerprintFilter(filter),
	}
	if snap, ok := e.cache.Get(key); ok {
		if e.metrics != nil {
			e.metrics.RecordCacheHit()
		}
		results := truncate(snap.Results, req.Limit)
		if store, storeErr := e.store(req.Agent); storeErr == nil {
			e.reinforceAccessed(ctx, store, req.Agent, results)
		}
		return RecallOutcome{Results: results, Triggered: true, SearchMode: snap.SearchMode, Cached: true}, nil
	}
	if e.metrics != nil {
		e.metrics.RecordCacheMiss()
	}

	store, err := e.store(req.Agent)
	if err != nil {
		return RecallOutcome{}, &Error{Kind: KindValidation, Err: err}
	}

	start := time.Now()
	genResult, err := e.candidates.Generate(ctx, store, req.Query, normalized.Text, filter)
	e.recordStage("candidate", start)
	if err != nil {
		return RecallOutcome{}, &Error{Kind: KindStore, Err: err, Retryable: true}
	}

	degraded := genResult.SearchMode != types.SearchModeFull || ctx.Err() != nil

	start = time.Now()
	fused := fuse.Fuse(genResult.Candidates, e.cfg.Search, genResult.SearchMode)
	e.recordStage("fuse", start)

	ranked := fused
	if e.reranker != nil && ctx.Err() == nil {
		start = time.Now()
		ranked, err = e.reranker.Primary(ctx, req.Query, fused)
		e.recordStage("rerank_primary", start)
		if err != nil {
			ranked = fused
			degraded = true
		}
		ranked = rerank.MMR(ranked, e.mmrLambda())
	}

	ranked = truncate(ranked, req.Limit)
	version := e.cache.Set(key, ranked, genResult.SearchMode)

	if e.reranker != nil {
		go e.secondaryRerank(req, key, version, ranked)
	}

	e.reinforceAccessed(ctx, store, req.Agent, ranked)

	return RecallOutcome{
		Results:    ranked,
		Triggered:  true,
		SearchMode: genResult.SearchMode,
		Degraded:   degraded,
	}, nil
}

// secondaryRerank runs the higher-quality background pass and rewrites the
// cache entry only if it is still the same version (compare-and-set), so a
// stale write never resurrects an evicted or superseded key.
func (e *Engine) secondaryRerank(req RecallRequest, key recallcache.Key, version uint64, primary []*types.RecallResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	refreshed, err := e.reranker.Secondary(ctx, req.Query, primary)
	if err != nil {
		return
	}
	refreshed = rerank.MMR(refreshed, e.mmrLambda())
	if e.cache.CompareAndSwap(key, version, refreshed) {
		e.publish(events.EventRerankSecondaryComplete, req.Agent, map[string]interface{}{
			"query": req.Query,
		})
	}
}

// reinforceAccessed bumps access_count and last_accessed_at for every memory
// that surfaced in a successful recall's top-K, best-effort: a store error
// for one result does not block reinforcing the rest or fail the recall
// itself, since this is bookkeeping for later GC eligibility, not part of
// the result the caller is waiting on.
func (e *Engine) reinforceAccessed(ctx context.Context, store storage.Store, agent string, results []*types.RecallResult) {
	now := e.now().Unix()
	for _, r := range results {
		if r.Memory == nil {
			continue
		}
		accessCount := r.Memory.AccessCount + 1
		patch := storage.Patch{AccessCount: &accessCount, LastAccessedAt: &now}
		if err := store.UpdateFields(ctx, agent, r.Memory.ID, patch); err != nil {
			continue
		}
		r.Memory.AccessCount = accessCount
		r.Memory.LastAccessedAt = time.Unix(now, 0).UTC()
	}
}

func (e *Engine) mmrLambda() float64 {
	if e.cfg.Reranker.MMRLambda <= 0 {
		return 0.7
	}
	return e.cfg.Reranker.MMRLambda
}

func truncate(results []*types.RecallResult, limit int) []*types.RecallResult {
	if limit <= 0 || limit >= len(results) {
		return results
	}
	return results[:limit]
}
