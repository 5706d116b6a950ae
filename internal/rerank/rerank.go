// Package rerank implements the two-pass Reranker: a fast inline primary
// pass, an optional background secondary pass that rewrites the cache entry
// it ran against, and an MMR diversity post-pass.
package rerank

import (
	"context"
	"math"
	"sort"

	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/pkg/types"
)

// Reranker holds the two cross-encoder slots and the weights/budgets that
// combine their output with the fused score.
type Reranker struct {
	primary   CrossEncoder
	secondary CrossEncoder
	cfg       config.RerankerConfig
}

// New builds a Reranker. Either encoder may be NullCrossEncoder{} to
// disable that pass without special-casing call sites.
func New(primary, secondary CrossEncoder, cfg config.RerankerConfig) *Reranker {
	return &Reranker{primary: primary, secondary: secondary, cfg: cfg}
}

// NewFromPreset builds the primary/secondary encoder pair for a named
// preset: "balanced" uses the heuristic scorer for the primary pass only;
// "quality" adds an HTTP cross-encoder as the secondary pass. Any other
// name (including "") disables both passes via NullCrossEncoder.
func NewFromPreset(preset string, httpCfg HTTPCrossEncoderConfig, cfg config.RerankerConfig) *Reranker {
	switch preset {
	case "balanced":
		return New(HeuristicCrossEncoder{}, NullCrossEncoder{}, cfg)
	case "quality":
		return New(HeuristicCrossEncoder{}, NewHTTPCrossEncoder(httpCfg), cfg)
	default:
		return New(NullCrossEncoder{}, NullCrossEncoder{}, cfg)
	}
}

// Primary runs the inline rerank pass over the top PrimaryTopK of fused
// (already sorted descending by fused score). It reorders fused in place
// and returns it. If reranking is disabled, the scorer is unavailable, or
// the top-2 gap already exceeds the configured confidence threshold, fused
// is returned unchanged, with its tiers left as they were.
func (r *Reranker) Primary(ctx context.Context, query string, fused []*types.RecallResult) ([]*types.RecallResult, error) {
	if !r.cfg.PrimaryEnabled || len(fused) == 0 {
		return fused, nil
	}
	if len(fused) >= 2 {
		gap := fused[0].Score - fused[1].Score
		if gap > r.cfg.ConfidentGapSkip {
			return fused, nil
		}
	}

	topK := r.cfg.PrimaryTopK
	if topK <= 0 {
		topK = 10
	}
	if topK > len(fused) {
		topK = len(fused)
	}
	head := fused[:topK]

	maxChars := r.cfg.PrimaryMaxChars
	if maxChars <= 0 {
		maxChars = 600
	}
	docs := make([]string, len(head))
	for i, rr := range head {
		docs[i] = truncateChars(rr.Memory.Text, maxChars)
	}

	scores, err := r.primary.Score(ctx, query, docs)
	if err != nil || len(scores) != len(head) {
		return fused, nil
	}

	w := r.cfg.PrimaryWeight
	for i, rr := range head {
		s := scores[i]
		final := (1-w)*rr.Score + w*s
		rr.RerankPrimary = &s
		rr.Score = final
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	for _, rr := range fused {
		rr.ConfidenceTier = types.TierForScore(rr.Score)
	}
	return fused, nil
}

func truncateChars(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Secondary runs the background pass over the top SecondaryTopK of ranked
// (post-primary order) and returns the re-sorted slice. Callers are
// expected to run this asynchronously and feed the result to RecallCache's
// compare-and-set refresh, not to block a live recall response on it.
func (r *Reranker) Secondary(ctx context.Context, query string, ranked []*types.RecallResult) ([]*types.RecallResult, error) {
	if !r.cfg.SecondaryEnabled || len(ranked) == 0 {
		return ranked, nil
	}

	topK := r.cfg.SecondaryTopK
	if topK <= 0 {
		topK = 3
	}
	if topK > len(ranked) {
		topK = len(ranked)
	}
	head := ranked[:topK]

	docs := make([]string, len(head))
	for i, rr := range head {
		docs[i] = rr.Memory.Text
	}

	scores, err := r.secondary.Score(ctx, query, docs)
	if err != nil || len(scores) != len(head) {
		return ranked, nil
	}

	w := r.cfg.SecondaryWeight
	for i, rr := range head {
		s := scores[i]
		rr.RerankSecondary = &s
		rr.Score = (1-w)*rr.Score + w*s
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	for _, rr := range ranked {
		rr.ConfidenceTier = types.TierForScore(rr.Score)
	}
	return ranked, nil
}

// MMR re-orders ranked by Maximal Marginal Relevance over each result's
// stored embedding, trading off relevance (the existing Score) against
// redundancy with results already selected. Results with no embedding
// (embedding_status != present) are kept in their existing relative
// position at the end, since MMR has nothing to diversify them against.
func MMR(ranked []*types.RecallResult, lambda float64) []*types.RecallResult {
	if len(ranked) <= 1 {
		return ranked
	}

	var withVec, withoutVec []*types.RecallResult
	for _, r := range ranked {
		if len(r.Memory.Embedding) > 0 {
			withVec = append(withVec, r)
		} else {
			withoutVec = append(withoutVec, r)
		}
	}
	if len(withVec) <= 1 {
		return ranked
	}

	selected := make([]*types.RecallResult, 0, len(withVec))
	remaining := append([]*types.RecallResult{}, withVec...)

	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(remaining) > 0 {
		bestIdx, bestScore := -1, math.Inf(-1)
		for i, cand := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				sim := cosineSimilarity(cand.Memory.Embedding, s.Memory.Embedding)
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmrScore := lambda*cand.Score - (1-lambda)*maxSim
			if mmrScore > bestScore {
				bestScore, bestIdx = mmrScore, i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return append(selected, withoutVec...)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
