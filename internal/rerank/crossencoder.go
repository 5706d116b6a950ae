package rerank

import (
	"context"
	"strings"
)

// CrossEncoder scores each of docs against query, returning one relevance
// score per doc in the same order. Both the primary and secondary rerank
// passes are expressed against this one capability interface so the core
// never depends on a specific model artifact.
type CrossEncoder interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// NullCrossEncoder reports itself unavailable so callers fall back to the
// fused order unchanged; it is the zero-configuration default.
type NullCrossEncoder struct{}

// Score implements CrossEncoder by declining to score anything.
func (NullCrossEncoder) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	return nil, nil
}

// HeuristicCrossEncoder is a dependency-free stand-in for a real model: a
// token-overlap (Jaccard-style) similarity between the query and each doc.
// Good enough to exercise the reranking pipeline end to end without an
// external scoring service.
type HeuristicCrossEncoder struct{}

// Score implements CrossEncoder.
func (HeuristicCrossEncoder) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	qTokens := tokenSet(query)
	scores := make([]float64, len(docs))
	for i, d := range docs {
		dTokens := tokenSet(d)
		scores[i] = jaccard(qTokens, dTokens)
	}
	return scores, nil
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersect := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersect++
		}
	}
	union := len(a) + len(b) - intersect
	if union == 0 {
		return 0
	}
	return float64(intersect) / float64(union)
}
