package fuse

import (
	"testing"

	"github.com/asuman/agent-memory/internal/candidate"
	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/pkg/types"
)

func defaultWeights() config.SearchConfig {
	return config.SearchConfig{
		WeightSemantic:   0.50,
		WeightKeyword:    0.25,
		WeightRecency:    0.10,
		WeightStrength:   0.07,
		WeightImportance: 0.08,
		KFuse:            20,
	}
}

func TestFuse_TopSemanticAndLexicalWinsOverall(t *testing.T) {
	cands := []candidate.Candidate{
		{Memory: &types.Memory{ID: "best"}, SemanticScore: 0.95, SemanticPresent: true, LexicalScore: 0.9, LexicalPresent: true, RecencyScore: 0.5, StrengthScore: 0.5, ImportanceScore: 0.5},
		{Memory: &types.Memory{ID: "weak"}, SemanticScore: 0.1, SemanticPresent: true, LexicalScore: 0.1, LexicalPresent: true, RecencyScore: 0.5, StrengthScore: 0.5, ImportanceScore: 0.5},
	}
	out := Fuse(cands, defaultWeights(), types.SearchModeFull)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].Memory.ID != "best" {
		t.Errorf("top result = %q, want best", out[0].Memory.ID)
	}
}

func TestFuse_MissingLayerContributesZero(t *testing.T) {
	cands := []candidate.Candidate{
		{Memory: &types.Memory{ID: "lexical-only"}, SemanticPresent: false, LexicalScore: 1.0, LexicalPresent: true, RecencyScore: 0.2, StrengthScore: 0.2, ImportanceScore: 0.2},
	}
	out := Fuse(cands, defaultWeights(), types.SearchModeDegradedNoVector)
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	// With semantic absent, its contribution must be 0: the fused score is
	// bounded by the sum of the other four layers' max possible terms.
	maxNonSemantic := 0.25/61.0 + 0.10/61.0 + 0.07/61.0 + 0.08/61.0
	if out[0].Score > maxNonSemantic+1e-9 {
		t.Errorf("Score = %v, want <= %v (semantic absent)", out[0].Score, maxNonSemantic)
	}
}

func TestFuse_RespectsKFuseLimit(t *testing.T) {
	cands := make([]candidate.Candidate, 5)
	for i := range cands {
		cands[i] = candidate.Candidate{
			Memory: &types.Memory{ID: string(rune('a' + i))},
			SemanticScore: float64(i) / 10, SemanticPresent: true,
			RecencyScore: 0.5, StrengthScore: 0.5, ImportanceScore: 0.5,
		}
	}
	weights := defaultWeights()
	weights.KFuse = 2
	out := Fuse(cands, weights, types.SearchModeFull)
	if len(out) != 2 {
		t.Fatalf("expected 2 results with KFuse=2, got %d", len(out))
	}
}

func TestFuse_AssignsConfidenceTier(t *testing.T) {
	cands := []candidate.Candidate{
		{Memory: &types.Memory{ID: "a"}, SemanticScore: 1.0, SemanticPresent: true, LexicalScore: 1.0, LexicalPresent: true, RecencyScore: 1.0, StrengthScore: 1.0, ImportanceScore: 1.0},
	}
	out := Fuse(cands, defaultWeights(), types.SearchModeFull)
	if out[0].ConfidenceTier == "" {
		t.Errorf("expected a confidence tier to be assigned")
	}
}

func TestFuse_EmptyInputReturnsNil(t *testing.T) {
	if out := Fuse(nil, defaultWeights(), types.SearchModeFull); out != nil {
		t.Errorf("expected nil for empty input, got %v", out)
	}
}
