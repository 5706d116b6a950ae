// Package fuse implements the Fuser: Reciprocal Rank Fusion over the
// CandidateGen layers into a single ranked list.
package fuse

import (
	"sort"

	"github.com/asuman/agent-memory/internal/candidate"
	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/pkg/types"
)

// rrfK is RRF's rank-damping constant. Fixed by the fusion formula, not a
// tunable weight like the per-layer weights in config.SearchConfig.
const rrfK = 60

// Fuse ranks cands by Reciprocal Rank Fusion across the five CandidateGen
// layers and returns the top KFuse (or all candidates if fewer), each
// carrying its layer scores and fused Score. searchMode is copied onto
// every result unchanged; Fuse only combines scores, it does not second-guess
// which layers ran.
func Fuse(cands []candidate.Candidate, weights config.SearchConfig, searchMode types.SearchMode) []*types.RecallResult {
	n := len(cands)
	if n == 0 {
		return nil
	}

	semRanks := rankBy(cands, func(c candidate.Candidate) (float64, bool) { return c.SemanticScore, c.SemanticPresent })
	lexRanks := rankBy(cands, func(c candidate.Candidate) (float64, bool) { return c.LexicalScore, c.LexicalPresent })
	recRanks := rankBy(cands, func(c candidate.Candidate) (float64, bool) { return c.RecencyScore, true })
	strRanks := rankBy(cands, func(c candidate.Candidate) (float64, bool) { return c.StrengthScore, true })
	impRanks := rankBy(cands, func(c candidate.Candidate) (float64, bool) { return c.ImportanceScore, true })

	wSem := weights.WeightSemantic
	wLex := weights.WeightKeyword
	wRec := weights.WeightRecency
	wStr := weights.WeightStrength
	wImp := weights.WeightImportance

	out := make([]*types.RecallResult, 0, n)
	for i, c := range cands {
		fused := contribution(wSem, semRanks[i]) +
			contribution(wLex, lexRanks[i]) +
			contribution(wRec, recRanks[i]) +
			contribution(wStr, strRanks[i]) +
			contribution(wImp, impRanks[i])

		out = append(out, &types.RecallResult{
			Memory:          c.Memory,
			SemanticScore:   c.SemanticScore,
			LexicalScore:    c.LexicalScore,
			RecencyScore:    c.RecencyScore,
			StrengthScore:   c.StrengthScore,
			ImportanceScore: c.ImportanceScore,
			Score:           fused,
			SearchMode:      searchMode,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	k := weights.KFuse
	if k <= 0 {
		k = 20
	}
	if k < len(out) {
		out = out[:k]
	}
	for _, r := range out {
		r.ConfidenceTier = types.TierForScore(r.Score)
	}
	return out
}

// contribution implements a single layer's RRF term: w/(k+rank), or 0 when
// rank is 0 (the candidate was absent from that layer's ranking).
func contribution(weight float64, rank int) float64 {
	if rank == 0 {
		return 0
	}
	return weight / float64(rrfK+rank)
}

// rankBy returns, for each candidate in order, its 1-based descending rank
// within the subset where present is true, or 0 if present is false.
func rankBy(cands []candidate.Candidate, score func(candidate.Candidate) (float64, bool)) []int {
	type entry struct {
		idx   int
		score float64
	}
	entries := make([]entry, 0, len(cands))
	for i, c := range cands {
		s, present := score(c)
		if !present {
			continue
		}
		entries = append(entries, entry{idx: i, score: s})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].score > entries[j].score })

	ranks := make([]int, len(cands))
	for rank, e := range entries {
		ranks[e.idx] = rank + 1
	}
	return ranks
}
