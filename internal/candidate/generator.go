// Package candidate implements CandidateGen: the parallel semantic + lexical
// retrieval fan-out, plus the cheap numeric recency/strength/importance
// layers computed over their union.
package candidate

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

// recencyLambda is the fixed decay constant for the recency layer (not
// configurable, unlike the strength layer which reuses the Lifecycle decay
// settings).
const recencyLambda = 0.01

// QueryEmbedder is the subset of *embedder.Embedder CandidateGen depends on,
// so tests can substitute a fake without spinning up HTTP plumbing.
type QueryEmbedder interface {
	EmbedForQuery(ctx context.Context, store storage.Store, text string) ([]float32, error)
}

// Candidate is one retrieved memory plus its raw per-layer scores, before
// rank fusion. SemanticPresent/LexicalPresent distinguish "scored 0 by this
// layer" from "this layer never returned it" — the Fuser treats the latter
// as a missing rank, not a tied-last rank.
type Candidate struct {
	Memory *types.Memory

	SemanticScore   float64
	SemanticPresent bool

	LexicalScore   float64
	LexicalPresent bool

	RecencyScore    float64
	StrengthScore   float64
	ImportanceScore float64
}

// Result is CandidateGen's output: the union of candidates plus which
// layers actually ran.
type Result struct {
	Candidates []Candidate
	SearchMode types.SearchMode
}

// Generator runs the five CandidateGen layers against one Store.
type Generator struct {
	embedder  QueryEmbedder
	search    config.SearchConfig
	lifecycle config.LifecycleConfig
	now       func() time.Time
}

// New builds a Generator. now defaults to time.Now; tests inject a fixed
// clock for deterministic recency/strength scores.
func New(embedder QueryEmbedder, search config.SearchConfig, lifecycle config.LifecycleConfig) *Generator {
	return &Generator{embedder: embedder, search: search, lifecycle: lifecycle, now: time.Now}
}

// Generate produces the union of candidates for normalizedQuery against
// store, scoped by filter. Semantic and lexical retrieval run as two
// goroutines joined on a WaitGroup; either layer failing (or the embedder
// reporting a closed/open-circuit miss) degrades search_mode instead of
// failing the whole call.
func (g *Generator) Generate(ctx context.Context, store storage.Store, rawQuery, normalizedQuery string, filter storage.Filter) (Result, error) {
	nSem := g.search.NSemantic
	if nSem <= 0 {
		nSem = 50
	}
	nLex := g.search.NLexical
	if nLex <= 0 {
		nLex = 50
	}

	var (
		wg                        sync.WaitGroup
		semantic                  []storage.ScoredID
		lexical                   []storage.ScoredID
		semanticErr, lexicalErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vec, err := g.embedder.EmbedForQuery(ctx, store, rawQuery)
		if err != nil || vec == nil {
			semanticErr = err
			if semanticErr == nil {
				semanticErr = errors.New("candidate: embedder returned no query vector")
			}
			return
		}
		semantic, semanticErr = store.VectorTopK(ctx, vec, nSem, filter)
	}()
	go func() {
		defer wg.Done()
		lexical, lexicalErr = store.LexicalTopK(ctx, normalizedQuery, nLex, filter)
	}()
	wg.Wait()

	mode := types.SearchModeFull
	if semanticErr != nil {
		semantic = nil
		mode = types.SearchModeDegradedNoVector
	}
	if lexicalErr != nil {
		lexical = nil
		if mode == types.SearchModeDegradedNoVector {
			// Both layers failed; no candidates to union, report the
			// vector-loss mode since a lexical-only failure alone is rarer
			// and less informative than "we have nothing".
		} else {
			mode = types.SearchModeDegradedNoLexical
		}
	}

	union := make(map[string]*Candidate)
	order := make([]string, 0, len(semantic)+len(lexical))

	maxLexScore := 0.0
	for _, s := range lexical {
		if s.Score > maxLexScore {
			maxLexScore = s.Score
		}
	}

	for _, s := range semantic {
		dist := s.Score
		score := 1 - dist
		if score < 0 {
			score = 0
		}
		c := &Candidate{SemanticScore: score, SemanticPresent: true}
		union[s.ID] = c
		order = append(order, s.ID)
	}
	for _, s := range lexical {
		norm := 0.0
		if maxLexScore > 0 {
			norm = s.Score / maxLexScore
			if norm < 0 {
				norm = 0
			}
			if norm > 1 {
				norm = 1
			}
		}
		if c, ok := union[s.ID]; ok {
			c.LexicalScore = norm
			c.LexicalPresent = true
		} else {
			union[s.ID] = &Candidate{LexicalScore: norm, LexicalPresent: true}
			order = append(order, s.ID)
		}
	}

	now := g.now()
	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		c := union[id]
		m, err := store.Get(ctx, filter.Agent, id)
		if err != nil {
			continue // evicted/raced out between retrieval and fetch
		}
		c.Memory = m
		c.RecencyScore = recencyScore(m, now)
		c.StrengthScore = strengthScore(m, now, g.lifecycle)
		c.ImportanceScore = m.Importance
		out = append(out, *c)
	}

	return Result{Candidates: out, SearchMode: mode}, nil
}

func recencyScore(m *types.Memory, now time.Time) float64 {
	ageDays := now.Sub(m.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-recencyLambda * ageDays)
}

func strengthScore(m *types.Memory, now time.Time, lc config.LifecycleConfig) float64 {
	base := lc.DecayBaseRate
	if base <= 0 {
		base = 0.15
	}
	alpha := lc.DecayAlpha
	if alpha <= 0 {
		alpha = 2.0
	}
	ageDays := now.Sub(m.LastReinforcedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays * base / (1 + m.Importance*alpha))
}
