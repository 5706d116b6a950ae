package candidate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

type fakeStore struct {
	memories map[string]*types.Memory
	vector   []storage.ScoredID
	lexical  []storage.ScoredID
	vecErr   error
	lexErr   error
}

func (f *fakeStore) Insert(ctx context.Context, m *types.Memory) error { return errNotImplemented }
func (f *fakeStore) Get(ctx context.Context, agent, id string) (*types.Memory, error) {
	m, ok := f.memories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return m, nil
}
func (f *fakeStore) UpdateFields(ctx context.Context, agent, id string, patch storage.Patch) error {
	return errNotImplemented
}
func (f *fakeStore) SoftDelete(ctx context.Context, agent, id, reason string) error {
	return errNotImplemented
}
func (f *fakeStore) HardDelete(ctx context.Context, agent, id string) error { return errNotImplemented }
func (f *fakeStore) SetEmbedding(ctx context.Context, agent, id string, vec []float32, model string) error {
	return errNotImplemented
}
func (f *fakeStore) MarkEmbeddingFailed(ctx context.Context, agent, id string) error {
	return errNotImplemented
}
func (f *fakeStore) VectorTopK(ctx context.Context, queryVec []float32, k int, filter storage.Filter) ([]storage.ScoredID, error) {
	return f.vector, f.vecErr
}
func (f *fakeStore) LexicalTopK(ctx context.Context, normalizedQuery string, k int, filter storage.Filter) ([]storage.ScoredID, error) {
	return f.lexical, f.lexErr
}
func (f *fakeStore) List(ctx context.Context, filter storage.Filter, limit, offset int) ([]*types.Memory, error) {
	return nil, errNotImplemented
}
func (f *fakeStore) ScanForMaintenance(ctx context.Context, filter storage.Filter, fn func(*types.Memory) error) error {
	return errNotImplemented
}
func (f *fakeStore) Pin(ctx context.Context, agent, id string) error   { return errNotImplemented }
func (f *fakeStore) Unpin(ctx context.Context, agent, id string) error { return errNotImplemented }
func (f *fakeStore) Export(ctx context.Context, filter storage.Filter) ([]*types.Memory, error) {
	return nil, errNotImplemented
}
func (f *fakeStore) Import(ctx context.Context, records []*types.Memory) (int, error) {
	return 0, errNotImplemented
}
func (f *fakeStore) RewriteRelations(ctx context.Context, agent, loserID, winnerID string) error {
	return errNotImplemented
}
func (f *fakeStore) DeleteRelationsFor(ctx context.Context, agent, id string) error {
	return errNotImplemented
}
func (f *fakeStore) InsertRelation(ctx context.Context, agent string, rel types.Relation) error {
	return errNotImplemented
}
func (f *fakeStore) RelationsByPredicate(ctx context.Context, agent, predicate string) ([]types.Relation, error) {
	return nil, errNotImplemented
}
func (f *fakeStore) GetCachedEmbedding(ctx context.Context, hash, model string, dim int) ([]float32, bool, error) {
	return nil, false, nil
}
func (f *fakeStore) PutCachedEmbedding(ctx context.Context, hash, model string, dim int, vec []float32) error {
	return nil
}
func (f *fakeStore) Close() error { return nil }

var errNotImplemented = errors.New("not implemented in fake")

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) EmbedForQuery(ctx context.Context, store storage.Store, text string) ([]float32, error) {
	return f.vec, f.err
}

func testMemory(id string, importance float64, createdAgo, reinforcedAgo time.Duration, now time.Time) *types.Memory {
	return &types.Memory{
		ID:               id,
		Agent:            "agent-1",
		Importance:       importance,
		CreatedAt:        now.Add(-createdAgo),
		LastReinforcedAt: now.Add(-reinforcedAgo),
	}
}

func TestGenerate_FullMode_UnionsBothLayers(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		memories: map[string]*types.Memory{
			"a": testMemory("a", 0.5, 24*time.Hour, 24*time.Hour, now),
			"b": testMemory("b", 0.5, 24*time.Hour, 24*time.Hour, now),
		},
		vector:  []storage.ScoredID{{ID: "a", Score: 0.1}},
		lexical: []storage.ScoredID{{ID: "b", Score: 4.0}, {ID: "a", Score: 2.0}},
	}
	g := New(fakeEmbedder{vec: []float32{1, 0, 0}}, config.SearchConfig{NSemantic: 10, NLexical: 10}, config.LifecycleConfig{})
	g.now = func() time.Time { return now }

	res, err := g.Generate(context.Background(), store, "query", "query", storage.Filter{Agent: "agent-1"})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if res.SearchMode != types.SearchModeFull {
		t.Errorf("SearchMode = %v, want full", res.SearchMode)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(res.Candidates))
	}

	byID := map[string]Candidate{}
	for _, c := range res.Candidates {
		byID[c.Memory.ID] = c
	}
	if !byID["a"].SemanticPresent || !byID["a"].LexicalPresent {
		t.Errorf("candidate a should be present in both layers: %+v", byID["a"])
	}
	if byID["b"].SemanticPresent {
		t.Errorf("candidate b should not be present in semantic layer")
	}
	if byID["b"].LexicalScore != 1.0 {
		t.Errorf("candidate b lexical score = %v, want 1.0 (max in batch)", byID["b"].LexicalScore)
	}
}

func TestGenerate_EmbedderFailure_DegradesNoVector(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		memories: map[string]*types.Memory{"a": testMemory("a", 0.5, time.Hour, time.Hour, now)},
		lexical:  []storage.ScoredID{{ID: "a", Score: 1.0}},
	}
	g := New(fakeEmbedder{err: errors.New("circuit open")}, config.SearchConfig{}, config.LifecycleConfig{})
	g.now = func() time.Time { return now }

	res, err := g.Generate(context.Background(), store, "query", "query", storage.Filter{Agent: "agent-1"})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if res.SearchMode != types.SearchModeDegradedNoVector {
		t.Errorf("SearchMode = %v, want degraded_no_vector", res.SearchMode)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("expected 1 candidate from lexical-only layer, got %d", len(res.Candidates))
	}
}

func TestGenerate_LexicalFailure_DegradesNoLexical(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		memories: map[string]*types.Memory{"a": testMemory("a", 0.5, time.Hour, time.Hour, now)},
		vector:   []storage.ScoredID{{ID: "a", Score: 0.1}},
		lexErr:   errors.New("fts index error"),
	}
	g := New(fakeEmbedder{vec: []float32{1, 0, 0}}, config.SearchConfig{}, config.LifecycleConfig{})
	g.now = func() time.Time { return now }

	res, err := g.Generate(context.Background(), store, "query", "query", storage.Filter{Agent: "agent-1"})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if res.SearchMode != types.SearchModeDegradedNoLexical {
		t.Errorf("SearchMode = %v, want degraded_no_lexical", res.SearchMode)
	}
}

func TestRecencyScore_DecaysWithAge(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	fresh := testMemory("a", 0.5, 0, 0, now)
	old := testMemory("b", 0.5, 100*24*time.Hour, 0, now)
	if recencyScore(fresh, now) <= recencyScore(old, now) {
		t.Errorf("fresh memory should score higher than a 100-day-old one")
	}
}

func TestStrengthScore_HigherImportanceDecaysSlower(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	lc := config.LifecycleConfig{DecayBaseRate: 0.15, DecayAlpha: 2.0}
	lowImportance := testMemory("a", 0.1, 0, 30*24*time.Hour, now)
	highImportance := testMemory("b", 0.9, 0, 30*24*time.Hour, now)
	if strengthScore(highImportance, now, lc) <= strengthScore(lowImportance, now, lc) {
		t.Errorf("higher importance should decay slower (higher strength score)")
	}
}
