package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/internal/storage/sqlite"
	"github.com/asuman/agent-memory/pkg/types"
)

func insertWithEmbedding(t *testing.T, s *sqlite.MemoryStore, id, text, normalized string, vec []float32) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	m := &types.Memory{
		ID: id, Agent: "agent-1", Text: text, NormalizedText: normalized,
		Category: types.CategoryFact, Importance: 0.5, Strength: 1.0,
		CreatedAt: now, LastReinforcedAt: now, LastAccessedAt: now,
		EmbeddingStatus: types.EmbeddingPending,
	}
	if err := s.Insert(ctx, m); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if vec != nil {
		if err := s.SetEmbedding(ctx, "agent-1", id, vec, "test-model"); err != nil {
			t.Fatalf("SetEmbedding: %v", err)
		}
	}
}

func TestVectorTopKOrdersByCosineDistance(t *testing.T) {
	s := newTestStore(t)
	insertWithEmbedding(t, s, "close", "a", "a", []float32{1, 0, 0})
	insertWithEmbedding(t, s, "far", "b", "b", []float32{0, 1, 0})

	results, err := s.VectorTopK(context.Background(), []float32{1, 0, 0}, 2, storage.Filter{Agent: "agent-1"})
	if err != nil {
		t.Fatalf("VectorTopK: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "close" {
		t.Errorf("closest match = %s, want close", results[0].ID)
	}
	if results[0].Score > results[1].Score {
		t.Errorf("expected ascending distance, got %v then %v", results[0].Score, results[1].Score)
	}
}

func TestLexicalTopKMatchesPrefix(t *testing.T) {
	s := newTestStore(t)
	insertWithEmbedding(t, s, "m1", "user likes dark mode", "user like dark mode", nil)
	insertWithEmbedding(t, s, "m2", "weather is sunny", "weather be sunny", nil)

	results, err := s.LexicalTopK(context.Background(), "dark mode", 5, storage.Filter{Agent: "agent-1"})
	if err != nil {
		t.Fatalf("LexicalTopK: %v", err)
	}
	if len(results) != 1 || results[0].ID != "m1" {
		t.Errorf("expected only m1 to match, got %+v", results)
	}
}

func TestLexicalTopKEmptyQuery(t *testing.T) {
	s := newTestStore(t)
	results, err := s.LexicalTopK(context.Background(), "", 5, storage.Filter{Agent: "agent-1"})
	if err != nil {
		t.Fatalf("LexicalTopK: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for empty query, got %+v", results)
	}
}

func TestCachedEmbeddingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	vec := []float32{0.1, 0.2, 0.3}

	if _, ok, err := s.GetCachedEmbedding(ctx, "hash1", "test-model", 3); err != nil || ok {
		t.Fatalf("expected cache miss, got ok=%v err=%v", ok, err)
	}

	if err := s.PutCachedEmbedding(ctx, "hash1", "test-model", 3, vec); err != nil {
		t.Fatalf("PutCachedEmbedding: %v", err)
	}

	got, ok, err := s.GetCachedEmbedding(ctx, "hash1", "test-model", 3)
	if err != nil {
		t.Fatalf("GetCachedEmbedding: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit after Put")
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("vec[%d] = %v, want %v", i, got[i], vec[i])
		}
	}
}
