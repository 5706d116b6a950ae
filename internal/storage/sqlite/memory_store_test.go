package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/internal/storage/sqlite"
	"github.com/asuman/agent-memory/pkg/types"
)

func newTestStore(t *testing.T) *sqlite.MemoryStore {
	t.Helper()
	s, err := sqlite.NewMemoryStore(":memory:")
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMemory(id string) *types.Memory {
	now := time.Now()
	return &types.Memory{
		ID:              id,
		Agent:           "agent-1",
		Text:            "the user prefers dark mode",
		NormalizedText:  "user prefer dark mode",
		Category:        types.CategoryPreference,
		Importance:      0.6,
		Strength:        1.0,
		CreatedAt:       now,
		LastReinforcedAt: now,
		LastAccessedAt:  now,
		EmbeddingStatus: types.EmbeddingPending,
	}
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := sampleMemory("m1")

	if err := s.Insert(ctx, m); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.Get(ctx, "agent-1", "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != m.Text || got.Category != types.CategoryPreference {
		t.Errorf("round-tripped memory mismatch: %+v", got)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "agent-1", "nope")
	if err != storage.ErrNotFound {
		t.Errorf("Get on missing id: got %v, want ErrNotFound", err)
	}
}

func TestUpdateFieldsPatchesOnlyGivenFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := sampleMemory("m1")
	if err := s.Insert(ctx, m); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	newImportance := 0.9
	if err := s.UpdateFields(ctx, "agent-1", "m1", storage.Patch{Importance: &newImportance}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	got, err := s.Get(ctx, "agent-1", "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Importance != 0.9 {
		t.Errorf("Importance = %v, want 0.9", got.Importance)
	}
	if got.Strength != m.Strength {
		t.Errorf("Strength changed unexpectedly: %v", got.Strength)
	}
}

func TestSoftDeleteExcludesFromListByDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := sampleMemory("m1")
	if err := s.Insert(ctx, m); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.SoftDelete(ctx, "agent-1", "m1", "superseded"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	results, err := s.List(ctx, storage.Filter{Agent: "agent-1"}, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("List should exclude soft-deleted rows by default, got %d", len(results))
	}

	withDeleted, err := s.List(ctx, storage.Filter{Agent: "agent-1", IncludeSoftDeleted: true}, 10, 0)
	if err != nil {
		t.Fatalf("List with IncludeSoftDeleted: %v", err)
	}
	if len(withDeleted) != 1 {
		t.Errorf("List with IncludeSoftDeleted should return 1, got %d", len(withDeleted))
	}
}

func TestHardDeleteRemovesRelationsAndEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := sampleMemory("m1")
	if err := s.Insert(ctx, m); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.SetEmbedding(ctx, "agent-1", "m1", []float32{0.1, 0.2, 0.3}, "test-model"); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}
	if err := s.InsertRelation(ctx, "agent-1", types.Relation{SubjectID: "m1", Predicate: "lives_in", ObjectID: "m2"}); err != nil {
		t.Fatalf("InsertRelation: %v", err)
	}

	if err := s.HardDelete(ctx, "agent-1", "m1"); err != nil {
		t.Fatalf("HardDelete: %v", err)
	}

	if _, err := s.Get(ctx, "agent-1", "m1"); err != storage.ErrNotFound {
		t.Errorf("Get after HardDelete: got %v, want ErrNotFound", err)
	}
	rels, err := s.RelationsByPredicate(ctx, "agent-1", "lives_in")
	if err != nil {
		t.Fatalf("RelationsByPredicate: %v", err)
	}
	if len(rels) != 0 {
		t.Errorf("relations referencing hard-deleted memory should be gone, got %d", len(rels))
	}
}

func TestSetEmbeddingMarksPresent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := sampleMemory("m1")
	if err := s.Insert(ctx, m); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.SetEmbedding(ctx, "agent-1", "m1", []float32{0.5, 0.5}, "test-model"); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}

	got, err := s.Get(ctx, "agent-1", "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.EmbeddingStatus != types.EmbeddingPresent {
		t.Errorf("EmbeddingStatus = %v, want present", got.EmbeddingStatus)
	}
	if got.EmbeddingDim != 2 {
		t.Errorf("EmbeddingDim = %d, want 2", got.EmbeddingDim)
	}
}

func TestPinUnpinResetsReinforcement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := sampleMemory("m1")
	m.LastReinforcedAt = time.Now().Add(-48 * time.Hour)
	if err := s.Insert(ctx, m); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.Pin(ctx, "agent-1", "m1"); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	got, _ := s.Get(ctx, "agent-1", "m1")
	if !got.Pinned {
		t.Fatal("expected pinned = true")
	}

	if err := s.Unpin(ctx, "agent-1", "m1"); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
	got, _ = s.Get(ctx, "agent-1", "m1")
	if got.Pinned {
		t.Fatal("expected pinned = false after Unpin")
	}
	if !got.LastReinforcedAt.After(m.LastReinforcedAt) {
		t.Errorf("LastReinforcedAt = %v, want reset past %v", got.LastReinforcedAt, m.LastReinforcedAt)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Insert(ctx, sampleMemory("m1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	exported, err := s.Export(ctx, storage.Filter{Agent: "agent-1"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(exported) != 1 {
		t.Fatalf("Export: got %d records, want 1", len(exported))
	}

	s2 := newTestStore(t)
	n, err := s2.Import(ctx, exported)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 1 {
		t.Errorf("Import: imported %d, want 1", n)
	}
	if _, err := s2.Get(ctx, "agent-1", "m1"); err != nil {
		t.Errorf("Get after Import: %v", err)
	}
}

func TestRewriteRelationsRedirectsAndDropsDangling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.InsertRelation(ctx, "agent-1", types.Relation{SubjectID: "loser", Predicate: "knows", ObjectID: "x"}); err != nil {
		t.Fatalf("InsertRelation: %v", err)
	}

	if err := s.RewriteRelations(ctx, "agent-1", "loser", "winner"); err != nil {
		t.Fatalf("RewriteRelations: %v", err)
	}

	rels, err := s.RelationsByPredicate(ctx, "agent-1", "knows")
	if err != nil {
		t.Fatalf("RelationsByPredicate: %v", err)
	}
	if len(rels) != 1 || rels[0].SubjectID != "winner" {
		t.Errorf("expected relation rewritten to winner, got %+v", rels)
	}
}
