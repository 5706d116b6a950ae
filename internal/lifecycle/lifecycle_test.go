package lifecycle

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

var errNI = errors.New("not implemented in fake")

// fakeStore is a minimal in-memory storage.Store for lifecycle package
// tests: only the operations the lifecycle maintenance loops actually call
// are functional, everything else returns errNI.
type fakeStore struct {
	memories  map[string]*types.Memory
	relations []types.Relation
}

func newFakeStore() *fakeStore {
	return &fakeStore{memories: map[string]*types.Memory{}}
}

func (f *fakeStore) put(m *types.Memory) {
	f.memories[m.ID] = m
}

func (f *fakeStore) Insert(ctx context.Context, m *types.Memory) error { f.put(m); return nil }

func (f *fakeStore) Get(ctx context.Context, agent, id string) (*types.Memory, error) {
	m, ok := f.memories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) UpdateFields(ctx context.Context, agent, id string, patch storage.Patch) error {
	m, ok := f.memories[id]
	if !ok {
		return storage.ErrNotFound
	}
	if patch.Importance != nil {
		m.Importance = *patch.Importance
	}
	if patch.Strength != nil {
		m.Strength = *patch.Strength
	}
	if patch.LastReinforcedAt != nil {
		m.LastReinforcedAt = time.Unix(*patch.LastReinforcedAt, 0)
	}
	if patch.LastAccessedAt != nil {
		m.LastAccessedAt = time.Unix(*patch.LastAccessedAt, 0)
	}
	if patch.AccessCount != nil {
		m.AccessCount = *patch.AccessCount
	}
	if patch.ReinforceCount != nil {
		m.ReinforceCount = *patch.ReinforceCount
	}
	if patch.Pinned != nil {
		m.Pinned = *patch.Pinned
	}
	if patch.SoftDeletedAt != nil {
		if *patch.SoftDeletedAt == 0 {
			m.SoftDeletedAt = nil
		} else {
			t := time.Unix(*patch.SoftDeletedAt, 0)
			m.SoftDeletedAt = &t
		}
	}
	if patch.SupersededBy != nil {
		m.SupersededBy = *patch.SupersededBy
	}
	if patch.Provenance != nil {
		m.Provenance = *patch.Provenance
	}
	return nil
}

func (f *fakeStore) SoftDelete(ctx context.Context, agent, id, reason string) error {
	m, ok := f.memories[id]
	if !ok {
		return storage.ErrNotFound
	}
	now := time.Now()
	m.SoftDeletedAt = &now
	return nil
}

func (f *fakeStore) HardDelete(ctx context.Context, agent, id string) error {
	delete(f.memories, id)
	return nil
}

func (f *fakeStore) SetEmbedding(ctx context.Context, agent, id string, vec []float32, model string) error {
	return errNI
}
func (f *fakeStore) MarkEmbeddingFailed(ctx context.Context, agent, id string) error { return errNI }

func (f *fakeStore) VectorTopK(ctx context.Context, queryVec []float32, k int, filter storage.Filter) ([]storage.ScoredID, error) {
	return nil, errNI
}
func (f *fakeStore) LexicalTopK(ctx context.Context, normalizedQuery string, k int, filter storage.Filter) ([]storage.ScoredID, error) {
	return nil, errNI
}
func (f *fakeStore) List(ctx context.Context, filter storage.Filter, limit, offset int) ([]*types.Memory, error) {
	return nil, errNI
}

func (f *fakeStore) ScanForMaintenance(ctx context.Context, filter storage.Filter, fn func(*types.Memory) error) error {
	ids := make([]string, 0, len(f.memories))
	for id := range f.memories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		m := f.memories[id]
		if m.Agent != filter.Agent {
			continue
		}
		if filter.Namespace != "" && m.Namespace != filter.Namespace {
			continue
		}
		if m.SoftDeletedAt != nil && !filter.IncludeSoftDeleted {
			continue
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) Pin(ctx context.Context, agent, id string) error {
	m, ok := f.memories[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Pinned = true
	return nil
}
func (f *fakeStore) Unpin(ctx context.Context, agent, id string) error {
	m, ok := f.memories[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Pinned = false
	return nil
}

func (f *fakeStore) Export(ctx context.Context, filter storage.Filter) ([]*types.Memory, error) {
	return nil, errNI
}
func (f *fakeStore) Import(ctx context.Context, records []*types.Memory) (int, error) {
	return 0, errNI
}

func (f *fakeStore) RewriteRelations(ctx context.Context, agent, loserID, winnerID string) error {
	for i := range f.relations {
		if f.relations[i].ObjectID == loserID {
			f.relations[i].ObjectID = winnerID
		}
	}
	return nil
}
func (f *fakeStore) DeleteRelationsFor(ctx context.Context, agent, id string) error {
	kept := f.relations[:0]
	for _, r := range f.relations {
		if r.ObjectID != id && r.SubjectID != id {
			kept = append(kept, r)
		}
	}
	f.relations = kept
	return nil
}
func (f *fakeStore) InsertRelation(ctx context.Context, agent string, rel types.Relation) error {
	f.relations = append(f.relations, rel)
	return nil
}
func (f *fakeStore) RelationsByPredicate(ctx context.Context, agent, predicate string) ([]types.Relation, error) {
	var out []types.Relation
	for _, r := range f.relations {
		if r.Predicate == predicate {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCachedEmbedding(ctx context.Context, hash, model string, dim int) ([]float32, bool, error) {
	return nil, false, nil
}
func (f *fakeStore) PutCachedEmbedding(ctx context.Context, hash, model string, dim int, vec []float32) error {
	return nil
}
func (f *fakeStore) Close() error { return nil }
