// Package storage defines the Store contract: a per-agent embedded store
// combining a relational table, a vector index, and a lexical index on one
// file (or, for the Postgres backend, one logical schema).
package storage

import (
	"context"
	"errors"

	"github.com/asuman/agent-memory/pkg/types"
)

// Sentinel errors callers can match with errors.Is. NotFound is recovered
// by the caller; the others surface as StoreError per the error taxonomy.
var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidInput = errors.New("storage: invalid input")
	ErrConflict    = errors.New("storage: conflict")
)

// ScoredID is a candidate id with its raw per-layer score, as returned by
// VectorTopK (ascending cosine distance) and LexicalTopK (descending BM25).
type ScoredID struct {
	ID    string
	Score float64
}

// Filter is the query filter grammar shared by VectorTopK, LexicalTopK, and List.
type Filter struct {
	Agent              string
	Namespace          string
	Category           types.Category
	IncludeSoftDeleted bool
	MinImportance      float64
	TimeRangeStart     *int64 // unix seconds, inclusive; nil = unbounded
	TimeRangeEnd       *int64 // unix seconds, inclusive; nil = unbounded
}

// Patch is a partial-field update applied by UpdateFields. Only non-nil
// fields are written.
type Patch struct {
	Importance       *float64
	Strength         *float64
	LastReinforcedAt *int64
	LastAccessedAt   *int64
	AccessCount      *int
	ReinforceCount   *int
	Pinned           *bool
	SoftDeletedAt    *int64 // 0 clears it
	SupersededBy     *string
	Provenance       *string
}

// Store is the per-agent embedded store: relational table + vector index +
// lexical index, presented as a single-writer/multiple-reader contract.
// All operations are scoped by the agent embedded in the Memory (or passed
// explicitly via Filter.Agent for read paths).
type Store interface {
	// Insert atomically writes m into all three indices. A failure rolls
	// back all of them — insert never partially succeeds.
	Insert(ctx context.Context, m *types.Memory) error

	// Get returns a memory by id, or ErrNotFound.
	Get(ctx context.Context, agent, id string) (*types.Memory, error)

	// UpdateFields applies patch to id. Returns ErrNotFound if absent.
	UpdateFields(ctx context.Context, agent, id string, patch Patch) error

	// SoftDelete sets soft_deleted_at = now. Idempotent.
	SoftDelete(ctx context.Context, agent, id string, reason string) error

	// HardDelete physically removes id from all three indices and deletes
	// any kg_relation rows referencing it.
	HardDelete(ctx context.Context, agent, id string) error

	// SetEmbedding writes id's vector and sets embedding_status=present.
	SetEmbedding(ctx context.Context, agent, id string, vec []float32, model string) error

	// MarkEmbeddingFailed sets embedding_status=failed without touching the vector.
	MarkEmbeddingFailed(ctx context.Context, agent, id string) error

	// VectorTopK returns the k nearest neighbors to queryVec by cosine
	// distance, ascending (closest first).
	VectorTopK(ctx context.Context, queryVec []float32, k int, filter Filter) ([]ScoredID, error)

	// LexicalTopK returns the k best BM25 matches for normalizedQuery,
	// descending by score.
	LexicalTopK(ctx context.Context, normalizedQuery string, k int, filter Filter) ([]ScoredID, error)

	// List returns memories matching filter, most-recent first.
	List(ctx context.Context, filter Filter, limit, offset int) ([]*types.Memory, error)

	// ScanForMaintenance streams every id matching filter to fn. fn returning
	// an error stops the scan and is returned to the caller.
	ScanForMaintenance(ctx context.Context, filter Filter, fn func(*types.Memory) error) error

	// Pin / Unpin set the pinned flag. Unpin also resets last_reinforced_at
	// so decay resumes from the frozen strength (see Lifecycle.Unpin).
	Pin(ctx context.Context, agent, id string) error
	Unpin(ctx context.Context, agent, id string) error

	// Export returns every memory matching filter as JSON-ready records for backup.
	Export(ctx context.Context, filter Filter) ([]*types.Memory, error)

	// Import upserts records by id (idempotent restore path).
	Import(ctx context.Context, records []*types.Memory) (int, error)

	// Relation bookkeeping: the core's only writes against the external
	// knowledge-graph side table, performed on merge/purge.
	RewriteRelations(ctx context.Context, agent, loserID, winnerID string) error
	DeleteRelationsFor(ctx context.Context, agent, id string) error
	InsertRelation(ctx context.Context, agent string, rel types.Relation) error
	RelationsByPredicate(ctx context.Context, agent, predicate string) ([]types.Relation, error)

	// GetCachedEmbedding / PutCachedEmbedding back the Embedder's persistent cache tier.
	GetCachedEmbedding(ctx context.Context, hash, model string, dim int) ([]float32, bool, error)
	PutCachedEmbedding(ctx context.Context, hash, model string, dim int, vec []float32) error

	// Close releases the underlying connection(s).
	Close() error
}
