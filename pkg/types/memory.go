package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EmbeddingStatus reports whether a Memory's vector is present, still being
// computed, or failed to compute.
type EmbeddingStatus string

const (
	EmbeddingPresent EmbeddingStatus = "present"
	EmbeddingPending EmbeddingStatus = "pending"
	EmbeddingFailed  EmbeddingStatus = "failed"
)

// Category is the fixed set of memory categories recognized by WriteMerge
// and Lifecycle conflict detection.
type Category string

const (
	CategoryQAPair       Category = "qa_pair"
	CategoryUser         Category = "user"
	CategoryAssistant    Category = "assistant"
	CategoryFact         Category = "fact"
	CategoryPreference   Category = "preference"
	CategoryRule         Category = "rule"
	CategoryConversation Category = "conversation"
)

// Memory is the primary persisted unit: a single piece of durable context
// about an agent, indexed for semantic, lexical, recency, strength, and
// importance retrieval.
//
// id is content-derived: hex(sha256(agent + "\x00" + normalized_text)), so
// that writing identical normalized text for the same agent always resolves
// to the same row (see internal/writemerge).
type Memory struct {
	ID             string `json:"id"`
	Agent          string `json:"agent"`
	Text           string `json:"text"`
	NormalizedText string `json:"normalized_text"`

	Category   Category `json:"category"`
	MemoryType string   `json:"memory_type,omitempty"`

	Importance float64 `json:"importance"`
	Strength   float64 `json:"strength"`

	CreatedAt        time.Time `json:"created_at"`
	LastReinforcedAt time.Time `json:"last_reinforced_at"`
	LastAccessedAt   time.Time `json:"last_accessed_at"`

	AccessCount    int `json:"access_count"`
	ReinforceCount int `json:"reinforce_count"`

	Pinned        bool       `json:"pinned"`
	SoftDeletedAt *time.Time `json:"soft_deleted_at,omitempty"`
	SupersededBy  string     `json:"superseded_by,omitempty"`

	Session    string `json:"session,omitempty"`
	Source     string `json:"source,omitempty"`
	Provenance string `json:"provenance,omitempty"`
	Namespace  string `json:"namespace,omitempty"`

	Embedding       []float32       `json:"embedding,omitempty"`
	EmbeddingModel  string          `json:"embedding_model,omitempty"`
	EmbeddingDim    int             `json:"embedding_dim,omitempty"`
	EmbeddingStatus EmbeddingStatus `json:"embedding_status"`
}

// DeriveID computes a Memory's content-derived id: hex(sha256(agent +
// "\x00" + normalizedText)). Writing identical normalized text for the
// same agent always resolves to the same id, which is what lets WriteMerge
// and repeated ingest of the same line converge on one row.
func DeriveID(agent, normalizedText string) string {
	h := sha256.New()
	h.Write([]byte(agent))
	h.Write([]byte{0})
	h.Write([]byte(normalizedText))
	return hex.EncodeToString(h.Sum(nil))
}

// IsRetrievable reports whether m should ever be considered by recall:
// excludes soft-deleted rows regardless of any other field.
func (m *Memory) IsRetrievable() bool {
	return m.SoftDeletedAt == nil
}

// RecallResult is the transient, per-query view of a Memory plus the scores
// that produced its position in the ranked list.
type RecallResult struct {
	Memory *Memory `json:"memory"`

	SemanticScore   float64  `json:"semantic,omitempty"`
	LexicalScore    float64  `json:"lexical,omitempty"`
	RecencyScore    float64  `json:"recency,omitempty"`
	StrengthScore   float64  `json:"strength,omitempty"`
	ImportanceScore float64  `json:"importance,omitempty"`
	RerankPrimary   *float64 `json:"reranker_primary,omitempty"`
	RerankSecondary *float64 `json:"reranker_secondary,omitempty"`

	Score          float64        `json:"score"`
	ConfidenceTier ConfidenceTier `json:"confidence_tier"`
	SearchMode     SearchMode     `json:"search_mode"`
	Cached         bool           `json:"cached"`
}

// ConfidenceTier buckets a RecallResult's final score for callers that don't
// want to reason about raw floats.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "HIGH"
	ConfidenceMedium ConfidenceTier = "MEDIUM"
	ConfidenceLow    ConfidenceTier = "LOW"
)

// TierForScore applies the spec's fixed thresholds: HIGH >= 0.7, MEDIUM >= 0.4, else LOW.
func TierForScore(score float64) ConfidenceTier {
	switch {
	case score >= 0.7:
		return ConfidenceHigh
	case score >= 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// SearchMode annotates which candidate layers actually ran for a recall.
type SearchMode string

const (
	SearchModeFull              SearchMode = "full"
	SearchModeDegradedNoVector  SearchMode = "degraded_no_vector"
	SearchModeDegradedNoLexical SearchMode = "degraded_no_lexical"
)

// Relation is the minimal external-collaborator side table the core
// preserves foreign-key-style references against on merge/purge. Population
// (real entity/relation extraction) happens outside the core.
type Relation struct {
	SubjectID string `json:"subject_id"`
	Predicate string `json:"predicate"`
	ObjectID  string `json:"object_id"`
}
