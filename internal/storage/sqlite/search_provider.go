package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/asuman/agent-memory/internal/storage"
)

// vectorCandidateCap bounds how many embeddings are pulled into Go memory
// for brute-force cosine ranking per VectorTopK call. Candidates are loaded
// newest-first, so the cap only matters for datasets well past the scale
// this backend targets — beyond that, the Postgres+pgvector backend's
// ivfflat index takes over.
const vectorCandidateCap = 10_000

// VectorTopK ranks by cosine distance ascending (closest first). Distance,
// not similarity, is returned so callers treat it uniformly with the
// pgvector backend's native <=> operator.
func (s *MemoryStore) VectorTopK(ctx context.Context, queryVec []float32, k int, filter storage.Filter) ([]storage.ScoredID, error) {
	if len(queryVec) == 0 || k <= 0 {
		return nil, nil
	}

	where, args := buildFilterClause(filter)
	query := fmt.Sprintf(`
		SELECT v.memory_id, v.embedding, v.dim
		FROM vec_memory v
		JOIN memory m ON m.id = v.memory_id
		WHERE %s
		ORDER BY m.created_at DESC
		LIMIT ?
	`, where)
	args = append(args, vectorCandidateCap)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vector top-k: %w", err)
	}
	defer rows.Close()

	var candidates []storage.ScoredID
	for rows.Next() {
		var id string
		var blob []byte
		var dim int
		if err := rows.Scan(&id, &blob, &dim); err != nil {
			return nil, fmt.Errorf("sqlite: vector top-k scan: %w", err)
		}
		vec, err := decodeEmbedding(blob, dim)
		if err != nil {
			continue
		}
		sim := cosineSimilarity(queryVec, vec)
		candidates = append(candidates, storage.ScoredID{ID: id, Score: 1 - sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score < candidates[j].Score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// LexicalTopK runs the normalized query against the FTS5 index, descending
// by BM25 relevance (bm25() returns more-negative for better matches, so the
// sign is flipped so callers always see "higher is better").
func (s *MemoryStore) LexicalTopK(ctx context.Context, normalizedQuery string, k int, filter storage.Filter) ([]storage.ScoredID, error) {
	if strings.TrimSpace(normalizedQuery) == "" || k <= 0 {
		return nil, nil
	}

	matchExpr := ftsMatchExpr(normalizedQuery)
	if matchExpr == "" {
		return nil, nil
	}

	where, args := buildFilterClause(filter)
	query := fmt.Sprintf(`
		SELECT m.id, bm25(fts_memory) AS rank
		FROM fts_memory
		JOIN memory m ON m.rowid = fts_memory.rowid
		WHERE fts_memory MATCH ? AND %s
		ORDER BY rank
		LIMIT ?
	`, where)

	queryArgs := append([]any{matchExpr}, args...)
	queryArgs = append(queryArgs, k)

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: lexical top-k: %w", err)
	}
	defer rows.Close()

	var out []storage.ScoredID
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("sqlite: lexical top-k scan: %w", err)
		}
		out = append(out, storage.ScoredID{ID: id, Score: -rank})
	}
	return out, rows.Err()
}

// ftsMatchExpr converts free-form normalized text into a safe FTS5 MATCH
// expression: each term becomes a prefix match, OR'd together, so a stray
// FTS5 operator keyword in the source text can never break the query.
func ftsMatchExpr(normalized string) string {
	terms := strings.Fields(normalized)
	var clauses []string
	for _, t := range terms {
		t = strings.Map(func(r rune) rune {
			switch r {
			case '"', '\'', '(', ')', '*', '-', '^', ':':
				return -1
			}
			return r
		}, t)
		if len(t) >= 2 {
			clauses = append(clauses, t+"*")
		}
	}
	return strings.Join(clauses, " OR ")
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// encodeEmbedding packs a float32 vector as little-endian bytes for BLOB storage.
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte, dim int) ([]float32, error) {
	if dim <= 0 || len(buf) != dim*4 {
		return nil, fmt.Errorf("sqlite: embedding buffer size mismatch: expected %d bytes for dim %d, got %d", dim*4, dim, len(buf))
	}
	vec := make([]float32, dim)
	for i := 0; i < dim; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
