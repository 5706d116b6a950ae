package postgres

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/asuman/agent-memory/internal/storage"
)

const vectorCandidateCap = 10_000

// VectorTopK uses pgvector's native cosine-distance operator when the
// extension is available; otherwise it falls back to loading candidates
// and ranking in Go, same as the SQLite backend.
func (s *MemoryStore) VectorTopK(ctx context.Context, queryVec []float32, k int, filter storage.Filter) ([]storage.ScoredID, error) {
	if len(queryVec) == 0 || k <= 0 {
		return nil, nil
	}

	if s.pgvectorAvailable {
		return s.vectorTopKIndexed(ctx, queryVec, k, filter)
	}
	return s.vectorTopKScan(ctx, queryVec, k, filter)
}

func (s *MemoryStore) vectorTopKIndexed(ctx context.Context, queryVec []float32, k int, filter storage.Filter) ([]storage.ScoredID, error) {
	where, args := buildFilterClause(filter)
	where = strings.ReplaceAll(where, "agent = $1", "m.agent = $1")
	qvec := formatPgvector(queryVec)
	n := len(args)
	query := fmt.Sprintf(`
		SELECT v.memory_id, v.embedding_vec <=> %s AS distance
		FROM vec_memory v
		JOIN memory m ON m.id = v.memory_id
		WHERE v.embedding_vec IS NOT NULL AND %s
		ORDER BY distance ASC
		LIMIT %s
	`, placeholder(n+1), where, placeholder(n+2))
	args = append(args, qvec, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector top-k (indexed): %w", err)
	}
	defer rows.Close()

	var out []storage.ScoredID
	for rows.Next() {
		var sc storage.ScoredID
		if err := rows.Scan(&sc.ID, &sc.Score); err != nil {
			return nil, fmt.Errorf("postgres: vector top-k scan: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *MemoryStore) vectorTopKScan(ctx context.Context, queryVec []float32, k int, filter storage.Filter) ([]storage.ScoredID, error) {
	where, args := buildFilterClause(filter)
	where = strings.ReplaceAll(where, "agent = $1", "m.agent = $1")
	query := fmt.Sprintf(`
		SELECT v.memory_id, v.embedding, v.dim
		FROM vec_memory v
		JOIN memory m ON m.id = v.memory_id
		WHERE %s
		ORDER BY m.created_at DESC
		LIMIT %s
	`, where, placeholder(len(args)+1))
	args = append(args, vectorCandidateCap)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector top-k (scan): %w", err)
	}
	defer rows.Close()

	var candidates []storage.ScoredID
	for rows.Next() {
		var id string
		var blob []byte
		var dim int
		if err := rows.Scan(&id, &blob, &dim); err != nil {
			return nil, fmt.Errorf("postgres: vector top-k scan row: %w", err)
		}
		vec, err := decodeEmbedding(blob, dim)
		if err != nil {
			continue
		}
		candidates = append(candidates, storage.ScoredID{ID: id, Score: 1 - cosineSimilarity(queryVec, vec)})
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

// LexicalTopK uses Postgres's built-in tsvector/GIN full text index.
func (s *MemoryStore) LexicalTopK(ctx context.Context, normalizedQuery string, k int, filter storage.Filter) ([]storage.ScoredID, error) {
	if strings.TrimSpace(normalizedQuery) == "" || k <= 0 {
		return nil, nil
	}

	tsQuery := toTSQuery(normalizedQuery)
	if tsQuery == "" {
		return nil, nil
	}

	where, args := buildFilterClause(filter)
	n := len(args)
	query := fmt.Sprintf(`
		SELECT id, ts_rank(content_tsv, to_tsquery('english', %s)) AS rank
		FROM memory
		WHERE content_tsv @@ to_tsquery('english', %s) AND %s
		ORDER BY rank DESC
		LIMIT %s
	`, placeholder(n+1), placeholder(n+1), where, placeholder(n+2))
	args = append(args, tsQuery, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: lexical top-k: %w", err)
	}
	defer rows.Close()

	var out []storage.ScoredID
	for rows.Next() {
		var sc storage.ScoredID
		if err := rows.Scan(&sc.ID, &sc.Score); err != nil {
			return nil, fmt.Errorf("postgres: lexical top-k scan: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// toTSQuery converts normalized text into an OR'd tsquery expression so a
// single unmatched term never fails the whole query.
func toTSQuery(normalized string) string {
	terms := strings.Fields(normalized)
	var clean []string
	for _, t := range terms {
		t = strings.Map(func(r rune) rune {
			if r == '\'' || r == '&' || r == '|' || r == '!' || r == ':' {
				return -1
			}
			return r
		}, t)
		if len(t) >= 2 {
			clean = append(clean, t+":*")
		}
	}
	return strings.Join(clean, " | ")
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

func formatPgvector(vec []float32) pgvector.Vector {
	return pgvector.NewVector(vec)
}

func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte, dim int) ([]float32, error) {
	if dim <= 0 || len(buf) != dim*4 {
		return nil, fmt.Errorf("postgres: embedding buffer size mismatch: expected %d bytes for dim %d, got %d", dim*4, dim, len(buf))
	}
	vec := make([]float32, dim)
	for i := 0; i < dim; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
