package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asuman/agent-memory/internal/storage"
)

// GetCachedEmbedding backs the Embedder's persistent cache tier: a hit here
// means the remote embedder is never called for identical (hash, model,
// dim) text again.
func (s *MemoryStore) GetCachedEmbedding(ctx context.Context, hash, model string, dim int) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT embedding FROM embed_cache WHERE hash = ? AND model = ? AND dim = ?",
		hash, model, dim,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get cached embedding: %w", err)
	}

	vec, err := decodeEmbedding(blob, dim)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (s *MemoryStore) PutCachedEmbedding(ctx context.Context, hash, model string, dim int, vec []float32) error {
	blob := encodeEmbedding(vec)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embed_cache (hash, model, dim, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash, model, dim) DO UPDATE SET embedding = excluded.embedding
	`, hash, model, dim, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite: put cached embedding: %w", err)
	}
	return nil
}
