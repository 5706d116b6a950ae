// Package embedder implements Embedder: a batching, caching, retrying client
// for a remote OpenAI-compatible embeddings endpoint.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/internal/storage"
)

const (
	circuitMaxFailures = 5
	circuitOpenTimeout = 5 * time.Minute
	lruCacheSize       = 4096
)

// Embedder is the only thing in this tree that talks to the embeddings
// endpoint. Ingest and recall both go through it so caching, batching,
// retry, and the circuit breaker apply uniformly.
type Embedder struct {
	cfg     config.EmbedConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	lru     *lru.Cache[string, []float32]
	batcher *batcher
}

// New builds an Embedder from cfg. Callers normally keep one Embedder for
// the whole process; it is safe for concurrent use.
func New(cfg config.EmbedConfig) (*Embedder, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedder: configured dimensions must be positive, got %d", cfg.Dimensions)
	}
	cache, err := lru.New[string, []float32](lruCacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedder: creating LRU cache: %w", err)
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.BatchSize
	if burst < 1 {
		burst = 1
	}

	e := &Embedder{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		lru:     cache,
	}
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "embedder",
		Timeout:  circuitOpenTimeout,
		Interval: 0,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= circuitMaxFailures
		},
	})
	e.batcher = newBatcher(e, cfg.BatchSize, time.Duration(cfg.BatchWindowMS)*time.Millisecond)
	return e, nil
}

// cacheKey hashes (text, model, dim) the same way memory ids are derived:
// hex(sha256(...)).
func cacheKey(text, model string, dim int) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(fmt.Sprintf("%d", dim)))
	return hex.EncodeToString(h.Sum(nil))
}

// truncate cuts text to at most cfg.MaxChars runes, respecting UTF-8
// boundaries (simple rune-count truncation, which can never split a
// multi-byte rune).
func (e *Embedder) truncate(text string) string {
	if e.cfg.MaxChars <= 0 || utf8.RuneCountInString(text) <= e.cfg.MaxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:e.cfg.MaxChars])
}

// EmbedForWrite computes (or fetches from cache) the embedding for text on
// the ingest path. It never blocks the caller on a cascading failure: if
// the circuit is open and there is no cached hit, it returns (nil, nil) so
// the caller can mark embedding_status=failed instead of stalling ingest.
func (e *Embedder) EmbedForWrite(ctx context.Context, store storage.Store, text string) ([]float32, error) {
	return e.embed(ctx, store, text, false)
}

// EmbedForQuery computes the embedding for a recall-time query. Unlike
// EmbedForWrite, an open circuit surfaces as an error here (no cached hit
// to fall back to means the caller has nothing to rank against).
func (e *Embedder) EmbedForQuery(ctx context.Context, store storage.Store, text string) ([]float32, error) {
	return e.embed(ctx, store, text, true)
}

func (e *Embedder) embed(ctx context.Context, store storage.Store, text string, blocking bool) ([]float32, error) {
	text = e.truncate(text)
	key := cacheKey(text, e.cfg.Model, e.cfg.Dimensions)

	if vec, ok := e.lru.Get(key); ok {
		return vec, nil
	}
	if store != nil {
		if vec, ok, err := store.GetCachedEmbedding(ctx, key, e.cfg.Model, e.cfg.Dimensions); err == nil && ok {
			e.lru.Add(key, vec)
			return vec, nil
		}
	}

	vec, err := e.callRemote(ctx, text)
	if err != nil {
		if IsCircuitOpen(err) && !blocking {
			return nil, nil
		}
		return nil, err
	}

	e.lru.Add(key, vec)
	if store != nil {
		_ = store.PutCachedEmbedding(ctx, key, e.cfg.Model, e.cfg.Dimensions, vec)
	}
	return vec, nil
}

// callRemote routes a single text through the batcher, which groups
// concurrent calls into one HTTP request when they land within the
// configured batch window.
func (e *Embedder) callRemote(ctx context.Context, text string) ([]float32, error) {
	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.batcher.submit(ctx, text)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	vec := result.([]float32)
	if len(vec) != e.cfg.Dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), e.cfg.Dimensions)
	}
	return vec, nil
}

// Close stops the background batcher goroutine.
func (e *Embedder) Close() {
	e.batcher.close()
}
