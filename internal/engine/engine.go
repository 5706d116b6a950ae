// Package engine wires CandidateGen, Fuser, Reranker, RecallCache,
// WriteMerge, TriggerScorer, Normalizer, Lifecycle, MetricsHub, and
// EventHub into the recall/ingest/maintenance operations the HTTP adapter
// calls. Nothing outside this package talks to those components directly.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/asuman/agent-memory/internal/candidate"
	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/internal/connections"
	"github.com/asuman/agent-memory/internal/events"
	"github.com/asuman/agent-memory/internal/lifecycle"
	"github.com/asuman/agent-memory/internal/metrics"
	"github.com/asuman/agent-memory/internal/normtext"
	"github.com/asuman/agent-memory/internal/recallcache"
	"github.com/asuman/agent-memory/internal/rerank"
	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/internal/writemerge"
)

// Embedder is the subset of *embedder.Embedder the engine depends on.
type Embedder interface {
	EmbedForQuery(ctx context.Context, store storage.Store, text string) ([]float32, error)
	EmbedForWrite(ctx context.Context, store storage.Store, text string) ([]float32, error)
}

// Engine is the single entry point the HTTP adapter and CLI call into.
type Engine struct {
	pool       *connections.StoragePool
	embedder   Embedder
	normalizer normtext.Normalizer
	candidates *candidate.Generator
	reranker   *rerank.Reranker
	cache      *recallcache.Cache
	writer     *writemerge.WriteMerger
	lifecycle  *lifecycle.Lifecycle
	metrics    *metrics.Hub
	events     *events.Hub

	cfg config.Config
	now func() time.Time
}

// New builds an Engine from cfg and its already-constructed collaborators.
// reranker, metricsHub, and eventHub may be nil (a nil reranker disables
// both passes; a nil eventHub disables broadcast; a nil metricsHub disables
// metric recording).
func New(
	cfg config.Config,
	pool *connections.StoragePool,
	emb Embedder,
	normalizer normtext.Normalizer,
	reranker *rerank.Reranker,
	metricsHub *metrics.Hub,
	eventHub *events.Hub,
) *Engine {
	return &Engine{
		pool:       pool,
		embedder:   emb,
		normalizer: normalizer,
		candidates: candidate.New(emb, cfg.Search, cfg.Lifecycle),
		reranker:   reranker,
		cache:      recallcache.New(recallcache.DefaultTTL),
		writer:     writemerge.New(emb, writemerge.HeuristicConflictDetector{}, cfg.Lifecycle),
		lifecycle:  lifecycle.New(cfg.Lifecycle),
		metrics:    metricsHub,
		events:     eventHub,
		cfg:        cfg,
		now:        time.Now,
	}
}

// store resolves agent to its Store, validating the id along the way.
func (e *Engine) store(agent string) (storage.Store, error) {
	return e.pool.Get(agent)
}

func (e *Engine) publish(eventType events.EventType, agent string, payload interface{}) {
	if e.events != nil {
		e.events.Publish(eventType, agent, payload)
	}
}

func (e *Engine) recordStage(stage string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordRecallStage(stage, float64(time.Since(start).Milliseconds()))
	}
}

// errorKind classifies an error from a Store call for the HTTP
// adapter's {error:{kind,...}} envelope, following the teacher's
// sentinel-error convention generalized to a typed scheme.
type errorKind string

const (
	KindConfig     errorKind = "config"
	KindStore      errorKind = "store"
	KindEmbed      errorKind = "embed"
	KindTimeout    errorKind = "timeout"
	KindValidation errorKind = "validation"
	KindNotFound   errorKind = "not_found"
)

// Error wraps an underlying error with the kind the HTTP adapter maps to a
// status code.
type Error struct {
	Kind      errorKind
	Retryable bool
	Err       error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	kind := KindStore
	if err == storage.ErrNotFound {
		kind = KindNotFound
	}
	return &Error{Kind: kind, Err: err}
}
