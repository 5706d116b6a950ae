package engine

import (
	"context"

	"github.com/asuman/agent-memory/internal/metrics"
	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

// AgentStats reports per-agent counts for /v1/stats.
type AgentStats struct {
	Agent           string
	MemoryCount     int
	VectorlessCount int
}

// Stats lists every memory matching filter for agent, for the /v1/stats route.
func (e *Engine) Stats(ctx context.Context, agent string, filter storage.Filter) (AgentStats, error) {
	store, err := e.store(agent)
	if err != nil {
		return AgentStats{}, &Error{Kind: KindValidation, Err: err}
	}
	filter.Agent = agent
	records, err := store.List(ctx, filter, 0, 0)
	if err != nil {
		return AgentStats{}, wrapStoreErr(err)
	}
	stats := AgentStats{Agent: agent, MemoryCount: len(records)}
	for _, m := range records {
		if m.EmbeddingStatus != types.EmbeddingPresent {
			stats.VectorlessCount++
		}
	}
	if e.metrics != nil {
		e.metrics.SetMemoryCount(agent, int64(stats.MemoryCount))
		e.metrics.SetVectorlessCount(int64(stats.VectorlessCount))
	}
	return stats, nil
}

// Agents lists every agent id the pool has a store open for.
func (e *Engine) Agents() []string {
	all := e.pool.All()
	agents := make([]string, 0, len(all))
	for agent := range all {
		agents = append(agents, agent)
	}
	return agents
}

// MetricsSnapshot exposes the JSON metrics snapshot for /v1/metrics.
func (e *Engine) MetricsSnapshot() metrics.Snapshot {
	if e.metrics == nil {
		return metrics.Snapshot{}
	}
	return e.metrics.Snapshot()
}

// MetricsPrometheus renders the Prometheus text exposition for /v1/metrics/prometheus.
func (e *Engine) MetricsPrometheus() string {
	if e.metrics == nil {
		return ""
	}
	return e.metrics.PrometheusText()
}

// Export returns every record matching filter, for /v1/export and the
// backup manager's snapshot path.
func (e *Engine) Export(ctx context.Context, agent string, filter storage.Filter) ([]*types.Memory, error) {
	store, err := e.store(agent)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Err: err}
	}
	filter.Agent = agent
	filter.IncludeSoftDeleted = true
	records, err := store.Export(ctx, filter)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return records, nil
}

// Import upserts records for agent, for /v1/import and backup restore.
func (e *Engine) Import(ctx context.Context, agent string, records []*types.Memory) (int, error) {
	store, err := e.store(agent)
	if err != nil {
		return 0, &Error{Kind: KindValidation, Err: err}
	}
	n, err := store.Import(ctx, records)
	if err != nil {
		return n, wrapStoreErr(err)
	}
	return n, nil
}

// Health reports whether agent's Store answers a trivial List call. A nil
// error means healthy; deep checks (embedder reachability, disk space) are
// the HTTP adapter's /v1/health/deep concern, not the engine's.
func (e *Engine) Health(ctx context.Context, agent string) error {
	store, err := e.store(agent)
	if err != nil {
		return &Error{Kind: KindValidation, Err: err}
	}
	_, err = store.List(ctx, storage.Filter{Agent: agent}, 1, 0)
	if err != nil {
		return wrapStoreErr(err)
	}
	return nil
}
