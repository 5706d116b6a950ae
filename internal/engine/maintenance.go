package engine

import (
	"context"

	"github.com/asuman/agent-memory/internal/connections"
	"github.com/asuman/agent-memory/internal/events"
	"github.com/asuman/agent-memory/internal/lifecycle"
	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

// MaintenanceReport aggregates a lifecycle pass across every agent it ran
// against, for the agent="all" fan-out case.
type MaintenanceReport struct {
	PerAgent map[string]interface{}
	Errors   map[string]error
}

func newMaintenanceReport() MaintenanceReport {
	return MaintenanceReport{PerAgent: map[string]interface{}{}, Errors: map[string]error{}}
}

// Decay runs Ebbinghaus strength decay for agent, or every open agent when
// agent is connections.AllAgents.
func (e *Engine) Decay(ctx context.Context, agent string) (MaintenanceReport, error) {
	report := newMaintenanceReport()
	err := e.forEachAgent(agent, func(a string, store storage.Store) error {
		r, err := e.lifecycle.Decay(ctx, store, a)
		report.PerAgent[a] = r
		if err != nil {
			report.Errors[a] = err
			return nil // log-and-continue: per-agent failure doesn't abort the sweep
		}
		e.publish(events.EventDecayCompleted, a, r)
		return nil
	})
	return report, err
}

// Consolidate merges near-duplicate memories within (agent, namespace).
// namespace is applied identically to every agent in an "all" sweep.
func (e *Engine) Consolidate(ctx context.Context, agent, namespace string) (MaintenanceReport, error) {
	report := newMaintenanceReport()
	err := e.forEachAgent(agent, func(a string, store storage.Store) error {
		r, err := e.lifecycle.Consolidate(ctx, store, a, namespace)
		report.PerAgent[a] = r
		if err != nil {
			report.Errors[a] = err
			return nil
		}
		e.publish(events.EventConsolidateCompleted, a, r)
		return nil
	})
	return report, err
}

// Compress resolves exclusive-predicate conflicts (lives_in, works_at,
// status, ...), superseding the losing assertion where the newer one carries
// enough extra importance to be confident. It is the /v1/compress route:
// consolidate folds duplicate phrasing of the same fact, compress folds
// competing versions of a fact that changed over time.
func (e *Engine) Compress(ctx context.Context, agent string) (MaintenanceReport, error) {
	report := newMaintenanceReport()
	err := e.forEachAgent(agent, func(a string, store storage.Store) error {
		r, err := e.lifecycle.ResolveExclusiveConflicts(ctx, store, a)
		report.PerAgent[a] = r
		if err != nil {
			report.Errors[a] = err
		}
		return nil
	})
	return report, err
}

// GC soft-deletes weak, stale, unaccessed memories and hard-purges anything
// already past the soft-delete retention window.
func (e *Engine) GC(ctx context.Context, agent string) (MaintenanceReport, error) {
	report := newMaintenanceReport()
	err := e.forEachAgent(agent, func(a string, store storage.Store) error {
		r, err := e.lifecycle.GC(ctx, store, a)
		report.PerAgent[a] = r
		if err != nil {
			report.Errors[a] = err
			return nil
		}
		e.publish(events.EventGCCompleted, a, r)
		return nil
	})
	return report, err
}

// AmnesiaCheck asks, for each topic, whether the agent still has a
// high-confidence memory about it, by routing through the engine's own
// Recall so the check exercises the real retrieval pipeline rather than a
// raw store scan.
func (e *Engine) AmnesiaCheck(ctx context.Context, agent, namespace string, topics []string) ([]lifecycle.TopicStatus, error) {
	recall := func(ctx context.Context, agent, namespace, topic string) ([]*types.RecallResult, error) {
		outcome, err := e.Recall(ctx, RecallRequest{Agent: agent, Namespace: namespace, Query: topic, Limit: 5, Force: true})
		if err != nil {
			return nil, err
		}
		return outcome.Results, nil
	}
	return lifecycle.CheckAmnesia(ctx, recall, agent, namespace, topics)
}

// forEachAgent resolves agent to a single Store, or fans out across every
// open store in the pool when agent is connections.AllAgents.
func (e *Engine) forEachAgent(agent string, fn func(agent string, store storage.Store) error) error {
	if agent == connections.AllAgents {
		return e.pool.ForEach(fn)
	}
	store, err := e.store(agent)
	if err != nil {
		return &Error{Kind: KindValidation, Err: err}
	}
	return fn(agent, store)
}
