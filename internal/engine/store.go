package engine

import (
	"context"

	"github.com/asuman/agent-memory/internal/events"
	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/internal/trigger"
	"github.com/asuman/agent-memory/internal/writemerge"
	"github.com/asuman/agent-memory/pkg/types"
)

// StoreOne inserts (or merges) a single memory through WriteMerge, for the
// /v1/store route.
func (e *Engine) StoreOne(ctx context.Context, agent, text string, category types.Category, namespace string) (writemerge.Result, error) {
	return e.writeOne(ctx, agent, text, category, namespace, 0, false)
}

// Rule inserts text as a pinned, maximal-importance rule, for /v1/rule.
func (e *Engine) Rule(ctx context.Context, agent, text, namespace string) (writemerge.Result, error) {
	return e.writeOne(ctx, agent, text, types.CategoryRule, namespace, 1.0, true)
}

func (e *Engine) writeOne(ctx context.Context, agent, text string, category types.Category, namespace string, forcedImportance float64, pinned bool) (writemerge.Result, error) {
	store, err := e.store(agent)
	if err != nil {
		return writemerge.Result{}, &Error{Kind: KindValidation, Err: err}
	}
	normalized, err := e.normalizer.Normalize(text)
	if err != nil {
		return writemerge.Result{}, &Error{Kind: KindValidation, Err: err}
	}

	importance := forcedImportance
	if importance == 0 {
		importance = trigger.ScoreImportance(text, trigger.ImportanceInput{})
	}

	m := &types.Memory{
		ID:              types.DeriveID(agent, normalized.Text),
		Agent:           agent,
		Text:            text,
		NormalizedText:  normalized.Text,
		Category:        category,
		Importance:      importance,
		Strength:        1.0,
		Pinned:          pinned,
		Namespace:       namespace,
		EmbeddingStatus: types.EmbeddingPending,
	}

	res, err := e.writer.Write(ctx, store, m)
	if err != nil {
		return writemerge.Result{}, &Error{Kind: KindStore, Err: err, Retryable: true}
	}
	if pinned {
		if err := store.Pin(ctx, agent, res.MemoryID); err != nil {
			return res, &Error{Kind: KindStore, Err: err, Retryable: true}
		}
	}
	e.publish(events.EventMemoryCaptured, agent, map[string]interface{}{"id": res.MemoryID, "action": res.Action})
	return res, nil
}

// Forget removes a memory by id (hard-delete) or, given a query instead,
// soft-deletes the single closest match ("top-1 forget").
func (e *Engine) Forget(ctx context.Context, agent, id, query string) error {
	store, err := e.store(agent)
	if err != nil {
		return &Error{Kind: KindValidation, Err: err}
	}

	if id != "" {
		if err := store.HardDelete(ctx, agent, id); err != nil {
			return wrapStoreErr(err)
		}
		if err := store.DeleteRelationsFor(ctx, agent, id); err != nil {
			return wrapStoreErr(err)
		}
		return nil
	}

	normalized, err := e.normalizer.Normalize(query)
	if err != nil {
		return &Error{Kind: KindValidation, Err: err}
	}
	vec, err := e.embedder.EmbedForQuery(ctx, store, normalized.Text)
	if err != nil {
		return &Error{Kind: KindEmbed, Err: err, Retryable: true}
	}
	matches, err := store.VectorTopK(ctx, vec, 1, storage.Filter{Agent: agent})
	if err != nil {
		return wrapStoreErr(err)
	}
	if len(matches) == 0 {
		return &Error{Kind: KindNotFound, Err: storage.ErrNotFound}
	}
	return wrapStoreErr(store.SoftDelete(ctx, agent, matches[0].ID, "forget: query match"))
}

// Pin / Unpin delegate to Lifecycle, scoped to the agent's Store.
func (e *Engine) Pin(ctx context.Context, agent, id string) error {
	store, err := e.store(agent)
	if err != nil {
		return &Error{Kind: KindValidation, Err: err}
	}
	return wrapStoreErr(e.lifecycle.Pin(ctx, store, agent, id))
}

func (e *Engine) Unpin(ctx context.Context, agent, id string) error {
	store, err := e.store(agent)
	if err != nil {
		return &Error{Kind: KindValidation, Err: err}
	}
	return wrapStoreErr(e.lifecycle.Unpin(ctx, store, agent, id))
}
