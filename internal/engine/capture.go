package engine

import (
	"context"
	"fmt"

	"github.com/asuman/agent-memory/internal/events"
	"github.com/asuman/agent-memory/internal/trigger"
	"github.com/asuman/agent-memory/internal/writemerge"
	"github.com/asuman/agent-memory/pkg/types"
)

// CaptureMessage is one raw message handed to Capture.
type CaptureMessage struct {
	Text      string
	Category  types.Category // zero value defaults to types.CategoryConversation
	Session   string
	Source    string
	Namespace string
	IsQAPair  bool
	FromCron  bool
}

// CaptureOutcome reports what Capture did with one message.
type CaptureOutcome struct {
	Memory *types.Memory
	Result writemerge.Result
}

// Capture runs the ingest pipeline for a batch of messages: Normalizer ->
// TriggerScorer(importance) -> WriteMerge (which embeds internally via its
// injected Embedder). Messages are processed in order; the first
// per-message failure stops the batch, and Capture returns the outcomes of
// the messages before it together with the error. Later messages are not
// attempted.
func (e *Engine) Capture(ctx context.Context, agent string, messages []CaptureMessage) ([]CaptureOutcome, error) {
	if _, err := e.store(agent); err != nil {
		return nil, &Error{Kind: KindValidation, Err: err}
	}

	outcomes := make([]CaptureOutcome, 0, len(messages))
	for _, msg := range messages {
		outcome, err := e.captureOne(ctx, agent, msg)
		if err != nil {
			return outcomes, &Error{Kind: KindStore, Err: err, Retryable: true}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (e *Engine) captureOne(ctx context.Context, agent string, msg CaptureMessage) (CaptureOutcome, error) {
	normalized, err := e.normalizer.Normalize(msg.Text)
	if err != nil {
		return CaptureOutcome{}, fmt.Errorf("engine: normalize: %w", err)
	}

	importance := trigger.ScoreImportance(msg.Text, trigger.ImportanceInput{
		IsQAPair:    msg.IsQAPair,
		FromCronJob: msg.FromCron,
	})

	category := msg.Category
	if category == "" {
		category = types.CategoryConversation
	}

	m := &types.Memory{
		ID:              types.DeriveID(agent, normalized.Text),
		Agent:           agent,
		Text:            msg.Text,
		NormalizedText:  normalized.Text,
		Category:        category,
		Importance:      importance,
		Strength:        1.0,
		Session:         msg.Session,
		Source:          msg.Source,
		Namespace:       msg.Namespace,
		EmbeddingStatus: types.EmbeddingPending,
	}

	store, err := e.store(agent)
	if err != nil {
		return CaptureOutcome{}, err
	}
	res, err := e.writer.Write(ctx, store, m)
	if err != nil {
		return CaptureOutcome{}, err
	}

	e.publish(events.EventMemoryCaptured, agent, map[string]interface{}{
		"id":     res.MemoryID,
		"action": res.Action,
	})
	if e.metrics != nil {
		switch m.EmbeddingStatus {
		case types.EmbeddingPresent:
			e.metrics.RecordEmbed(true, false)
		case types.EmbeddingFailed:
			e.metrics.RecordEmbed(false, false)
		}
	}

	return CaptureOutcome{Memory: m, Result: res}, nil
}
