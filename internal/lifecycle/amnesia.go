package lifecycle

import (
	"context"
	"fmt"

	"github.com/asuman/agent-memory/pkg/types"
)

// RecallFunc is the subset of the top-level recall orchestrator the amnesia
// check depends on, injected so this package never imports the engine that
// wires CandidateGen/Fuser/Reranker together.
type RecallFunc func(ctx context.Context, agent, namespace, topic string) ([]*types.RecallResult, error)

// TopicStatus reports whether recall for one topic still surfaces a
// high-confidence memory.
type TopicStatus struct {
	Topic     string
	Forgotten bool // true if no result reached ConfidenceHigh
	TopTier   types.ConfidenceTier
}

// CheckAmnesia runs recall for every topic and reports which ones no longer
// surface a HIGH-confidence result, flagging candidate forgetting. A topic
// with zero results is reported as forgotten with an empty top tier.
func CheckAmnesia(ctx context.Context, recall RecallFunc, agent, namespace string, topics []string) ([]TopicStatus, error) {
	statuses := make([]TopicStatus, 0, len(topics))
	for _, topic := range topics {
		results, err := recall(ctx, agent, namespace, topic)
		if err != nil {
			return nil, fmt.Errorf("lifecycle: amnesia recall %q: %w", topic, err)
		}
		status := TopicStatus{Topic: topic, Forgotten: true}
		for _, r := range results {
			if r.ConfidenceTier == types.ConfidenceHigh {
				status.Forgotten = false
				status.TopTier = types.ConfidenceHigh
				break
			}
			if status.TopTier == "" || (status.TopTier == types.ConfidenceLow && r.ConfidenceTier == types.ConfidenceMedium) {
				status.TopTier = r.ConfidenceTier
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
