package lifecycle

import (
	"context"
	"fmt"

	"github.com/asuman/agent-memory/internal/storage"
)

// Pin freezes a memory's strength at its current value: Store.Pin sets the
// pinned flag, and Decay skips any memory with pinned=true entirely, so no
// further write is needed here beyond the flag itself.
func (l *Lifecycle) Pin(ctx context.Context, store storage.Store, agent, id string) error {
	if err := store.Pin(ctx, agent, id); err != nil {
		return fmt.Errorf("lifecycle: pin %s: %w", id, err)
	}
	return nil
}

// Unpin clears the pinned flag and resets last_reinforced_at to now, so
// decay resumes counting Δt from the strength the memory was frozen at
// rather than applying the full gap since the last reinforcement before the
// pin in one tick.
func (l *Lifecycle) Unpin(ctx context.Context, store storage.Store, agent, id string) error {
	if err := store.Unpin(ctx, agent, id); err != nil {
		return fmt.Errorf("lifecycle: unpin %s: %w", id, err)
	}
	nowUnix := l.now().Unix()
	patch := storage.Patch{LastReinforcedAt: &nowUnix}
	if err := store.UpdateFields(ctx, agent, id, patch); err != nil {
		return fmt.Errorf("lifecycle: unpin reset last_reinforced_at %s: %w", id, err)
	}
	return nil
}
