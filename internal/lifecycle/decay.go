package lifecycle

import (
	"context"
	"fmt"
	"math"

	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

// DecayReport summarizes one decay tick.
type DecayReport struct {
	Scanned int
	Updated int
}

// Decay applies the Ebbinghaus strength formula to every non-pinned memory
// for agent: strength *= exp(-Δt_days * base_rate / (1 + alpha*importance)),
// where Δt_days is measured since last_reinforced_at. Reinforcement events
// (which bump last_reinforced_at) implicitly reset the effective Δt, so a
// freshly reinforced memory decays as if newly created.
func (l *Lifecycle) Decay(ctx context.Context, store storage.Store, agent string) (DecayReport, error) {
	var report DecayReport
	now := l.now()
	base, alpha := l.decayBaseRate(), l.decayAlpha()

	err := store.ScanForMaintenance(ctx, storage.Filter{Agent: agent}, func(m *types.Memory) error {
		report.Scanned++
		if m.Pinned {
			return nil
		}
		ageDays := now.Sub(m.LastReinforcedAt).Hours() / 24
		if ageDays <= 0 {
			return nil
		}
		factor := math.Exp(-ageDays * base / (1 + alpha*m.Importance))
		newStrength := m.Strength * factor
		if math.Abs(newStrength-m.Strength) < 1e-4 {
			return nil
		}
		if err := store.UpdateFields(ctx, agent, m.ID, storage.Patch{Strength: &newStrength}); err != nil {
			return fmt.Errorf("lifecycle: decay update %s: %w", m.ID, err)
		}
		report.Updated++
		return nil
	})
	return report, err
}
