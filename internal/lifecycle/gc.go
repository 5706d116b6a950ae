package lifecycle

import (
	"context"
	"fmt"

	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

// GCReport summarizes one garbage-collection pass.
type GCReport struct {
	Scanned     int
	SoftDeleted int
	HardPurged  int
}

// GC soft-deletes memories that have gone weak and stale with no access
// history, then hard-purges anything that has sat soft-deleted past the
// hard-purge window. Pinned memories are never touched by either step.
func (l *Lifecycle) GC(ctx context.Context, store storage.Store, agent string) (GCReport, error) {
	var report GCReport
	now := l.now()
	weak := l.weakStrength()
	staleDays := l.staleAgeDays()
	purgeDays := l.hardPurgeDays()

	var toPurge []string
	err := store.ScanForMaintenance(ctx, storage.Filter{Agent: agent, IncludeSoftDeleted: true}, func(m *types.Memory) error {
		report.Scanned++
		if m.Pinned {
			return nil
		}

		if m.SoftDeletedAt != nil {
			if now.Sub(*m.SoftDeletedAt).Hours()/24 > purgeDays {
				toPurge = append(toPurge, m.ID)
			}
			return nil
		}

		ageDays := now.Sub(m.CreatedAt).Hours() / 24
		if m.Strength < weak && ageDays > staleDays && m.AccessCount == 0 {
			if err := store.SoftDelete(ctx, agent, m.ID, "gc: weak and stale"); err != nil {
				return fmt.Errorf("lifecycle: gc soft-delete %s: %w", m.ID, err)
			}
			report.SoftDeleted++
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	for _, id := range toPurge {
		if err := store.HardDelete(ctx, agent, id); err != nil {
			return report, fmt.Errorf("lifecycle: gc hard-purge %s: %w", id, err)
		}
		if err := store.DeleteRelationsFor(ctx, agent, id); err != nil {
			return report, fmt.Errorf("lifecycle: gc purge relations %s: %w", id, err)
		}
		report.HardPurged++
	}
	return report, nil
}
