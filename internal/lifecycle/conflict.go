package lifecycle

import (
	"context"
	"fmt"

	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

// exclusivePredicates names relation predicates where only one object should
// hold true for a subject at a time (a person lives in one place, works at
// one employer, has one status).
var exclusivePredicates = map[string]bool{
	"lives_in": true,
	"works_at": true,
	"status":   true,
}

// ConflictReport summarizes one exclusive-relation conflict pass.
type ConflictReport struct {
	Scanned   int
	Resolved  int // newer assertion won, older superseded
	Ambiguous int // margin too small to resolve, both kept
}

// ResolveExclusiveConflicts scans every exclusive predicate's relations for
// agent and, within each subject, compares the newest assertion's backing
// memory against every older one. If the newest memory's importance exceeds
// an older one's by more than the conflict margin, the older memory is
// superseded. Otherwise both are left in place, flagged ambiguous. A pinned
// memory is never superseded, regardless of margin.
func (l *Lifecycle) ResolveExclusiveConflicts(ctx context.Context, store storage.Store, agent string) (ConflictReport, error) {
	var report ConflictReport
	margin := l.conflictMargin()

	for predicate := range exclusivePredicates {
		rels, err := store.RelationsByPredicate(ctx, agent, predicate)
		if err != nil {
			return report, fmt.Errorf("lifecycle: relations for %s: %w", predicate, err)
		}
		bySubject := map[string][]types.Relation{}
		for _, rel := range rels {
			bySubject[rel.SubjectID] = append(bySubject[rel.SubjectID], rel)
		}

		for _, group := range bySubject {
			if len(group) < 2 {
				continue
			}
			memories := make([]*types.Memory, 0, len(group))
			for _, rel := range group {
				m, err := store.Get(ctx, agent, rel.ObjectID)
				if err != nil {
					continue
				}
				if !m.IsRetrievable() {
					continue
				}
				memories = append(memories, m)
			}
			report.Scanned += len(memories)
			if len(memories) < 2 {
				continue
			}

			newest := memories[0]
			for _, m := range memories[1:] {
				if m.CreatedAt.After(newest.CreatedAt) {
					newest = m
				}
			}
			for _, m := range memories {
				if m.ID == newest.ID {
					continue
				}
				if m.Pinned {
					continue
				}
				if newest.Importance-m.Importance > margin {
					now := l.now().Unix()
					patch := storage.Patch{SoftDeletedAt: &now, SupersededBy: &newest.ID}
					if err := store.UpdateFields(ctx, agent, m.ID, patch); err != nil {
						return report, fmt.Errorf("lifecycle: supersede %s: %w", m.ID, err)
					}
					report.Resolved++
				} else {
					report.Ambiguous++
				}
			}
		}
	}
	return report, nil
}
