package lifecycle

import (
	"context"
	"fmt"

	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

// ConsolidateReport summarizes one consolidation pass.
type ConsolidateReport struct {
	Scanned  int
	Merged   int // number of losers soft-deleted into a winner
	Clusters int // number of multi-member clusters found
}

// unionFind is a minimal disjoint-set over a fixed slice index space.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// Consolidate groups memories in (agent, namespace) whose pairwise cosine
// similarity is at or above the consolidation threshold into connected
// components via union-find, then folds every loser in a component into the
// single winner: a pinned member if there is one, otherwise highest
// importance, tie-broken by highest strength, then by oldest created_at.
// Pinned losers are skipped and left as they are. The winner absorbs the losers' reinforce_count and the
// max of their strength/importance; losers are soft-deleted with
// superseded_by set to the winner, and any knowledge-graph relation pointing
// at a loser is rewritten to point at the winner.
func (l *Lifecycle) Consolidate(ctx context.Context, store storage.Store, agent, namespace string) (ConsolidateReport, error) {
	var report ConsolidateReport

	var members []*types.Memory
	err := store.ScanForMaintenance(ctx, storage.Filter{Agent: agent, Namespace: namespace}, func(m *types.Memory) error {
		report.Scanned++
		if len(m.Embedding) > 0 {
			members = append(members, m)
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	threshold := l.consolidateThreshold()
	uf := newUnionFind(len(members))
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if cosineSimilarity(members[i].Embedding, members[j].Embedding) >= threshold {
				uf.union(i, j)
			}
		}
	}

	clusters := map[int][]*types.Memory{}
	for i, m := range members {
		root := uf.find(i)
		clusters[root] = append(clusters[root], m)
	}

	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}
		report.Clusters++
		winner := pickWinner(cluster)
		for _, loser := range cluster {
			if loser.ID == winner.ID {
				continue
			}
			if loser.Pinned {
				continue
			}
			if err := l.mergeLoserIntoWinner(ctx, store, agent, winner, loser); err != nil {
				return report, err
			}
			report.Merged++
		}
	}
	return report, nil
}

// pickWinner prefers a pinned memory over any unpinned one regardless of
// importance/strength/age, so a pinned memory is never at risk of being
// picked as the loser it would otherwise be soft-deleted as.
func pickWinner(cluster []*types.Memory) *types.Memory {
	winner := cluster[0]
	for _, m := range cluster[1:] {
		switch {
		case m.Pinned && !winner.Pinned:
			winner = m
		case !m.Pinned && winner.Pinned:
			continue
		case m.Importance > winner.Importance:
			winner = m
		case m.Importance == winner.Importance && m.Strength > winner.Strength:
			winner = m
		case m.Importance == winner.Importance && m.Strength == winner.Strength && m.CreatedAt.Before(winner.CreatedAt):
			winner = m
		}
	}
	return winner
}

func (l *Lifecycle) mergeLoserIntoWinner(ctx context.Context, store storage.Store, agent string, winner, loser *types.Memory) error {
	strength := winner.Strength
	if loser.Strength > strength {
		strength = loser.Strength
	}
	importance := winner.Importance
	if loser.Importance > importance {
		importance = loser.Importance
	}
	reinforceCount := winner.ReinforceCount + loser.ReinforceCount

	patch := storage.Patch{
		Strength:       &strength,
		Importance:     &importance,
		ReinforceCount: &reinforceCount,
	}
	if err := store.UpdateFields(ctx, agent, winner.ID, patch); err != nil {
		return fmt.Errorf("lifecycle: consolidate winner update %s: %w", winner.ID, err)
	}

	now := l.now().Unix()
	loserPatch := storage.Patch{SoftDeletedAt: &now, SupersededBy: &winner.ID}
	if err := store.UpdateFields(ctx, agent, loser.ID, loserPatch); err != nil {
		return fmt.Errorf("lifecycle: consolidate loser soft-delete %s: %w", loser.ID, err)
	}
	if err := store.RewriteRelations(ctx, agent, loser.ID, winner.ID); err != nil {
		return fmt.Errorf("lifecycle: consolidate rewrite relations %s->%s: %w", loser.ID, winner.ID, err)
	}
	winner.Strength, winner.Importance, winner.ReinforceCount = strength, importance, reinforceCount
	return nil
}
