package types_test

import (
	"testing"
	"time"

	"github.com/asuman/agent-memory/pkg/types"
)

func TestIsRetrievableExcludesSoftDeleted(t *testing.T) {
	m := &types.Memory{}
	if !m.IsRetrievable() {
		t.Fatal("fresh memory should be retrievable")
	}

	now := time.Now()
	m.SoftDeletedAt = &now
	if m.IsRetrievable() {
		t.Fatal("soft-deleted memory must not be retrievable")
	}
}

func TestTierForScore(t *testing.T) {
	cases := []struct {
		score float64
		want  types.ConfidenceTier
	}{
		{0.95, types.ConfidenceHigh},
		{0.7, types.ConfidenceHigh},
		{0.69, types.ConfidenceMedium},
		{0.4, types.ConfidenceMedium},
		{0.39, types.ConfidenceLow},
		{0, types.ConfidenceLow},
	}
	for _, c := range cases {
		if got := types.TierForScore(c.score); got != c.want {
			t.Errorf("TierForScore(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}

func TestIsValidCategory(t *testing.T) {
	if !types.IsValidCategory(types.CategoryRule) {
		t.Error("rule should be a valid category")
	}
	if types.IsValidCategory(types.Category("bogus")) {
		t.Error("bogus should not be a valid category")
	}
}

func TestIsExclusiveRelation(t *testing.T) {
	if !types.IsExclusiveRelation("lives_in") {
		t.Error("lives_in should be exclusive")
	}
	if types.IsExclusiveRelation("knows") {
		t.Error("knows should not be exclusive")
	}
}
