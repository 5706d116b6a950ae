// Package types defines the core data structures shared across the recall
// and lifecycle engine: memories, recall results, and relation side-table
// rows.
package types

// ValidCategories lists the fixed memory categories recognized by
// WriteMerge and Lifecycle's conflict detector.
var ValidCategories = []Category{
	CategoryQAPair,
	CategoryUser,
	CategoryAssistant,
	CategoryFact,
	CategoryPreference,
	CategoryRule,
	CategoryConversation,
}

// IsValidCategory reports whether c is one of ValidCategories.
func IsValidCategory(c Category) bool {
	for _, v := range ValidCategories {
		if v == c {
			return true
		}
	}
	return false
}

// ExclusiveRelationPredicates names the relation predicates Lifecycle's
// conflict detector treats as single-valued per agent: a newer assertion
// with sufficient confidence margin supersedes the prior holder instead of
// coexisting with it (e.g. an agent has exactly one current lives_in).
var ExclusiveRelationPredicates = []string{
	"lives_in",
	"works_at",
	"status",
}

// IsExclusiveRelation reports whether predicate is in ExclusiveRelationPredicates.
func IsExclusiveRelation(predicate string) bool {
	for _, p := range ExclusiveRelationPredicates {
		if p == predicate {
			return true
		}
	}
	return false
}
