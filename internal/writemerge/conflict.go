package writemerge

import "strings"

// negationMarkers are tokens whose presence flips a statement's polarity.
// Presence of one in exactly one of the two texts, over substantially
// overlapping subject matter, is the cheapest signal that a rule or
// preference memory now contradicts an existing one rather than merely
// restating it (e.g. "I like coffee" vs "I don't like coffee anymore").
var negationMarkers = []string{
	"not", "no longer", "isn't", "doesn't", "never", "stopped", "don't", "won't",
	"değil", "artık değil", "vazgeçtim", "yapmıyorum", "istemiyorum",
}

// ConflictDetector reports whether newText contradicts existingText for the
// same subject. WriteMerge only consults it for rule/preference category
// matches above the merge-similarity threshold.
type ConflictDetector interface {
	Conflicts(existingText, newText string) bool
}

// HeuristicConflictDetector is a cheap stand-in for real contradiction
// detection: it flags a conflict when the two texts share substantial
// token overlap (same topic) but differ in negation polarity.
type HeuristicConflictDetector struct{}

// Conflicts implements ConflictDetector.
func (HeuristicConflictDetector) Conflicts(existingText, newText string) bool {
	existingNeg := hasNegation(existingText)
	newNeg := hasNegation(newText)
	if existingNeg == newNeg {
		return false
	}
	return tokenOverlapRatio(existingText, newText) >= 0.4
}

func hasNegation(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range negationMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func tokenOverlapRatio(a, b string) float64 {
	aTokens := strings.Fields(strings.ToLower(a))
	bSet := make(map[string]struct{}, len(strings.Fields(b)))
	for _, t := range strings.Fields(strings.ToLower(b)) {
		bSet[t] = struct{}{}
	}
	if len(aTokens) == 0 || len(bSet) == 0 {
		return 0
	}
	shared := 0
	for _, t := range aTokens {
		if _, ok := bSet[t]; ok {
			shared++
		}
	}
	denom := len(aTokens)
	if len(bSet) < denom {
		denom = len(bSet)
	}
	return float64(shared) / float64(denom)
}
