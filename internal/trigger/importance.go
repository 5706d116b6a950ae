package trigger

import (
	"strings"
)

// decisionMarkers indicate the text records a decision or agreement, not
// just chatter.
var decisionMarkers = []string{
	"we decided", "we'll go with", "decided to", "going with", "let's go with",
	"agreed to", "the plan is", "final answer", "from now on",
	"karar verdik", "kararlaştırdık", "şöyle yapacağız", "anlaştık",
	"bundan sonra", "artık", "sonuç olarak",
}

// ruleMarkers indicate a standing rule or preference rather than a one-off
// fact.
var ruleMarkers = []string{
	"always", "never", "must", "should always", "should never", "from now on",
	"every time", "by default", "prefer", "don't ever", "do not ever",
	"her zaman", "asla", "daima", "hep", "tercih ederim", "kesinlikle",
}

// ImportanceInput carries the write-time context ScoreImportance needs
// beyond the raw text.
type ImportanceInput struct {
	IsQAPair    bool // text is the answer half of a detected question/answer pair
	FromCronJob bool // text originated from an unattended/scheduled job, not a live conversation turn
}

// cronImportanceCap bounds cron-originated memories below the threshold
// that would make them behave like a user-stated rule.
const cronImportanceCap = 0.4

// ScoreImportance estimates, in [0,1], how important text is to retain at
// full strength. It combines a handful of cheap textual signals rather
// than a learned model: presence of decision language, imperative/rule
// phrasing, word count, and whether the text closes out a
// question/answer exchange.
func ScoreImportance(text string, input ImportanceInput) float64 {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return 0
	}

	score := 0.2 // baseline: any captured memory is worth something

	if containsAny(lower, decisionMarkers) {
		score += 0.3
	}
	if containsAny(lower, ruleMarkers) {
		score += 0.25
	}
	if hasImperativeMood(lower) {
		score += 0.15
	}
	score += lengthDensityBonus(lower)
	if input.IsQAPair {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	if input.FromCronJob && score > cronImportanceCap {
		score = cronImportanceCap
	}
	return score
}

// hasImperativeMood looks for a sentence opening on a bare verb, the
// cheapest signal of rule-like phrasing without a "always/never" marker
// word, e.g. "Use metric units" or "Call me Alex".
func hasImperativeMood(lower string) bool {
	imperativeOpeners := []string{
		"use ", "call ", "set ", "avoid ", "remember to ", "make sure ",
		"don't ", "never use ", "kullan ", "yapma ", "unutma ",
	}
	for _, opener := range imperativeOpeners {
		if strings.HasPrefix(lower, opener) {
			return true
		}
	}
	return false
}

// lengthDensityBonus rewards longer, information-dense text over short
// throwaway lines, capped so a wall of text can't dominate the score.
func lengthDensityBonus(lower string) float64 {
	words := strings.Fields(lower)
	n := len(words)
	switch {
	case n < 4:
		return 0
	case n < 10:
		return 0.05
	case n < 25:
		return 0.1
	default:
		return 0.15
	}
}
