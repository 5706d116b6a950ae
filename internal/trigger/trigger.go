// Package trigger implements TriggerScorer: the recall-time decision of
// whether a query warrants a memory lookup at all, and the write-time
// scoring of how important a captured memory is.
package trigger

import (
	"regexp"
	"strings"
)

// positiveTriggersEN are English substrings that strongly suggest the
// speaker wants something recalled.
var positiveTriggersEN = []string{
	"remember", "recall", "last time", "you said", "we talked about",
	"we discussed", "what did i", "what did we", "earlier you",
	"previously", "before you said", "what was", "do you know",
	"did i tell you", "did we decide", "what's my",
}

// positiveTriggersTR are Turkish substrings with the same role.
var positiveTriggersTR = []string{
	"hatırla", "hatırlıyor musun", "hatırladın mı", "geçen", "geçende",
	"daha önce", "önceden", "ne konuştuk", "ne demiştim", "ne demiştin",
	"karar", "kararlaştır", "söylemiştim", "söylemiştin", "demiştim",
	"demiştin", "unuttun mu", "neydi", "hangisiydi", "kaçtı", "kaçıncı",
	"en son", "son kez", "son defa", "nerede kalmıştık", "ne zaman",
	"hangi gün", "ne söylemiştik", "aramızda", "konuşmuştuk",
	"anlaşmıştık", "sözleşmiştik", "belirlemiştik",
}

// antiTriggerWords are whole-message matches (after trimming punctuation)
// that indicate a pure social acknowledgment, not a recall request.
var antiTriggerWords = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "yo": {}, "sup": {},
	"selam": {}, "merhaba": {}, "günaydın": {}, "iyi akşamlar": {},
	"ok": {}, "okay": {}, "k": {}, "kk": {}, "thanks": {}, "thank you": {},
	"tamam": {}, "teşekkürler": {}, "sağol": {}, "sağ ol": {},
	"yes": {}, "no": {}, "evet": {}, "hayır": {},
}

var (
	singleEmojiPattern = regexp.MustCompile(`^[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}]$`)
	turkishPastSuffix  = regexp.MustCompile(`(d[ıiuü]|t[ıiuü])m?$`)
	englishPastSuffix  = regexp.MustCompile(`[a-z]{3,}ed$`)
)

// ShouldTrigger decides whether query naturally requires a memory lookup.
// Positive triggers win even over an apparent anti-trigger; otherwise a
// bare anti-trigger suppresses recall; anything else defaults to true,
// since an unnecessary recall is cheaper than a missed one.
func ShouldTrigger(query string) bool {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)

	if containsAny(lower, positiveTriggersEN) || containsAny(lower, positiveTriggersTR) {
		return true
	}
	if isAntiTrigger(trimmed, lower) {
		return false
	}
	if looksPastTense(lower) {
		return true
	}
	return true
}

func isAntiTrigger(trimmed, lower string) bool {
	stripped := strings.TrimRight(lower, "!.?, ")
	if _, ok := antiTriggerWords[stripped]; ok {
		return true
	}
	if singleEmojiPattern.MatchString(trimmed) {
		return true
	}
	words := strings.Fields(stripped)
	return len(words) <= 1 && stripped != ""
}

// looksPastTense is a cheap morphological heuristic, not a real tagger:
// Turkish di-past suffixes or an English "-ed" ending on the last word.
func looksPastTense(lower string) bool {
	words := strings.Fields(lower)
	if len(words) == 0 {
		return false
	}
	last := words[len(words)-1]
	return turkishPastSuffix.MatchString(last) || englishPastSuffix.MatchString(last)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
