package normtext

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TemporalRef is an absolute time range recovered from a relative-time
// phrase in the source text (e.g. "last week" -> [now-7d, now)).
type TemporalRef struct {
	Phrase string
	Start  time.Time
	End    time.Time
}

type temporalPhrase struct {
	Phrase       string `yaml:"phrase"`
	Lang         string `yaml:"lang"`
	OffsetDays   int    `yaml:"offset_days"`
	DurationDays int    `yaml:"duration_days"`
}

var (
	daysAgoEnPattern = regexp.MustCompile(`(?i)(\d+)\s+days?\s+ago`)
	gunOnceTrPattern = regexp.MustCompile(`(\d+)\s+g[uü]n\s+[oö]nce`)
)

// extractTemporalRefs scans lower for every catalog phrase and the two
// dynamic "N days ago" / "N gün önce" patterns, relative to now.
func extractTemporalRefs(lower string, catalog []temporalPhrase, now time.Time) []TemporalRef {
	var refs []TemporalRef
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for _, p := range catalog {
		if !strings.Contains(lower, foldASCII(p.Phrase)) {
			continue
		}
		start := today.AddDate(0, 0, p.OffsetDays)
		end := start.AddDate(0, 0, p.DurationDays)
		refs = append(refs, TemporalRef{Phrase: p.Phrase, Start: start, End: end})
	}

	if m := daysAgoEnPattern.FindStringSubmatch(lower); m != nil {
		refs = append(refs, dynamicDaysAgo(today, m[0], m[1]))
	}
	if m := gunOnceTrPattern.FindStringSubmatch(lower); m != nil {
		refs = append(refs, dynamicDaysAgo(today, m[0], m[1]))
	}

	return refs
}

func dynamicDaysAgo(today time.Time, phrase, countStr string) TemporalRef {
	n, err := strconv.Atoi(countStr)
	if err != nil || n < 0 {
		n = 0
	}
	start := today.AddDate(0, 0, -n)
	return TemporalRef{Phrase: phrase, Start: start, End: start.AddDate(0, 0, 1)}
}
