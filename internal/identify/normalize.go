package identify

import (
	"math"
	"strings"

	"github.com/kalambet/leafwise/internal/scan"
)

// MaxSuggestions caps the related plants attached to a result.
const MaxSuggestions = 5

// NormalizeSuggestions merges suggestion lists in priority order. Entries
// without a name, entries naming the primary plant and entries whose
// common or scientific name repeats an earlier one (case-insensitively)
// are dropped. Confidence is clamped to [0,1] and at most MaxSuggestions
// are kept.
func NormalizeSuggestions(primaryCommon, primaryScientific string, lists ...[]scan.Suggestion) []scan.Suggestion {
	seen := make(map[string]bool)
	mark := func(names ...string) {
		for _, n := range names {
			if k := nameKey(n); k != "" {
				seen[k] = true
			}
		}
	}
	mark(primaryCommon, primaryScientific)

	var out []scan.Suggestion
	for _, list := range lists {
		for _, s := range list {
			if len(out) == MaxSuggestions {
				return out
			}
			s.CommonName = strings.TrimSpace(s.CommonName)
			s.ScientificName = strings.TrimSpace(s.ScientificName)
			ck, sk := nameKey(s.CommonName), nameKey(s.ScientificName)
			if ck == "" && sk == "" {
				continue
			}
			if (ck != "" && seen[ck]) || (sk != "" && seen[sk]) {
				continue
			}
			mark(s.CommonName, s.ScientificName)
			if s.CommonName == "" {
				s.CommonName = s.ScientificName
			}
			s.Confidence = clamp01(s.Confidence)
			out = append(out, s)
		}
	}
	return out
}

func nameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
