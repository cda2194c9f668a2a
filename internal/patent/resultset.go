package patent

import (
	"sort"
	"strings"
)

// DefaultMaxResults caps a research result set when no limit is configured.
const DefaultMaxResults = 10

// ResultSet is deduplicated by URL, sorted by descending relevance and capped.
// Build one with Rank; the zero value is a valid empty set.
type ResultSet []Reference

func (s ResultSet) IsEmpty() bool { return len(s) == 0 }

func (s ResultSet) Clone() ResultSet {
	if s == nil {
		return nil
	}
	out := make(ResultSet, len(s))
	copy(out, s)
	return out
}

func (s ResultSet) CountBySimilarity(sim Similarity) int {
	n := 0
	for _, r := range s {
		if r.Similarity == sim {
			n++
		}
	}
	return n
}

func (s ResultSet) CountByRisk(risk LegalRisk) int {
	n := 0
	for _, r := range s {
		if r.Risk() == risk {
			n++
		}
	}
	return n
}

// Rank merges refs into a ResultSet. Duplicate URLs keep the highest score
// (first seen on ties); ordering is score descending, then URL ascending.
// max <= 0 falls back to DefaultMaxResults.
func Rank(refs []Reference, max int) ResultSet {
	if max <= 0 {
		max = DefaultMaxResults
	}
	byURL := make(map[string]int, len(refs))
	merged := make([]Reference, 0, len(refs))
	for _, ref := range refs {
		key := identityKey(ref.URL)
		if key == "" {
			continue
		}
		if idx, ok := byURL[key]; ok {
			if ref.RelevanceScore > merged[idx].RelevanceScore {
				merged[idx] = ref
			}
			continue
		}
		byURL[key] = len(merged)
		merged = append(merged, ref)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].RelevanceScore != merged[j].RelevanceScore {
			return merged[i].RelevanceScore > merged[j].RelevanceScore
		}
		return merged[i].URL < merged[j].URL
	})
	if len(merged) > max {
		merged = merged[:max]
	}
	return ResultSet(merged)
}

func identityKey(url string) string {
	return strings.TrimSpace(url)
}
