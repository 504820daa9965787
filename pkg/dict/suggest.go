package dict

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// Match is a fuzzy lookup result.
type Match struct {
	URI   string  `json:"uri"`
	ID    ID      `json:"id"`
	Score float64 `json:"score"`
}

// suggestThreshold filters out irrelevant results.
const suggestThreshold = 0.5

// Suggest returns up to k known URIs that look like uri.
// It is meant for "did you mean" hints when an anchor is unknown.
func (e *Encoder) Suggest(uri string, k int) []Match {
	if uri == "" || k <= 0 {
		return nil
	}

	query := strings.ToLower(uri)
	queryLocal := localName(query)

	e.mu.RLock()
	var results []Match
	for i, candidate := range e.reverse {
		score := similarity(query, queryLocal, candidate)
		if score > suggestThreshold {
			results = append(results, Match{URI: candidate, ID: ID(i), Score: score})
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// similarity combines a global Levenshtein ratio with a ratio over the
// local names (fragment or last path segment).
func similarity(query, queryLocal, candidate string) float64 {
	candidate = strings.ToLower(candidate)
	if query == candidate {
		return 1.0
	}

	global := ratio(query, candidate)
	local := ratio(queryLocal, localName(candidate))
	if local > global {
		return local * 0.95 // never outrank an exact URI match
	}
	return global
}

func ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	dist := levenshtein.Distance(a, b, nil)
	score := 1.0 - float64(dist)/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}

// localName returns the part of a URI after the last '#' or '/'.
func localName(uri string) string {
	if i := strings.LastIndexAny(uri, "#/"); i >= 0 && i < len(uri)-1 {
		return uri[i+1:]
	}
	return uri
}
