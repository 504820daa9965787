package extend

import "strings"

// Filter post-processes suggestions before they reach a user.
type Filter struct {
	// ExcludePrefixes drops suggestions whose predicate or object starts
	// with any of these namespaces.
	ExcludePrefixes []string
	// Existing holds triples already in the model, keyed by TripleKey.
	Existing map[string]bool
}

// TripleKey is the key Filter.Existing uses for a triple.
func TripleKey(s, p, o string) string {
	return s + "\x00" + p + "\x00" + o
}

// Apply returns the suggestions that pass the filter, order preserved.
func (f Filter) Apply(in []Suggestion) []Suggestion {
	out := make([]Suggestion, 0, len(in))
	for _, s := range in {
		if f.excluded(s.Predicate) || f.excluded(s.Object) {
			continue
		}
		if f.Existing[TripleKey(s.Subject, s.Predicate, s.Object)] {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (f Filter) excluded(uri string) bool {
	for _, p := range f.ExcludePrefixes {
		if strings.HasPrefix(uri, p) {
			return true
		}
	}
	return false
}
