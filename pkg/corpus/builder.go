package corpus

import (
	"log/slog"

	"github.com/duynguyendang/lmerec/pkg/dict"
)

// Result is everything Build derives from a batch of raw triples.
type Result struct {
	Classes    *dict.Encoder
	Predicates *dict.Encoder
	Corpus     *Corpus
	Graph      *Graph
}

// Build enumerates the vocabulary, encodes every triple and derives the
// co-occurrence graph. An empty input yields empty registries, an empty
// corpus and an empty graph; downstream training treats that as "no signal".
func Build(raw []RawTriple) *Result {
	classes := dict.NewEncoder(dict.KindClass)
	predicates := dict.NewEncoder(dict.KindPredicate)

	triples := make([]Triple, 0, len(raw))
	for _, rt := range raw {
		triples = append(triples, Triple{
			Subject:   classes.GetOrCreateID(rt.Subject),
			Predicate: predicates.GetOrCreateID(rt.Predicate),
			Object:    classes.GetOrCreateID(rt.Object),
		})
	}

	c := NewCorpus(triples)
	g := NewGraph(c, classes.Len())

	slog.Info("corpus built",
		"triples", c.Len(),
		"classes", classes.Len(),
		"predicates", predicates.Len(),
		"edges", g.EdgeCount(),
	)

	return &Result{
		Classes:    classes,
		Predicates: predicates,
		Corpus:     c,
		Graph:      g,
	}
}

// Encode maps raw triples through existing registries.
// Triples with any unknown component are skipped and counted.
func Encode(raw []RawTriple, classes, predicates dict.Dictionary) ([]Triple, int) {
	out := make([]Triple, 0, len(raw))
	skipped := 0
	for _, rt := range raw {
		s, okS := classes.Lookup(rt.Subject)
		p, okP := predicates.Lookup(rt.Predicate)
		o, okO := classes.Lookup(rt.Object)
		if !okS || !okP || !okO {
			skipped++
			continue
		}
		out = append(out, Triple{Subject: s, Predicate: p, Object: o})
	}
	return out, skipped
}

// Decode maps an encoded triple back to URIs.
func Decode(t Triple, classes, predicates dict.Dictionary) (RawTriple, error) {
	s, err := classes.String(t.Subject)
	if err != nil {
		return RawTriple{}, err
	}
	p, err := predicates.String(t.Predicate)
	if err != nil {
		return RawTriple{}, err
	}
	o, err := classes.String(t.Object)
	if err != nil {
		return RawTriple{}, err
	}
	return RawTriple{Subject: s, Predicate: p, Object: o}, nil
}
