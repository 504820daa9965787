// Package extend turns trained link statistics and node embeddings into
// ranked Linked Model Extension suggestions.
package extend

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/duynguyendang/lmerec/pkg/embed"
	"github.com/duynguyendang/lmerec/pkg/stats"
)

// LinkPredictor returns the predicate frequency vector for a pair.
type LinkPredictor interface {
	PredictLink(anchor, candidate dict.ID) []float64
}

// NodeRecommender proposes candidate nodes for a query set.
type NodeRecommender interface {
	Nearest(ids []dict.ID, topn int) (embed.Result, error)
}

// Suggestion is one proposed (subject, predicate, object) extension.
type Suggestion struct {
	Subject        string  `json:"subject"`
	Predicate      string  `json:"predicate"`
	Object         string  `json:"object"`
	Confidence     float64 `json:"confidence"`
	LinkFrequency  float64 `json:"link_frequency"`
	NodeSimilarity float64 `json:"node_similarity"`

	// Filled in by Annotate.
	Kind                 ObjectKind `json:"kind,omitempty"`
	PredicateLabel       string     `json:"predicate_label,omitempty"`
	PredicateDescription string     `json:"predicate_description,omitempty"`
	ObjectLabel          string     `json:"object_label,omitempty"`
	ObjectDescription    string     `json:"object_description,omitempty"`
}

// Extender answers extension queries over one set of trained artifacts.
// It holds no mutable state and is safe for concurrent use.
type Extender struct {
	classes    dict.Dictionary
	predicates dict.Dictionary
	links      LinkPredictor
	nodes      NodeRecommender
	opts       Options
}

// New creates an Extender.
func New(classes, predicates dict.Dictionary, links LinkPredictor, nodes NodeRecommender, opts Options) *Extender {
	return &Extender{
		classes:    classes,
		predicates: predicates,
		links:      links,
		nodes:      nodes,
		opts:       opts,
	}
}

// Options returns the options e was created with.
func (e *Extender) Options() Options {
	return e.opts
}

type scoredTriple struct {
	predicate  dict.ID
	candidate  dict.ID
	frequency  float64
	similarity float64
	confidence float64
}

// Generate proposes up to limit extensions around anchor, ranked by
// confidence descending. Ties keep discovery order.
//
// An unknown anchor, unknown context URIs or the absence of embedding or
// statistical signal yield fewer or no suggestions, never an error. Only an
// id space mismatch between the artifacts is returned as an error.
func (e *Extender) Generate(anchor string, context []string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}

	anchorID, ok := e.classes.Lookup(anchor)
	if !ok {
		slog.Debug("anchor not in registry", "anchor", anchor)
		return nil, nil
	}

	query := make([]dict.ID, 0, len(context)+1)
	for _, uri := range context {
		id, ok := e.classes.Lookup(uri)
		if !ok {
			slog.Debug("context uri not in registry", "uri", uri)
			continue
		}
		query = append(query, id)
	}
	query = append(query, anchorID)

	res, err := e.nodes.Nearest(query, e.opts.CandidateCount)
	if err != nil {
		return nil, fmt.Errorf("nearest candidates for %q: %w", anchor, err)
	}
	if res.Outcome == embed.NoMatch {
		slog.Debug("no candidate signal", "anchor", anchor, "query", len(query))
		return nil, nil
	}

	var ranked []scoredTriple
	for _, cand := range res.Neighbors {
		// Similarities carry float32 precision.
		if float32(cand.Similarity) <= float32(e.opts.SimilarityThreshold) {
			continue
		}
		row := e.links.PredictLink(anchorID, cand.ID)
		for _, l := range stats.TopLinks(row, e.opts.CandidateLinkLimit) {
			ranked = append(ranked, scoredTriple{
				predicate:  l.Predicate,
				candidate:  cand.ID,
				frequency:  l.Frequency,
				similarity: cand.Similarity,
				confidence: e.fuse(l.Frequency, cand.Similarity),
			})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].confidence > ranked[j].confidence
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]Suggestion, 0, len(ranked))
	for _, st := range ranked {
		p, err := e.predicates.String(st.predicate)
		if err != nil {
			return nil, fmt.Errorf("decode predicate: %w: %w", embed.ErrIDSpaceMismatch, err)
		}
		o, err := e.classes.String(st.candidate)
		if err != nil {
			return nil, fmt.Errorf("decode candidate: %w: %w", embed.ErrIDSpaceMismatch, err)
		}
		out = append(out, Suggestion{
			Subject:        anchor,
			Predicate:      p,
			Object:         o,
			Confidence:     st.confidence,
			LinkFrequency:  st.frequency,
			NodeSimilarity: st.similarity,
		})
	}
	return out, nil
}

// fuse combines the two signals into a confidence clamped to [0,1].
func (e *Extender) fuse(frequency, similarity float64) float64 {
	c := e.opts.LinkWeight*frequency + e.opts.NodeWeight*similarity
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
