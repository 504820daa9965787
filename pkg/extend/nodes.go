package extend

import (
	"fmt"
	"sort"

	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/duynguyendang/lmerec/pkg/embed"
	"github.com/duynguyendang/lmerec/pkg/stats"
)

// ModelNode is one node of a model under construction with its 1-hop
// neighbourhood.
type ModelNode struct {
	URI       string   `json:"uri"`
	Neighbors []string `json:"neighbors,omitempty"`
}

// NodeScore is a node proposed for a whole model.
type NodeScore struct {
	URI       string  `json:"uri"`
	Certainty float64 `json:"certainty"`
}

// RecommendNodes proposes nodes to add to a model. Every node is queried
// together with its neighbours; candidates already in the model or at or
// below the similarity threshold are dropped, and each remaining candidate
// keeps its best similarity across queries. Results are sorted by certainty
// descending, then URI.
func (e *Extender) RecommendNodes(model []ModelNode, limit int) ([]NodeScore, error) {
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}

	inModel := make(map[string]bool, len(model))
	for _, n := range model {
		inModel[n.URI] = true
	}

	best := make(map[string]float64)
	for _, node := range model {
		id, ok := e.classes.Lookup(node.URI)
		if !ok {
			continue
		}
		query := []dict.ID{id}
		for _, uri := range node.Neighbors {
			if nid, ok := e.classes.Lookup(uri); ok {
				query = append(query, nid)
			}
		}

		res, err := e.nodes.Nearest(query, e.opts.CandidateCount)
		if err != nil {
			return nil, fmt.Errorf("nearest candidates for %q: %w", node.URI, err)
		}
		for _, cand := range res.Neighbors {
			if cand.Similarity <= e.opts.SimilarityThreshold {
				continue
			}
			uri, err := e.classes.String(cand.ID)
			if err != nil {
				return nil, fmt.Errorf("decode candidate: %w: %w", embed.ErrIDSpaceMismatch, err)
			}
			if inModel[uri] {
				continue
			}
			if prev, ok := best[uri]; !ok || cand.Similarity > prev {
				best[uri] = cand.Similarity
			}
		}
	}

	out := make([]NodeScore, 0, len(best))
	for uri, c := range best {
		out = append(out, NodeScore{URI: uri, Certainty: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Certainty != out[j].Certainty {
			return out[i].Certainty > out[j].Certainty
		}
		return out[i].URI < out[j].URI
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// StatisticsNodes adapts the co-occurrence candidate source of a statistics
// model to NodeRecommender.
type StatisticsNodes struct {
	Stats *stats.Recommender
}

// Nearest ranks the objects reachable from ids by co-occurrence votes.
func (s StatisticsNodes) Nearest(ids []dict.ID, topn int) (embed.Result, error) {
	matches := s.Stats.MostSimilar(ids, topn)
	if len(matches) == 0 {
		return embed.Result{Outcome: embed.NoMatch}, nil
	}
	res := embed.Result{Outcome: embed.Matched, Neighbors: make([]embed.Neighbor, len(matches))}
	for i, m := range matches {
		res.Neighbors[i] = embed.Neighbor{ID: m.ID, Similarity: m.Score}
	}
	return res, nil
}

// Nodes picks the candidate source named by opts.
func Nodes(opts Options, space *embed.Space, st *stats.Recommender) NodeRecommender {
	if opts.CandidateSource == SourceStatistics {
		return StatisticsNodes{Stats: st}
	}
	return space
}
