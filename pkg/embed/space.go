// Package embed implements the node embedding recommender: node2vec style
// biased random walks over the co-occurrence graph, skip-gram with negative
// sampling on the walks, and cosine nearest-neighbour search over the
// resulting space.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/duynguyendang/lmerec/pkg/corpus"
	"github.com/duynguyendang/lmerec/pkg/dict"
)

// ErrIDSpaceMismatch reports a query id outside the id space the space was
// trained on. It means the registry and the embedding belong to different
// generations.
var ErrIDSpaceMismatch = errors.New("embed: id outside the trained id space")

// Outcome tells a successful ranking apart from the absence of signal.
type Outcome int

const (
	NoMatch Outcome = iota
	Matched
)

func (o Outcome) String() string {
	if o == Matched {
		return "matched"
	}
	return "no_match"
}

// Result is the answer to a Nearest query.
type Result struct {
	Outcome   Outcome
	Neighbors []Neighbor
}

// Space is a trained embedding: one vector per node id. Nodes that never
// appeared in a walk have no vector. A Space is read-only once built.
type Space struct {
	// Fingerprint is the class registry fingerprint the space was trained against.
	Fingerprint uint64

	dim      int
	numNodes int
	data     []float32 // raw vectors, numNodes*dim
	unit     []float32 // L2-normalized copies
	present  []bool
}

// NewSpace assembles a space of numNodes ids from explicit vectors.
// Every vector must have exactly dim components.
func NewSpace(dim, numNodes int, vectors map[dict.ID][]float32) (*Space, error) {
	if dim <= 0 && len(vectors) > 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	return FromParts(Header{Dim: dim, NumNodes: numNodes}, vectors)
}

func (s *Space) normalize() {
	s.unit = make([]float32, len(s.data))
	copy(s.unit, s.data)
	for i := 0; i < s.numNodes; i++ {
		l2Normalize(s.unitVec(i))
	}
}

func (s *Space) unitVec(idx int) []float32 {
	return s.unit[idx*s.dim : (idx+1)*s.dim]
}

// Train learns an embedding for every node of g that has at least one edge.
// An empty graph yields an empty space and no error.
func Train(ctx context.Context, g *corpus.Graph, cfg Config) (*Space, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding config: %w", err)
	}
	start := time.Now()

	numNodes := g.NumNodes()
	walks, err := generateWalks(ctx, g, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate walks: %w", err)
	}
	if len(walks) == 0 {
		slog.Warn("embedding graph has no edges, producing an empty space", "nodes", numNodes)
		return FromParts(Header{Dim: cfg.Dimensions, NumNodes: numNodes}, nil)
	}

	t, counts := newTrainer(walks, numNodes, cfg)
	if err := t.run(ctx, walks); err != nil {
		return nil, fmt.Errorf("train skip-gram: %w", err)
	}

	s := &Space{
		dim:      cfg.Dimensions,
		numNodes: numNodes,
		data:     t.syn0,
		present:  make([]bool, numNodes),
	}
	for id, n := range counts {
		s.present[id] = n > 0
	}
	s.normalize()

	slog.Info("embedding trained",
		"nodes", s.Len(),
		"dim", s.dim,
		"walks", len(walks),
		"duration", time.Since(start),
	)
	return s, nil
}

// Dim returns the vector dimensionality.
func (s *Space) Dim() int {
	return s.dim
}

// NumNodes returns the size of the id space the model was trained on.
func (s *Space) NumNodes() int {
	return s.numNodes
}

// Len returns the number of ids that have a vector.
func (s *Space) Len() int {
	n := 0
	for _, ok := range s.present {
		if ok {
			n++
		}
	}
	return n
}

// Vector returns a copy of the raw vector for id.
func (s *Space) Vector(id dict.ID) ([]float32, bool) {
	if id < 0 || int(id) >= s.numNodes || !s.present[id] {
		return nil, false
	}
	vec := make([]float32, s.dim)
	copy(vec, s.data[int(id)*s.dim:])
	return vec, true
}

// Each calls fn for every id that has a vector, in id order.
// The slice passed to fn must not be retained.
func (s *Space) Each(fn func(id dict.ID, vec []float32) error) error {
	for i, ok := range s.present {
		if !ok {
			continue
		}
		if err := fn(dict.ID(i), s.data[i*s.dim:(i+1)*s.dim]); err != nil {
			return err
		}
	}
	return nil
}

// Nearest ranks nodes by cosine similarity to the mean of the unit vectors
// of ids. The query set is deduplicated and its members are never returned;
// at most topn neighbours come back.
//
// An empty query, a queried id without a vector or an empty space yields
// NoMatch. An id outside [0, NumNodes) is an invariant violation and
// returns ErrIDSpaceMismatch.
func (s *Space) Nearest(ids []dict.ID, topn int) (Result, error) {
	query := make(map[dict.ID]bool, len(ids))
	unique := make([]dict.ID, 0, len(ids))
	for _, id := range ids {
		if id < 0 || int(id) >= s.numNodes {
			return Result{}, fmt.Errorf("node %d with %d trained ids: %w", id, s.numNodes, ErrIDSpaceMismatch)
		}
		if !query[id] {
			query[id] = true
			unique = append(unique, id)
		}
	}
	if len(unique) == 0 || topn <= 0 {
		return Result{Outcome: NoMatch}, nil
	}
	slices.Sort(unique)

	centroid := make([]float32, s.dim)
	for _, id := range unique {
		if !s.present[id] {
			slog.Debug("nearest query id has no vector", "id", id)
			return Result{Outcome: NoMatch}, nil
		}
		for i, v := range s.unitVec(int(id)) {
			centroid[i] += v
		}
	}
	if isZero(l2Normalize(centroid)) {
		return Result{Outcome: NoMatch}, nil
	}

	neighbors := s.scan(centroid, query, topn)
	if len(neighbors) == 0 {
		return Result{Outcome: NoMatch}, nil
	}
	return Result{Outcome: Matched, Neighbors: neighbors}, nil
}
