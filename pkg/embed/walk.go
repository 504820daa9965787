package embed

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/duynguyendang/lmerec/pkg/corpus"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"golang.org/x/sync/errgroup"
)

// walker produces biased second-order random walks over a graph.
type walker struct {
	g       *corpus.Graph
	invP    float64
	invQ    float64
	uniform bool // p == q == 1, no neighbour test needed
	rng     *rand.Rand
	probs   []float64
}

func newWalker(g *corpus.Graph, cfg Config, stream uint64) *walker {
	return &walker{
		g:       g,
		invP:    1 / cfg.P,
		invQ:    1 / cfg.Q,
		uniform: cfg.P == 1 && cfg.Q == 1,
		rng:     rand.New(rand.NewPCG(cfg.Seed, stream)),
	}
}

// walk appends one walk of at most length nodes starting at start.
func (w *walker) walk(start dict.ID, length int, out []dict.ID) []dict.ID {
	base := len(out)
	out = append(out, start)
	for len(out)-base < length {
		cur := out[len(out)-1]
		edges := w.g.Neighbors(cur)
		if len(edges) == 0 {
			break
		}

		w.probs = w.probs[:0]
		if len(out)-base == 1 || w.uniform {
			for _, e := range edges {
				w.probs = append(w.probs, e.Weight)
			}
		} else {
			prev := out[len(out)-2]
			for _, e := range edges {
				switch {
				case e.To == prev:
					w.probs = append(w.probs, e.Weight*w.invP)
				case w.g.HasEdge(prev, e.To):
					w.probs = append(w.probs, e.Weight)
				default:
					w.probs = append(w.probs, e.Weight*w.invQ)
				}
			}
		}
		out = append(out, edges[w.pick()].To)
	}
	return out
}

func (w *walker) pick() int {
	var total float64
	for _, p := range w.probs {
		total += p
	}
	r := w.rng.Float64() * total
	for i, p := range w.probs {
		r -= p
		if r < 0 {
			return i
		}
	}
	return len(w.probs) - 1
}

// generateWalks runs cfg.NumWalks rounds over every connected node. Rounds
// are dealt to cfg.Workers goroutines; each owns a seeded generator and the
// per-worker outputs are concatenated in worker order, so a given seed and
// worker count always yields the same walks.
func generateWalks(ctx context.Context, g *corpus.Graph, cfg Config) ([][]dict.ID, error) {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return nil, nil
	}

	workers := cfg.Workers
	if workers > cfg.NumWalks {
		workers = cfg.NumWalks
	}
	results := make([][][]dict.ID, workers)

	eg, ctx := errgroup.WithContext(ctx)
	for wi := 0; wi < workers; wi++ {
		eg.Go(func() error {
			w := newWalker(g, cfg, uint64(wi)+1)
			order := make([]dict.ID, len(nodes))
			copy(order, nodes)

			var walks [][]dict.ID
			for round := wi; round < cfg.NumWalks; round += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				w.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
				for _, start := range order {
					walks = append(walks, w.walk(start, cfg.WalkLength, make([]dict.ID, 0, cfg.WalkLength)))
				}
			}
			results[wi] = walks
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var all [][]dict.ID
	for _, walks := range results {
		all = append(all, walks...)
	}
	slog.Info("random walks generated",
		"walks", len(all),
		"nodes", len(nodes),
		"workers", workers,
	)
	return all, nil
}
