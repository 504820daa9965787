package embed

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/duynguyendang/lmerec/pkg/dict"
)

const maxExp = 6

// trainer is a skip-gram model with negative sampling over walk sequences.
type trainer struct {
	cfg      Config
	numNodes int
	syn0     []float32 // input vectors, numNodes*dim
	syn1neg  []float32 // output vectors, numNodes*dim
	cum      []float64 // cumulative noise distribution over noiseIDs
	noiseIDs []dict.ID
	rng      *rand.Rand
	grad     []float32
}

func newTrainer(walks [][]dict.ID, numNodes int, cfg Config) (*trainer, []int) {
	counts := make([]int, numNodes)
	for _, walk := range walks {
		for _, id := range walk {
			counts[id]++
		}
	}

	t := &trainer{
		cfg:      cfg,
		numNodes: numNodes,
		syn0:     make([]float32, numNodes*cfg.Dimensions),
		syn1neg:  make([]float32, numNodes*cfg.Dimensions),
		rng:      rand.New(rand.NewPCG(cfg.Seed, 0)),
		grad:     make([]float32, cfg.Dimensions),
	}

	var acc float64
	for id, n := range counts {
		if n == 0 {
			continue
		}
		acc += math.Pow(float64(n), cfg.NSExponent)
		t.cum = append(t.cum, acc)
		t.noiseIDs = append(t.noiseIDs, dict.ID(id))
	}

	dim := float32(cfg.Dimensions)
	for id, n := range counts {
		if n == 0 {
			continue
		}
		vec := t.syn0[id*cfg.Dimensions : (id+1)*cfg.Dimensions]
		for i := range vec {
			vec[i] = (t.rng.Float32() - 0.5) / dim
		}
	}
	return t, counts
}

func (t *trainer) noise() dict.ID {
	r := t.rng.Float64() * t.cum[len(t.cum)-1]
	return t.noiseIDs[sort.SearchFloat64s(t.cum, r)]
}

func (t *trainer) vec(m []float32, id dict.ID) []float32 {
	d := t.cfg.Dimensions
	return m[int(id)*d : int(id)*d+d]
}

// pair performs one SGD update for (input, target) plus negatives.
func (t *trainer) pair(input, target dict.ID, alpha float32) {
	l1 := t.vec(t.syn0, input)
	for i := range t.grad {
		t.grad[i] = 0
	}

	for k := 0; k <= t.cfg.Negative; k++ {
		out := target
		var label float32 = 1
		if k > 0 {
			out = t.noise()
			if out == target {
				continue
			}
			label = 0
		}
		l2 := t.vec(t.syn1neg, out)
		f := dot(l1, l2)
		var g float32
		switch {
		case f > maxExp:
			g = (label - 1) * alpha
		case f < -maxExp:
			g = label * alpha
		default:
			g = (label - sigmoid(f)) * alpha
		}
		for i := range l1 {
			t.grad[i] += g * l2[i]
			l2[i] += g * l1[i]
		}
	}
	for i := range l1 {
		l1[i] += t.grad[i]
	}
}

// run trains sequentially over walks for cfg.Epochs passes with a learning
// rate decaying linearly from Alpha to MinAlpha.
func (t *trainer) run(ctx context.Context, walks [][]dict.ID) error {
	var words int
	for _, w := range walks {
		words += len(w)
	}
	total := float64(words * t.cfg.Epochs)
	done := 0

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		for _, walk := range walks {
			if err := ctx.Err(); err != nil {
				return err
			}
			alpha := t.cfg.Alpha - (t.cfg.Alpha-t.cfg.MinAlpha)*float64(done)/total
			if alpha < t.cfg.MinAlpha {
				alpha = t.cfg.MinAlpha
			}
			a := float32(alpha)

			for pos, center := range walk {
				reduced := t.rng.IntN(t.cfg.Window)
				lo := max(pos-t.cfg.Window+reduced, 0)
				hi := min(pos+t.cfg.Window-reduced, len(walk)-1)
				for c := lo; c <= hi; c++ {
					if c == pos {
						continue
					}
					t.pair(walk[c], center, a)
				}
			}
			done += len(walk)
		}
		slog.Debug("skip-gram epoch finished", "epoch", epoch+1, "epochs", t.cfg.Epochs)
	}
	return nil
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}
