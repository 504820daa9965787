package embed

import (
	"runtime"
	"sort"

	"github.com/duynguyendang/lmerec/pkg/dict"
)

// Neighbor is one ranked node with its cosine similarity to the query centroid.
type Neighbor struct {
	ID         dict.ID `json:"id"`
	Similarity float64 `json:"similarity"`
}

type scored struct {
	score float32
	id    dict.ID
}

func better(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.id < b.id
}

// scan runs a parallel linear scan over all present vectors and returns the
// global top-k by cosine similarity, skipping excluded ids.
func (s *Space) scan(query []float32, exclude map[dict.ID]bool, k int) []Neighbor {
	numWorkers := runtime.NumCPU()
	if numWorkers > s.numNodes {
		numWorkers = s.numNodes
	}
	perWorker := (s.numNodes + numWorkers - 1) / numWorkers

	resultCh := make(chan []scored, numWorkers)
	workers := 0
	for start := 0; start < s.numNodes; start += perWorker {
		end := min(start+perWorker, s.numNodes)
		workers++
		go func(start, end int) {
			resultCh <- s.scanChunk(query, exclude, start, end, k)
		}(start, end)
	}

	all := make([]scored, 0, k*workers)
	for i := 0; i < workers; i++ {
		all = append(all, <-resultCh...)
	}

	sort.Slice(all, func(i, j int) bool { return better(all[i], all[j]) })
	if len(all) > k {
		all = all[:k]
	}
	out := make([]Neighbor, len(all))
	for i, r := range all {
		out[i] = Neighbor{ID: r.id, Similarity: float64(r.score)}
	}
	return out
}

// scanChunk keeps a local top-k with bubble-up insertion (fast for small k).
func (s *Space) scanChunk(query []float32, exclude map[dict.ID]bool, start, end, k int) []scored {
	topK := make([]scored, 0, k)
	for idx := start; idx < end; idx++ {
		id := dict.ID(idx)
		if !s.present[idx] || exclude[id] {
			continue
		}
		cand := scored{score: dot(query, s.unitVec(idx)), id: id}

		switch {
		case len(topK) < k:
			topK = append(topK, cand)
		case better(cand, topK[k-1]):
			topK[k-1] = cand
		default:
			continue
		}
		for i := len(topK) - 1; i > 0 && better(topK[i], topK[i-1]); i-- {
			topK[i], topK[i-1] = topK[i-1], topK[i]
		}
	}
	return topK
}
