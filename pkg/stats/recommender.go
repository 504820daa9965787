// Package stats implements the statistics link predictor.
//
// For an (anchor, candidate) pair the predictor returns the empirical
// distribution over predicate ids observed for triples (anchor, *, candidate)
// in the corpus. Fitting counts every triple, duplicates included, and has no
// randomness: fitting the same corpus twice yields byte-identical models.
package stats

import (
	"log/slog"
	"sort"

	"github.com/duynguyendang/lmerec/pkg/corpus"
	"github.com/duynguyendang/lmerec/pkg/dict"
)

// Pair is an (anchor, candidate) query.
type Pair struct {
	Anchor    dict.ID
	Candidate dict.ID
}

// Link is one predicate with its normalized frequency for a pair.
type Link struct {
	Predicate dict.ID `json:"predicate"`
	Frequency float64 `json:"frequency"`
}

// Neighbor is a candidate node proposed from co-occurrence counts.
type Neighbor struct {
	ID    dict.ID `json:"id"`
	Score float64 `json:"score"`
}

type predCount struct {
	predicate dict.ID
	count     uint32
}

type pairEntry struct {
	total  uint32
	counts []predCount // sorted by predicate
}

// Recommender is a fitted relation-frequency model. It is read-only after Fit.
type Recommender struct {
	// Fingerprint is the class registry fingerprint the model was fitted against.
	Fingerprint uint64

	numPredicates int
	pairs         map[Pair]*pairEntry
	objects       map[dict.ID][]dict.ID // subject -> distinct objects, ascending
}

// Fit counts predicates per (subject, object) pair over the whole corpus.
// The vector length is fixed to c.NumPredicates() at this point.
func Fit(c *corpus.Corpus) *Recommender {
	counts := make(map[Pair]map[dict.ID]uint32)
	for _, t := range c.Triples() {
		p := Pair{Anchor: t.Subject, Candidate: t.Object}
		m, ok := counts[p]
		if !ok {
			m = make(map[dict.ID]uint32)
			counts[p] = m
		}
		m[t.Predicate]++
	}

	r := &Recommender{
		numPredicates: c.NumPredicates(),
		pairs:         make(map[Pair]*pairEntry, len(counts)),
	}
	for p, m := range counts {
		entry := &pairEntry{counts: make([]predCount, 0, len(m))}
		for pred, n := range m {
			entry.counts = append(entry.counts, predCount{predicate: pred, count: n})
			entry.total += n
		}
		sort.Slice(entry.counts, func(i, j int) bool {
			return entry.counts[i].predicate < entry.counts[j].predicate
		})
		r.pairs[p] = entry
	}
	r.indexObjects()

	slog.Info("statistics recommender fitted",
		"triples", c.Len(),
		"pairs", len(r.pairs),
		"predicates", r.numPredicates,
	)
	return r
}

func (r *Recommender) indexObjects() {
	r.objects = make(map[dict.ID][]dict.ID)
	for p := range r.pairs {
		r.objects[p.Anchor] = append(r.objects[p.Anchor], p.Candidate)
	}
	for _, objs := range r.objects {
		sort.Slice(objs, func(i, j int) bool { return objs[i] < objs[j] })
	}
}

// NumPredicates returns the length of every frequency vector.
func (r *Recommender) NumPredicates() int {
	return r.numPredicates
}

// NumPairs returns the number of distinct observed (subject, object) pairs.
func (r *Recommender) NumPairs() int {
	return len(r.pairs)
}

// PredictLink returns the predicate distribution for (anchor, candidate).
// Unobserved pairs, unknown ids included, yield the all-zero vector.
func (r *Recommender) PredictLink(anchor, candidate dict.ID) []float64 {
	row := make([]float64, r.numPredicates)
	entry, ok := r.pairs[Pair{Anchor: anchor, Candidate: candidate}]
	if !ok {
		return row
	}
	total := float64(entry.total)
	for _, pc := range entry.counts {
		row[pc.predicate] = float64(pc.count) / total
	}
	return row
}

// PredictLinks returns one PredictLink row per pair, in the same order.
func (r *Recommender) PredictLinks(pairs []Pair) [][]float64 {
	rows := make([][]float64, len(pairs))
	for i, p := range pairs {
		rows[i] = r.PredictLink(p.Anchor, p.Candidate)
	}
	return rows
}

// TopLinks returns up to limit predicates for the pair in descending
// frequency, stopping at the first zero. Ties go to the lower predicate id.
func (r *Recommender) TopLinks(anchor, candidate dict.ID, limit int) []Link {
	return TopLinks(r.PredictLink(anchor, candidate), limit)
}

// TopLinks ranks a frequency vector.
func TopLinks(row []float64, limit int) []Link {
	if limit <= 0 {
		return nil
	}
	order := make([]int, len(row))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return row[order[i]] > row[order[j]] })

	var links []Link
	for _, idx := range order {
		if len(links) == limit {
			break
		}
		if row[idx] == 0 {
			break // no further predicate is plausible
		}
		links = append(links, Link{Predicate: dict.ID(idx), Frequency: row[idx]})
	}
	return links
}

// MostSimilar proposes candidate nodes for a set of anchors from raw
// co-occurrence: every distinct object of every anchor gets one vote per
// anchor. Scores are votes normalized over the returned top n. Anchors are
// deduplicated and never returned.
func (r *Recommender) MostSimilar(anchors []dict.ID, topn int) []Neighbor {
	if topn <= 0 || len(anchors) == 0 {
		return nil
	}

	seen := make(map[dict.ID]bool, len(anchors))
	votes := make(map[dict.ID]int)
	for _, a := range anchors {
		if seen[a] {
			continue
		}
		seen[a] = true
		for _, o := range r.objects[a] {
			votes[o]++
		}
	}

	matches := make([]Neighbor, 0, len(votes))
	for id, n := range votes {
		if seen[id] {
			continue
		}
		matches = append(matches, Neighbor{ID: id, Score: float64(n)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topn {
		matches = matches[:topn]
	}

	var total float64
	for _, m := range matches {
		total += m.Score
	}
	for i := range matches {
		matches[i].Score /= total
	}
	return matches
}
