package extend

import (
	"fmt"
	"math"
)

// CandidateSource selects where candidate nodes come from.
type CandidateSource string

const (
	SourceEmbedding  CandidateSource = "embedding"
	SourceStatistics CandidateSource = "statistics"
)

// Options tunes Generate and RecommendNodes.
type Options struct {
	// SimilarityThreshold drops candidates whose similarity is <= the threshold.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// CandidateCount is how many nearest candidates are requested.
	CandidateCount int `yaml:"candidate_count"`
	// CandidateLinkLimit caps predicates taken per candidate.
	CandidateLinkLimit int `yaml:"candidate_link_limit"`
	// LinkWeight and NodeWeight fuse link frequency and node similarity.
	LinkWeight float64 `yaml:"link_weight"`
	NodeWeight float64 `yaml:"node_weight"`
	// DefaultLimit applies when the caller passes a non-positive limit.
	DefaultLimit    int             `yaml:"default_limit"`
	CandidateSource CandidateSource `yaml:"candidate_source"`
}

// DefaultOptions returns the equal-weight fusion defaults.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.4,
		CandidateCount:      10,
		CandidateLinkLimit:  3,
		LinkWeight:          0.5,
		NodeWeight:          0.5,
		DefaultLimit:        3,
		CandidateSource:     SourceEmbedding,
	}
}

// Validate rejects option sets Generate cannot honour.
func (o Options) Validate() error {
	switch {
	case math.IsNaN(o.SimilarityThreshold) || o.SimilarityThreshold < -1 || o.SimilarityThreshold > 1:
		return fmt.Errorf("similarity_threshold must be in [-1, 1], got %v", o.SimilarityThreshold)
	case o.CandidateCount <= 0:
		return fmt.Errorf("candidate_count must be positive, got %d", o.CandidateCount)
	case o.CandidateLinkLimit <= 0:
		return fmt.Errorf("candidate_link_limit must be positive, got %d", o.CandidateLinkLimit)
	case !finiteNonNegative(o.LinkWeight) || !finiteNonNegative(o.NodeWeight):
		return fmt.Errorf("fusion weights must be finite and non-negative, got %v/%v", o.LinkWeight, o.NodeWeight)
	case o.DefaultLimit <= 0:
		return fmt.Errorf("default_limit must be positive, got %d", o.DefaultLimit)
	}
	switch o.CandidateSource {
	case SourceEmbedding, SourceStatistics:
	default:
		return fmt.Errorf("unknown candidate_source %q", o.CandidateSource)
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
