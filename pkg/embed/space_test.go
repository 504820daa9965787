package embed

import (
	"context"
	"testing"

	"github.com/duynguyendang/lmerec/pkg/corpus"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handSpace(t *testing.T) *Space {
	t.Helper()
	s, err := NewSpace(2, 5, map[dict.ID][]float32{
		0: {1, 0},
		1: {0.9, 0.1},
		2: {0, 1},
		3: {-1, 0},
		// 4 has no vector
	})
	require.NoError(t, err)
	return s
}

func TestNearest_Ranking(t *testing.T) {
	s := handSpace(t)

	res, err := s.Nearest([]dict.ID{0}, 10)
	require.NoError(t, err)
	assert.Equal(t, Matched, res.Outcome)
	require.Len(t, res.Neighbors, 3)
	assert.Equal(t, dict.ID(1), res.Neighbors[0].ID)
	assert.Equal(t, dict.ID(2), res.Neighbors[1].ID)
	assert.Equal(t, dict.ID(3), res.Neighbors[2].ID)
	assert.InDelta(t, -1.0, res.Neighbors[2].Similarity, 1e-6)

	res, err = s.Nearest([]dict.ID{0}, 1)
	require.NoError(t, err)
	assert.Len(t, res.Neighbors, 1)
}

func TestNearest_DeduplicatesQuery(t *testing.T) {
	s := handSpace(t)

	once, err := s.Nearest([]dict.ID{0, 2}, 10)
	require.NoError(t, err)
	repeated, err := s.Nearest([]dict.ID{0, 0, 0, 2}, 10)
	require.NoError(t, err)
	assert.Equal(t, once, repeated, "repeated ids must not bias the centroid")

	for _, n := range once.Neighbors {
		assert.NotContains(t, []dict.ID{0, 2}, n.ID)
	}
}

func TestNearest_NoMatch(t *testing.T) {
	s := handSpace(t)

	res, err := s.Nearest(nil, 10)
	require.NoError(t, err)
	assert.Equal(t, NoMatch, res.Outcome)

	res, err = s.Nearest([]dict.ID{0, 4}, 10)
	require.NoError(t, err)
	assert.Equal(t, NoMatch, res.Outcome, "id 4 has no vector")

	res, err = s.Nearest([]dict.ID{0, 3}, 10)
	require.NoError(t, err)
	assert.Equal(t, NoMatch, res.Outcome, "opposite vectors cancel out")
}

func TestNearest_IDSpaceMismatch(t *testing.T) {
	s := handSpace(t)

	_, err := s.Nearest([]dict.ID{5}, 10)
	assert.ErrorIs(t, err, ErrIDSpaceMismatch)

	_, err = s.Nearest([]dict.ID{dict.NotFound}, 10)
	assert.ErrorIs(t, err, ErrIDSpaceMismatch)
}

func TestNewSpace_Invalid(t *testing.T) {
	_, err := NewSpace(2, 1, map[dict.ID][]float32{3: {1, 0}})
	assert.ErrorIs(t, err, ErrIDSpaceMismatch)

	_, err = NewSpace(2, 1, map[dict.ID][]float32{0: {1}})
	assert.Error(t, err)
}

func TestCodec_RoundTrip(t *testing.T) {
	s := handSpace(t)
	s.Fingerprint = 42

	data, err := s.MarshalBinary()
	require.NoError(t, err)

	var got Space
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, s.Header(), got.Header())
	assert.Equal(t, s.Len(), got.Len())
	for id := dict.ID(0); id < 5; id++ {
		want, wantOK := s.Vector(id)
		vec, ok := got.Vector(id)
		assert.Equal(t, wantOK, ok)
		assert.Equal(t, want, vec)
	}

	assert.ErrorIs(t, got.UnmarshalBinary(data[:len(data)-1]), ErrCorrupt)
	assert.ErrorIs(t, got.UnmarshalBinary(append(data, 0)), ErrCorrupt)
}

func twoCliques() *corpus.Graph {
	var raw []corpus.RawTriple
	clique := func(names ...string) {
		for _, s := range names {
			for _, o := range names {
				if s != o {
					raw = append(raw, corpus.RawTriple{Subject: s, Predicate: "rel", Object: o})
				}
			}
		}
	}
	clique("a0", "a1", "a2", "a3")
	clique("b0", "b1", "b2", "b3")
	return corpus.Build(raw).Graph
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Dimensions = 16
	cfg.NumWalks = 40
	cfg.WalkLength = 10
	cfg.Window = 3
	cfg.Workers = 2
	cfg.Seed = 7
	return cfg
}

func TestTrain_SeparatesComponents(t *testing.T) {
	g := twoCliques()
	s, err := Train(context.Background(), g, smallConfig())
	require.NoError(t, err)
	assert.Equal(t, 8, s.Len())
	assert.Equal(t, 16, s.Dim())

	// a0..a3 are ids 0..3.
	res, err := s.Nearest([]dict.ID{0}, 3)
	require.NoError(t, err)
	require.Equal(t, Matched, res.Outcome)
	for _, n := range res.Neighbors {
		assert.Less(t, n.ID, dict.ID(4), "neighbour %d is in the other component", n.ID)
	}
}

func TestTrain_Deterministic(t *testing.T) {
	g := twoCliques()
	s1, err := Train(context.Background(), g, smallConfig())
	require.NoError(t, err)
	s2, err := Train(context.Background(), g, smallConfig())
	require.NoError(t, err)

	b1, _ := s1.MarshalBinary()
	b2, _ := s2.MarshalBinary()
	assert.Equal(t, b1, b2)
}

func TestTrain_EmptyGraph(t *testing.T) {
	s, err := Train(context.Background(), corpus.Build(nil).Graph, smallConfig())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.NumNodes())
}

func TestTrain_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Train(ctx, twoCliques(), smallConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Q = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Dimensions = -1
	assert.Error(t, bad.Validate())
}
