package bundle

import (
	"context"
	"errors"
	"testing"

	"github.com/duynguyendang/lmerec/pkg/corpus"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/duynguyendang/lmerec/pkg/embed"
	"github.com/duynguyendang/lmerec/pkg/extend"
	"github.com/duynguyendang/lmerec/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps one committed bundle in memory.
type memStore struct {
	current    *Bundle
	saves      int
	statsSaves int
	spaceSaves int
}

func (m *memStore) Presence(context.Context) (Presence, error) {
	if m.current == nil {
		return Presence{}, nil
	}
	return Presence{
		Generation: m.current.Generation,
		Registry:   m.current.Classes != nil,
		Corpus:     m.current.Corpus != nil,
		Stats:      m.current.Stats != nil,
		Space:      m.current.Space != nil,
	}, nil
}

func (m *memStore) LoadMeta(context.Context) (Meta, error) { return m.current.Meta, nil }

func (m *memStore) LoadRegistries(context.Context) (*dict.Encoder, *dict.Encoder, error) {
	return m.current.Classes, m.current.Predicates, nil
}

func (m *memStore) LoadCorpus(context.Context) (*corpus.Corpus, error) { return m.current.Corpus, nil }

func (m *memStore) LoadStats(context.Context) (*stats.Recommender, error) {
	return m.current.Stats, nil
}

func (m *memStore) LoadSpace(context.Context) (*embed.Space, error) { return m.current.Space, nil }

func (m *memStore) LoadLabels(context.Context) (corpus.Labels, error) { return m.current.Labels, nil }

func (m *memStore) SaveStats(_ context.Context, gen string, r *stats.Recommender) error {
	if gen != m.current.Generation {
		return errors.New("stale generation")
	}
	m.statsSaves++
	m.current.Stats = r
	return nil
}

func (m *memStore) SaveSpace(_ context.Context, gen string, s *embed.Space) error {
	if gen != m.current.Generation {
		return errors.New("stale generation")
	}
	m.spaceSaves++
	m.current.Space = s
	return nil
}

func (m *memStore) SaveGeneration(_ context.Context, b *Bundle) error {
	m.saves++
	cp := *b
	m.current = &cp
	return nil
}

type staticSource []corpus.RawTriple

func (s staticSource) Triples(context.Context) ([]corpus.RawTriple, error) { return s, nil }

func testConfig() embed.Config {
	cfg := embed.DefaultConfig()
	cfg.Dimensions = 8
	cfg.NumWalks = 10
	cfg.WalkLength = 6
	cfg.Window = 2
	cfg.Workers = 2
	return cfg
}

func sampleSource() staticSource {
	return staticSource{
		{Subject: "Person", Predicate: "worksFor", Object: "Company"},
		{Subject: "Person", Predicate: "knows", Object: "Person"},
		{Subject: "Company", Predicate: "locatedIn", Object: "City"},
	}
}

func TestLoader_RebuildsWhenEmpty(t *testing.T) {
	st := &memStore{}
	l := &Loader{Store: st, Source: sampleSource(), Embedding: testConfig()}

	b, err := l.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Validate())
	assert.Equal(t, 1, st.saves)
	assert.Equal(t, b.Generation, b.Meta.Generation)
	assert.Equal(t, 3, b.Meta.Triples)
	assert.Equal(t, 3, b.Classes.Len())

	// Second load reuses the stored generation.
	again, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, b.Generation, again.Generation)
	assert.Equal(t, 1, st.saves)
}

func TestLoader_RebuildsOnlyMissingDerivedArtifacts(t *testing.T) {
	st := &memStore{}
	l := &Loader{Store: st, Source: sampleSource(), Embedding: testConfig()}
	b, err := l.Rebuild(context.Background())
	require.NoError(t, err)

	st.current.Stats = nil
	st.current.Space = nil

	loaded, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, b.Generation, loaded.Generation, "derived artifacts do not start a new generation")
	assert.Equal(t, 1, st.saves)
	assert.Equal(t, 1, st.statsSaves)
	assert.Equal(t, 1, st.spaceSaves)
	assert.Equal(t, b.Stats.PredictLink(0, 1), loaded.Stats.PredictLink(0, 1))
}

func TestLoader_NoSource(t *testing.T) {
	l := &Loader{Store: &memStore{}, Embedding: testConfig()}
	_, err := l.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestLoader_MismatchTriggersRebuild(t *testing.T) {
	st := &memStore{}
	l := &Loader{Store: st, Source: sampleSource(), Embedding: testConfig()}
	b, err := l.Rebuild(context.Background())
	require.NoError(t, err)

	st.current.Stats = &stats.Recommender{Fingerprint: 1}
	_, err = l.Load(context.Background())
	assert.ErrorIs(t, err, ErrArtifactMismatch)

	rebuilt, err := l.LoadOrRebuild(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, b.Generation, rebuilt.Generation)
}

func TestBundle_Validate(t *testing.T) {
	res := corpus.Build(sampleSource())
	fp := res.Classes.Fingerprint()
	r := stats.Fit(res.Corpus)
	r.Fingerprint = fp
	space, err := embed.NewSpace(2, res.Classes.Len(), nil)
	require.NoError(t, err)
	space.Fingerprint = fp

	b := &Bundle{Classes: res.Classes, Predicates: res.Predicates, Corpus: res.Corpus, Stats: r, Space: space}
	require.NoError(t, b.Validate())

	short, err := embed.NewSpace(2, res.Classes.Len()-1, nil)
	require.NoError(t, err)
	short.Fingerprint = fp
	b.Space = short
	assert.ErrorIs(t, b.Validate(), ErrArtifactMismatch)

	b.Space = space
	b.Stats = nil
	assert.ErrorIs(t, b.Validate(), ErrArtifactMismatch)
}

func TestBundle_Extender(t *testing.T) {
	st := &memStore{}
	l := &Loader{Store: st, Source: sampleSource(), Embedding: testConfig()}
	b, err := l.Rebuild(context.Background())
	require.NoError(t, err)

	opts := extend.DefaultOptions()
	opts.CandidateSource = extend.SourceStatistics
	opts.SimilarityThreshold = 0
	got, err := b.Extender(opts).Generate("Person", nil, 5)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "Company", got[0].Object)
	assert.Equal(t, "worksFor", got[0].Predicate)
}

func TestPresence(t *testing.T) {
	p := Presence{Generation: "g", Registry: true, Corpus: true}
	assert.True(t, p.Base())
	assert.False(t, p.Complete())
	assert.Equal(t, []string{"stats", "space"}, p.Missing())
	assert.False(t, Presence{Registry: true, Corpus: true}.Base())
}

func TestLoader_ExtractsLabels(t *testing.T) {
	src := append(sampleSource(),
		corpus.RawTriple{Subject: "Company", Predicate: corpus.RDFSLabel, Object: "Company", Literal: true},
		corpus.RawTriple{Subject: "worksFor", Predicate: corpus.RDFSComment, Object: "Employment", Literal: true},
	)
	st := &memStore{}
	l := &Loader{Store: st, Source: src, Embedding: testConfig()}

	b, err := l.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, corpus.Labels{
		"Company":  {Label: "Company"},
		"worksFor": {Description: "Employment"},
	}, b.Labels)
	assert.Equal(t, 2, b.Meta.Labels)
	assert.Equal(t, 3, b.Meta.Triples)
	_, ok := b.Predicates.Lookup(corpus.RDFSLabel)
	assert.False(t, ok, "annotations stay out of the corpus")

	loaded, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, b.Labels, loaded.Labels)
}
