package source

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/duynguyendang/lmerec/pkg/config"
	"github.com/duynguyendang/lmerec/pkg/corpus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const instanceNT = `<http://ex.org/alice> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://ex.org/Person> .
<http://ex.org/acme> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://ex.org/Company> .
<http://ex.org/alice> <http://ex.org/worksFor> <http://ex.org/acme> .
<http://ex.org/alice> <http://ex.org/name> "Alice" .
<http://ex.org/alice> <http://ex.org/age> "42"^^<http://www.w3.org/2001/XMLSchema#integer> .
_:b1 <http://ex.org/knows> <http://ex.org/alice> .
`

func TestDecodeRDF_NTriples(t *testing.T) {
	got, err := DecodeRDF(context.Background(), strings.NewReader(instanceNT), NTriples)
	require.NoError(t, err)
	require.Len(t, got, 6)

	assert.Equal(t, corpus.RawTriple{
		Subject:   "http://ex.org/alice",
		Predicate: "http://ex.org/worksFor",
		Object:    "http://ex.org/acme",
	}, got[2])

	assert.True(t, got[3].Literal)
	assert.Equal(t, "Alice", got[3].Object)

	assert.True(t, got[4].Literal)
	assert.Equal(t, "42", got[4].Object)
	assert.Equal(t, "http://www.w3.org/2001/XMLSchema#integer", got[4].Datatype)

	assert.True(t, strings.HasPrefix(got[5].Subject, "_:"))
}

func TestDecodeRDF_Turtle(t *testing.T) {
	doc := `@prefix ex: <http://ex.org/> .
ex:alice a ex:Person ;
    ex:worksFor ex:acme .
`
	got, err := DecodeRDF(context.Background(), strings.NewReader(doc), Turtle)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, corpus.RDFType, got[0].Predicate)
	assert.Equal(t, "http://ex.org/Person", got[0].Object)
	assert.Equal(t, "http://ex.org/worksFor", got[1].Predicate)
}

func TestDecodeRDF_Errors(t *testing.T) {
	_, err := DecodeRDF(context.Background(), strings.NewReader(instanceNT), Format("jsonld"))
	assert.Error(t, err)

	_, err = DecodeRDF(context.Background(), strings.NewReader("<a> <b> .\n"), NTriples)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = DecodeRDF(ctx, strings.NewReader(instanceNT), NTriples)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRDFFile_Uninstantiated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances.nt")
	require.NoError(t, os.WriteFile(path, []byte(instanceNT), 0o644))

	src, err := Open(config.SourceConfig{Kind: "rdf", Path: path, Format: "ntriples", Uninstantiate: true})
	require.NoError(t, err)

	got, err := src.Triples(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []corpus.RawTriple{
		{Subject: "http://ex.org/Person", Predicate: "http://ex.org/worksFor", Object: "http://ex.org/Company"},
		{Subject: "http://ex.org/Person", Predicate: "http://ex.org/name", Object: corpus.XSDString},
		{Subject: "http://ex.org/Person", Predicate: "http://ex.org/age", Object: "http://www.w3.org/2001/XMLSchema#integer"},
	}, got, "untyped blank subject is dropped")

	_, err = RDFFile{Path: filepath.Join(t.TempDir(), "none.nt")}.Triples(context.Background())
	assert.Error(t, err)
}

const combinedModelNT = `<http://ex.org/m1> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://plasma.uni-wuppertal.de/cm#CombinedModel> .
<http://ex.org/m1> <http://plasma.uni-wuppertal.de/cm#hasNode> <http://ex.org/n1> .
<http://ex.org/m1> <http://plasma.uni-wuppertal.de/cm#cmUuid> "abc" .
<http://ex.org/n1> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://ex.org/City> .
<http://ex.org/n1> <http://ex.org/name> "Wuppertal" .
`

func TestOpen_DropsBookkeepingPredicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.nt")
	require.NoError(t, os.WriteFile(path, []byte(combinedModelNT), 0o644))

	cfg := config.Default().Source
	cfg.Kind, cfg.Path, cfg.Uninstantiate = "rdf", path, true
	src, err := Open(cfg)
	require.NoError(t, err)

	u, ok := src.(Uninstantiated)
	require.True(t, ok)
	assert.Equal(t, cfg.DropPredicates, u.Options.DropPredicates)

	got, err := src.Triples(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []corpus.RawTriple{
		{Subject: "http://ex.org/City", Predicate: "http://ex.org/name", Object: corpus.XSDString},
	}, got)

	raw, err := RDFFile{Path: path, Format: NTriples}.Triples(context.Background())
	require.NoError(t, err)
	_, report := corpus.Uninstantiate(raw, u.Options)
	assert.Equal(t, 2, report.DroppedByRule)
	assert.Equal(t, 2, report.TypeTriples)
}

func TestUninstantiated_WarnsOnceForUntypedSubjects(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	raw, err := DecodeRDF(context.Background(), strings.NewReader(instanceNT), NTriples)
	require.NoError(t, err)
	_, err = Uninstantiated{Source: Static(raw)}.Triples(context.Background())
	require.NoError(t, err)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "level=WARN"), out)
	assert.Contains(t, out, "dropped_untyped=1")
}

func TestModelsFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	models := [][]corpus.RawTriple{
		{{Subject: "A", Predicate: "p", Object: "B"}},
		{{Subject: "B", Predicate: "q", Object: "C"}, {Subject: "A", Predicate: "p", Object: "C"}},
	}
	require.NoError(t, WriteModels(path, models))

	src, err := Open(config.SourceConfig{Kind: "models", Path: path})
	require.NoError(t, err)
	got, err := src.Triples(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []corpus.RawTriple{
		{Subject: "A", Predicate: "p", Object: "B"},
		{Subject: "B", Predicate: "q", Object: "C"},
		{Subject: "A", Predicate: "p", Object: "C"},
	}, got)
}

func TestModelsFile_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"a list"}`), 0o644))
	_, err := ModelsFile{Path: path}.Triples(context.Background())
	assert.Error(t, err)

	_, err = Open(config.SourceConfig{Kind: "sparql"})
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	s := Static{{Subject: "A", Predicate: "p", Object: "B"}}
	got, err := s.Triples(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
