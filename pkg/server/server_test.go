package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/duynguyendang/lmerec/internal/manager"
	"github.com/duynguyendang/lmerec/pkg/bundle"
	"github.com/duynguyendang/lmerec/pkg/corpus"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/duynguyendang/lmerec/pkg/embed"
	"github.com/duynguyendang/lmerec/pkg/extend"
	"github.com/duynguyendang/lmerec/pkg/metrics"
	"github.com/duynguyendang/lmerec/pkg/stats"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testLoader struct {
	t        *testing.T
	rebuilds atomic.Int32
	extra    []corpus.RawTriple
}

func (l *testLoader) bundle(gen string) *bundle.Bundle {
	var raw []corpus.RawTriple
	add := func(s, p, o string, n int) {
		for range n {
			raw = append(raw, corpus.RawTriple{Subject: s, Predicate: p, Object: o})
		}
	}
	add("Person", "worksFor", "Company", 3)
	add("Person", "knows", "Company", 1)
	add("Person", "livesIn", "City", 1)
	add("Company", "locatedIn", "City", 2)
	raw = append(raw, l.extra...)

	res := corpus.Build(raw)
	fp := res.Classes.Fingerprint()
	r := stats.Fit(res.Corpus)
	r.Fingerprint = fp
	space, err := embed.NewSpace(2, res.Classes.Len(), map[dict.ID][]float32{
		res.Classes.ID("Person"):  {1, 0},
		res.Classes.ID("Company"): {1, 0},
		res.Classes.ID("City"):    {0.6, 0.8},
	})
	require.NoError(l.t, err)
	space.Fingerprint = fp
	return &bundle.Bundle{
		Generation: gen,
		Meta:       bundle.Meta{Generation: gen, Triples: res.Corpus.Len()},
		Classes:    res.Classes,
		Predicates: res.Predicates,
		Corpus:     res.Corpus,
		Stats:      r,
		Space:      space,
		Labels:     corpus.Labels{"locatedIn": {Label: "located in"}},
	}
}

func (l *testLoader) LoadOrRebuild(context.Context) (*bundle.Bundle, error) {
	return l.bundle("gen-1"), nil
}

func (l *testLoader) Rebuild(context.Context) (*bundle.Bundle, error) {
	l.rebuilds.Add(1)
	return l.bundle("gen-2"), nil
}

func newTestServer(t *testing.T, start bool) *Server {
	t.Helper()
	return newTestServerWith(t, &testLoader{t: t}, start)
}

func newTestServerWith(t *testing.T, l *testLoader, start bool) *Server {
	t.Helper()
	m := metrics.New()
	mgr, err := manager.NewBundleManager(l, manager.Config{Options: extend.DefaultOptions()}, m)
	require.NoError(t, err)
	if start {
		require.NoError(t, mgr.Start(context.Background()))
	}
	return NewServer(mgr, m, Options{})
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, false)
	assert.Equal(t, http.StatusOK, do(t, srv, "GET", "/health", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, "GET", "/ready", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		do(t, srv, "POST", "/v1/extensions", `{"anchor":"Person"}`).Code)

	srv = newTestServer(t, true)
	w := do(t, srv, "GET", "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gen-1")
}

func TestRecommendation(t *testing.T) {
	srv := newTestServer(t, true)

	body := `{
		"nodes": [
			{"uri": "Person"},
			{"uri": "Company"},
			{"uri": "Person"},
			{"uri": "http://www.w3.org/2001/XMLSchema#string", "literal": true}
		],
		"triples": [{"s": "Person", "p": "worksFor", "o": "Company"}]
	}`
	w := do(t, srv, "POST", "/v1/recommendation", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp RecommendationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "gen-1", resp.Generation)
	require.Len(t, resp.Recommendations, 2)

	person := resp.Recommendations[0]
	assert.Equal(t, "Person", person.Anchor)
	require.Len(t, person.Suggestions, 2)
	assert.Equal(t, "livesIn", person.Suggestions[0].Predicate)
	assert.Equal(t, "knows", person.Suggestions[1].Predicate)

	company := resp.Recommendations[1]
	assert.Equal(t, "Company", company.Anchor)
	require.Len(t, company.Suggestions, 1)
	assert.Equal(t, "locatedIn", company.Suggestions[0].Predicate)
	assert.Equal(t, "City", company.Suggestions[0].Object)
	assert.InDelta(t, 0.8, company.Suggestions[0].Confidence, 1e-6)
	assert.Equal(t, extend.ObjectClass, company.Suggestions[0].Kind)
	assert.Equal(t, "located in", company.Suggestions[0].PredicateLabel)
	assert.Contains(t, w.Body.String(), `"kind":"object"`)

	t.Run("per anchor limit", func(t *testing.T) {
		w := do(t, srv, "POST", "/v1/recommendation", `{"nodes":[{"uri":"Person"}],"per_anchor":1}`)
		require.Equal(t, http.StatusOK, w.Code)
		var resp RecommendationResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Recommendations, 1)
		assert.Len(t, resp.Recommendations[0].Suggestions, 1)
	})

	t.Run("bad body", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, do(t, srv, "POST", "/v1/recommendation", `{"nodes":`).Code)
	})
}

func TestExtensions(t *testing.T) {
	srv := newTestServer(t, true)

	w := do(t, srv, "POST", "/v1/extensions", `{"anchor":"Person","limit":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Suggestions []extend.Suggestion `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "worksFor", resp.Suggestions[0].Predicate)

	w = do(t, srv, "POST", "/v1/extensions", `{"anchor":"Unknown"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"suggestions":[]`)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, "POST", "/v1/extensions", `{"anchor":" "}`).Code)
}

func TestLinks(t *testing.T) {
	srv := newTestServer(t, true)

	w := do(t, srv, "POST", "/v1/links", `{"anchor":"Person","candidate":"Company"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Links []manager.LinkScore `json:"links"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []manager.LinkScore{{Predicate: "worksFor", Frequency: 0.75}, {Predicate: "knows", Frequency: 0.25}}, resp.Links)

	assert.Equal(t, http.StatusNotFound, do(t, srv, "POST", "/v1/links", `{"anchor":"Person","candidate":"Mars"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, "POST", "/v1/links", `{"anchor":"Person"}`).Code)
}

func TestCandidates(t *testing.T) {
	srv := newTestServer(t, true)

	w := do(t, srv, "POST", "/v1/candidates", `{"model":[{"uri":"Person"},{"uri":"Company"}],"limit":5}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Candidates []extend.NodeScore `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "City", resp.Candidates[0].URI)
}

func TestLookup(t *testing.T) {
	srv := newTestServer(t, true)

	w := do(t, srv, "GET", "/v1/lookup?uri=Persn", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Known   bool         `json:"known"`
		Matches []dict.Match `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Known)
	require.NotEmpty(t, resp.Matches)
	assert.Equal(t, "Person", resp.Matches[0].URI)

	w = do(t, srv, "GET", "/v1/lookup?uri=knows&kind=predicate&k=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Known)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, "GET", "/v1/lookup", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, "GET", "/v1/lookup?uri=x&kind=thing", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, "GET", "/v1/lookup?uri=x&k=zero", "").Code)

	t.Run("exact match only", func(t *testing.T) {
		w := do(t, srv, "GET", "/v1/lookup?uri=person", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Known)

		// Both spellings score 1.0; the earlier-registered one ranks first.
		srv := newTestServerWith(t, &testLoader{t: t, extra: []corpus.RawTriple{
			{Subject: "person", Predicate: "knows", Object: "City"},
		}}, true)
		w = do(t, srv, "GET", "/v1/lookup?uri=person&k=1", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Known)
		require.Len(t, resp.Matches, 1)
		assert.Equal(t, "Person", resp.Matches[0].URI)
	})
}

func TestRebuildAndGeneration(t *testing.T) {
	srv := newTestServer(t, true)

	w := do(t, srv, "POST", "/v1/rebuild?wait=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gen-2")

	w = do(t, srv, "GET", "/v1/generation", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Generation string `json:"generation"`
		Rebuilding bool   `json:"rebuilding"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "gen-2", resp.Generation)
	assert.False(t, resp.Rebuilding)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, true)
	do(t, srv, "POST", "/v1/extensions", `{"anchor":"Person"}`)

	w := do(t, srv, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lmerec_query_total")
	assert.Contains(t, w.Body.String(), "lmerec_bundle_size")
}
