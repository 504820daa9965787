package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/duynguyendang/lmerec/pkg/extend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8221, cfg.Server.Port)
	assert.Equal(t, "cache", cfg.Store.DataDir)
	assert.Equal(t, 0.4, cfg.Extension.SimilarityThreshold)
	assert.Equal(t, 3, cfg.Extension.CandidateLinkLimit)
	assert.Equal(t, 3, cfg.Extension.DefaultLimit)
	assert.Equal(t, 100, cfg.Embedding.Dimensions)
	assert.Equal(t, 30, cfg.Embedding.WalkLength)
	assert.Equal(t, 1000, cfg.Embedding.NumWalks)
	assert.Contains(t, cfg.Server.ExcludePrefixes, CoreModelNamespace)
	assert.Equal(t, []string{CoreModelNamespace + "cmUuid", CoreModelNamespace + "hasNode"}, cfg.Source.DropPredicates)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lmerec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  data_dir: /var/lib/lmerec
embedding:
  dimensions: 32
  num_walks: 50
extension:
  similarity_threshold: 0.5
  candidate_source: statistics
server:
  cache_ttl: 30s
logging:
  format: json
source:
  kind: rdf
  path: data/model.nt
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/lmerec", cfg.Store.DataDir)
	assert.Equal(t, int64(256<<20), cfg.Store.BlockCacheSize, "unset keys keep defaults")
	assert.Equal(t, 32, cfg.Embedding.Dimensions)
	assert.Equal(t, 50, cfg.Embedding.NumWalks)
	assert.Equal(t, 30, cfg.Embedding.WalkLength)
	assert.Equal(t, 0.5, cfg.Extension.SimilarityThreshold)
	assert.Equal(t, extend.SourceStatistics, cfg.Extension.CandidateSource)
	assert.Equal(t, 30*time.Second, cfg.Server.CacheTTL)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "rdf", cfg.Source.Kind)
	assert.Equal(t, "ntriples", cfg.Source.Format)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)

	path = filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extension:\n  candidate_count: 0\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "candidate_count")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"SERVICE_PORT":                  "9000",
		"LMEREC_STORE_DIR":              "/data",
		"LMEREC_STORE_IN_MEMORY":        "true",
		"LMEREC_EMBED_WORKERS":          "8",
		"LMEREC_EMBED_SEED":             "42",
		"LMEREC_SIMILARITY_THRESHOLD":   "0.25",
		"LMEREC_CANDIDATE_SOURCE":       "statistics",
		"LMEREC_LOG_LEVEL":              "debug",
		"LMEREC_SOURCE_PATH":            "  ",
		"LMEREC_SOURCE_DROP_PREDICATES": "http://ex.org/a, http://ex.org/b,",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/data", cfg.Store.DataDir)
	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, 8, cfg.Embedding.Workers)
	assert.Equal(t, uint64(42), cfg.Embedding.Seed)
	assert.Equal(t, 0.25, cfg.Extension.SimilarityThreshold)
	assert.Equal(t, extend.SourceStatistics, cfg.Extension.CandidateSource)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "cache/models.json", cfg.Source.Path, "blank values are ignored")
	assert.Equal(t, []string{"http://ex.org/a", "http://ex.org/b"}, cfg.Source.DropPredicates)
}

func TestApplyEnv_ServerPortWinsOverServicePort(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{
		"SERVICE_PORT":       "9000",
		"LMEREC_SERVER_PORT": "9100",
	})))
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"LMEREC_SERVER_PORT":     "http",
		"LMEREC_EMBED_SEED":      "-1",
		"LMEREC_STORE_IN_MEMORY": "maybe",
	}))
	require.Error(t, err)
	assert.ErrorContains(t, err, "LMEREC_SERVER_PORT")
	assert.ErrorContains(t, err, "LMEREC_EMBED_SEED")
	assert.ErrorContains(t, err, "LMEREC_STORE_IN_MEMORY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"per anchor limit", func(c *Config) { c.Server.PerAnchorLimit = 0 }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"source kind", func(c *Config) { c.Source.Kind = "sparql" }},
		{"rdf format", func(c *Config) { c.Source.Kind, c.Source.Format = "rdf", "jsonld" }},
		{"embedding", func(c *Config) { c.Embedding.Dimensions = -1 }},
		{"threshold", func(c *Config) { c.Extension.SimilarityThreshold = 2 }},
		{"store", func(c *Config) { c.Store.DataDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoggingHandler(t *testing.T) {
	var buf bytes.Buffer
	h := LoggingConfig{Level: "warn", Format: "json"}.Handler(&buf)
	assert.False(t, h.Enabled(t.Context(), slog.LevelInfo))

	slog.New(h).Info("hidden")
	slog.New(h).Warn("shown")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.NotContains(t, buf.String(), "hidden")

	assert.True(t, LoggingConfig{Level: "debug"}.Handler(&buf).Enabled(t.Context(), slog.LevelDebug))
}
