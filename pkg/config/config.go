// Package config loads the recommender configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/duynguyendang/lmerec/pkg/embed"
	"github.com/duynguyendang/lmerec/pkg/extend"
	"github.com/duynguyendang/lmerec/pkg/store"
	"gopkg.in/yaml.v3"
)

// Namespaces of the modelling platform's own vocabulary. Suggestions in
// them are never shown to users.
const (
	SemanticModelNamespace = "http://plasma.uni-wuppertal.de/sm/"
	CoreModelNamespace     = "http://plasma.uni-wuppertal.de/cm#"
)

const envPrefix = "LMEREC_"

// Config is the complete service configuration.
type Config struct {
	Store     store.Config   `yaml:"store"`
	Embedding embed.Config   `yaml:"embedding"`
	Extension extend.Options `yaml:"extension"`
	Server    ServerConfig   `yaml:"server"`
	Logging   LoggingConfig  `yaml:"logging"`
	Source    SourceConfig   `yaml:"source"`
}

// ServerConfig configures the HTTP surface and the query cache.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ExcludePrefixes []string      `yaml:"exclude_prefixes"`
	PerAnchorLimit  int           `yaml:"per_anchor_limit"`
	CacheSize       int           `yaml:"cache_size"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// SourceConfig describes where rebuilds read their triples from.
type SourceConfig struct {
	// Kind is "rdf" or "models".
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
	// Format is "ntriples" or "turtle"; only used by the rdf kind.
	Format              string `yaml:"format"`
	Uninstantiate       bool   `yaml:"uninstantiate"`
	KeepUntypedSubjects bool   `yaml:"keep_untyped_subjects"`
	// DropPredicates are removed while uninstantiating.
	DropPredicates []string `yaml:"drop_predicates"`
}

// Default returns the configuration the service runs with when nothing is
// overridden.
func Default() Config {
	return Config{
		Store:     *store.DefaultConfig("cache"),
		Embedding: embed.DefaultConfig(),
		Extension: extend.DefaultOptions(),
		Server: ServerConfig{
			Port:            8221,
			ExcludePrefixes: []string{SemanticModelNamespace, CoreModelNamespace},
			PerAnchorLimit:  5,
			CacheSize:       4096,
			CacheTTL:        10 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Source: SourceConfig{
			Kind:   "models",
			Path:   "cache/models.json",
			Format: "ntriples",
			DropPredicates: []string{
				CoreModelNamespace + "cmUuid",
				CoreModelNamespace + "hasNode",
			},
		},
	}
}

// Load reads path (optional) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from LMEREC_* variables. SERVICE_PORT is honoured
// for compatibility and loses to LMEREC_SERVER_PORT.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	var errs []error
	setInt := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(name string, dst *float64) {
		if v, ok := get(name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = f
		}
	}
	setBool := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	setString := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	setInt("SERVICE_PORT", &c.Server.Port)
	setInt(envPrefix+"SERVER_PORT", &c.Server.Port)

	setString(envPrefix+"STORE_DIR", &c.Store.DataDir)
	setBool(envPrefix+"STORE_IN_MEMORY", &c.Store.InMemory)
	setString(envPrefix+"STORE_PROFILE", &c.Store.Profile)

	setString(envPrefix+"SOURCE_KIND", &c.Source.Kind)
	setString(envPrefix+"SOURCE_PATH", &c.Source.Path)
	setString(envPrefix+"SOURCE_FORMAT", &c.Source.Format)
	if v, ok := get(envPrefix + "SOURCE_DROP_PREDICATES"); ok {
		c.Source.DropPredicates = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Source.DropPredicates = append(c.Source.DropPredicates, p)
			}
		}
	}

	setInt(envPrefix+"EMBED_DIMENSIONS", &c.Embedding.Dimensions)
	setInt(envPrefix+"EMBED_WORKERS", &c.Embedding.Workers)
	setInt(envPrefix+"EMBED_NUM_WALKS", &c.Embedding.NumWalks)
	if v, ok := get(envPrefix + "EMBED_SEED"); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sEMBED_SEED: %w", envPrefix, err))
		} else {
			c.Embedding.Seed = seed
		}
	}

	setFloat(envPrefix+"SIMILARITY_THRESHOLD", &c.Extension.SimilarityThreshold)
	if v, ok := get(envPrefix + "CANDIDATE_SOURCE"); ok {
		c.Extension.CandidateSource = extend.CandidateSource(v)
	}

	setString(envPrefix+"LOG_LEVEL", &c.Logging.Level)
	setString(envPrefix+"LOG_FORMAT", &c.Logging.Format)

	return errors.Join(errs...)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := c.Extension.Validate(); err != nil {
		return fmt.Errorf("extension: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", c.Server.Port)
	}
	if c.Server.PerAnchorLimit <= 0 {
		return fmt.Errorf("server: per_anchor_limit must be positive, got %d", c.Server.PerAnchorLimit)
	}
	if c.Server.CacheSize < 0 || c.Server.CacheTTL < 0 {
		return fmt.Errorf("server: cache size and ttl must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	switch c.Source.Kind {
	case "models":
	case "rdf":
		switch c.Source.Format {
		case "ntriples", "turtle":
		default:
			return fmt.Errorf("source: unknown rdf format %q", c.Source.Format)
		}
	default:
		return fmt.Errorf("source: unknown kind %q", c.Source.Kind)
	}
	return nil
}

// Handler builds the slog handler described by l.
func (l LoggingConfig) Handler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: l.level()}
	if strings.EqualFold(l.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func (l LoggingConfig) level() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
