package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duynguyendang/lmerec/pkg/bundle"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/duynguyendang/lmerec/pkg/extend"
	"github.com/duynguyendang/lmerec/pkg/metrics"
	"github.com/duynguyendang/lmerec/pkg/stats"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	// ErrNotReady is returned by queries before the first bundle is published.
	ErrNotReady = errors.New("manager: no bundle loaded yet")

	// ErrRebuildInProgress is returned when a rebuild is already running.
	ErrRebuildInProgress = errors.New("manager: rebuild already in progress")
)

const (
	DefaultCacheSize = 4096
	DefaultCacheTTL  = 10 * time.Minute
)

// Loader produces bundles. *bundle.Loader implements it.
type Loader interface {
	LoadOrRebuild(ctx context.Context) (*bundle.Bundle, error)
	Rebuild(ctx context.Context) (*bundle.Bundle, error)
}

// Config tunes a BundleManager.
type Config struct {
	Options         extend.Options
	ExcludePrefixes []string
	CacheSize       int
	CacheTTL        time.Duration
}

// Query asks for extensions of one anchor.
type Query struct {
	Anchor  string   `json:"anchor"`
	Context []string `json:"context,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	// Existing lists triples already in the model, keyed by extend.TripleKey.
	Existing map[string]bool `json:"-"`
}

// LinkScore is a predicate suggested between two classes.
type LinkScore struct {
	Predicate string  `json:"predicate"`
	Frequency float64 `json:"frequency"`
}

type snapshot struct {
	bundle   *bundle.Bundle
	extender *extend.Extender
}

// BundleManager owns the serving bundle. Queries read an immutable snapshot
// through an atomic pointer; rebuilds publish a new one with a single swap.
type BundleManager struct {
	loader  Loader
	cfg     Config
	metrics *metrics.Metrics

	current   atomic.Pointer[snapshot]
	rebuildMu sync.Mutex
	cache     *expirable.LRU[string, []extend.Suggestion]

	// afterQuery runs between the queries of RecommendModel; tests only.
	afterQuery func(i int)
}

// NewBundleManager creates a manager. m may be nil.
func NewBundleManager(loader Loader, cfg Config, m *metrics.Metrics) (*BundleManager, error) {
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &BundleManager{
		loader:  loader,
		cfg:     cfg,
		metrics: m,
		cache:   expirable.NewLRU[string, []extend.Suggestion](cfg.CacheSize, nil, cfg.CacheTTL),
	}, nil
}

// Start loads the stored generation, rebuilding whatever is missing, and
// publishes it.
func (bm *BundleManager) Start(ctx context.Context) error {
	bm.rebuildMu.Lock()
	defer bm.rebuildMu.Unlock()

	start := time.Now()
	b, err := bm.loader.LoadOrRebuild(ctx)
	if err != nil {
		return fmt.Errorf("load bundle: %w", err)
	}
	bm.publish(b)
	slog.Info("bundle manager started", "generation", b.Generation, "duration", time.Since(start))
	return nil
}

// Rebuild retrains every artifact from the source and publishes the result.
// Queries keep using the previous bundle until the swap.
func (bm *BundleManager) Rebuild(ctx context.Context) (*bundle.Bundle, error) {
	if !bm.rebuildMu.TryLock() {
		return nil, ErrRebuildInProgress
	}
	defer bm.rebuildMu.Unlock()

	start := time.Now()
	b, err := bm.loader.Rebuild(ctx)
	bm.metrics.ObserveRebuild(err, time.Since(start))
	if err != nil {
		slog.Error("rebuild failed", "error", err)
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	bm.publish(b)
	return b, nil
}

// Rebuilding reports whether a rebuild or the initial load is running.
func (bm *BundleManager) Rebuilding() bool {
	if bm.rebuildMu.TryLock() {
		bm.rebuildMu.Unlock()
		return false
	}
	return true
}

func (bm *BundleManager) publish(b *bundle.Bundle) {
	bm.current.Store(&snapshot{bundle: b, extender: b.Extender(bm.cfg.Options)})
	// Keys carry the generation; purging only frees memory early.
	bm.cache.Purge()
	bm.metrics.BundleSwapped(b.Classes.Len(), b.Predicates.Len(), b.Corpus.Len(), b.Space.Len())
	slog.Info("bundle published",
		"generation", b.Generation,
		"classes", b.Classes.Len(),
		"predicates", b.Predicates.Len(),
	)
}

func (bm *BundleManager) snapshot() (*snapshot, error) {
	s := bm.current.Load()
	if s == nil {
		return nil, ErrNotReady
	}
	return s, nil
}

// Current returns the serving bundle.
func (bm *BundleManager) Current() (*bundle.Bundle, error) {
	s, err := bm.snapshot()
	if err != nil {
		return nil, err
	}
	return s.bundle, nil
}

// Options returns the extension options in use.
func (bm *BundleManager) Options() extend.Options {
	return bm.cfg.Options
}

// Recommend returns ranked extensions for q.Anchor, minus excluded
// namespaces and triples already in the model.
func (bm *BundleManager) Recommend(ctx context.Context, q Query) ([]extend.Suggestion, error) {
	s, err := bm.snapshot()
	if err != nil {
		return nil, err
	}
	return bm.recommend(ctx, s, q)
}

// RecommendModel answers every query of one model against a single
// snapshot, so a concurrent swap never mixes generations in one answer. It
// returns the generation that served the queries and one result per query.
func (bm *BundleManager) RecommendModel(ctx context.Context, queries []Query) (string, [][]extend.Suggestion, error) {
	s, err := bm.snapshot()
	if err != nil {
		return "", nil, err
	}
	out := make([][]extend.Suggestion, len(queries))
	for i, q := range queries {
		if out[i], err = bm.recommend(ctx, s, q); err != nil {
			return "", nil, err
		}
		if bm.afterQuery != nil {
			bm.afterQuery(i)
		}
	}
	return s.bundle.Generation, out, nil
}

func (bm *BundleManager) recommend(ctx context.Context, s *snapshot, q Query) ([]extend.Suggestion, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(s.bundle.Generation, q)
	raw, hit := bm.cache.Get(key)
	bm.metrics.CacheLookup(hit)
	if !hit {
		generated, err := s.extender.Generate(q.Anchor, q.Context, q.Limit)
		if err != nil {
			bm.metrics.ObserveQuery("recommend", "error", time.Since(start))
			return nil, err
		}
		raw = extend.Annotate(generated, s.bundle.Labels)
		bm.cache.Add(key, raw)
	}

	out := extend.Filter{ExcludePrefixes: bm.cfg.ExcludePrefixes, Existing: q.Existing}.Apply(raw)
	bm.metrics.ObserveQuery("recommend", outcomeOf(len(out)), time.Since(start))
	slog.Debug("recommend",
		"anchor", q.Anchor,
		"context", len(q.Context),
		"cached", hit,
		"results", len(out),
	)
	return out, nil
}

func cacheKey(gen string, q Query) string {
	var sb strings.Builder
	sb.WriteString(gen)
	sb.WriteByte(0)
	sb.WriteString(q.Anchor)
	sb.WriteByte(0)
	for _, c := range q.Context {
		sb.WriteString(c)
		sb.WriteByte(0x1f)
	}
	sb.WriteByte(0)
	sb.WriteString(strconv.Itoa(q.Limit))
	return sb.String()
}

// PredictLink returns up to limit predicates for the pair, most frequent
// first. Unknown URIs yield an error wrapping dict.ErrNotFound.
func (bm *BundleManager) PredictLink(anchor, candidate string, limit int) ([]LinkScore, error) {
	start := time.Now()
	s, err := bm.snapshot()
	if err != nil {
		return nil, err
	}
	b := s.bundle
	a, ok := b.Classes.Lookup(anchor)
	if !ok {
		return nil, fmt.Errorf("anchor %q: %w", anchor, dict.ErrNotFound)
	}
	c, ok := b.Classes.Lookup(candidate)
	if !ok {
		return nil, fmt.Errorf("candidate %q: %w", candidate, dict.ErrNotFound)
	}
	if limit <= 0 {
		limit = bm.cfg.Options.CandidateLinkLimit
	}

	links := b.Stats.TopLinks(a, c, limit)
	out := make([]LinkScore, 0, len(links))
	for _, l := range links {
		uri, err := b.Predicates.String(l.Predicate)
		if err != nil {
			return nil, fmt.Errorf("decode predicate %d: %w: %w", l.Predicate, bundle.ErrArtifactMismatch, err)
		}
		out = append(out, LinkScore{Predicate: uri, Frequency: l.Frequency})
	}
	bm.metrics.ObserveQuery("predict_link", outcomeOf(len(out)), time.Since(start))
	return out, nil
}

// RecommendNodes ranks classes to add to a whole model.
func (bm *BundleManager) RecommendNodes(model []extend.ModelNode, limit int) ([]extend.NodeScore, error) {
	start := time.Now()
	s, err := bm.snapshot()
	if err != nil {
		return nil, err
	}
	out, err := s.extender.RecommendNodes(model, limit)
	if err != nil {
		bm.metrics.ObserveQuery("recommend_nodes", "error", time.Since(start))
		return nil, err
	}
	bm.metrics.ObserveQuery("recommend_nodes", outcomeOf(len(out)), time.Since(start))
	return out, nil
}

// Suggest returns known URIs of the given kind that look like uri.
func (bm *BundleManager) Suggest(kind dict.Kind, uri string, k int) ([]dict.Match, error) {
	s, err := bm.snapshot()
	if err != nil {
		return nil, err
	}
	switch kind {
	case dict.KindClass:
		return s.bundle.Classes.Suggest(uri, k), nil
	case dict.KindPredicate:
		return s.bundle.Predicates.Suggest(uri, k), nil
	default:
		return nil, fmt.Errorf("unknown registry kind %d", kind)
	}
}

// Known reports whether uri is in the registry of the given kind.
func (bm *BundleManager) Known(kind dict.Kind, uri string) (bool, error) {
	s, err := bm.snapshot()
	if err != nil {
		return false, err
	}
	switch kind {
	case dict.KindClass:
		_, ok := s.bundle.Classes.Lookup(uri)
		return ok, nil
	case dict.KindPredicate:
		_, ok := s.bundle.Predicates.Lookup(uri)
		return ok, nil
	default:
		return false, fmt.Errorf("unknown registry kind %d", kind)
	}
}

// Neighbors lists the distinct objects the statistics model has seen after
// anchor, with their normalized vote share.
func (bm *BundleManager) Neighbors(anchor string, topn int) ([]stats.Neighbor, error) {
	s, err := bm.snapshot()
	if err != nil {
		return nil, err
	}
	id, ok := s.bundle.Classes.Lookup(anchor)
	if !ok {
		return nil, fmt.Errorf("anchor %q: %w", anchor, dict.ErrNotFound)
	}
	return s.bundle.Stats.MostSimilar([]dict.ID{id}, topn), nil
}

func outcomeOf(n int) string {
	if n == 0 {
		return "empty"
	}
	return "ok"
}
