package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/duynguyendang/lmerec/pkg/corpus"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/duynguyendang/lmerec/pkg/embed"
	"github.com/duynguyendang/lmerec/pkg/stats"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ArtifactStore persists generations. Implementations decide the medium;
// the loader only talks to this interface.
type ArtifactStore interface {
	Presence(ctx context.Context) (Presence, error)
	LoadMeta(ctx context.Context) (Meta, error)
	LoadRegistries(ctx context.Context) (classes, predicates *dict.Encoder, err error)
	LoadCorpus(ctx context.Context) (*corpus.Corpus, error)
	LoadStats(ctx context.Context) (*stats.Recommender, error)
	LoadSpace(ctx context.Context) (*embed.Space, error)
	// LoadLabels returns an empty index for generations stored without one.
	LoadLabels(ctx context.Context) (corpus.Labels, error)

	// SaveStats and SaveSpace fill a missing derived artifact of the
	// committed generation gen.
	SaveStats(ctx context.Context, gen string, r *stats.Recommender) error
	SaveSpace(ctx context.Context, gen string, s *embed.Space) error

	// SaveGeneration stages every artifact of b and publishes them at once.
	SaveGeneration(ctx context.Context, b *Bundle) error
}

// Source produces the raw triples a rebuild starts from.
type Source interface {
	Triples(ctx context.Context) ([]corpus.RawTriple, error)
}

// Loader produces bundles from an artifact store, rebuilding what is missing.
type Loader struct {
	Store     ArtifactStore
	Source    Source
	Embedding embed.Config
}

// Load returns the bundle of the committed generation. A missing registry or
// corpus triggers a full Rebuild; a missing statistics model or embedding is
// rebuilt alone from the stored corpus and saved back.
func (l *Loader) Load(ctx context.Context) (*Bundle, error) {
	p, err := l.Store.Presence(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifact presence: %w", err)
	}
	if !p.Base() {
		slog.Info("no usable generation stored, rebuilding", "presence", p.String())
		return l.Rebuild(ctx)
	}

	start := time.Now()
	b := &Bundle{Generation: p.Generation}
	if b.Meta, err = l.Store.LoadMeta(ctx); err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	if b.Classes, b.Predicates, err = l.Store.LoadRegistries(ctx); err != nil {
		return nil, fmt.Errorf("load registries: %w", err)
	}
	if b.Corpus, err = l.Store.LoadCorpus(ctx); err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	if b.Labels, err = l.Store.LoadLabels(ctx); err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	fp := b.Classes.Fingerprint()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if p.Stats {
			r, err := l.Store.LoadStats(gctx)
			if err != nil {
				return fmt.Errorf("load stats: %w", err)
			}
			b.Stats = r
			return nil
		}
		slog.Info("statistics model missing, refitting", "generation", p.Generation)
		r := stats.Fit(b.Corpus)
		r.Fingerprint = fp
		if err := l.Store.SaveStats(gctx, p.Generation, r); err != nil {
			return fmt.Errorf("save stats: %w", err)
		}
		b.Stats = r
		return nil
	})
	g.Go(func() error {
		if p.Space {
			s, err := l.Store.LoadSpace(gctx)
			if err != nil {
				return fmt.Errorf("load space: %w", err)
			}
			b.Space = s
			return nil
		}
		slog.Info("embedding missing, retraining", "generation", p.Generation)
		s, err := embed.Train(gctx, corpus.NewGraph(b.Corpus, b.Classes.Len()), l.Embedding)
		if err != nil {
			return err
		}
		s.Fingerprint = fp
		if err := l.Store.SaveSpace(gctx, p.Generation, s); err != nil {
			return fmt.Errorf("save space: %w", err)
		}
		b.Space = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	slog.Info("bundle loaded",
		"generation", b.Generation,
		"classes", b.Classes.Len(),
		"triples", b.Corpus.Len(),
		"duration", time.Since(start),
	)
	return b, nil
}

// Rebuild builds every artifact from the source in memory, validates the
// result and commits it to the store as a new generation. Nothing is
// visible in the store until the commit succeeds.
func (l *Loader) Rebuild(ctx context.Context) (*Bundle, error) {
	if l.Source == nil {
		return nil, ErrNoSource
	}
	start := time.Now()

	raw, err := l.Source.Triples(ctx)
	if err != nil {
		return nil, fmt.Errorf("read triples: %w", err)
	}
	labels, raw := corpus.ExtractLabels(raw)
	res := corpus.Build(raw)
	fp := res.Classes.Fingerprint()

	b := &Bundle{
		Generation: uuid.NewString(),
		Classes:    res.Classes,
		Predicates: res.Predicates,
		Corpus:     res.Corpus,
		Labels:     labels,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.Stats = stats.Fit(res.Corpus)
		b.Stats.Fingerprint = fp
		return nil
	})
	g.Go(func() error {
		s, err := embed.Train(gctx, res.Graph, l.Embedding)
		if err != nil {
			return err
		}
		s.Fingerprint = fp
		b.Space = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.Meta = Meta{
		Generation:       b.Generation,
		CreatedAt:        time.Now().UTC(),
		Triples:          res.Corpus.Len(),
		Classes:          res.Classes.Len(),
		Predicates:       res.Predicates.Len(),
		Labels:           len(labels),
		ClassFingerprint: fp,
		Embedding:        l.Embedding,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := l.Store.SaveGeneration(ctx, b); err != nil {
		return nil, fmt.Errorf("save generation %s: %w", b.Generation, err)
	}

	slog.Info("bundle rebuilt",
		"generation", b.Generation,
		"triples", b.Corpus.Len(),
		"classes", b.Classes.Len(),
		"predicates", b.Predicates.Len(),
		"labels", len(labels),
		"duration", time.Since(start),
	)
	return b, nil
}

// LoadOrRebuild is Load, falling back to a full Rebuild when the stored
// artifacts do not belong together.
func (l *Loader) LoadOrRebuild(ctx context.Context) (*Bundle, error) {
	b, err := l.Load(ctx)
	if errors.Is(err, ErrArtifactMismatch) {
		slog.Error("stored artifacts are inconsistent, rebuilding", "error", err)
		return l.Rebuild(ctx)
	}
	return b, err
}
