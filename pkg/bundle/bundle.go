// Package bundle groups the artifacts of one generation (registries, corpus,
// statistics model, embedding space) into a single immutable value and
// decides what has to be loaded or rebuilt to produce one.
package bundle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/duynguyendang/lmerec/pkg/corpus"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/duynguyendang/lmerec/pkg/embed"
	"github.com/duynguyendang/lmerec/pkg/extend"
	"github.com/duynguyendang/lmerec/pkg/stats"
)

var (
	// ErrArtifactMismatch reports artifacts built against different registries.
	// Serving such a bundle would mix id spaces; only a full rebuild recovers.
	ErrArtifactMismatch = errors.New("bundle: artifacts belong to different registries")

	// ErrNoSource is returned by Rebuild when no triple source is configured.
	ErrNoSource = errors.New("bundle: no triple source configured")
)

// Presence reports which artifacts of the current generation are stored.
type Presence struct {
	Generation string `json:"generation"`
	Registry   bool   `json:"registry"`
	Corpus     bool   `json:"corpus"`
	Stats      bool   `json:"stats"`
	Space      bool   `json:"space"`
}

// Base reports whether registry and corpus, the inputs of every derived
// artifact, are available.
func (p Presence) Base() bool {
	return p.Generation != "" && p.Registry && p.Corpus
}

// Complete reports whether nothing has to be rebuilt.
func (p Presence) Complete() bool {
	return p.Base() && p.Stats && p.Space
}

// Missing lists the absent artifacts.
func (p Presence) Missing() []string {
	var out []string
	if !p.Registry {
		out = append(out, "registry")
	}
	if !p.Corpus {
		out = append(out, "corpus")
	}
	if !p.Stats {
		out = append(out, "stats")
	}
	if !p.Space {
		out = append(out, "space")
	}
	return out
}

func (p Presence) String() string {
	if p.Complete() {
		return fmt.Sprintf("generation %s complete", p.Generation)
	}
	return fmt.Sprintf("generation %q missing %s", p.Generation, strings.Join(p.Missing(), ","))
}

// Meta describes a committed generation.
type Meta struct {
	Generation       string       `json:"generation"`
	CreatedAt        time.Time    `json:"created_at"`
	Triples          int          `json:"triples"`
	Classes          int          `json:"classes"`
	Predicates       int          `json:"predicates"`
	Labels           int          `json:"labels"`
	ClassFingerprint uint64       `json:"class_fingerprint"`
	Embedding        embed.Config `json:"embedding"`
}

// Bundle is one complete, immutable set of trained artifacts.
type Bundle struct {
	Generation string
	Meta       Meta
	Classes    *dict.Encoder
	Predicates *dict.Encoder
	Corpus     *corpus.Corpus
	Stats      *stats.Recommender
	Space      *embed.Space
	// Labels holds rdfs:label and rdfs:comment of the vocabulary. It may
	// be empty; it never affects scoring.
	Labels corpus.Labels
}

// Validate checks that every artifact was built against the same registries.
func (b *Bundle) Validate() error {
	if b.Classes == nil || b.Predicates == nil || b.Corpus == nil || b.Stats == nil || b.Space == nil {
		return fmt.Errorf("%w: incomplete bundle", ErrArtifactMismatch)
	}
	fp := b.Classes.Fingerprint()
	switch {
	case b.Stats.Fingerprint != fp:
		return fmt.Errorf("%w: statistics fingerprint %x, registry %x", ErrArtifactMismatch, b.Stats.Fingerprint, fp)
	case b.Space.Fingerprint != fp:
		return fmt.Errorf("%w: embedding fingerprint %x, registry %x", ErrArtifactMismatch, b.Space.Fingerprint, fp)
	case b.Space.NumNodes() != b.Classes.Len():
		return fmt.Errorf("%w: embedding spans %d ids, registry has %d", ErrArtifactMismatch, b.Space.NumNodes(), b.Classes.Len())
	case b.Corpus.NumNodes() > b.Classes.Len():
		return fmt.Errorf("%w: corpus references %d classes, registry has %d", ErrArtifactMismatch, b.Corpus.NumNodes(), b.Classes.Len())
	case b.Stats.NumPredicates() > b.Predicates.Len():
		return fmt.Errorf("%w: statistics span %d predicates, registry has %d", ErrArtifactMismatch, b.Stats.NumPredicates(), b.Predicates.Len())
	}
	return nil
}

// Extender returns an orchestrator over the bundle.
func (b *Bundle) Extender(opts extend.Options) *extend.Extender {
	return extend.New(b.Classes, b.Predicates, b.Stats, extend.Nodes(opts, b.Space, b.Stats), opts)
}
