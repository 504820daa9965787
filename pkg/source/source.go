// Package source reads the raw triples a rebuild starts from.
package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/duynguyendang/lmerec/pkg/bundle"
	"github.com/duynguyendang/lmerec/pkg/config"
	"github.com/duynguyendang/lmerec/pkg/corpus"
)

// Source produces raw triples.
type Source interface {
	Triples(ctx context.Context) ([]corpus.RawTriple, error)
}

var (
	_ bundle.Source = RDFFile{}
	_ bundle.Source = ModelsFile{}
	_ bundle.Source = Static(nil)
	_ bundle.Source = Uninstantiated{}
)

// Static serves a fixed set of triples.
type Static []corpus.RawTriple

func (s Static) Triples(context.Context) ([]corpus.RawTriple, error) {
	return s, nil
}

// Uninstantiated collapses the triples of Source to class level.
type Uninstantiated struct {
	Source  Source
	Options corpus.UninstantiateOptions
}

func (u Uninstantiated) Triples(ctx context.Context) ([]corpus.RawTriple, error) {
	raw, err := u.Source.Triples(ctx)
	if err != nil {
		return nil, err
	}
	out, report := corpus.Uninstantiate(raw, u.Options)
	level := slog.LevelInfo
	if report.DroppedUntyped > 0 {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "triples uninstantiated",
		"input", report.Input,
		"output", report.Output,
		"type_triples", report.TypeTriples,
		"dropped_untyped", report.DroppedUntyped,
		"dropped_by_rule", report.DroppedByRule,
	)
	return out, nil
}

// Open builds the source described by cfg.
func Open(cfg config.SourceConfig) (Source, error) {
	var src Source
	switch cfg.Kind {
	case "models":
		src = ModelsFile{Path: cfg.Path}
	case "rdf":
		src = RDFFile{Path: cfg.Path, Format: Format(cfg.Format)}
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
	if cfg.Uninstantiate {
		src = Uninstantiated{
			Source:  src,
			Options: corpus.UninstantiateOptions{
				KeepUntypedSubjects: cfg.KeepUntypedSubjects,
				DropPredicates:      cfg.DropPredicates,
			},
		}
	}
	return src, nil
}
