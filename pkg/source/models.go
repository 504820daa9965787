package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/duynguyendang/lmerec/pkg/corpus"
)

// ModelsFile reads a JSON list of models, each a list of [s, p, o] triples
// already at class level.
type ModelsFile struct {
	Path string
}

func (m ModelsFile) Triples(ctx context.Context) ([]corpus.RawTriple, error) {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return nil, fmt.Errorf("read models: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var models [][][3]string
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("parse models %s: %w", m.Path, err)
	}

	var out []corpus.RawTriple
	for _, model := range models {
		for _, t := range model {
			out = append(out, corpus.RawTriple{Subject: t[0], Predicate: t[1], Object: t[2]})
		}
	}
	return out, nil
}

// WriteModels stores models in the format ModelsFile reads.
func WriteModels(path string, models [][]corpus.RawTriple) error {
	out := make([][][3]string, len(models))
	for i, model := range models {
		out[i] = make([][3]string, len(model))
		for j, t := range model {
			out[i][j] = [3]string{t.Subject, t.Predicate, t.Object}
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write models: %w", err)
	}
	return nil
}
