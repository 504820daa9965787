package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/duynguyendang/lmerec/internal/manager"
	"github.com/duynguyendang/lmerec/pkg/bundle"
	"github.com/duynguyendang/lmerec/pkg/config"
	"github.com/duynguyendang/lmerec/pkg/corpus"
	"github.com/duynguyendang/lmerec/pkg/source"
	"github.com/duynguyendang/lmerec/pkg/store"
)

const ex = "http://example.org/perf#"

// models generates n models over a vocabulary of 50 classes and 8 predicates.
func models(n int) [][]corpus.RawTriple {
	out := make([][]corpus.RawTriple, n)
	for i := range n {
		for j := range 6 {
			s := (i + j) % 50
			o := (i*7 + j*3 + 1) % 50
			out[i] = append(out[i], corpus.RawTriple{
				Subject:   fmt.Sprintf("%sClass%d", ex, s),
				Predicate: fmt.Sprintf("%sprop%d", ex, (s+o)%8),
				Object:    fmt.Sprintf("%sClass%d", ex, o),
			})
		}
	}
	return out
}

func newManager(loader *bundle.Loader, cfg config.Config) *manager.BundleManager {
	mgr, err := manager.NewBundleManager(loader, manager.Config{Options: cfg.Extension}, nil)
	if err != nil {
		log.Fatal(err)
	}
	return mgr
}

func main() {
	dir, err := os.MkdirTemp("", "lmerec-perf-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()
	modelsPath := filepath.Join(dir, "models.json")
	fmt.Println("Writing 500 models...")
	if err := source.WriteModels(modelsPath, models(500)); err != nil {
		log.Fatal(err)
	}

	cfg := config.Default()
	cfg.Embedding.NumWalks = 100
	cfg.Embedding.Dimensions = 32

	st, err := store.Open(store.DefaultConfig(filepath.Join(dir, "store")))
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()
	loader := &bundle.Loader{Store: st, Source: source.ModelsFile{Path: modelsPath}, Embedding: cfg.Embedding}

	// 1. Cold start: nothing stored, every artifact is trained.
	start := time.Now()
	mgr := newManager(loader, cfg)
	if err := mgr.Start(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Cold start (train + commit) took: %v\n", time.Since(start))
	first, _ := mgr.Current()

	// 2. Warm start: the committed generation is decoded, not retrained.
	start = time.Now()
	warm := newManager(loader, cfg)
	if err := warm.Start(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Warm start (load) took: %v\n", time.Since(start))
	second, _ := warm.Current()
	if second.Generation != first.Generation {
		log.Fatalf("FAIL: warm start served %s, want %s", second.Generation, first.Generation)
	}

	// 3. Query latency, uncached then cached.
	query := func(label string) {
		start := time.Now()
		for i := range 50 {
			if _, err := warm.Recommend(ctx, manager.Query{Anchor: fmt.Sprintf("%sClass%d", ex, i), Limit: 10}); err != nil {
				log.Fatal(err)
			}
		}
		fmt.Printf("50 recommendations (%s) took: %v\n", label, time.Since(start))
	}
	query("uncached")
	query("cached")

	// 4. Rebuild while serving.
	start = time.Now()
	nb, err := warm.Rebuild(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Rebuild to %s took: %v\n", nb.Generation, time.Since(start))
}
