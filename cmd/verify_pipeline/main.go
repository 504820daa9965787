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
	"github.com/duynguyendang/lmerec/pkg/extend"
	"github.com/duynguyendang/lmerec/pkg/source"
	"github.com/duynguyendang/lmerec/pkg/store"
)

const ex = "http://example.org/onto#"

// syntheticModels returns a handful of small semantic models over a shared
// vocabulary, each a list of class-level triples.
func syntheticModels() [][]corpus.RawTriple {
	t := func(s, p, o string) corpus.RawTriple {
		return corpus.RawTriple{Subject: ex + s, Predicate: ex + p, Object: ex + o}
	}
	return [][]corpus.RawTriple{
		{t("Sensor", "observes", "Temperature"), t("Sensor", "locatedIn", "Room"), t("Room", "partOf", "Building")},
		{t("Sensor", "observes", "Humidity"), t("Sensor", "locatedIn", "Room")},
		{t("Sensor", "observes", "Temperature"), t("Sensor", "hasUnit", "Celsius"), t("Temperature", "hasUnit", "Celsius")},
		{t("Person", "worksIn", "Building"), t("Person", "owns", "Sensor")},
		{t("Person", "worksIn", "Building"), t("Room", "partOf", "Building")},
	}
}

func main() {
	dir, err := os.MkdirTemp("", "lmerec-verify-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()
	start := time.Now()

	fmt.Println("Step 1: Writing models.json...")
	modelsPath := filepath.Join(dir, "models.json")
	if err := source.WriteModels(modelsPath, syntheticModels()); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Step 2: Opening in-memory artifact store...")
	st, err := store.Open(store.InMemoryConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	cfg := config.Default()
	cfg.Embedding.NumWalks = 50
	cfg.Embedding.Dimensions = 16
	cfg.Embedding.Window = 4
	loader := &bundle.Loader{Store: st, Source: source.ModelsFile{Path: modelsPath}, Embedding: cfg.Embedding}

	fmt.Println("Step 3: Building artifacts...")
	mgr, err := manager.NewBundleManager(loader, manager.Config{
		Options:         cfg.Extension,
		ExcludePrefixes: cfg.Server.ExcludePrefixes,
	}, nil)
	if err != nil {
		log.Fatal(err)
	}
	if err := mgr.Start(ctx); err != nil {
		log.Fatalf("start failed: %v", err)
	}
	b, err := mgr.Current()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("  generation %s: %d triples, %d classes, %d predicates\n",
		b.Generation, b.Meta.Triples, b.Meta.Classes, b.Meta.Predicates)

	fmt.Println("\nStep 4: Recommending extensions for Sensor...")
	suggestions, err := mgr.Recommend(ctx, manager.Query{Anchor: ex + "Sensor", Limit: 5})
	if err != nil {
		log.Fatal(err)
	}
	if len(suggestions) == 0 {
		fmt.Println("  WARN: no suggestions")
	}
	for _, s := range suggestions {
		if s.Confidence < 0 || s.Confidence > 1 {
			log.Fatalf("  FAIL: confidence %v out of range", s.Confidence)
		}
		fmt.Printf("  %.3f  %s -[%s]-> %s\n", s.Confidence, s.Subject, s.Predicate, s.Object)
	}

	fmt.Println("\nStep 5: Predicting links Sensor -> Temperature...")
	links, err := mgr.PredictLink(ex+"Sensor", ex+"Temperature", 0)
	if err != nil {
		log.Fatal(err)
	}
	for _, l := range links {
		fmt.Printf("  %.3f  %s\n", l.Frequency, l.Predicate)
	}

	fmt.Println("\nStep 6: Recommending nodes for a partial model...")
	nodes, err := mgr.RecommendNodes([]extend.ModelNode{{URI: ex + "Sensor", Neighbors: []string{ex + "Room"}}}, 3)
	if err != nil {
		log.Fatal(err)
	}
	for _, n := range nodes {
		fmt.Printf("  %.3f  %s\n", n.Certainty, n.URI)
	}

	fmt.Println("\nStep 7: Reloading from the store...")
	reloaded, err := loader.Load(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if reloaded.Generation != b.Generation {
		log.Fatalf("  FAIL: reloaded generation %s, want %s", reloaded.Generation, b.Generation)
	}
	again := reloaded.Extender(cfg.Extension)
	replay, err := again.Generate(ex+"Sensor", nil, 5)
	if err != nil {
		log.Fatal(err)
	}
	if len(replay) != len(suggestions) {
		log.Fatalf("  FAIL: reloaded bundle returned %d suggestions, want %d", len(replay), len(suggestions))
	}
	fmt.Println("  PASS: reloaded bundle serves identical suggestions")

	fmt.Println("\nStep 8: Rebuilding...")
	nb, err := mgr.Rebuild(ctx)
	if err != nil {
		log.Fatal(err)
	}
	p, err := st.Presence(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if p.Generation != nb.Generation || !p.Complete() {
		log.Fatalf("  FAIL: store presence %s after rebuild %s", p, nb.Generation)
	}
	fmt.Printf("  PASS: %s\n", p)

	fmt.Printf("\nDone in %s\n", time.Since(start))
}
