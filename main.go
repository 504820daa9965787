package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/duynguyendang/lmerec/internal/manager"
	"github.com/duynguyendang/lmerec/pkg/bundle"
	"github.com/duynguyendang/lmerec/pkg/config"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/duynguyendang/lmerec/pkg/mcp"
	"github.com/duynguyendang/lmerec/pkg/metrics"
	"github.com/duynguyendang/lmerec/pkg/server"
	"github.com/duynguyendang/lmerec/pkg/source"
	"github.com/duynguyendang/lmerec/pkg/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "lmerec",
		Short: "Linked model extension recommender",
		Long: `lmerec suggests (anchor, predicate, class) triples that extend a semantic
model. It fuses predicate frequencies observed in existing models with
node2vec similarity between classes.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("data-dir", "", "Artifact store directory (overrides config)")
	rootCmd.PersistentFlags().String("source", "", "Triple source path (overrides config)")
	rootCmd.PersistentFlags().String("source-kind", "", "Triple source kind: models or rdf (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lmerec v%s\n", version)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Rebuild every artifact from the triple source and commit a new generation",
		RunE:  runBuild,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API",
		RunE:  runServe,
	})

	recommendCmd := &cobra.Command{
		Use:   "recommend <anchor> [context...]",
		Short: "Print extension suggestions for one anchor class",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRecommend,
	}
	recommendCmd.Flags().Int("limit", 0, "Max number of suggestions (0 uses the configured default)")
	recommendCmd.Flags().Bool("json", false, "Print JSON")
	rootCmd.AddCommand(recommendCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Describe the stored generation",
		RunE:  runInspect,
	}
	inspectCmd.Flags().String("uri", "", "Look up a class URI in the stored registry")
	inspectCmd.Flags().Int("neighbors", 0, "With --uri, list this many observed object classes")
	rootCmd.AddCommand(inspectCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools on stdio",
		RunE:  runMCP,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and installs the slog handler. Logs go to
// stderr so stdout stays clean for command output and MCP.
func setup(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Store.DataDir = dir
	}
	if src, _ := cmd.Flags().GetString("source"); src != "" {
		cfg.Source.Path = src
	}
	if kind, _ := cmd.Flags().GetString("source-kind"); kind != "" {
		cfg.Source.Kind = kind
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	slog.SetDefault(slog.New(cfg.Logging.Handler(os.Stderr)))
	return cfg, nil
}

func openLoader(cfg config.Config) (*store.Store, *bundle.Loader, error) {
	st, err := store.Open(&cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	src, err := source.Open(cfg.Source)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, &bundle.Loader{Store: st, Source: src, Embedding: cfg.Embedding}, nil
}

func startManager(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*store.Store, *manager.BundleManager, error) {
	st, loader, err := openLoader(cfg)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := manager.NewBundleManager(loader, manager.Config{
		Options:         cfg.Extension,
		ExcludePrefixes: cfg.Server.ExcludePrefixes,
		CacheSize:       cfg.Server.CacheSize,
		CacheTTL:        cfg.Server.CacheTTL,
	}, m)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if err := mgr.Start(ctx); err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, mgr, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, loader, err := openLoader(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	b, err := loader.Rebuild(ctx)
	if err != nil {
		return err
	}
	return printJSON(b.Meta)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	st, mgr, err := startManager(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := server.NewServer(mgr, m, server.Options{
		PerAnchorLimit:  cfg.Server.PerAnchorLimit,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	return srv.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
}

func runRecommend(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx := cmd.Context()
	st, mgr, err := startManager(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	anchor := args[0]
	suggestions, err := mgr.Recommend(ctx, manager.Query{Anchor: anchor, Context: args[1:], Limit: limit})
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(suggestions)
	}
	if len(suggestions) == 0 {
		fmt.Println("No suggestions.")
		if matches, err := mgr.Suggest(dict.KindClass, anchor, 3); err == nil && len(matches) > 0 && matches[0].URI != anchor {
			uris := make([]string, len(matches))
			for i, m := range matches {
				uris[i] = m.URI
			}
			fmt.Printf("Unknown anchor. Did you mean: %s?\n", strings.Join(uris, ", "))
		}
		return nil
	}
	for _, s := range suggestions {
		fmt.Printf("%.3f\t%s\t%s\t%s\n", s.Confidence, s.Subject, s.Predicate, s.Object)
	}
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	uri, _ := cmd.Flags().GetString("uri")
	neighbors, _ := cmd.Flags().GetInt("neighbors")
	ctx := cmd.Context()

	st, err := store.Open(&cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := st.Presence(ctx)
	if err != nil {
		return err
	}
	fmt.Println(p.String())
	if p.Generation == "" {
		return nil
	}
	meta, err := st.LoadMeta(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(meta); err != nil {
		return err
	}
	if uri == "" {
		return nil
	}

	id, err := st.LookupID(dict.KindClass, uri)
	if err != nil {
		return err
	}
	if id == dict.NotFound {
		fmt.Printf("%s: not in the class registry\n", uri)
		return nil
	}
	fmt.Printf("%s: class id %d\n", uri, id)
	if neighbors <= 0 || !p.Complete() {
		return nil
	}

	r, err := st.LoadStats(ctx)
	if err != nil {
		return err
	}
	classes, _, err := st.LoadRegistries(ctx)
	if err != nil {
		return err
	}
	for _, n := range r.MostSimilar([]dict.ID{id}, neighbors) {
		obj, err := classes.String(n.ID)
		if err != nil {
			return fmt.Errorf("decode neighbour: %w: %w", bundle.ErrArtifactMismatch, err)
		}
		fmt.Printf("  %.3f\t%s\n", n.Score, obj)
	}
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, mgr, err := startManager(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer st.Close()
	return mcp.Run(ctx, mgr)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
