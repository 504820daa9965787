package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/duynguyendang/lmerec/internal/manager"
	"github.com/duynguyendang/lmerec/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// Options tunes the HTTP surface.
type Options struct {
	// PerAnchorLimit caps the suggestions returned per model node.
	PerAnchorLimit  int
	ShutdownTimeout time.Duration
}

// Server holds the state for the REST API server.
type Server struct {
	manager *manager.BundleManager
	metrics *metrics.Metrics
	opts    Options
	router  *gin.Engine
}

// NewServer creates a new Server instance. m may be nil.
func NewServer(mgr *manager.BundleManager, m *metrics.Metrics, opts Options) *Server {
	if opts.PerAnchorLimit <= 0 {
		opts.PerAnchorLimit = 5
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	r := gin.Default()
	s := &Server{
		manager: mgr,
		metrics: m,
		opts:    opts,
		router:  r,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	slog.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ready", s.readyCheck)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.router.Group("/v1")
	v1.POST("/recommendation", s.handleRecommendation)
	v1.POST("/extensions", s.handleExtensions)
	v1.POST("/candidates", s.handleCandidates)
	v1.POST("/links", s.handleLinks)
	v1.GET("/lookup", s.handleLookup)
	v1.POST("/rebuild", s.handleRebuild)
	v1.GET("/generation", s.handleGeneration)
}

// Health check
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readyCheck(c *gin.Context) {
	b, err := s.manager.Current()
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "generation": b.Generation})
}
