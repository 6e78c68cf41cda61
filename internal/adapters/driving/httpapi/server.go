// Package httpapi exposes the retrieval, vector search and graph services
// over HTTP using gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driving"
	"github.com/custodia-labs/kgraph/internal/logger"
	"github.com/custodia-labs/kgraph/internal/metrics"
)

const (
	corsMaxAgeHours = 12
	shutdownTimeout = 10 * time.Second

	// BatchHeader carries the batch id of a search-all response.
	BatchHeader = "X-Batch-UUID"
)

// Deps are the services behind the API.
type Deps struct {
	Retrieval driving.RetrievalService
	Search    driving.VectorSearchService
	Graphs    driving.GraphService

	// Metrics is optional. Without it /metrics is not served.
	Metrics *metrics.Metrics

	Version string
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	cfg    domain.ServerSettings
	engine *gin.Engine
}

// NewServer builds the router.
func NewServer(deps Deps, cfg domain.ServerSettings) *Server {
	s := &Server{deps: deps, cfg: cfg}
	s.engine = s.routes()
	return s
}

// Handler returns the router for use with httptest or a custom server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(s.cfg.CORSOrigins)))
	}
	r.Use(RequestID())
	r.Use(gin.CustomRecovery(recoverJSON))
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	r.GET("/health", s.health)
	r.POST("/search-all", s.searchAll)
	r.POST("/vector-search", s.vectorSearch)
	r.POST("/generate-knowledge-graph", s.generate)

	graphs := r.Group("/knowledge-graphs")
	graphs.GET("", s.listGraphs)
	graphs.GET("/status/:uuid", s.graphStatus)
	graphs.GET("/status/:uuid/history", s.graphHistory)
	graphs.GET("/:uuid", s.graph)

	r.NoRoute(func(c *gin.Context) {
		writeError(c, fmt.Errorf("%w: no route for %s %s", domain.ErrNotFound, c.Request.Method, c.Request.URL.Path))
	})
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", RequestIDHeader, BatchHeader},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader, BatchHeader},
		MaxAge:        corsMaxAgeHours * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
