package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/kgraph/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/services"
	"github.com/custodia-labs/kgraph/internal/logger"
)

// portSpan is how many ports above the configured one serve may try.
const portSpan = 10

var (
	serveAddr    string
	serveNoIndex bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API with search-all, vector-search and graph generation
endpoints. Prometheus metrics are served on /metrics.

While running, passages written by other processes are embedded as they
appear and the maintenance scheduler runs when enabled.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	serveCmd.Flags().BoolVar(&serveNoIndex, "no-index", false, "do not embed stored passages on startup or watch for new ones")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if retrievalService == nil || graphService == nil {
		return errors.New("services not configured")
	}

	addr := serveAddr
	if addr == "" {
		addr = serverSettings.Addr
	}
	addr, err := services.ResolveListenAddr(addr, portSpan)
	if err != nil {
		return err
	}

	server := httpapi.NewServer(httpapi.Deps{
		Retrieval: retrievalService,
		Search:    vectorService,
		Graphs:    graphService,
		Metrics:   appMetrics,
		Version:   version,
	}, serverSettings)

	g, ctx := errgroup.WithContext(cmd.Context())

	if maintenance != nil && !serveNoIndex {
		stopWatcher := startIndexing(ctx, g)
		defer stopWatcher()
	}
	if scheduler != nil {
		g.Go(func() error {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("scheduler stopped: %v", err)
			}
			return nil
		})
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Warn("scheduler stop: %v", err)
			}
		}()
	}

	cmd.Printf("kgraph API listening on %s\n", addr)
	g.Go(func() error {
		return server.Run(ctx, addr)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// startIndexing embeds the backlog in the background and watches for new
// passage files. A missing embedding provider only disables both.
func startIndexing(ctx context.Context, g *errgroup.Group) func() {
	stop, err := maintenance.StartWatcher(ctx)
	switch {
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		logger.Info("embedding provider not configured; vector search disabled")
		return func() {}
	case err != nil:
		logger.Warn("passage watcher: %v", err)
		stop = nil
	}

	g.Go(func() error {
		n, err := maintenance.RebuildIndex(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("rebuilding vector index: %v", err)
			return nil
		}
		logger.Info("vector index ready: %d passages embedded", n)
		return nil
	})

	return func() {
		if stop == nil {
			return
		}
		if err := stop(); err != nil {
			logger.Warn("stopping watcher: %v", err)
		}
	}
}
