// Command kgraph builds knowledge graphs from web, paper, video and news
// sources.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/kgraph/internal/adapters/driving/cli"
	"github.com/custodia-labs/kgraph/internal/app"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func bootstrap(ctx context.Context, opts cli.BootstrapOptions) (*cli.Runtime, error) {
	a, err := app.New(ctx, app.Options{
		ConfigPath: opts.ConfigPath,
		Version:    opts.Version,
	})
	if err != nil {
		return nil, err
	}
	return &cli.Runtime{
		Retrieval:   a.Retrieval,
		Search:      a.Search,
		Graphs:      a.Graphs,
		Settings:    a.SettingsService,
		Server:      a.Settings.Server,
		Log:         a.Settings.Log,
		Metrics:     a.Metrics,
		Scheduler:   a.Scheduler(),
		Maintenance: a,
		Close:       a.Close,
	}, nil
}
