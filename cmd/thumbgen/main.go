// Package main provides the thumbgen command line tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maauso/thumbnailer/internal/bootstrap"
	"github.com/maauso/thumbnailer/internal/cli"
	"github.com/maauso/thumbnailer/internal/config"
	"github.com/maauso/thumbnailer/internal/fetch"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(load).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// load reads configuration from .env and the environment and wires the
// pipeline the same way the server does.
func load(ctx context.Context) (*cli.Deps, error) {
	cfg, err := config.LoadContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLoggerTo(os.Stderr)

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return &cli.Deps{
		Generator:   deps.Orchestrator,
		Prober:      deps.Prober,
		Files:       deps.Local,
		Credentials: fetch.Credentials{BotToken: cfg.TelegramBotToken},
		Logger:      logger,
		Close:       deps.Close,
	}, nil
}
