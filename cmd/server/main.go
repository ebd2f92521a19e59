// Package main provides the entry point for the thumbnail HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/maauso/thumbnailer/internal/bootstrap"
	"github.com/maauso/thumbnailer/internal/config"
	"github.com/maauso/thumbnailer/internal/server"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadContext(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	logger.Info("starting thumbnail server", slog.String("config", cfg.String()))

	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	deps, err := bootstrap.NewDependencies(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	handlers := server.NewHandlers(deps.Service, deps.Local, logger)
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           server.NewRouter(handlers, logger, server.DefaultConfig()),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case serveErr = <-errCh:
	}

	return shutdown(srv, deps, logger, serveErr)
}

// shutdown stops accepting requests, lets in-flight extraction jobs finish
// so their temp files are accounted for, then closes external connections.
func shutdown(srv *http.Server, deps *bootstrap.Dependencies, logger *slog.Logger, serveErr error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down server...")
	var errs []error
	if serveErr != nil {
		errs = append(errs, serveErr)
	} else if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown failed: %w", err))
	}

	done := make(chan struct{})
	go func() {
		deps.Service.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("extraction jobs still running at shutdown deadline")
	}

	if err := deps.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close dependencies: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Info("server stopped gracefully")
	return nil
}
