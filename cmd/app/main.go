package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"certsheet/cmd/app/types"
	"certsheet/internal/config"
	"certsheet/internal/pipeline"
)

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if os.Getenv("LOG_FORMAT") == "" && os.Getenv("CERTSHEET_LOG_FORMAT") == "" {
		cfg.Log.Format = "json"
	}

	logger := config.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("startup", slog.String("status", "initializing API"))
	defer logger.Info("shutdown complete")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc := types.RouteConfig{Logger: logger}
	var p *pipeline.Pipeline
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		rc.InitErr = err
	} else if p, err = pipeline.Build(ctx, cfg, logger); err != nil {
		logger.Error("failed to initialize pipeline", slog.String("error", err.Error()))
		rc.InitErr = err
	} else {
		rc.Orchestrator = p.Orchestrator
		defer func() {
			if err := p.Close(); err != nil {
				logger.Error("failed to close pipeline", slog.String("error", err.Error()))
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(rc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.String("error", err.Error()))
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.String("error", err.Error()))
			return err
		}
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
