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

	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/content"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/repository"
	"github.com/wadjakorntonsri/go-safelink/pkg/config"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/services"
	"github.com/wadjakorntonsri/go-safelink/pkg/logging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Initialize Repository
	store, err := repository.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	limiterStore, err := repository.LimiterStore(store)
	if err != nil {
		return err
	}

	// Initialize Services
	clicks := services.NewClickAccountant(store, logger, cfg.ClickWorkers, cfg.ClickQueueSize)
	defer clicks.Close()

	service := services.NewLinkService(store, clicks, cfg.BaseURL,
		services.WithTokenGenerator(services.NewTokenGenerator(cfg.TokenBytes)),
		services.WithAttempts(cfg.IssueAttempts),
		services.WithLogger(logger),
	)

	// Initialize Router
	mux := handler.NewRouter(cfg, service, clicks, content.FromConfig(cfg), limiterStore, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
