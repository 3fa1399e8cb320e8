/*
main.go - Wallet server entry point

PURPOSE:
  Starts the reference wallet backend: SQLite persistence, the collaborator
  HTTP contract, the snapshot stream and the demo scenarios.

STARTUP SEQUENCE:
  1. Load configuration from the environment, then apply flags
  2. Set up JSON logging
  3. Open the SQLite store (migrations run on open)
  4. Load the card catalog and sync it to the store
  5. Build the router and start the resync scheduler
  6. Serve with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (overrides PORT)
  -db        SQLite database path (overrides DATABASE_PATH)
             Use ":memory:" for an in-memory database
  -catalog   Catalog YAML/JSON file (overrides CATALOG_PATH)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the resync scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/wallet.db"
  ./server -db=":memory:" -port=3000
  CATALOG_PATH=cards.yaml LOG_LEVEL=debug ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/card-wallet/api"
	"github.com/warp/card-wallet/config"
	"github.com/warp/card-wallet/factory"
	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/store/sqlite"
	"github.com/warp/card-wallet/wallet"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags override the environment
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database path")
	flag.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "card catalog file (YAML or JSON)")
	flag.Parse()

	logger := cfg.SetupLogger("card-wallet")

	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	handler := api.NewHandler(store, catalog)
	handler.Logger = logger
	handler.DefaultUser = generic.UserID(cfg.DefaultUserID)
	handler.Eligibility = cfg.EligibilityRule()
	handler.Origins = cfg.AllowedOrigins

	if err := handler.SyncCatalog(context.Background()); err != nil {
		logger.Warn("failed to sync catalog", "error", err)
	}

	limiter := api.NewRateLimiter(api.RateLimit{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Burst:             cfg.RateLimitBurst,
	})
	router := api.NewRouter(handler, limiter)

	scheduler := api.NewResyncScheduler(handler)
	scheduler.Interval = cfg.ResyncInterval
	scheduler.Start()
	defer scheduler.Stop()

	// No WriteTimeout: stream connections stay open
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.DatabasePath, "cards", catalog.Len())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func loadCatalog(path string) (*wallet.Catalog, error) {
	if path == "" {
		return factory.DefaultCatalog(), nil
	}
	catalog, err := factory.NewCatalogFactory().LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return catalog, nil
}
