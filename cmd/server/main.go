/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the inventory engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (YAML, .env, environment)
  2. Parse command-line flags (override config)
  3. Open the store (sqlite, postgres or memory) and run migrations
  4. Connect the optional Redis history cache
  5. Create API handler, optionally seed the demo catalog
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides SERVER_PORT)
  -db      SQLite database path (overrides DATABASE_PATH)
           Use ":memory:" for an in-memory SQLite database
  -seed    Load the demo catalog when the store is empty

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SERVER_SHUTDOWN_TIMEOUT)
  3. Close cache and database connections
  4. Exit

EXAMPLES:
  # Run with file database
  AUTH_JWT_SECRET=... ./server -db="./data/inventory.db"

  # Run against Postgres
  DATABASE_DRIVER=postgres DATABASE_DSN=postgres://... ./server

  # Run on different port with demo data
  ./server -port=3000 -seed

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlstore/store.go: Database implementation
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

	"github.com/warp/inventory-engine/api"
	"github.com/warp/inventory-engine/auth"
	"github.com/warp/inventory-engine/cache"
	"github.com/warp/inventory-engine/config"
	"github.com/warp/inventory-engine/inventory"
	"github.com/warp/inventory-engine/inventory/store"
	"github.com/warp/inventory-engine/store/sqlstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags override config
	port := flag.Int("port", cfg.Server.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	seed := flag.Bool("seed", cfg.Seed, "Load the demo catalog when the store is empty")
	flag.Parse()
	cfg.Server.Port = *port
	cfg.Database.Path = *dbPath
	cfg.Seed = *seed

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := config.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	txStore, ping, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeStore()
	logger.Info("store ready", "driver", cfg.Database.Driver)

	// Optional history cache
	var (
		historyCache inventory.HistoryCache
		cachePing    func(context.Context) error
	)
	if cfg.Redis.Enabled() {
		rc, err := cache.NewRedisHistory(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
			Prefix:   cfg.Redis.Prefix,
		}, logger)
		if err != nil {
			// The store is authoritative; run without the cache.
			logger.Warn("redis unavailable, history cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer rc.Close()
			historyCache = rc
			cachePing = rc.Ping
		}
	}

	handler := api.NewHandler(txStore, historyCache, logger)

	if cfg.Seed {
		if _, err := handler.SeedDemo(ctx); err != nil {
			logger.Warn("failed to seed demo catalog", "error", err)
		}
	}

	router := api.NewRouter(handler, api.RouterConfig{
		CORS:      cfg.CORS,
		Tokens:    auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL),
		Logger:    logger,
		Ping:      ping,
		CachePing: cachePing,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore returns the configured store, a health check and a closer.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (inventory.TxStore, func(context.Context) error, func() error, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewTxMemory(), nil, func() error { return nil }, nil

	case "postgres":
		s, err := sqlstore.OpenPostgres(ctx, cfg.DSN, sqlstore.PoolConfig{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s.DB().PingContext, s.Close, nil

	default:
		s, err := sqlstore.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s.DB().PingContext, s.Close, nil
	}
}
