// Package main is the entrypoint for the ScanHunter API server.
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

	"github.com/kiranshivaraju/scanhunter/internal/api"
	"github.com/kiranshivaraju/scanhunter/internal/api/handler"
	mw "github.com/kiranshivaraju/scanhunter/internal/api/middleware"
	"github.com/kiranshivaraju/scanhunter/internal/artifacts"
	"github.com/kiranshivaraju/scanhunter/internal/cache"
	"github.com/kiranshivaraju/scanhunter/internal/config"
	"github.com/kiranshivaraju/scanhunter/internal/credentials"
	"github.com/kiranshivaraju/scanhunter/internal/fetcher"
	"github.com/kiranshivaraju/scanhunter/internal/jobstore"
	"github.com/kiranshivaraju/scanhunter/internal/notify"
	"github.com/kiranshivaraju/scanhunter/internal/orchestrator"
	"github.com/kiranshivaraju/scanhunter/internal/scanner"
	"github.com/kiranshivaraju/scanhunter/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	envPrefix       = "SCANHUNTER_"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := checkAuth(cfg.Server); err != nil {
		return err
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "work_dir", cfg.Scanner.WorkDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Credentials
	sealer, err := credentials.NewSealer(cfg.Credentials.EncryptionKey)
	if err != nil {
		return fmt.Errorf("create credential sealer: %w", err)
	}
	pgStore := store.NewPostgresStore(pool)
	credStore := credentials.NewStoreProvider(pgStore, sealer)

	// 6. Optional report archive
	var archive *artifacts.MinioArchive
	if cfg.Artifacts.Enabled() {
		archive, err = artifacts.NewMinioArchive(ctx, cfg.Artifacts)
		if err != nil {
			return fmt.Errorf("create report archive: %w", err)
		}
		slog.Info("report archive enabled", "bucket", cfg.Artifacts.Bucket)
	}

	// 7. Scan orchestrator
	jobs := jobstore.NewRedisStore(redisCache, cfg.Scanner.JobTTL, cfg.Scanner.StoreTimeout)
	runners := scanner.NewRunners(cfg.Scanner.Tools)
	for tool, err := range scanner.CheckInstalled(cfg.Scanner.Tools) {
		slog.Warn("scanner not installed, its scans will record a tool error", "tool", tool, "error", err)
	}

	orchDeps := orchestrator.Dependencies{
		Store:    jobs,
		Runners:  runners,
		Fetcher:  fetcher.NewGitFetcher(cfg.Scanner.CloneTimeout),
		Notifier: notify.NewWebhookNotifier(cfg.Notify.Timeout),
		History:  pgStore,
	}
	if archive != nil {
		orchDeps.Archive = archive
	}
	orch := orchestrator.New(orchDeps, orchestrator.Config{
		WorkDir:           cfg.Scanner.WorkDir,
		SideEffectTimeout: cfg.Notify.Timeout,
	})

	// 8. Build router with dependencies
	app := application{
		server:     cfg.Server,
		orch:       orch,
		jobs:       jobs,
		store:      pgStore,
		cache:      redisCache,
		credStore:  credStore,
		credLookup: credentials.Chain{credStore, credentials.EnvProvider{Prefix: envPrefix}},
	}
	if archive != nil {
		app.reports = archive
	}
	router := app.router()

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Running scans get what is left of the window, then their tools are killed
	// and they finish as failed or with tool errors.
	if err := orch.Shutdown(shutdownCtx); err != nil {
		slog.Warn("scans still running at shutdown were cancelled", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// checkAuth refuses to run without an API key outside development.
func checkAuth(cfg config.ServerConfig) error {
	if cfg.APIKeyHash == "" && cfg.Env != "development" {
		return fmt.Errorf("SCANHUNTER_API_KEY_HASH is required when SCANHUNTER_ENV is %q", cfg.Env)
	}
	if cfg.APIKeyHash == "" {
		slog.Warn("API authentication disabled in development")
	}
	return nil
}

// application groups what the HTTP layer needs.
type application struct {
	server     config.ServerConfig
	orch       handler.ScanStarter
	jobs       handler.JobReader
	store      store.Store
	cache      cache.Cache
	credStore  handler.CredentialWriter
	credLookup credentials.Provider
	reports    handler.ReportFetcher
}

func (a application) router() http.Handler {
	deps := api.Dependencies{
		Auth:           mw.NewAuth(a.server.APIKeyHash),
		ScanRateLimit:  mw.NewRateLimit(a.cache, "scans", a.server.RateLimit),
		AllowedOrigins: a.server.AllowedOrigins,

		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": a.store,
			"cache":    a.cache,
		}),
		StartScanHandler:  handler.NewStartScanHandler(a.orch, a.credLookup),
		GetScanHandler:    handler.NewGetScanHandler(a.jobs),
		ListScansHandler:  handler.NewListScansHandler(a.store),
		GetScanRunHandler: handler.NewGetScanRunHandler(a.store),

		PutCredentialHandler:    handler.NewPutCredentialHandler(a.credStore),
		ListCredentialsHandler:  handler.NewListCredentialsHandler(a.store),
		DeleteCredentialHandler: handler.NewDeleteCredentialHandler(a.store),
	}
	if a.reports != nil {
		deps.GetReportHandler = handler.NewGetReportHandler(a.store, a.reports, a.cache)
	}
	return api.NewRouter(deps)
}
