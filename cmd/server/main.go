// Package main is the entry point for the Linkpress API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linkpress/internal/domain/deletion"
	"linkpress/internal/infrastructure/analytics"
	"linkpress/internal/infrastructure/cache"
	"linkpress/internal/infrastructure/dnsprovider"
	v1 "linkpress/internal/infrastructure/http/v1"
	"linkpress/internal/infrastructure/objectstore"
	"linkpress/internal/infrastructure/storage/postgres"
	"linkpress/internal/infrastructure/storage/postgres/domain_repo"
	"linkpress/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting linkpress server")

	// --- Database ---
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool)

	// --- Link cache ---
	linkCache, err := cache.Open(cache.DefaultConfig(getEnv("CACHE_PATH", "/var/lib/linkpress/cache")), log)
	if err != nil {
		log.Fatalw("failed to open link cache", "error", err)
	}
	defer linkCache.Close()

	// --- Asset store ---
	assetStore, err := objectstore.New(ctx, mustEnv("ASSET_BUCKET"))
	if err != nil {
		log.Fatalw("failed to create asset store", "error", err)
	}
	defer assetStore.Close()

	// --- Analytics sink ---
	sink := analytics.NewSink(analytics.SinkConfig{
		URL:    mustEnv("INFLUX_URL"),
		Token:  mustEnv("INFLUX_TOKEN"),
		Org:    getEnv("INFLUX_ORG", "linkpress"),
		Bucket: getEnv("INFLUX_BUCKET", "events"),
	})
	defer sink.Close()

	// --- DNS provider ---
	provider := dnsprovider.NewClient(dnsprovider.Config{
		BaseURL:   mustEnv("PROVIDER_URL"),
		Token:     mustEnv("PROVIDER_TOKEN"),
		ProjectID: mustEnv("PROVIDER_PROJECT_ID"),
		Timeout:   getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),
	})

	// --- Archive (optional) ---
	var (
		archiver     deletion.Archiver
		archiveStore *postgres.LinkArchive
	)
	if getEnv("ARCHIVE_ENABLED", "true") == "true" {
		archiveStore, err = postgres.NewLinkArchive(txm)
		if err != nil {
			log.Fatalw("failed to create link archive", "error", err)
		}
		archiver = archiveStore
	}

	// --- Deletion service ---
	domainRepo := domain_repo.NewDomainRepo(txm)
	svc := deletion.NewService(
		deletion.Config{
			BatchSize:    getEnvInt("DELETE_BATCH_SIZE", 100),
			RetryDelay:   getEnvDuration("DELETE_RETRY_DELAY", 5*time.Second),
			AssetBaseURL: mustEnv("ASSET_BASE_URL"),
		},
		deletion.Deps{
			Links:     domain_repo.NewLinkRepo(txm),
			Domains:   domainRepo,
			Usage:     domain_repo.NewWorkspaceRepo(txm),
			Cache:     linkCache,
			Objects:   assetStore,
			Events:    sink,
			Provider:  provider,
			Scheduler: postgres.NewCleanupQueue(txm),
			Archive:   archiver,
		},
		log,
	)

	// --- Router ---
	routerCfg := v1.RouterConfig{
		Pool:            pool,
		Logger:          log,
		DeletionService: svc,
		Domains:         domainRepo,
	}
	if archiveStore != nil {
		routerCfg.Archive = archiveStore
	}
	router := v1.NewRouter(routerCfg)

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
