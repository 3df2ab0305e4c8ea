// Package main is the entry point for the Linkpress cleanup worker.
// It drains the cleanup_jobs queue and re-runs the deletion pipeline
// until every deferred domain converges.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"linkpress/internal/domain/deletion"
	"linkpress/internal/infrastructure/analytics"
	"linkpress/internal/infrastructure/cache"
	"linkpress/internal/infrastructure/dnsprovider"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting linkpress worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)

	linkCache, err := cache.Open(cache.DefaultConfig(getEnv("CACHE_PATH", "/var/lib/linkpress/cache")), log)
	if err != nil {
		log.Fatalw("failed to open link cache", "error", err)
	}
	defer linkCache.Close()

	assetStore, err := objectstore.New(ctx, mustEnv("ASSET_BUCKET"))
	if err != nil {
		log.Fatalw("failed to create asset store", "error", err)
	}
	defer assetStore.Close()

	sink := analytics.NewSink(analytics.SinkConfig{
		URL:    mustEnv("INFLUX_URL"),
		Token:  mustEnv("INFLUX_TOKEN"),
		Org:    getEnv("INFLUX_ORG", "linkpress"),
		Bucket: getEnv("INFLUX_BUCKET", "events"),
	})
	defer sink.Close()

	provider := dnsprovider.NewClient(dnsprovider.Config{
		BaseURL:   mustEnv("PROVIDER_URL"),
		Token:     mustEnv("PROVIDER_TOKEN"),
		ProjectID: mustEnv("PROVIDER_PROJECT_ID"),
		Timeout:   getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),
	})

	var archiver deletion.Archiver
	if getEnv("ARCHIVE_ENABLED", "true") == "true" {
		archive, err := postgres.NewLinkArchive(txm)
		if err != nil {
			log.Fatalw("failed to create link archive", "error", err)
		}
		archiver = archive
	}

	svc := deletion.NewService(
		deletion.Config{
			BatchSize:    getEnvInt("DELETE_BATCH_SIZE", 100),
			RetryDelay:   getEnvDuration("DELETE_RETRY_DELAY", 5*time.Second),
			AssetBaseURL: mustEnv("ASSET_BASE_URL"),
		},
		deletion.Deps{
			Links:     domain_repo.NewLinkRepo(txm),
			Domains:   domain_repo.NewDomainRepo(txm),
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

	relay := postgres.NewJobRelay(txm, getEnvInt("JOB_BATCH_SIZE", 10), &cleanupHandler{svc: svc})
	worker := NewWorker(relay, getEnvDuration("JOB_POLL_INTERVAL", time.Second), log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// cleanupHandler adapts the deletion service to the relay's handler port.
type cleanupHandler struct {
	svc *deletion.Service
}

func (h *cleanupHandler) Handle(ctx context.Context, job deletion.CleanupJob) error {
	_, err := h.svc.Run(ctx, job.DomainName, job.WorkspaceID)
	return err
}

// Worker polls the cleanup queue on a fixed interval.
type Worker struct {
	relay    *postgres.JobRelay
	interval time.Duration
	log      *logger.Logger
}

func NewWorker(relay *postgres.JobRelay, interval time.Duration, log *logger.Logger) *Worker {
	return &Worker{
		relay:    relay,
		interval: interval,
		log:      log.WithComponent("worker"),
	}
}

// Run drains due jobs until the context is cancelled. A batch error is
// logged and retried on the next tick.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			delivered, err := w.relay.ProcessBatch(ctx)
			if err != nil {
				w.log.Errorw("cleanup batch failed", "error", err)
				continue
			}
			if delivered > 0 {
				w.log.Infow("cleanup jobs delivered", "count", delivered)
			}
		}
	}
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
