package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/optipress/optipress/internal/api"
	"github.com/optipress/optipress/internal/config"
	"github.com/optipress/optipress/internal/queue"
	"github.com/optipress/optipress/internal/ratelimit"
	"github.com/optipress/optipress/internal/storage"
	"github.com/optipress/optipress/internal/store"
	"github.com/optipress/optipress/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "optipress-api",
		Exporter:     cfg.Trace.Exporter,
		OTLPEndpoint: cfg.Trace.OTLPEndpoint,
		OTLPInsecure: cfg.Trace.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatalf("storage client setup failed: %v", err)
	}

	ensureCtx, cancelEnsure := context.WithTimeout(ctx, 10*time.Second)
	if err := storageClient.EnsureBucket(ensureCtx); err != nil {
		logger.Printf("ensure bucket failed: %v", err)
	}
	cancelEnsure()

	var batchStore store.BatchStore
	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgresBatchStore(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatalf("postgres batch store setup failed: %v", err)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				logger.Printf("postgres close error: %v", err)
			}
		}()
		batchStore = pg
		logger.Printf("using postgres batch store")
	} else {
		batchStore = store.NewMemoryBatchStore()
		logger.Printf("using in-memory batch store")
	}

	var rateLimiter api.RateLimiter
	if cfg.API.RateLimitCapacity > 0 {
		redisClient := cfg.Queue.RedisClient()
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Printf("redis client close error: %v", err)
			}
		}()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.API.RateLimitCapacity, cfg.API.RateLimitWindow, "")
		if err != nil {
			logger.Fatalf("rate limiter setup failed: %v", err)
		}
		rateLimiter = limiter
	}

	app := api.NewServer(logger, queueClient, batchStore, storageClient, api.Options{
		PresignTTL:     cfg.API.PresignTTL,
		MaxBodyBytes:   cfg.API.MaxBodyBytes,
		ClientIDHeader: cfg.API.ClientIDHeader,
		RateLimiter:    rateLimiter,
		Tracer:         otel.Tracer("optipress/api"),
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}
