/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the scheme costing server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, then environment)
  2. Open the store selected by STORE_DRIVER
  3. Optionally seed the demo data set
  4. Build the frame cache (with the redis tier when REDIS_ADDR is set)
  5. Build the batch runner, cache warmer and API handler
  6. Start server with graceful shutdown

ENVIRONMENT:
  PORT, LOG_LEVEL
  STORE_DRIVER           sqlite | postgres | mysql | memory
  SQLITE_PATH, DATABASE_URL, MYSQL_DSN, SEED_DEMO
  REDIS_ADDR, REDIS_PASSWORD, REDIS_DB
  CACHE_TTL_SECONDS, CACHE_MAX_ENTRIES
  BATCH_WORKERS, REQUEST_TIMEOUT_SECONDS, ALLOWED_ORIGINS
  WARM_SCHEMES, WARM_INTERVAL_SECONDS
  EXPORT_S3_BUCKET, AWS_REGION, AWS_PROFILE

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store and redis client
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings
*/
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/scheme-engine/api"
	"github.com/warp/scheme-engine/batch"
	"github.com/warp/scheme-engine/cache"
	"github.com/warp/scheme-engine/config"
	"github.com/warp/scheme-engine/export"
	"github.com/warp/scheme-engine/loader"
	"github.com/warp/scheme-engine/scheme"
	"github.com/warp/scheme-engine/store/memory"
	"github.com/warp/scheme-engine/store/mysql"
	"github.com/warp/scheme-engine/store/postgres"
	"github.com/warp/scheme-engine/store/seed"
	"github.com/warp/scheme-engine/store/sqlite"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func openStore(ctx context.Context, cfg config.Config) (scheme.ReadWriter, io.Closer, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		s, err := sqlite.New(ctx, cfg.SQLitePath)
		return s, s, err
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		return s, s, err
	case "mysql":
		if cfg.MySQLDSN == "" {
			return nil, nil, fmt.Errorf("MYSQL_DSN is required for the mysql driver")
		}
		s, err := mysql.Open(cfg.MySQLDSN)
		return s, s, err
	case "memory":
		return memory.New(), closerFunc(func() error { return nil }), nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	log := logrus.NewEntry(logger)

	ctx := context.Background()

	st, closer, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.StoreDriver).Fatal("Failed to initialize store")
	}
	defer closer.Close()

	if cfg.Seed {
		if err := seed.Demo(ctx, st); err != nil {
			log.WithError(err).Warn("Failed to seed demo data")
		} else {
			log.WithField("scheme_id", seed.DemoSchemeID).Info("demo data loaded")
		}
	}

	rdb := cfg.RedisClient()
	tier := cache.NewRedisTier(rdb, cfg.CacheTTL)
	if rdb != nil {
		defer rdb.Close()
		if err := tier.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unreachable, continuing with the in-process cache only")
			tier = nil
		}
	}

	frames := cache.New(loader.New(st, log), cache.Options{
		TTL:        cfg.CacheTTL,
		MaxEntries: cfg.CacheMaxEntries,
		Redis:      tier,
		Log:        log,
	})
	runner := batch.NewRunner(frames, st, batch.Options{
		Workers: cfg.BatchWorkers,
		Timeout: cfg.RequestTimeout,
		Log:     log,
	})

	var sink *export.S3Sink
	if cfg.ExportS3Bucket != "" {
		sink, err = export.NewS3Sink(ctx, cfg.ExportS3Bucket, cfg.AWSRegion, cfg.AWSProfile)
		if err != nil {
			log.WithError(err).Warn("export uploads disabled")
		}
	}

	warmer := api.NewCacheWarmer(frames, cfg.WarmSchemes, log)
	warmer.CheckInterval = cfg.WarmInterval
	warmer.LoadTimeout = cfg.RequestTimeout
	warmer.Start()
	defer warmer.Stop()

	handler := api.NewHandler(runner, st, sink, log)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Address()).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server stopped")
}
