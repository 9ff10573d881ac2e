package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cfbplayoff/ingestion/internal/api/rest"
	"cfbplayoff/ingestion/internal/cache"
	"cfbplayoff/ingestion/internal/client"
	"cfbplayoff/ingestion/internal/config"
	"cfbplayoff/ingestion/internal/ledger"
	"cfbplayoff/ingestion/internal/logging"
	"cfbplayoff/ingestion/internal/metrics"
	"cfbplayoff/ingestion/internal/query"
	"cfbplayoff/ingestion/internal/repository"
	"cfbplayoff/ingestion/internal/scheduler"
	"cfbplayoff/ingestion/internal/syncer"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.MustLoad()
	logging.Setup(cfg.AppEnv, cfg.LogLevel)

	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Msg("Starting CFB ingestion worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	cfbClient, err := client.NewClient(client.Options{
		BaseURL:         cfg.CFBBaseURL,
		APIKey:          cfg.CFBAPIKey,
		Timeout:         cfg.CFBTimeout,
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
		RateLimit:       float64(cfg.APIRateLimit),
		Burst:           cfg.APIBurstLimit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create CFBD client")
	}
	log.Info().Str("base_url", cfg.CFBBaseURL).Msg("CFBD client initialized")

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	log.Info().Msg("Database connection established")

	// The worker runs without a cache when Redis is down
	var (
		queryCache  query.Cache
		invalidator syncer.Invalidator
		cacheHealth rest.HealthChecker
	)
	redisCache, err := cache.NewRedisCache(cache.Config{
		Host:     cfg.RedisHost,
		Port:     strconv.Itoa(cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.CacheTTL(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis - continuing without cache")
	} else {
		defer redisCache.Close()
		queryCache = redisCache
		invalidator = redisCache
		cacheHealth = redisCache
		log.Info().Msg("Redis cache connected")
	}

	tiePolicy, err := ledger.ParseTiePolicy(cfg.TiePolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid tie policy")
	}

	store := db.Store()
	orchestrator := syncer.New(cfbClient, store, syncer.Options{
		Workers: cfg.SyncUpsertWorkers,
		Ledger: ledger.Config{
			TiePolicy: tiePolicy,
			MaxWeek:   cfg.LedgerMaxWeek,
		},
		Cache: invalidator,
	})
	queries := query.NewService(store, queryCache)

	if cfg.EnableMetrics {
		go startMetricsServer(cfg.MetricsPort)
	}

	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
				db.ReportPoolStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	webhookSecret := ""
	if cfg.WebhookEnabled {
		webhookSecret = cfg.WebhookSecret
	}
	api := rest.NewServer(cfg.IngestionPort, rest.NewHandler(rest.HandlerOptions{
		Queries:       queries,
		Syncer:        orchestrator,
		DB:            db,
		Cache:         cacheHealth,
		WebhookSecret: webhookSecret,
	}))
	go func() {
		log.Info().Int("port", cfg.IngestionPort).Msg("Starting API server")
		if err := api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("API server failed")
			cancel()
		}
	}()

	sched := scheduler.NewScheduler(scheduler.Config{
		NightlyCron:      cfg.NightlyRefreshCron,
		WeekPollInterval: cfg.WeekPollInterval,
	}, orchestrator, queries, nil)

	if cfg.EnableScheduler {
		log.Info().Msg("Starting scheduler...")
		if err := sched.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	}

	if cfg.InitialSyncEnabled {
		season := syncer.ResolveSeason(time.Now())
		log.Info().Int("season", season).Msg("Running initial season sync...")
		if _, err := orchestrator.SyncSeason(ctx, season); err != nil {
			log.Error().Err(err).Msg("Initial sync failed, continuing anyway...")
		} else {
			log.Info().Msg("Initial sync completed successfully")
		}
	}

	<-ctx.Done()

	log.Info().Msg("Shutting down scheduler...")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}

	log.Info().Msg("Worker shutdown complete")
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	log.Info().Int("port", port).Msg("Starting metrics server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}
