// Command manualsync runs one season or week sync against the configured
// database and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"cfbplayoff/ingestion/internal/client"
	"cfbplayoff/ingestion/internal/config"
	"cfbplayoff/ingestion/internal/ledger"
	"cfbplayoff/ingestion/internal/logging"
	"cfbplayoff/ingestion/internal/repository"
	"cfbplayoff/ingestion/internal/syncer"

	"github.com/rs/zerolog/log"
)

func main() {
	season := flag.Int("season", syncer.ResolveSeason(time.Now()), "season year to sync")
	week := flag.Int("week", -1, "week to sync, 0 for the opening week; omit for the full season")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline")
	flag.Parse()

	cfg := config.MustLoad()
	logging.Setup(cfg.AppEnv, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

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

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     fmt.Sprintf("%d", cfg.DatabasePort),
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

	tiePolicy, err := ledger.ParseTiePolicy(cfg.TiePolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid tie policy")
	}

	orchestrator := syncer.New(cfbClient, db.Store(), syncer.Options{
		Workers: cfg.SyncUpsertWorkers,
		Ledger:  ledger.Config{TiePolicy: tiePolicy, MaxWeek: cfg.LedgerMaxWeek},
	})

	result, err := run(ctx, orchestrator, *season, *week)
	if encErr := json.NewEncoder(os.Stdout).Encode(result); encErr != nil {
		log.Error().Err(encErr).Msg("Failed to write result")
	}
	if err != nil {
		log.Error().Err(err).Int("season", *season).Msg("Sync failed")
		// deferred Close does not run on os.Exit
		db.Close()
		os.Exit(1)
	}
}

type runner interface {
	SyncSeason(ctx context.Context, season int) (syncer.SeasonResult, error)
	SyncWeek(ctx context.Context, season, week int) (syncer.WeekResult, error)
}

// run picks the season or week pipeline from the flags. A negative week
// means the whole season.
func run(ctx context.Context, r runner, season, week int) (any, error) {
	if week < 0 {
		return r.SyncSeason(ctx, season)
	}
	return r.SyncWeek(ctx, season, week)
}
