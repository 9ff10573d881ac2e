package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cfbplayoff/ingestion/internal/metrics"
	"cfbplayoff/ingestion/internal/syncer"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Syncer runs the season and week pipelines
type Syncer interface {
	SyncSeason(ctx context.Context, season int) (syncer.SeasonResult, error)
	SyncWeek(ctx context.Context, season, week int) (syncer.WeekResult, error)
}

// WeekFinder reports the week of the earliest game not yet completed
type WeekFinder interface {
	CurrentWeek(ctx context.Context, season int) (week int, ok bool, err error)
}

// Config holds the schedule
type Config struct {
	// NightlyCron is the cron spec of the full season sync
	NightlyCron string
	// WeekPollInterval is how often the current week is re-synced
	WeekPollInterval time.Duration
}

// Scheduler manages background sync tasks:
// - nightly full season sync with a record recompute
// - current week sync on a fixed interval
type Scheduler struct {
	cfg      Config
	syncer   Syncer
	weeks    WeekFinder
	clock    clock.Clock
	cron     *cron.Cron
	ticker   *clock.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	// mu keeps the nightly and weekly jobs from overlapping
	mu sync.Mutex
}

// NewScheduler creates a new scheduler instance. clk may be nil.
func NewScheduler(cfg Config, s Syncer, weeks WeekFinder, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		cfg:      cfg,
		syncer:   s,
		weeks:    weeks,
		clock:    clk,
		cron:     cron.New(),
		stopChan: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	if _, err := s.cron.AddFunc(s.cfg.NightlyCron, func() {
		if err := s.RefreshSeason(ctx); err != nil {
			log.Error().Err(err).Msg("Nightly season sync failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule nightly refresh: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("schedule", s.cfg.NightlyCron).
		Msg("Nightly season sync scheduled")

	if s.cfg.WeekPollInterval > 0 {
		s.ticker = s.clock.Ticker(s.cfg.WeekPollInterval)
		log.Info().
			Dur("interval", s.cfg.WeekPollInterval).
			Msg("Current week polling started")

		s.wg.Add(1)
		go s.pollCurrentWeek(ctx)
	}

	return nil
}

// Stop stops the scheduler and waits for the polling loop to exit
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		log.Info().Msg("Stopping scheduler...")

		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopChan)
		s.wg.Wait()

		log.Info().Msg("Scheduler stopped")
	})
}

func (s *Scheduler) pollCurrentWeek(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Context cancelled, stopping week polling")
			return
		case <-s.stopChan:
			log.Info().Msg("Stop signal received, stopping week polling")
			return
		case <-s.ticker.C:
			if err := s.SyncCurrentWeek(ctx); err != nil {
				log.Error().Err(err).Msg("Current week sync failed")
			}
		}
	}
}

// RefreshSeason runs a full sync of the season in progress
func (s *Scheduler) RefreshSeason(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	season := syncer.ResolveSeason(s.clock.Now())
	log.Info().Int("season", season).Msg("Running nightly season sync...")

	_, err := s.syncer.SyncSeason(ctx, season)
	return err
}

// SyncCurrentWeek syncs the week holding the earliest unfinished game. It
// does nothing once every game of the season is complete.
func (s *Scheduler) SyncCurrentWeek(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock.Now()
	defer func() {
		metrics.RecordWorkerIteration(s.clock.Since(start).Seconds())
	}()

	season := syncer.ResolveSeason(start)
	week, ok, err := s.weeks.CurrentWeek(ctx, season)
	if err != nil {
		return fmt.Errorf("failed to find current week: %w", err)
	}
	if !ok {
		log.Debug().Int("season", season).Msg("No unfinished games, skipping week sync")
		return nil
	}

	res, err := s.syncer.SyncWeek(ctx, season, week)
	if err != nil {
		return err
	}

	log.Info().
		Int("season", season).
		Int("week", week).
		Int("count", res.Count).
		Msg("Current week synced")
	return nil
}
