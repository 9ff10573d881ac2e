// Package syncer pulls teams and games from CollegeFootballData into the
// store and keeps team records consistent with them.
//
// SyncSeason rebuilds records with a full recompute and never applies
// per-game deltas. SyncWeek and RecordGame apply a delta for each game that
// completes and never recompute. All record writers of one Orchestrator run
// one at a time.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cfbplayoff/ingestion/internal/ledger"
	"cfbplayoff/ingestion/internal/metrics"
	"cfbplayoff/ingestion/internal/models"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// ErrMissingTeam is returned by RecordGame for a game without both team ids
var ErrMissingTeam = errors.New("game is missing a team id")

// DataSource is the upstream sports data API
type DataSource interface {
	FetchFBSTeams(ctx context.Context, season int) ([]models.TeamInput, error)
	FetchGames(ctx context.Context, season int, week *int) ([]models.GameInput, error)
	FetchConferences(ctx context.Context) ([]models.ConferenceInput, error)
}

// Store is the persistence the orchestrator writes to
type Store interface {
	ledger.RecordStore

	UpsertTeam(ctx context.Context, team *models.Team) error
	UpsertGame(ctx context.Context, game *models.Game) (models.GameChange, error)
	UpsertConference(ctx context.Context, conf *models.Conference) error
	StartSyncLog(ctx context.Context, entry *models.SyncLog) error
	FinishSyncLog(ctx context.Context, entry *models.SyncLog) error
	CountTeams(ctx context.Context, season int) (int, error)
	CountGames(ctx context.Context, season int) (int, error)
}

// Invalidator drops cached views of a season
type Invalidator interface {
	InvalidateSeason(ctx context.Context, season int) error
}

// Options configures an Orchestrator
type Options struct {
	// Workers is the number of concurrent upserts per stage; 1 or less
	// upserts sequentially
	Workers int
	Ledger  ledger.Config
	Clock   clock.Clock
	// Cache is optional
	Cache Invalidator
}

// Orchestrator runs sync pipelines
type Orchestrator struct {
	source  DataSource
	store   Store
	ledger  *ledger.Ledger
	cache   Invalidator
	clock   clock.Clock
	workers int

	// mu serializes every operation that writes games or records, so a
	// delta never lands between a recompute's read and its write
	mu sync.Mutex
}

// SeasonResult is the outcome of SyncSeason
type SeasonResult struct {
	Success bool `json:"success"`
	Season  int  `json:"season"`
}

// WeekResult is the outcome of SyncWeek
type WeekResult struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

// New creates an orchestrator
func New(source DataSource, store Store, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Orchestrator{
		source:  source,
		store:   store,
		ledger:  ledger.New(store, opts.Ledger),
		cache:   opts.Cache,
		clock:   opts.Clock,
		workers: opts.Workers,
	}
}

// ResolveSeason returns the season in progress at now. A season starts in
// July and runs into the next calendar year.
func ResolveSeason(now time.Time) int {
	if now.Month() > time.June {
		return now.Year()
	}
	return now.Year() - 1
}

// SyncSeason syncs teams, then all games, then recomputes every record
func (o *Orchestrator) SyncSeason(ctx context.Context, season int) (SeasonResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.begin(ctx, models.SyncTypeFullSeason, season, nil)
	if err != nil {
		return SeasonResult{}, err
	}

	log.Info().Int("season", season).Msg("Starting season sync")

	processed := 0
	teams, err := o.syncTeams(ctx, season)
	processed += teams
	if err != nil {
		o.fail(ctx, run, processed, err)
		return SeasonResult{}, err
	}

	games, err := o.syncAllGames(ctx, season)
	processed += games
	if err != nil {
		o.fail(ctx, run, processed, err)
		return SeasonResult{}, err
	}

	if _, err := o.ledger.Recompute(ctx, season); err != nil {
		o.fail(ctx, run, processed, err)
		return SeasonResult{}, err
	}

	o.complete(ctx, run, processed)
	o.reportTotals(ctx, season)

	return SeasonResult{Success: true, Season: season}, nil
}

// SyncTeams fetches the season's FBS teams and upserts each with a zero
// record. It also stores one conference row per conference seen.
func (o *Orchestrator) SyncTeams(ctx context.Context, season int) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.syncTeams(ctx, season)
}

func (o *Orchestrator) syncTeams(ctx context.Context, season int) (int, error) {
	inputs, err := o.source.FetchFBSTeams(ctx, season)
	if err != nil {
		return 0, err
	}

	teams := make([]*models.Team, len(inputs))
	for i := range inputs {
		teams[i] = inputs[i].ToTeam(season)
	}

	count, err := upsertSharded(ctx, o.workers, teams,
		func(t *models.Team) int { return t.APIID },
		func(ctx context.Context, t *models.Team) error {
			if err := o.store.UpsertTeam(ctx, t); err != nil {
				return fmt.Errorf("failed to save team %d: %w", t.APIID, err)
			}
			return nil
		},
	)
	if err != nil {
		return count, err
	}

	if err := o.syncConferences(ctx, season, teams); err != nil {
		return count, err
	}

	log.Info().Int("season", season).Int("count", count).Msg("Teams synced")
	return count, nil
}

// syncConferences stores the conferences named by teams. Abbreviations come
// from the conference directory when it can be fetched.
func (o *Orchestrator) syncConferences(ctx context.Context, season int, teams []*models.Team) error {
	abbreviations := make(map[string]string)
	directory, err := o.source.FetchConferences(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Conference directory unavailable, storing names only")
	}
	for _, c := range directory {
		abbreviations[c.Name] = c.Abbreviation
	}

	seen := make(map[string]struct{})
	for _, t := range teams {
		if _, ok := seen[t.Conference]; ok {
			continue
		}
		seen[t.Conference] = struct{}{}

		conf := &models.Conference{
			Name:         t.Conference,
			Season:       season,
			Abbreviation: abbreviations[t.Conference],
		}
		if err := o.store.UpsertConference(ctx, conf); err != nil {
			return fmt.Errorf("failed to save conference %s: %w", conf.Name, err)
		}
	}
	return nil
}

// SyncAllGames fetches and upserts every game of the season. Completions
// seen here do not touch team records.
func (o *Orchestrator) SyncAllGames(ctx context.Context, season int) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.syncAllGames(ctx, season)
}

func (o *Orchestrator) syncAllGames(ctx context.Context, season int) (int, error) {
	inputs, err := o.source.FetchGames(ctx, season, nil)
	if err != nil {
		return 0, err
	}

	games := o.convertGames(inputs)
	count, err := upsertSharded(ctx, o.workers, games,
		func(g *models.Game) int { return g.APIID },
		func(ctx context.Context, g *models.Game) error {
			if _, err := o.store.UpsertGame(ctx, g); err != nil {
				return fmt.Errorf("failed to save game %d: %w", g.APIID, err)
			}
			return nil
		},
	)
	if err != nil {
		return count, err
	}

	log.Info().Int("season", season).Int("count", count).Msg("Games synced")
	return count, nil
}

// CalculateTeamRecords rebuilds every team record of the season
func (o *Orchestrator) CalculateTeamRecords(ctx context.Context, season int) (ledger.RecomputeResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ledger.Recompute(ctx, season)
}

// SyncWeek fetches and upserts one week's games. A game that completes
// with this sync adds its result to both teams' records.
func (o *Orchestrator) SyncWeek(ctx context.Context, season, week int) (WeekResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.begin(ctx, models.WeekSyncType(week), season, &week)
	if err != nil {
		return WeekResult{}, err
	}

	log.Info().Int("season", season).Int("week", week).Msg("Starting week sync")

	inputs, err := o.source.FetchGames(ctx, season, &week)
	if err != nil {
		o.fail(ctx, run, 0, err)
		return WeekResult{}, err
	}

	games := o.convertGames(inputs)
	count, err := upsertSharded(ctx, o.workers, games,
		func(g *models.Game) int { return g.APIID },
		func(ctx context.Context, g *models.Game) error {
			_, err := o.upsertAndApply(ctx, g)
			return err
		},
	)
	if err != nil {
		o.fail(ctx, run, count, err)
		return WeekResult{}, err
	}

	o.complete(ctx, run, count)
	return WeekResult{Success: true, Count: count}, nil
}

// RecordGame stores a single game reported outside a scheduled sync and
// applies its result when it has just completed
func (o *Orchestrator) RecordGame(ctx context.Context, in models.GameInput) (models.GameChange, error) {
	game, ok := in.ToGame()
	if !ok {
		return models.GameChange{}, fmt.Errorf("%w: api_id=%d", ErrMissingTeam, in.ID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	change, err := o.upsertAndApply(ctx, game)
	if err != nil {
		return change, err
	}

	if change.Completed {
		o.invalidate(ctx, game.Season)
	}
	return change, nil
}

func (o *Orchestrator) upsertAndApply(ctx context.Context, g *models.Game) (models.GameChange, error) {
	change, err := o.store.UpsertGame(ctx, g)
	if err != nil {
		return change, fmt.Errorf("failed to save game %d: %w", g.APIID, err)
	}
	if !change.Completed {
		return change, nil
	}

	if _, err := o.ledger.ApplyCompletion(ctx, g); err != nil {
		return change, fmt.Errorf("failed to apply result of game %d: %w", g.APIID, err)
	}
	return change, nil
}

// convertGames drops games lacking a team id
func (o *Orchestrator) convertGames(inputs []models.GameInput) []*models.Game {
	games := make([]*models.Game, 0, len(inputs))
	skipped := 0
	for i := range inputs {
		g, ok := inputs[i].ToGame()
		if !ok {
			skipped++
			continue
		}
		games = append(games, g)
	}

	if skipped > 0 {
		metrics.RecordSkipped(skipped)
		log.Info().Int("skipped", skipped).Msg("Skipped games without both team ids")
	}
	return games
}

func (o *Orchestrator) reportTotals(ctx context.Context, season int) {
	teams, err := o.store.CountTeams(ctx, season)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to count teams")
		return
	}
	games, err := o.store.CountGames(ctx, season)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to count games")
		return
	}
	metrics.UpdateIngestionStats(teams, games)
}

func (o *Orchestrator) invalidate(ctx context.Context, season int) {
	if o.cache == nil {
		return
	}
	if err := o.cache.InvalidateSeason(ctx, season); err != nil {
		log.Warn().Err(err).Int("season", season).Msg("Failed to invalidate cache")
	}
}
