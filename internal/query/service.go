// Package query serves standings and schedule views read from the store.
package query

import (
	"context"
	"errors"
	"fmt"

	"cfbplayoff/ingestion/internal/cache"
	"cfbplayoff/ingestion/internal/models"
	"cfbplayoff/ingestion/internal/standings"

	"github.com/rs/zerolog/log"
)

// Reader is the read side of the persistence store
type Reader interface {
	GetTeam(ctx context.Context, apiID, season int) (*models.Team, error)
	ListTeamsBySeason(ctx context.Context, season int) ([]*models.Team, error)
	ListTeamsByConference(ctx context.Context, conference string, season int) ([]*models.Team, error)
	ListGamesByWeek(ctx context.Context, season, week int) ([]*models.Game, error)
	ListGamesBySeason(ctx context.Context, season int) ([]*models.Game, error)
	ListIncompleteGames(ctx context.Context, season int) ([]*models.Game, error)
	ListGamesByTeam(ctx context.Context, apiID, season int) ([]*models.Game, error)
	ListConferences(ctx context.Context, season int) ([]*models.Conference, error)
	ListSyncLogs(ctx context.Context, season, limit int) ([]*models.SyncLog, error)
}

// Cache holds JSON views keyed by season
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
}

// SortOrder selects the standings ordering
type SortOrder string

const (
	SortByRecord SortOrder = "record"
	SortByWinPct SortOrder = "winpct"
)

// ParseSortOrder accepts "", "record" or "winpct"
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "", SortByRecord:
		return SortByRecord, nil
	case SortByWinPct:
		return SortByWinPct, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", s)
	}
}

// Service answers standings and schedule queries
type Service struct {
	store Reader
	cache Cache
}

// NewService creates a query service. c may be nil.
func NewService(store Reader, c Cache) *Service {
	return &Service{store: store, cache: c}
}

// cached returns the view stored under key or loads and stores it
func cached[T any](ctx context.Context, s *Service, key string, load func() (T, error)) (T, error) {
	if s.cache != nil {
		var hit T
		err := s.cache.Get(ctx, key, &hit)
		if err == nil {
			return hit, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
	}

	v, err := load()
	if err != nil {
		return v, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, v); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}
	return v, nil
}

// Teams lists a season's teams in standings order, optionally restricted
// to one conference
func (s *Service) Teams(ctx context.Context, season int, conference string, order SortOrder) ([]*models.Team, error) {
	key := cache.Key(season, fmt.Sprintf("teams:%s:%s", conference, order))

	return cached(ctx, s, key, func() ([]*models.Team, error) {
		var (
			teams []*models.Team
			err   error
		)
		if conference != "" {
			teams, err = s.store.ListTeamsByConference(ctx, conference, season)
		} else {
			teams, err = s.store.ListTeamsBySeason(ctx, season)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list teams: %w", err)
		}

		if order == SortByWinPct {
			return standings.SortStandingsByWinPct(teams), nil
		}
		return standings.SortStandings(teams), nil
	})
}

// ConferenceStandings orders one conference by conference record, then win
// percentage
func (s *Service) ConferenceStandings(ctx context.Context, season int, conference string) ([]*models.Team, error) {
	return s.Teams(ctx, season, conference, SortByWinPct)
}

// Team returns one team
func (s *Service) Team(ctx context.Context, apiID, season int) (*models.Team, error) {
	return s.store.GetTeam(ctx, apiID, season)
}

// TeamSchedule returns a team's games by week
func (s *Service) TeamSchedule(ctx context.Context, apiID, season int) ([]*models.Game, error) {
	games, err := s.store.ListGamesByTeam(ctx, apiID, season)
	if err != nil {
		return nil, fmt.Errorf("failed to list team games: %w", err)
	}
	return standings.TeamSchedule(games, apiID), nil
}

// GamesByWeek returns a week's games by start date then home team
func (s *Service) GamesByWeek(ctx context.Context, season, week int) ([]*models.Game, error) {
	games, err := s.store.ListGamesByWeek(ctx, season, week)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return standings.SortGamesByWeek(games), nil
}

// Upcoming returns the next games not yet completed
func (s *Service) Upcoming(ctx context.Context, season, limit int) ([]*models.Game, error) {
	games, err := s.store.ListIncompleteGames(ctx, season)
	if err != nil {
		return nil, fmt.Errorf("failed to list incomplete games: %w", err)
	}
	return standings.Upcoming(games, limit), nil
}

// CurrentWeek returns the week of the earliest game not yet completed.
// ok is false once the season has no games left.
func (s *Service) CurrentWeek(ctx context.Context, season int) (week int, ok bool, err error) {
	games, err := s.store.ListIncompleteGames(ctx, season)
	if err != nil {
		return 0, false, fmt.Errorf("failed to list incomplete games: %w", err)
	}
	week, ok = standings.CurrentWeek(games)
	return week, ok, nil
}

// ConferenceGames returns the intra-conference games of a conference
func (s *Service) ConferenceGames(ctx context.Context, season int, conference string) ([]*models.Game, error) {
	teams, err := s.store.ListTeamsByConference(ctx, conference, season)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	games, err := s.store.ListGamesBySeason(ctx, season)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return standings.ConferenceGames(teams, games, conference), nil
}

// ActiveConferences returns the conference names that have teams this season
func (s *Service) ActiveConferences(ctx context.Context, season int) ([]string, error) {
	return cached(ctx, s, cache.Key(season, "conferences:active"), func() ([]string, error) {
		teams, err := s.store.ListTeamsBySeason(ctx, season)
		if err != nil {
			return nil, fmt.Errorf("failed to list teams: %w", err)
		}
		return standings.ActiveConferences(teams), nil
	})
}

// Conferences lists the stored conference rows by name
func (s *Service) Conferences(ctx context.Context, season int) ([]*models.Conference, error) {
	return s.store.ListConferences(ctx, season)
}

// SyncLogs returns the season's sync audit rows, newest first
func (s *Service) SyncLogs(ctx context.Context, season, limit int) ([]*models.SyncLog, error) {
	return s.store.ListSyncLogs(ctx, season, limit)
}
