package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cfbplayoff/ingestion/internal/models"
)

type teamKey struct {
	apiID  int
	season int
}

type confKey struct {
	name   string
	season int
}

// MemoryStore is an in-memory stand-in for the Postgres repositories.
// Failures can be injected per method name through Fail.
type MemoryStore struct {
	mu          sync.Mutex
	teams       map[teamKey]models.Team
	games       map[int]models.Game
	conferences map[confKey]models.Conference
	syncLogs    map[string]models.SyncLog
	failures    map[string]error
	calls       map[string]int
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams:       make(map[teamKey]models.Team),
		games:       make(map[int]models.Game),
		conferences: make(map[confKey]models.Conference),
		syncLogs:    make(map[string]models.SyncLog),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
	}
}

// Fail makes every later call of the named method return err.
func (s *MemoryStore) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

// Calls returns how often the named method was invoked.
func (s *MemoryStore) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *MemoryStore) enter(method string) error {
	s.calls[method]++
	return s.failures[method]
}

// UpsertTeam inserts or overwrites a team.
func (s *MemoryStore) UpsertTeam(ctx context.Context, team *models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertTeam"); err != nil {
		return err
	}

	key := teamKey{team.APIID, team.Season}
	if existing, ok := s.teams[key]; ok {
		team.ID = existing.ID
	} else {
		team.ID = len(s.teams) + 1
	}
	team.LastUpdated = time.Now().UTC()
	s.teams[key] = *team
	return nil
}

// GetTeam returns one team.
func (s *MemoryStore) GetTeam(ctx context.Context, apiID, season int) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetTeam"); err != nil {
		return nil, err
	}

	team, ok := s.teams[teamKey{apiID, season}]
	if !ok {
		return nil, fmt.Errorf("%w: api_id=%d season=%d", models.ErrTeamNotFound, apiID, season)
	}
	return &team, nil
}

// ListTeamsBySeason returns the season's teams ordered by school.
func (s *MemoryStore) ListTeamsBySeason(ctx context.Context, season int) ([]*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListTeamsBySeason"); err != nil {
		return nil, err
	}
	return s.filterTeams(func(t models.Team) bool { return t.Season == season }), nil
}

// ListTeamsByConference returns a conference's teams ordered by school.
func (s *MemoryStore) ListTeamsByConference(ctx context.Context, conference string, season int) ([]*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListTeamsByConference"); err != nil {
		return nil, err
	}
	return s.filterTeams(func(t models.Team) bool {
		return t.Season == season && t.Conference == conference
	}), nil
}

func (s *MemoryStore) filterTeams(keep func(models.Team) bool) []*models.Team {
	var out []*models.Team
	for _, t := range s.teams {
		if keep(t) {
			team := t
			out = append(out, &team)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].School != out[j].School {
			return out[i].School < out[j].School
		}
		return out[i].APIID < out[j].APIID
	})
	return out
}

// IncrementRecord adds delta to a team's counters.
func (s *MemoryStore) IncrementRecord(ctx context.Context, apiID, season int, delta models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("IncrementRecord"); err != nil {
		return err
	}

	key := teamKey{apiID, season}
	team, ok := s.teams[key]
	if !ok {
		return fmt.Errorf("%w: api_id=%d season=%d", models.ErrTeamNotFound, apiID, season)
	}
	team.SetRecord(team.Record().Add(delta))
	s.teams[key] = team
	return nil
}

// ReplaceRecords zeroes the season and writes the given counters.
func (s *MemoryStore) ReplaceRecords(ctx context.Context, season int, records map[int]models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ReplaceRecords"); err != nil {
		return err
	}

	for key, team := range s.teams {
		if key.season != season {
			continue
		}
		team.SetRecord(records[key.apiID])
		s.teams[key] = team
	}
	return nil
}

// CountTeams counts a season's teams.
func (s *MemoryStore) CountTeams(ctx context.Context, season int) (int, error) {
	teams, err := s.ListTeamsBySeason(ctx, season)
	return len(teams), err
}

// UpsertGame inserts or overwrites a game and reports the transition.
func (s *MemoryStore) UpsertGame(ctx context.Context, game *models.Game) (models.GameChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertGame"); err != nil {
		return models.GameChange{}, err
	}

	var prev *models.Game
	if existing, ok := s.games[game.APIID]; ok {
		prev = &existing
		game.ID = existing.ID
	} else {
		game.ID = len(s.games) + 1
	}
	change := models.DetectChange(prev, game)

	game.LastUpdated = time.Now().UTC()
	s.games[game.APIID] = *game
	return change, nil
}

// GetGame returns one game.
func (s *MemoryStore) GetGame(ctx context.Context, apiID int) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetGame"); err != nil {
		return nil, err
	}

	game, ok := s.games[apiID]
	if !ok {
		return nil, fmt.Errorf("%w: api_id=%d", models.ErrGameNotFound, apiID)
	}
	return &game, nil
}

// ListGamesByWeek returns a week's games ordered by start date then home team.
func (s *MemoryStore) ListGamesByWeek(ctx context.Context, season, week int) ([]*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListGamesByWeek"); err != nil {
		return nil, err
	}
	return s.filterGames(func(g models.Game) bool { return g.Season == season && g.Week == week }), nil
}

// ListGamesBySeason returns a season's games.
func (s *MemoryStore) ListGamesBySeason(ctx context.Context, season int) ([]*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListGamesBySeason"); err != nil {
		return nil, err
	}
	return s.filterGames(func(g models.Game) bool { return g.Season == season }), nil
}

// ListIncompleteGames returns the season's games not yet completed.
func (s *MemoryStore) ListIncompleteGames(ctx context.Context, season int) ([]*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListIncompleteGames"); err != nil {
		return nil, err
	}
	return s.filterGames(func(g models.Game) bool { return g.Season == season && !g.Completed }), nil
}

// ListGamesByTeam returns a team's home and away games.
func (s *MemoryStore) ListGamesByTeam(ctx context.Context, apiID, season int) ([]*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListGamesByTeam"); err != nil {
		return nil, err
	}
	return s.filterGames(func(g models.Game) bool { return g.Season == season && g.Involves(apiID) }), nil
}

// CountGames counts a season's games.
func (s *MemoryStore) CountGames(ctx context.Context, season int) (int, error) {
	games, err := s.ListGamesBySeason(ctx, season)
	return len(games), err
}

func (s *MemoryStore) filterGames(keep func(models.Game) bool) []*models.Game {
	var out []*models.Game
	for _, g := range s.games {
		if keep(g) {
			game := g
			out = append(out, &game)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate != out[j].StartDate {
			return out[i].StartDate < out[j].StartDate
		}
		if out[i].HomeTeam != out[j].HomeTeam {
			return out[i].HomeTeam < out[j].HomeTeam
		}
		return out[i].APIID < out[j].APIID
	})
	return out
}

// UpsertConference inserts or refreshes a conference.
func (s *MemoryStore) UpsertConference(ctx context.Context, conf *models.Conference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertConference"); err != nil {
		return err
	}

	key := confKey{conf.Name, conf.Season}
	if existing, ok := s.conferences[key]; ok && conf.Abbreviation == "" {
		conf.Abbreviation = existing.Abbreviation
	}
	s.conferences[key] = *conf
	return nil
}

// ListConferences returns the season's conferences ordered by name.
func (s *MemoryStore) ListConferences(ctx context.Context, season int) ([]*models.Conference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListConferences"); err != nil {
		return nil, err
	}

	var out []*models.Conference
	for _, c := range s.conferences {
		if c.Season == season {
			conf := c
			out = append(out, &conf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// StartSyncLog creates or resets a sync log row.
func (s *MemoryStore) StartSyncLog(ctx context.Context, entry *models.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("StartSyncLog"); err != nil {
		return err
	}

	entry.Status = models.SyncStarted
	entry.EndTime = nil
	entry.RecordsProcessed = nil
	entry.ErrorMessage = ""
	s.syncLogs[entry.Key()] = *entry
	return nil
}

// FinishSyncLog patches the terminal state onto a sync log row.
func (s *MemoryStore) FinishSyncLog(ctx context.Context, entry *models.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FinishSyncLog"); err != nil {
		return err
	}

	row, ok := s.syncLogs[entry.Key()]
	if !ok {
		row = *entry
	}
	row.Status = entry.Status
	row.EndTime = entry.EndTime
	row.RecordsProcessed = entry.RecordsProcessed
	row.ErrorMessage = entry.ErrorMessage
	s.syncLogs[entry.Key()] = row
	return nil
}

// GetSyncLog returns the row for a key.
func (s *MemoryStore) GetSyncLog(ctx context.Context, syncType string, season int, week *int) (*models.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := (&models.SyncLog{SyncType: syncType, Season: season, Week: week}).Key()
	row, ok := s.syncLogs[key]
	if !ok {
		return nil, fmt.Errorf("sync log not found: type=%s season=%d", syncType, season)
	}
	return &row, nil
}

// ListSyncLogs returns the season's rows, newest first.
func (s *MemoryStore) ListSyncLogs(ctx context.Context, season, limit int) ([]*models.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.SyncLog
	for _, l := range s.syncLogs {
		if l.Season == season {
			row := l
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
