package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cfbplayoff/ingestion/internal/client"
	"cfbplayoff/ingestion/internal/ledger"
	"cfbplayoff/ingestion/internal/models"
	"cfbplayoff/ingestion/internal/testutil"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var syncStart = time.Date(2024, time.October, 5, 2, 0, 0, 0, time.UTC)

type recordingCache struct {
	mu      sync.Mutex
	seasons []int
}

func (c *recordingCache) InvalidateSeason(ctx context.Context, season int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seasons = append(c.seasons, season)
	return nil
}

func (c *recordingCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seasons)
}

type harness struct {
	api   *client.Client
	fake  *testutil.FakeCFBD
	store *testutil.MemoryStore
	clock *clock.Mock
	cache *recordingCache
	orch  *Orchestrator
}

func newHarness(t *testing.T, mutate func(o *Options)) *harness {
	t.Helper()

	fake := testutil.NewFakeCFBD("test-key")
	t.Cleanup(fake.Close)

	api, err := client.NewClient(client.Options{
		BaseURL: fake.URL(),
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	mock := clock.NewMock()
	mock.Set(syncStart)

	h := &harness{
		api:   api,
		fake:  fake,
		store: testutil.NewMemoryStore(),
		clock: mock,
		cache: &recordingCache{},
	}

	opts := Options{
		Workers: 1,
		Ledger:  ledger.Config{MaxWeek: ledger.DefaultMaxWeek},
		Clock:   mock,
		Cache:   h.cache,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.orch = New(api, h.store, opts)
	return h
}

func (h *harness) seedSeason() {
	h.fake.SetTeams(2024,
		testutil.TeamInput(1, "Alabama", "SEC"),
		testutil.TeamInput(2, "Georgia", "SEC"),
		testutil.TeamInput(3, "Ohio State", "Big Ten"),
		testutil.TeamInput(4, "Notre Dame", ""),
	)

	missingAway := testutil.ScheduledGame(103, 4, 1, 0, false)
	missingAway.AwayID = nil

	h.fake.SetGames(2024,
		testutil.FinalGame(100, 1, 1, 27, 2, 24, true),
		testutil.FinalGame(101, 2, 4, 10, 3, 31, false),
		testutil.ScheduledGame(102, 3, 2, 3, false),
		missingAway,
	)
	h.fake.SetConferences(
		models.ConferenceInput{ID: 8, Name: "SEC", Abbreviation: "SEC"},
		models.ConferenceInput{ID: 5, Name: "Big Ten", Abbreviation: "B1G"},
	)
}

func (h *harness) record(t *testing.T, apiID int) models.Record {
	t.Helper()
	team, err := h.store.GetTeam(context.Background(), apiID, 2024)
	require.NoError(t, err)
	return team.Record()
}

func (h *harness) syncLog(t *testing.T, syncType string, week *int) *models.SyncLog {
	t.Helper()
	entry, err := h.store.GetSyncLog(context.Background(), syncType, 2024, week)
	require.NoError(t, err)
	return entry
}

func TestResolveSeason(t *testing.T) {
	tests := []struct {
		now  time.Time
		want int
	}{
		{time.Date(2024, time.June, 30, 23, 0, 0, 0, time.UTC), 2023},
		{time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), 2024},
		{time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), 2024},
		{time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC), 2024},
	}

	for _, tt := range tests {
		t.Run(tt.now.Format("2006-01-02"), func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveSeason(tt.now))
		})
	}
}

func TestSyncSeason(t *testing.T) {
	h := newHarness(t, nil)
	h.seedSeason()
	ctx := context.Background()

	res, err := h.orch.SyncSeason(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, SeasonResult{Success: true, Season: 2024}, res)

	assert.Equal(t, models.Record{Wins: 1, ConferenceWins: 1}, h.record(t, 1))
	assert.Equal(t, models.Record{Losses: 1, ConferenceLosses: 1}, h.record(t, 2))
	assert.Equal(t, models.Record{Wins: 1}, h.record(t, 3))
	assert.Equal(t, models.Record{Losses: 1}, h.record(t, 4))
	assert.Equal(t, 0, h.store.Calls("IncrementRecord"), "Season sync must not apply per-game deltas")

	independent, err := h.store.GetTeam(ctx, 4, 2024)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConference, independent.Conference)

	games, err := h.store.ListGamesBySeason(ctx, 2024)
	require.NoError(t, err)
	assert.Len(t, games, 3, "The game without an away id is skipped")

	entry := h.syncLog(t, models.SyncTypeFullSeason, nil)
	assert.Equal(t, models.SyncCompleted, entry.Status)
	assert.Equal(t, syncStart, entry.StartTime)
	require.NotNil(t, entry.EndTime)
	require.NotNil(t, entry.RecordsProcessed)
	assert.Equal(t, 7, *entry.RecordsProcessed)
	assert.Empty(t, entry.ErrorMessage)

	conferences, err := h.store.ListConferences(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, conferences, 3)
	assert.Equal(t, "Big Ten", conferences[0].Name)
	assert.Equal(t, "B1G", conferences[0].Abbreviation)
	assert.Equal(t, models.DefaultConference, conferences[1].Name)
	assert.Equal(t, "", conferences[1].Abbreviation)

	assert.Equal(t, []int{2024}, h.cache.seasons)
}

func TestSyncSeason_RepeatedRunsAgree(t *testing.T) {
	h := newHarness(t, nil)
	h.seedSeason()
	ctx := context.Background()

	_, err := h.orch.SyncSeason(ctx, 2024)
	require.NoError(t, err)
	first := []models.Record{h.record(t, 1), h.record(t, 2), h.record(t, 3), h.record(t, 4)}

	_, err = h.orch.SyncSeason(ctx, 2024)
	require.NoError(t, err)
	second := []models.Record{h.record(t, 1), h.record(t, 2), h.record(t, 3), h.record(t, 4)}

	assert.Equal(t, first, second)
	assert.Equal(t, models.SyncCompleted, h.syncLog(t, models.SyncTypeFullSeason, nil).Status)
}

func TestSyncTeams_RepeatedRunsOnlyTouchLastUpdated(t *testing.T) {
	h := newHarness(t, nil)
	h.seedSeason()
	ctx := context.Background()

	snapshot := func() []models.Team {
		teams, err := h.store.ListTeamsBySeason(ctx, 2024)
		require.NoError(t, err)
		out := make([]models.Team, len(teams))
		for i, team := range teams {
			out[i] = *team
			out[i].LastUpdated = time.Time{}
		}
		return out
	}

	_, err := h.orch.SyncTeams(ctx, 2024)
	require.NoError(t, err)
	first := snapshot()

	_, err = h.orch.SyncTeams(ctx, 2024)
	require.NoError(t, err)

	assert.Len(t, first, 4)
	assert.Equal(t, first, snapshot())
}

func TestSyncTeams_SameTeamTwiceKeepsOneRow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.fake.SetTeams(2024, testutil.TeamInput(42, "Old Name", "SEC"))
	_, err := h.orch.SyncTeams(ctx, 2024)
	require.NoError(t, err)

	h.fake.SetTeams(2024, testutil.TeamInput(42, "New Name", "SEC"))
	_, err = h.orch.SyncTeams(ctx, 2024)
	require.NoError(t, err)

	teams, err := h.store.ListTeamsBySeason(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, 42, teams[0].APIID)
	assert.Equal(t, "New Name", teams[0].School)
}

// replaceHookStore runs beforeReplace once, just before a recompute writes
// its records
type replaceHookStore struct {
	*testutil.MemoryStore
	beforeReplace func()
}

func (s *replaceHookStore) ReplaceRecords(ctx context.Context, season int, records map[int]models.Record) error {
	if hook := s.beforeReplace; hook != nil {
		s.beforeReplace = nil
		hook()
	}
	return s.MemoryStore.ReplaceRecords(ctx, season, records)
}

func TestRecordGame_DuringSeasonRecomputeIsKept(t *testing.T) {
	h := newHarness(t, nil)
	h.seedSeason()
	ctx := context.Background()

	store := &replaceHookStore{MemoryStore: h.store}
	orch := New(h.api, store, Options{
		Workers: 1,
		Ledger:  ledger.Config{MaxWeek: ledger.DefaultMaxWeek},
		Clock:   h.clock,
	})

	recorded := make(chan error, 1)
	store.beforeReplace = func() {
		go func() {
			_, err := orch.RecordGame(ctx, testutil.FinalGame(200, 5, 1, 21, 3, 14, false))
			recorded <- err
		}()
		// A writer that is not serialized finishes well inside this window
		select {
		case err := <-recorded:
			recorded <- err
		case <-time.After(100 * time.Millisecond):
		}
	}

	_, err := orch.SyncSeason(ctx, 2024)
	require.NoError(t, err)
	require.NoError(t, <-recorded)

	assert.Equal(t, models.Record{Wins: 2, ConferenceWins: 1}, h.record(t, 1))
	assert.Equal(t, models.Record{Wins: 1, Losses: 1}, h.record(t, 3))

	// The game is stored as final, so a later week sync must not count it again
	h.fake.SetGames(2024, testutil.FinalGame(200, 5, 1, 21, 3, 14, false))
	_, err = orch.SyncWeek(ctx, 2024, 5)
	require.NoError(t, err)
	assert.Equal(t, models.Record{Wins: 2, ConferenceWins: 1}, h.record(t, 1))
}

func TestSyncSeason_ConferenceDirectoryFailureIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.seedSeason()
	h.fake.Fail("/conferences", 500)

	_, err := h.orch.SyncSeason(context.Background(), 2024)
	require.NoError(t, err)

	conferences, err := h.store.ListConferences(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, conferences, 3)
	for _, c := range conferences {
		assert.Empty(t, c.Abbreviation)
	}
}

func TestSyncSeason_TeamFetchFails(t *testing.T) {
	h := newHarness(t, nil)
	h.seedSeason()
	h.fake.Fail("/teams/fbs", 503)

	_, err := h.orch.SyncSeason(context.Background(), 2024)
	require.Error(t, err)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 503, apiErr.StatusCode)

	entry := h.syncLog(t, models.SyncTypeFullSeason, nil)
	assert.Equal(t, models.SyncFailed, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "503")
	require.NotNil(t, entry.RecordsProcessed)
	assert.Equal(t, 0, *entry.RecordsProcessed)
	assert.Equal(t, 0, h.store.Calls("UpsertTeam"))
	assert.Equal(t, 0, h.cache.count())
}

func TestSyncSeason_GameFetchFailsKeepsTeams(t *testing.T) {
	h := newHarness(t, nil)
	h.seedSeason()
	h.fake.Fail("/games", 500)

	_, err := h.orch.SyncSeason(context.Background(), 2024)
	require.Error(t, err)

	entry := h.syncLog(t, models.SyncTypeFullSeason, nil)
	assert.Equal(t, models.SyncFailed, entry.Status)
	require.NotNil(t, entry.RecordsProcessed)
	assert.Equal(t, 4, *entry.RecordsProcessed, "Teams written before the failure are counted")

	count, err := h.store.CountTeams(context.Background(), 2024)
	require.NoError(t, err)
	assert.Equal(t, 4, count, "Earlier stages are not rolled back")
}

func TestSyncSeason_UnknownTeamFails(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.SetTeams(2024, testutil.TeamInput(1, "Alabama", "SEC"), testutil.TeamInput(2, "Georgia", "SEC"))
	h.fake.SetGames(2024, testutil.FinalGame(100, 1, 1, 45, 99, 3, false))

	_, err := h.orch.SyncSeason(context.Background(), 2024)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTeamNotFound)

	entry := h.syncLog(t, models.SyncTypeFullSeason, nil)
	assert.Equal(t, models.SyncFailed, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "api_id=99")
	assert.Equal(t, 3, *entry.RecordsProcessed)
}

func TestSyncSeason_StoreFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.seedSeason()
	h.store.Fail("UpsertGame", errors.New("connection refused"))

	_, err := h.orch.SyncSeason(context.Background(), 2024)
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to save game")
	assert.Equal(t, models.SyncFailed, h.syncLog(t, models.SyncTypeFullSeason, nil).Status)
}

func TestSyncWeek_AppliesCompletionOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.seedSeason()
	ctx := context.Background()

	_, err := h.orch.SyncSeason(ctx, 2024)
	require.NoError(t, err)

	// game 102 finishes: away team 3 beats home team 2
	h.fake.SetGames(2024,
		testutil.FinalGame(100, 1, 1, 27, 2, 24, true),
		testutil.FinalGame(101, 2, 4, 10, 3, 31, false),
		testutil.FinalGame(102, 3, 2, 14, 3, 17, false),
	)

	res, err := h.orch.SyncWeek(ctx, 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, WeekResult{Success: true, Count: 1}, res)
	assert.Equal(t, models.Record{Wins: 2}, h.record(t, 3))
	assert.Equal(t, models.Record{Losses: 2, ConferenceLosses: 1}, h.record(t, 2))
	assert.Equal(t, 2, h.store.Calls("IncrementRecord"))

	res, err = h.orch.SyncWeek(ctx, 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, models.Record{Wins: 2}, h.record(t, 3), "Re-syncing a completed game must not count it again")
	assert.Equal(t, 2, h.store.Calls("IncrementRecord"))

	week := 3
	entry := h.syncLog(t, models.WeekSyncType(3), &week)
	assert.Equal(t, models.SyncCompleted, entry.Status)
	assert.Equal(t, 1, *entry.RecordsProcessed)

	// a recompute over the same games agrees with the deltas
	_, err = h.orch.CalculateTeamRecords(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, models.Record{Wins: 2}, h.record(t, 3))
	assert.Equal(t, models.Record{Losses: 2, ConferenceLosses: 1}, h.record(t, 2))
}

func TestSyncWeek_ScoresAfterCompletionApplyOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.seedSeason()
	ctx := context.Background()

	_, err := h.orch.SyncSeason(ctx, 2024)
	require.NoError(t, err)

	pending := testutil.ScheduledGame(102, 3, 2, 3, false)
	pending.Completed = true
	h.fake.SetGames(2024, pending)
	_, err = h.orch.SyncWeek(ctx, 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, models.Record{Losses: 1, ConferenceLosses: 1}, h.record(t, 2), "No points, no result")

	h.fake.SetGames(2024, testutil.FinalGame(102, 3, 2, 20, 3, 17, false))
	_, err = h.orch.SyncWeek(ctx, 2024, 3)
	require.NoError(t, err)
	delta := []models.Record{h.record(t, 2), h.record(t, 3)}
	assert.Equal(t, models.Record{Wins: 1, Losses: 1, ConferenceLosses: 1}, delta[0])

	_, err = h.orch.CalculateTeamRecords(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, delta, []models.Record{h.record(t, 2), h.record(t, 3)})
}

func TestSyncWeek_FetchFails(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.Fail("/games", 502)

	_, err := h.orch.SyncWeek(context.Background(), 2024, 5)
	require.Error(t, err)

	week := 5
	entry := h.syncLog(t, "games_week_5", &week)
	assert.Equal(t, models.SyncFailed, entry.Status)
	assert.Equal(t, 0, *entry.RecordsProcessed)
}

func TestSyncWeek_TieRejected(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Ledger.TiePolicy = ledger.TieReject
	})
	ctx := context.Background()
	require.NoError(t, h.store.UpsertTeam(ctx, testutil.Team(1, "Alabama", "SEC")))
	require.NoError(t, h.store.UpsertTeam(ctx, testutil.Team(2, "Georgia", "SEC")))
	h.fake.SetGames(2024, testutil.FinalGame(200, 1, 1, 7, 2, 7, true))

	_, err := h.orch.SyncWeek(ctx, 2024, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrTiedGame)

	week := 1
	entry := h.syncLog(t, models.WeekSyncType(1), &week)
	assert.Equal(t, models.SyncFailed, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "tied game")
}

func TestSyncWeek_TieWithoutDecision(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.store.UpsertTeam(ctx, testutil.Team(1, "Alabama", "SEC")))
	require.NoError(t, h.store.UpsertTeam(ctx, testutil.Team(2, "Georgia", "SEC")))
	h.fake.SetGames(2024, testutil.FinalGame(200, 1, 1, 7, 2, 7, true))

	res, err := h.orch.SyncWeek(ctx, 2024, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.True(t, h.record(t, 1).IsZero())
	assert.True(t, h.record(t, 2).IsZero())
}

func TestSyncWeek_WorkersMatchSequential(t *testing.T) {
	var teams []models.TeamInput
	for id := 1; id <= 12; id++ {
		conf := "SEC"
		if id%2 == 0 {
			conf = "ACC"
		}
		teams = append(teams, testutil.TeamInput(id, fmt.Sprintf("Team %02d", id), conf))
	}
	var games []models.GameInput
	for i := 0; i < 30; i++ {
		home, away := i%12+1, (i*5+3)%12+1
		if home == away {
			continue
		}
		games = append(games, testutil.FinalGame(1000+i, 2, home, 20+i%7, away, 17+i%5, i%3 == 0))
	}

	run := func(workers int) []models.Record {
		h := newHarness(t, func(o *Options) { o.Workers = workers })
		ctx := context.Background()
		for _, in := range teams {
			require.NoError(t, h.store.UpsertTeam(ctx, testutil.TeamInputToTeam(in)))
		}
		h.fake.SetGames(2024, games...)

		res, err := h.orch.SyncWeek(ctx, 2024, 2)
		require.NoError(t, err)
		assert.Equal(t, len(games), res.Count)

		out := make([]models.Record, 0, len(teams))
		for id := 1; id <= 12; id++ {
			out = append(out, h.record(t, id))
		}
		return out
	}

	assert.Equal(t, run(1), run(4))
}

func TestRecordGame(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.store.UpsertTeam(ctx, testutil.Team(1, "Alabama", "SEC")))
	require.NoError(t, h.store.UpsertTeam(ctx, testutil.Team(2, "Georgia", "SEC")))

	change, err := h.orch.RecordGame(ctx, testutil.ScheduledGame(300, 5, 1, 2, true))
	require.NoError(t, err)
	assert.Equal(t, models.GameChange{Inserted: true}, change)
	assert.Equal(t, 0, h.cache.count())

	change, err = h.orch.RecordGame(ctx, testutil.FinalGame(300, 5, 1, 10, 2, 13, true))
	require.NoError(t, err)
	assert.True(t, change.Completed)
	assert.Equal(t, models.Record{Losses: 1, ConferenceLosses: 1}, h.record(t, 1))
	assert.Equal(t, models.Record{Wins: 1, ConferenceWins: 1}, h.record(t, 2))
	assert.Equal(t, 1, h.cache.count())

	change, err = h.orch.RecordGame(ctx, testutil.FinalGame(300, 5, 1, 10, 2, 13, true))
	require.NoError(t, err)
	assert.False(t, change.Completed)
	assert.Equal(t, models.Record{Wins: 1, ConferenceWins: 1}, h.record(t, 2))
}

func TestRecordGame_MissingTeam(t *testing.T) {
	h := newHarness(t, nil)
	in := testutil.ScheduledGame(300, 5, 1, 2, true)
	in.HomeID = nil

	_, err := h.orch.RecordGame(context.Background(), in)
	assert.ErrorIs(t, err, ErrMissingTeam)
	assert.Equal(t, 0, h.store.Calls("UpsertGame"))
}

func TestRecordGame_UnknownTeam(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orch.RecordGame(context.Background(), testutil.FinalGame(300, 5, 1, 10, 2, 13, false))
	assert.ErrorIs(t, err, models.ErrTeamNotFound)
}
