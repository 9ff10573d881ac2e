package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cfbplayoff/ingestion/internal/client"
	"cfbplayoff/ingestion/internal/ledger"
	"cfbplayoff/ingestion/internal/models"
	"cfbplayoff/ingestion/internal/query"
	"cfbplayoff/ingestion/internal/syncer"
	"cfbplayoff/ingestion/internal/testutil"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "s3cret"

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) SyncSeason(ctx context.Context, season int) (syncer.SeasonResult, error) {
	args := m.Called(ctx, season)
	return args.Get(0).(syncer.SeasonResult), args.Error(1)
}

func (m *mockSyncer) SyncWeek(ctx context.Context, season, week int) (syncer.WeekResult, error) {
	args := m.Called(ctx, season, week)
	return args.Get(0).(syncer.WeekResult), args.Error(1)
}

func (m *mockSyncer) RecordGame(ctx context.Context, in models.GameInput) (models.GameChange, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.GameChange), args.Error(1)
}

type failingDB struct{ err error }

func (f failingDB) Health(ctx context.Context) error { return f.err }

type pooledDB struct{}

func (pooledDB) Health(ctx context.Context) error { return nil }

func (pooledDB) PoolStats() map[string]interface{} {
	return map[string]interface{}{"total_conns": 4, "idle_conns": 3}
}

type testServer struct {
	router http.Handler
	store  *testutil.MemoryStore
	syncer *mockSyncer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewMemoryStore()

	georgia := testutil.Team(1, "Georgia", "SEC")
	georgia.Wins, georgia.ConferenceWins = 1, 1
	alabama := testutil.Team(2, "Alabama", "SEC")
	alabama.Losses, alabama.ConferenceLosses = 1, 1
	for _, team := range []*models.Team{georgia, alabama, testutil.Team(3, "Clemson", "ACC")} {
		require.NoError(t, store.UpsertTeam(ctx, team))
	}
	for _, g := range []models.GameInput{
		testutil.FinalGame(10, 1, 1, 28, 2, 21, true),
		testutil.ScheduledGame(11, 2, 3, 1, false),
		testutil.ScheduledGame(12, 3, 2, 3, false),
	} {
		_, err := store.UpsertGame(ctx, testutil.Game(g))
		require.NoError(t, err)
	}
	require.NoError(t, store.UpsertConference(ctx, &models.Conference{Name: "SEC", Season: 2024, Abbreviation: "SEC"}))

	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC))

	s := &mockSyncer{}
	h := NewHandler(HandlerOptions{
		Queries:       query.NewService(store, nil),
		Syncer:        s,
		Clock:         mockClock,
		WebhookSecret: webhookSecret,
	})

	return &testServer{router: NewRouter(h), store: store, syncer: s}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h := NewHandler(HandlerOptions{DB: failingDB{err: errors.New("down")}})
	rec = httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthCheck_ReportsPoolAndCache(t *testing.T) {
	health := func(opts HandlerOptions) map[string]interface{} {
		rec := httptest.NewRecorder()
		NewRouter(NewHandler(opts)).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code, "A cache outage should not fail the health check")
		return decode[map[string]interface{}](t, rec)
	}

	body := health(HandlerOptions{DB: pooledDB{}})
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "disabled", body["cache"])
	assert.Equal(t, map[string]interface{}{"total_conns": float64(4), "idle_conns": float64(3)}, body["database_pool"])

	body = health(HandlerOptions{DB: pooledDB{}, Cache: failingDB{}})
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["cache"])

	body = health(HandlerOptions{DB: pooledDB{}, Cache: failingDB{err: errors.New("connection refused")}})
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unavailable", body["cache"])
}

func TestGetTeams_DefaultSeasonAndOrder(t *testing.T) {
	ts := newTestServer(t)

	// January 2025 belongs to the 2024 season
	rec := ts.do(t, "GET", "/api/v1/teams", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	teams := decode[[]models.Team](t, rec)
	require.Len(t, teams, 3)
	assert.Equal(t, []string{"Georgia", "Clemson", "Alabama"}, []string{teams[0].School, teams[1].School, teams[2].School})

	rec = ts.do(t, "GET", "/api/v1/teams?season=2024&conference=SEC&sort=winpct", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Team](t, rec), 2)

	rec = ts.do(t, "GET", "/api/v1/teams?season=2023", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Team](t, rec))
}

func TestGetTeams_BadParams(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, "GET", "/api/v1/teams?season=abc", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "GET", "/api/v1/teams?sort=alpha", nil, nil).Code)
}

func TestGetTeam(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/api/v1/teams/1?season=2024", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Georgia", decode[models.Team](t, rec).School)

	rec = ts.do(t, "GET", "/api/v1/teams/404?season=2024", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, "GET", "/api/v1/teams/1/games?season=2024", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	games := decode[[]models.Game](t, rec)
	require.Len(t, games, 2)
	assert.Equal(t, 10, games[0].APIID)
}

func TestGetTeam_OverflowingID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/api/v1/teams/99999999999999999999?season=2024", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "GET", "/api/v1/teams/99999999999999999999/games?season=2024", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConferenceRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/api/v1/conferences?season=2024", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Conference](t, rec), 1)

	rec = ts.do(t, "GET", "/api/v1/conferences/active?season=2024", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ACC", "SEC"}, decode[[]string](t, rec))

	rec = ts.do(t, "GET", "/api/v1/conferences/SEC/standings?season=2024", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	standings := decode[[]models.Team](t, rec)
	require.Len(t, standings, 2)
	assert.Equal(t, "Georgia", standings[0].School)

	rec = ts.do(t, "GET", "/api/v1/conferences/SEC/games?season=2024", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Game](t, rec), 1)
}

func TestGameRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/api/v1/games?season=2024&week=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Game](t, rec), 1)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, "GET", "/api/v1/games?season=2024", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "GET", "/api/v1/games?season=2024&week=-1", nil, nil).Code)

	rec = ts.do(t, "GET", "/api/v1/games/upcoming?season=2024&limit=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	upcoming := decode[[]models.Game](t, rec)
	require.Len(t, upcoming, 1)
	assert.Equal(t, 11, upcoming[0].APIID)
}

func TestSyncSeason_DefaultSeason(t *testing.T) {
	ts := newTestServer(t)
	ts.syncer.On("SyncSeason", mock.Anything, 2024).
		Return(syncer.SeasonResult{Success: true, Season: 2024}, nil).Once()

	rec := ts.do(t, "POST", "/api/v1/sync/season", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"season":2024}`, rec.Body.String())
	ts.syncer.AssertExpectations(t)
}

func TestSyncSeason_ExplicitSeasonAndUpstreamError(t *testing.T) {
	ts := newTestServer(t)
	apiErr := &client.APIError{Endpoint: "teams/fbs", StatusCode: 503, Status: "503 Service Unavailable"}
	ts.syncer.On("SyncSeason", mock.Anything, 2021).
		Return(syncer.SeasonResult{}, apiErr).Once()

	rec := ts.do(t, "POST", "/api/v1/sync/season", []byte(`{"season":2021}`), nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	ts.syncer.AssertExpectations(t)
}

func TestSyncSeason_ZeroMeansCurrentSeason(t *testing.T) {
	ts := newTestServer(t)
	ts.syncer.On("SyncSeason", mock.Anything, 2024).
		Return(syncer.SeasonResult{Success: true, Season: 2024}, nil).Once()

	rec := ts.do(t, "POST", "/api/v1/sync/season", []byte(`{"season":0}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "POST", "/api/v1/sync/season", []byte(`{"season":-2024}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "POST", "/api/v1/sync/week", []byte(`{"season":0,"week":1}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.syncer.AssertExpectations(t)
	ts.syncer.AssertNumberOfCalls(t, "SyncSeason", 1)
	ts.syncer.AssertNotCalled(t, "SyncWeek", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncWeek(t *testing.T) {
	ts := newTestServer(t)
	ts.syncer.On("SyncWeek", mock.Anything, 2024, 7).
		Return(syncer.WeekResult{Success: true, Count: 42}, nil).Once()

	rec := ts.do(t, "POST", "/api/v1/sync/week", []byte(`{"season":2024,"week":7}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"count":42}`, rec.Body.String())

	rec = ts.do(t, "POST", "/api/v1/sync/week", []byte(`{"season":2024}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.syncer.AssertExpectations(t)
}

func TestSyncWeek_TiedGame(t *testing.T) {
	ts := newTestServer(t)
	ts.syncer.On("SyncWeek", mock.Anything, 2024, 3).
		Return(syncer.WeekResult{}, ledger.ErrTiedGame).Once()

	rec := ts.do(t, "POST", "/api/v1/sync/week", []byte(`{"season":2024,"week":3}`), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetSyncLogs(t *testing.T) {
	ts := newTestServer(t)
	week := 3
	require.NoError(t, ts.store.StartSyncLog(context.Background(), &models.SyncLog{
		SyncType: models.WeekSyncType(week), Season: 2024, Week: &week, StartTime: time.Now(),
	}))

	rec := ts.do(t, "GET", "/api/v1/sync/logs?season=2024", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]models.SyncLog](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncStarted, logs[0].Status)
}

func TestGameWebhook(t *testing.T) {
	ts := newTestServer(t)
	in := testutil.FinalGame(12, 3, 2, 10, 3, 14, false)
	body, err := json.Marshal(in)
	require.NoError(t, err)

	ts.syncer.On("RecordGame", mock.Anything, in).
		Return(models.GameChange{Completed: true}, nil).Once()

	rec := ts.do(t, "POST", "/webhooks/games", body, map[string]string{"X-Signature": Sign(webhookSecret, body)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"inserted":false,"completed":true}`, rec.Body.String())
	ts.syncer.AssertExpectations(t)
}

func TestGameWebhook_Rejected(t *testing.T) {
	ts := newTestServer(t)
	body := []byte(`{"id":12}`)

	rec := ts.do(t, "POST", "/webhooks/games", body, map[string]string{"X-Signature": Sign("wrong", body)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, "POST", "/webhooks/games", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts.syncer.On("RecordGame", mock.Anything, mock.Anything).
		Return(models.GameChange{}, syncer.ErrMissingTeam).Once()
	rec = ts.do(t, "POST", "/webhooks/games", body, map[string]string{"X-Signature": Sign(webhookSecret, body)})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	ts.syncer.AssertNotCalled(t, "SyncSeason", mock.Anything, mock.Anything)
}

func TestGameWebhook_DisabledWithoutSecret(t *testing.T) {
	h := NewHandler(HandlerOptions{Queries: query.NewService(testutil.NewMemoryStore(), nil)})
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, httptest.NewRequest("POST", "/webhooks/games", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")
}
