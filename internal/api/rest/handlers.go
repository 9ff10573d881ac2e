package rest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"cfbplayoff/ingestion/internal/client"
	"cfbplayoff/ingestion/internal/ledger"
	"cfbplayoff/ingestion/internal/models"
	"cfbplayoff/ingestion/internal/query"
	"cfbplayoff/ingestion/internal/syncer"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

const maxWebhookBody = 1 << 20

// Syncer runs the sync pipelines
type Syncer interface {
	SyncSeason(ctx context.Context, season int) (syncer.SeasonResult, error)
	SyncWeek(ctx context.Context, season, week int) (syncer.WeekResult, error)
	RecordGame(ctx context.Context, in models.GameInput) (models.GameChange, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// PoolReporter is a store that can describe its connection pool
type PoolReporter interface {
	PoolStats() map[string]interface{}
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	queries       *query.Service
	syncer        Syncer
	db            HealthChecker
	cache         HealthChecker
	clock         clock.Clock
	webhookSecret string
}

// HandlerOptions configures a Handler. DB, Cache and Clock are optional; an
// empty WebhookSecret disables the game webhook.
type HandlerOptions struct {
	Queries       *query.Service
	Syncer        Syncer
	DB            HealthChecker
	Cache         HealthChecker
	Clock         clock.Clock
	WebhookSecret string
}

// NewHandler creates a new handler
func NewHandler(opts HandlerOptions) *Handler {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Handler{
		queries:       opts.Queries,
		syncer:        opts.Syncer,
		db:            opts.DB,
		cache:         opts.Cache,
		clock:         opts.Clock,
		webhookSecret: opts.WebhookSecret,
	}
}

// HealthCheck handles health check requests. Only the database is
// required; a cache outage degrades the service without failing it.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "healthy",
		"service": "cfb-ingestion",
	}

	if h.db != nil {
		if err := h.db.Health(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
		if pool, ok := h.db.(PoolReporter); ok {
			resp["database_pool"] = pool.PoolStats()
		}
	}

	switch {
	case h.cache == nil:
		resp["cache"] = "disabled"
	case h.cache.Health(r.Context()) != nil:
		resp["cache"] = "unavailable"
		resp["status"] = "degraded"
	default:
		resp["cache"] = "ok"
	}

	respondJSON(w, http.StatusOK, resp)
}

// season reads the season query parameter, defaulting to the season in
// progress
func (h *Handler) season(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("season")
	if raw == "" {
		return syncer.ResolveSeason(h.clock.Now()), nil
	}
	season, err := strconv.Atoi(raw)
	if err != nil || season <= 0 {
		return 0, fmt.Errorf("invalid season %q", raw)
	}
	return season, nil
}

// teamID reads the apiID path variable
func teamID(r *http.Request) (int, error) {
	raw := mux.Vars(r)["apiID"]
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid team id %q", raw)
	}
	return id, nil
}

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

// GetTeams returns a season's teams in standings order
func (h *Handler) GetTeams(w http.ResponseWriter, r *http.Request) {
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}
	order, err := query.ParseSortOrder(r.URL.Query().Get("sort"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sort order", err)
		return
	}

	teams, err := h.queries.Teams(r.Context(), season, r.URL.Query().Get("conference"), order)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch teams", err)
		return
	}
	respondJSON(w, http.StatusOK, teams)
}

// GetTeam returns one team
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
	apiID, err := teamID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid team id", err)
		return
	}
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}

	team, err := h.queries.Team(r.Context(), apiID, season)
	if err != nil {
		respondStoreError(w, "Failed to fetch team", err)
		return
	}
	respondJSON(w, http.StatusOK, team)
}

// GetTeamSchedule returns a team's games by week
func (h *Handler) GetTeamSchedule(w http.ResponseWriter, r *http.Request) {
	apiID, err := teamID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid team id", err)
		return
	}
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}

	games, err := h.queries.TeamSchedule(r.Context(), apiID, season)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch team schedule", err)
		return
	}
	respondJSON(w, http.StatusOK, games)
}

// GetConferences returns the stored conference rows
func (h *Handler) GetConferences(w http.ResponseWriter, r *http.Request) {
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}

	conferences, err := h.queries.Conferences(r.Context(), season)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch conferences", err)
		return
	}
	respondJSON(w, http.StatusOK, conferences)
}

// GetActiveConferences returns the conference names with teams this season
func (h *Handler) GetActiveConferences(w http.ResponseWriter, r *http.Request) {
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}

	names, err := h.queries.ActiveConferences(r.Context(), season)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch conferences", err)
		return
	}
	respondJSON(w, http.StatusOK, names)
}

// GetConferenceStandings returns one conference ordered by win percentage
func (h *Handler) GetConferenceStandings(w http.ResponseWriter, r *http.Request) {
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}

	teams, err := h.queries.ConferenceStandings(r.Context(), season, mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch standings", err)
		return
	}
	respondJSON(w, http.StatusOK, teams)
}

// GetConferenceGames returns the games between members of a conference
func (h *Handler) GetConferenceGames(w http.ResponseWriter, r *http.Request) {
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}

	games, err := h.queries.ConferenceGames(r.Context(), season, mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch conference games", err)
		return
	}
	respondJSON(w, http.StatusOK, games)
}

// GetGamesByWeek returns one week's games
func (h *Handler) GetGamesByWeek(w http.ResponseWriter, r *http.Request) {
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}
	if r.URL.Query().Get("week") == "" {
		respondError(w, http.StatusBadRequest, "week is required", nil)
		return
	}
	week, err := intQuery(r, "week", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid week", err)
		return
	}

	games, err := h.queries.GamesByWeek(r.Context(), season, week)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch games", err)
		return
	}
	respondJSON(w, http.StatusOK, games)
}

// GetUpcomingGames returns the next games not yet completed
func (h *Handler) GetUpcomingGames(w http.ResponseWriter, r *http.Request) {
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	games, err := h.queries.Upcoming(r.Context(), season, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch upcoming games", err)
		return
	}
	respondJSON(w, http.StatusOK, games)
}

// GetSyncLogs returns a season's sync audit rows
func (h *Handler) GetSyncLogs(w http.ResponseWriter, r *http.Request) {
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}
	limit, err := intQuery(r, "limit", 50)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	logs, err := h.queries.SyncLogs(r.Context(), season, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch sync logs", err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

type syncSeasonRequest struct {
	Season *int `json:"season"`
}

// SyncSeason runs a full season sync. The body and its season are optional.
func (h *Handler) SyncSeason(w http.ResponseWriter, r *http.Request) {
	var req syncSeasonRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// A zero season means the season in progress
	season := syncer.ResolveSeason(h.clock.Now())
	if req.Season != nil {
		if *req.Season < 0 {
			respondError(w, http.StatusBadRequest, "season must be positive", nil)
			return
		}
		if *req.Season > 0 {
			season = *req.Season
		}
	}

	result, err := h.syncer.SyncSeason(r.Context(), season)
	if err != nil {
		respondSyncError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type syncWeekRequest struct {
	Season *int `json:"season"`
	Week   *int `json:"week"`
}

// SyncWeek runs a single-week sync
func (h *Handler) SyncWeek(w http.ResponseWriter, r *http.Request) {
	var req syncWeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Season == nil || req.Week == nil {
		respondError(w, http.StatusBadRequest, "season and week are required", nil)
		return
	}
	if *req.Season <= 0 {
		respondError(w, http.StatusBadRequest, "season must be positive", nil)
		return
	}
	if *req.Week < 0 {
		respondError(w, http.StatusBadRequest, "week must not be negative", nil)
		return
	}

	result, err := h.syncer.SyncWeek(r.Context(), *req.Season, *req.Week)
	if err != nil {
		respondSyncError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GameWebhook records one upstream game pushed to us. The body must carry an
// X-Signature header holding the hex HMAC-SHA256 of the body.
func (h *Handler) GameWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	if !validSignature(h.webhookSecret, body, r.Header.Get("X-Signature")) {
		respondError(w, http.StatusUnauthorized, "Invalid signature", nil)
		return
	}

	var in models.GameInput
	if err := json.Unmarshal(body, &in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid game payload", err)
		return
	}

	change, err := h.syncer.RecordGame(r.Context(), in)
	if err != nil {
		respondSyncError(w, err)
		return
	}

	log.Info().
		Int("api_id", in.ID).
		Bool("inserted", change.Inserted).
		Bool("completed", change.Completed).
		Msg("Game webhook processed")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"inserted":  change.Inserted,
		"completed": change.Completed,
	})
}

// Sign returns the signature GameWebhook expects for body
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// decodeOptional decodes a JSON body into v, accepting an empty body
func decodeOptional(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func respondStoreError(w http.ResponseWriter, message string, err error) {
	if errors.Is(err, models.ErrTeamNotFound) || errors.Is(err, models.ErrGameNotFound) {
		respondError(w, http.StatusNotFound, "Not found", err)
		return
	}
	respondError(w, http.StatusInternalServerError, message, err)
}

func respondSyncError(w http.ResponseWriter, err error) {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, syncer.ErrMissingTeam):
		respondError(w, http.StatusUnprocessableEntity, "Game is missing a team", err)
	case errors.Is(err, ledger.ErrTiedGame):
		respondError(w, http.StatusConflict, "Tied game rejected", err)
	case errors.Is(err, models.ErrTeamNotFound):
		respondError(w, http.StatusUnprocessableEntity, "Game references an unknown team", err)
	case errors.As(err, &apiErr):
		respondError(w, http.StatusBadGateway, "Upstream API request failed", err)
	default:
		respondError(w, http.StatusInternalServerError, "Sync failed", err)
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
