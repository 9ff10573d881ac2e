package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server represents the REST API server
type Server struct {
	port   int
	server *http.Server
}

// NewRouter wires every route of the API onto a mux router
func NewRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()

	router.Use(RecoveryMiddleware)
	router.Use(LoggingMiddleware)

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	// Teams
	api.HandleFunc("/teams", h.GetTeams).Methods("GET")
	api.HandleFunc("/teams/{apiID:[0-9]+}", h.GetTeam).Methods("GET")
	api.HandleFunc("/teams/{apiID:[0-9]+}/games", h.GetTeamSchedule).Methods("GET")

	// Conferences
	api.HandleFunc("/conferences", h.GetConferences).Methods("GET")
	api.HandleFunc("/conferences/active", h.GetActiveConferences).Methods("GET")
	api.HandleFunc("/conferences/{name}/standings", h.GetConferenceStandings).Methods("GET")
	api.HandleFunc("/conferences/{name}/games", h.GetConferenceGames).Methods("GET")

	// Games
	api.HandleFunc("/games/upcoming", h.GetUpcomingGames).Methods("GET")
	api.HandleFunc("/games", h.GetGamesByWeek).Methods("GET")

	// Sync
	api.HandleFunc("/sync/logs", h.GetSyncLogs).Methods("GET")
	api.HandleFunc("/sync/season", h.SyncSeason).Methods("POST")
	api.HandleFunc("/sync/week", h.SyncWeek).Methods("POST")

	if h.webhookSecret != "" {
		router.HandleFunc("/webhooks/games", h.GameWebhook).Methods("POST")
	}

	return router
}

// NewServer creates a new REST API server
func NewServer(port int, h *Handler) *Server {
	return &Server{
		port: port,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           NewRouter(h),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start starts the REST API server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
