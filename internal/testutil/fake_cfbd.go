package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"cfbplayoff/ingestion/internal/models"

	"github.com/gorilla/mux"
)

// FakeCFBD is an httptest server speaking the subset of the
// CollegeFootballData API the client uses.
type FakeCFBD struct {
	Server *httptest.Server

	apiKey      string
	mu          sync.Mutex
	teams       map[int][]models.TeamInput
	games       map[int][]models.GameInput
	conferences []models.ConferenceInput
	failures    map[string]int
	requests    []string
}

// NewFakeCFBD starts a fake API accepting the given bearer token.
func NewFakeCFBD(apiKey string) *FakeCFBD {
	f := &FakeCFBD{
		apiKey:   apiKey,
		teams:    make(map[int][]models.TeamInput),
		games:    make(map[int][]models.GameInput),
		failures: make(map[string]int),
	}

	router := mux.NewRouter()
	router.Use(f.authenticate)
	router.HandleFunc("/teams/fbs", f.handleTeams).Methods(http.MethodGet)
	router.HandleFunc("/games", f.handleGames).Methods(http.MethodGet)
	router.HandleFunc("/conferences", f.handleConferences).Methods(http.MethodGet)

	f.Server = httptest.NewServer(router)
	return f
}

// URL returns the base URL of the fake.
func (f *FakeCFBD) URL() string { return f.Server.URL }

// Close shuts the server down.
func (f *FakeCFBD) Close() { f.Server.Close() }

// SetTeams replaces the FBS teams of a season.
func (f *FakeCFBD) SetTeams(season int, teams ...models.TeamInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teams[season] = teams
}

// SetGames replaces the games of a season.
func (f *FakeCFBD) SetGames(season int, games ...models.GameInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games[season] = games
}

// SetConferences replaces the conference directory.
func (f *FakeCFBD) SetConferences(conferences ...models.ConferenceInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conferences = conferences
}

// Fail makes requests to path answer with status until cleared with 0.
func (f *FakeCFBD) Fail(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == 0 {
		delete(f.failures, path)
		return
	}
	f.failures[path] = status
}

// Requests returns the request URIs received so far.
func (f *FakeCFBD) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *FakeCFBD) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.URL.RequestURI())
		status := f.failures[r.URL.Path]
		f.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+f.apiKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeCFBD) handleTeams(w http.ResponseWriter, r *http.Request) {
	season, _ := strconv.Atoi(r.URL.Query().Get("year"))

	f.mu.Lock()
	teams := f.teams[season]
	f.mu.Unlock()

	writeJSON(w, teams)
}

func (f *FakeCFBD) handleGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	season, _ := strconv.Atoi(q.Get("year"))

	f.mu.Lock()
	games := f.games[season]
	f.mu.Unlock()

	if raw := q.Get("week"); raw != "" {
		week, _ := strconv.Atoi(raw)
		filtered := make([]models.GameInput, 0, len(games))
		for _, g := range games {
			if g.Week == week {
				filtered = append(filtered, g)
			}
		}
		games = filtered
	}

	writeJSON(w, games)
}

func (f *FakeCFBD) handleConferences(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	conferences := f.conferences
	f.mu.Unlock()

	writeJSON(w, conferences)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if v == nil {
		w.Write([]byte("[]"))
		return
	}
	json.NewEncoder(w).Encode(v)
}
