package models

import (
	"time"
)

const (
	SeasonTypeRegular    = "regular"
	SeasonTypePostseason = "postseason"
)

// Game represents a single scheduled or completed game
type Game struct {
	ID             int       `db:"id" json:"-"`
	APIID          int       `db:"api_id" json:"apiId"`
	Season         int       `db:"season" json:"season"`
	Week           int       `db:"week" json:"week"`
	SeasonType     string    `db:"season_type" json:"seasonType"`
	StartDate      string    `db:"start_date" json:"startDate"`
	HomeTeamID     int       `db:"home_team_id" json:"homeTeamId"`
	HomeTeam       string    `db:"home_team" json:"homeTeam"`
	AwayTeamID     int       `db:"away_team_id" json:"awayTeamId"`
	AwayTeam       string    `db:"away_team" json:"awayTeam"`
	Completed      bool      `db:"completed" json:"completed"`
	HomePoints     *int      `db:"home_points" json:"homePoints,omitempty"`
	AwayPoints     *int      `db:"away_points" json:"awayPoints,omitempty"`
	ConferenceGame bool      `db:"conference_game" json:"conferenceGame"`
	LastUpdated    time.Time `db:"last_updated" json:"lastUpdated"`
}

// HasFinalScore returns true if the game is completed and both point totals are known.
// Only such games contribute to team records.
func (g *Game) HasFinalScore() bool {
	return g.Completed && g.HomePoints != nil && g.AwayPoints != nil
}

// Involves returns true if the team plays in the game
func (g *Game) Involves(teamAPIID int) bool {
	return g.HomeTeamID == teamAPIID || g.AwayTeamID == teamAPIID
}

// GameChange describes what an upsert did to the stored game
type GameChange struct {
	// Inserted is true when no game with the api id existed before
	Inserted bool
	// Completed is true when the upsert gave the game a final score it did
	// not have before. An insert of an already final game counts, and so
	// does a completed game whose points arrive later.
	Completed bool
}

// DetectChange compares the stored game (nil when absent) with its replacement
func DetectChange(prev, next *Game) GameChange {
	change := GameChange{Inserted: prev == nil}
	if next.HasFinalScore() && (prev == nil || !prev.HasFinalScore()) {
		change.Completed = true
	}
	return change
}

// GameInput is a game as returned by GET /games
type GameInput struct {
	ID             int    `json:"id"`
	Season         int    `json:"season"`
	Week           int    `json:"week"`
	SeasonType     string `json:"season_type"`
	StartDate      string `json:"start_date"`
	HomeID         *int   `json:"home_id,omitempty"`
	HomeTeam       string `json:"home_team"`
	HomePoints     *int   `json:"home_points,omitempty"`
	AwayID         *int   `json:"away_id,omitempty"`
	AwayTeam       string `json:"away_team"`
	AwayPoints     *int   `json:"away_points,omitempty"`
	Completed      bool   `json:"completed"`
	ConferenceGame *bool  `json:"conference_game,omitempty"`
}

// ToGame converts GameInput (from API) to a Game.
// It returns false when either team id is missing; such games are skipped.
func (gi *GameInput) ToGame() (*Game, bool) {
	if gi.HomeID == nil || gi.AwayID == nil {
		return nil, false
	}

	game := &Game{
		APIID:      gi.ID,
		Season:     gi.Season,
		Week:       gi.Week,
		SeasonType: gi.SeasonType,
		StartDate:  gi.StartDate,
		HomeTeamID: *gi.HomeID,
		HomeTeam:   gi.HomeTeam,
		AwayTeamID: *gi.AwayID,
		AwayTeam:   gi.AwayTeam,
		Completed:  gi.Completed,
		HomePoints: gi.HomePoints,
		AwayPoints: gi.AwayPoints,
	}

	if game.SeasonType == "" {
		game.SeasonType = SeasonTypeRegular
	}
	if gi.ConferenceGame != nil {
		game.ConferenceGame = *gi.ConferenceGame
	}

	return game, true
}
