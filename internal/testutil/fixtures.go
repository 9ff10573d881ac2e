package testutil

import (
	"fmt"

	"cfbplayoff/ingestion/internal/models"
)

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// TeamInput builds an upstream team. An empty conference is sent as absent.
func TeamInput(id int, school, conference string) models.TeamInput {
	in := models.TeamInput{ID: id, School: school}
	if conference != "" {
		in.Conference = &conference
	}
	return in
}

// ScheduledGame builds an upstream game that has not been played.
func ScheduledGame(id, week, homeID, awayID int, conferenceGame bool) models.GameInput {
	return models.GameInput{
		ID:             id,
		Season:         2024,
		Week:           week,
		SeasonType:     models.SeasonTypeRegular,
		StartDate:      fmt.Sprintf("2024-09-%02dT19:30:00.000Z", week+1),
		HomeID:         IntPtr(homeID),
		HomeTeam:       fmt.Sprintf("Team %d", homeID),
		AwayID:         IntPtr(awayID),
		AwayTeam:       fmt.Sprintf("Team %d", awayID),
		ConferenceGame: &conferenceGame,
	}
}

// FinalGame builds an upstream completed game with a final score.
func FinalGame(id, week, homeID, homePoints, awayID, awayPoints int, conferenceGame bool) models.GameInput {
	g := ScheduledGame(id, week, homeID, awayID, conferenceGame)
	g.Completed = true
	g.HomePoints = IntPtr(homePoints)
	g.AwayPoints = IntPtr(awayPoints)
	return g
}

// Game converts an upstream game fixture to the stored model.
func Game(in models.GameInput) *models.Game {
	g, ok := in.ToGame()
	if !ok {
		panic(fmt.Sprintf("fixture game %d has no team ids", in.ID))
	}
	return g
}

// Team builds a stored team with a zero record.
func Team(apiID int, school, conference string) *models.Team {
	return TeamInputToTeam(TeamInput(apiID, school, conference))
}

// TeamInputToTeam converts an upstream team fixture for season 2024.
func TeamInputToTeam(in models.TeamInput) *models.Team {
	return in.ToTeam(2024)
}
