package models

import (
	"fmt"
	"time"
)

// Side names one of the two teams in a game
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// ParseSide parses "home" or "away"
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideHome, SideAway:
		return Side(s), nil
	default:
		return "", fmt.Errorf("invalid side %q: want home or away", s)
	}
}

// Prediction is a user's pick for one game. It lives only in the local cache.
type Prediction struct {
	GameID          int       `json:"gameId"`
	PredictedWinner Side      `json:"predictedWinner"`
	HomeScore       *int      `json:"homeScore,omitempty"`
	AwayScore       *int      `json:"awayScore,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
