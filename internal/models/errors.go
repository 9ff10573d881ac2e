package models

import "errors"

var (
	ErrTeamNotFound = errors.New("team not found")
	ErrGameNotFound = errors.New("game not found")
)
