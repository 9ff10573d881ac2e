package models

import "time"

// Conference is a named conference for one season
type Conference struct {
	ID           int       `db:"id" json:"-"`
	Name         string    `db:"name" json:"name"`
	Season       int       `db:"season" json:"season"`
	Abbreviation string    `db:"abbreviation" json:"abbreviation,omitempty"`
	LastUpdated  time.Time `db:"last_updated" json:"lastUpdated"`
}

// ConferenceInput is a conference as returned by GET /conferences
type ConferenceInput struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Abbreviation   string `json:"abbreviation,omitempty"`
	Classification string `json:"classification,omitempty"`
}
