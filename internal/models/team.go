package models

import (
	"time"
)

const (
	// DefaultConference is assigned to teams the API reports without one
	DefaultConference = "Independent"

	DivisionFBS = "fbs"
	DivisionFCS = "fcs"
)

// Team represents one school's record for one season
type Team struct {
	ID               int       `db:"id" json:"-"`
	APIID            int       `db:"api_id" json:"apiId"`
	Season           int       `db:"season" json:"season"`
	School           string    `db:"school" json:"school"`
	Conference       string    `db:"conference" json:"conference"`
	Division         string    `db:"division" json:"division"`
	Wins             int       `db:"wins" json:"wins"`
	Losses           int       `db:"losses" json:"losses"`
	ConferenceWins   int       `db:"conference_wins" json:"conferenceWins"`
	ConferenceLosses int       `db:"conference_losses" json:"conferenceLosses"`
	LastUpdated      time.Time `db:"last_updated" json:"lastUpdated"`
}

// Record is the set of win/loss counters the ledger maintains on a team
type Record struct {
	Wins             int `json:"wins"`
	Losses           int `json:"losses"`
	ConferenceWins   int `json:"conferenceWins"`
	ConferenceLosses int `json:"conferenceLosses"`
}

// Add returns the element-wise sum of two records
func (r Record) Add(o Record) Record {
	return Record{
		Wins:             r.Wins + o.Wins,
		Losses:           r.Losses + o.Losses,
		ConferenceWins:   r.ConferenceWins + o.ConferenceWins,
		ConferenceLosses: r.ConferenceLosses + o.ConferenceLosses,
	}
}

// IsZero reports whether every counter is zero
func (r Record) IsZero() bool {
	return r == Record{}
}

// Record returns the team's current counters
func (t *Team) Record() Record {
	return Record{
		Wins:             t.Wins,
		Losses:           t.Losses,
		ConferenceWins:   t.ConferenceWins,
		ConferenceLosses: t.ConferenceLosses,
	}
}

// SetRecord overwrites the team's counters
func (t *Team) SetRecord(r Record) {
	t.Wins = r.Wins
	t.Losses = r.Losses
	t.ConferenceWins = r.ConferenceWins
	t.ConferenceLosses = r.ConferenceLosses
}

// TeamInput is a team as returned by GET /teams/fbs
type TeamInput struct {
	ID           int     `json:"id"`
	School       string  `json:"school"`
	Mascot       string  `json:"mascot,omitempty"`
	Abbreviation string  `json:"abbreviation,omitempty"`
	Conference   *string `json:"conference,omitempty"`
	Division     string  `json:"division,omitempty"`
}

// ToTeam converts TeamInput (from API) to a Team with a zeroed record.
// Every sync is a full reset of the counters; the ledger rebuilds them.
func (ti *TeamInput) ToTeam(season int) *Team {
	team := &Team{
		APIID:      ti.ID,
		Season:     season,
		School:     ti.School,
		Conference: DefaultConference,
		Division:   DivisionFBS,
	}

	if ti.Conference != nil && *ti.Conference != "" {
		team.Conference = *ti.Conference
	}

	return team
}
