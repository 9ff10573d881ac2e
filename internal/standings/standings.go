// Package standings orders and filters teams and games for display.
// Every function is pure and returns a new slice.
package standings

import (
	"sort"

	"cfbplayoff/ingestion/internal/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// nameLess orders school names case-insensitively under English
// collation, falling back to the raw bytes and then the api id so the
// order is total.
type nameLess struct {
	c *collate.Collator
}

func newNameLess() nameLess {
	return nameLess{c: collate.New(language.English, collate.IgnoreCase)}
}

// compare orders two names by collation, then by raw bytes
func (n nameLess) compare(a, b string) int {
	if cmp := n.c.CompareString(a, b); cmp != 0 {
		return cmp
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (n nameLess) less(a, b *models.Team) bool {
	if cmp := n.compare(a.School, b.School); cmp != 0 {
		return cmp < 0
	}
	return a.APIID < b.APIID
}

// SortStandings orders teams by conference wins desc, conference losses
// asc, overall wins desc, overall losses asc, then school name.
func SortStandings(teams []*models.Team) []*models.Team {
	out := make([]*models.Team, len(teams))
	copy(out, teams)
	names := newNameLess()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ConferenceWins != b.ConferenceWins {
			return a.ConferenceWins > b.ConferenceWins
		}
		if a.ConferenceLosses != b.ConferenceLosses {
			return a.ConferenceLosses < b.ConferenceLosses
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.Losses != b.Losses {
			return a.Losses < b.Losses
		}
		return names.less(a, b)
	})

	return out
}

// WinPercentage is wins over games decided, 0 for a team with none
func WinPercentage(t *models.Team) float64 {
	played := t.Wins + t.Losses
	if played == 0 {
		played = 1
	}
	return float64(t.Wins) / float64(played)
}

// SortStandingsByWinPct orders teams by conference wins desc, conference
// losses asc, overall win percentage desc, then school name.
func SortStandingsByWinPct(teams []*models.Team) []*models.Team {
	out := make([]*models.Team, len(teams))
	copy(out, teams)
	names := newNameLess()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ConferenceWins != b.ConferenceWins {
			return a.ConferenceWins > b.ConferenceWins
		}
		if a.ConferenceLosses != b.ConferenceLosses {
			return a.ConferenceLosses < b.ConferenceLosses
		}
		if pa, pb := WinPercentage(a), WinPercentage(b); pa != pb {
			return pa > pb
		}
		return names.less(a, b)
	})

	return out
}

// ActiveConferences returns the distinct non-empty conference names of
// teams, sorted
func ActiveConferences(teams []*models.Team) []string {
	seen := make(map[string]struct{})
	names := []string{}
	for _, t := range teams {
		if t.Conference == "" {
			continue
		}
		if _, ok := seen[t.Conference]; ok {
			continue
		}
		seen[t.Conference] = struct{}{}
		names = append(names, t.Conference)
	}
	sort.Strings(names)
	return names
}
