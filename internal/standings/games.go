package standings

import (
	"sort"

	"cfbplayoff/ingestion/internal/models"
)

// SortGamesByWeek orders games by start date, then home team name under
// the same collation as school names. Start dates are ISO-8601 strings and
// compare lexicographically.
func SortGamesByWeek(games []*models.Game) []*models.Game {
	out := make([]*models.Game, len(games))
	copy(out, games)
	names := newNameLess()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartDate != out[j].StartDate {
			return out[i].StartDate < out[j].StartDate
		}
		return names.compare(out[i].HomeTeam, out[j].HomeTeam) < 0
	})
	return out
}

// Upcoming returns the games not yet completed in start date order,
// at most limit of them when limit is positive
func Upcoming(games []*models.Game, limit int) []*models.Game {
	out := []*models.Game{}
	for _, g := range games {
		if !g.Completed {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartDate < out[j].StartDate
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ConferenceGames keeps games flagged as conference games whose two teams
// both belong to conference
func ConferenceGames(teams []*models.Team, games []*models.Game, conference string) []*models.Game {
	members := make(map[int]struct{})
	for _, t := range teams {
		if t.Conference == conference {
			members[t.APIID] = struct{}{}
		}
	}

	out := []*models.Game{}
	for _, g := range games {
		if !g.ConferenceGame {
			continue
		}
		_, home := members[g.HomeTeamID]
		_, away := members[g.AwayTeamID]
		if home && away {
			out = append(out, g)
		}
	}
	return out
}

// TeamSchedule returns a team's home and away games ordered by week
func TeamSchedule(games []*models.Game, teamAPIID int) []*models.Game {
	out := []*models.Game{}
	for _, g := range games {
		if g.Involves(teamAPIID) {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Week != out[j].Week {
			return out[i].Week < out[j].Week
		}
		return out[i].StartDate < out[j].StartDate
	})
	return out
}

// CurrentWeek returns the week of the earliest game not yet completed
func CurrentWeek(games []*models.Game) (int, bool) {
	next := Upcoming(games, 1)
	if len(next) == 0 {
		return 0, false
	}
	return next[0].Week, true
}
