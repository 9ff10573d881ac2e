// Package ledger derives team win/loss counters from completed games.
//
// Two strategies share the same arithmetic: ApplyCompletion adds a single
// game's result as it completes, Recompute rebuilds a whole season from the
// stored games. A triggering context must use exactly one of them.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"cfbplayoff/ingestion/internal/metrics"
	"cfbplayoff/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// DefaultMaxWeek is the last week replayed by Recompute
const DefaultMaxWeek = 15

// ErrTiedGame is returned for an equal final score under TieReject
var ErrTiedGame = errors.New("tied game")

// TiePolicy decides what an equal final score does to team records
type TiePolicy int

const (
	// TieNoDecision leaves both teams' records untouched
	TieNoDecision TiePolicy = iota
	// TieReject fails the update with ErrTiedGame
	TieReject
)

// ParseTiePolicy parses "no_decision" or "reject"
func ParseTiePolicy(s string) (TiePolicy, error) {
	switch s {
	case "", "no_decision":
		return TieNoDecision, nil
	case "reject":
		return TieReject, nil
	default:
		return 0, fmt.Errorf("unknown tie policy %q", s)
	}
}

func (p TiePolicy) String() string {
	switch p {
	case TieNoDecision:
		return "no_decision"
	case TieReject:
		return "reject"
	default:
		return fmt.Sprintf("TiePolicy(%d)", int(p))
	}
}

// RecordStore is the persistence the ledger reads games from and writes
// records to
type RecordStore interface {
	ListTeamsBySeason(ctx context.Context, season int) ([]*models.Team, error)
	ListGamesByWeek(ctx context.Context, season, week int) ([]*models.Game, error)
	IncrementRecord(ctx context.Context, apiID, season int, delta models.Record) error
	ReplaceRecords(ctx context.Context, season int, records map[int]models.Record) error
}

// Config tunes the ledger
type Config struct {
	TiePolicy TiePolicy
	// MaxWeek is the last week counted toward a record, by both Recompute
	// and ApplyCompletion
	MaxWeek int
}

// Ledger maintains team records
type Ledger struct {
	store   RecordStore
	policy  TiePolicy
	maxWeek int
}

// New creates a ledger over store
func New(store RecordStore, cfg Config) *Ledger {
	return &Ledger{
		store:   store,
		policy:  cfg.TiePolicy,
		maxWeek: cfg.MaxWeek,
	}
}

// Deltas returns the counter changes one game causes for its home and away
// teams. decided is false when the game changes nothing: it is not final,
// or it is a tie under TieNoDecision.
func Deltas(game *models.Game, policy TiePolicy) (home, away models.Record, decided bool, err error) {
	if !game.HasFinalScore() {
		return home, away, false, nil
	}

	hp, ap := *game.HomePoints, *game.AwayPoints
	if hp == ap {
		if policy == TieReject {
			return home, away, false, fmt.Errorf("%w: api_id=%d score=%d-%d", ErrTiedGame, game.APIID, hp, ap)
		}
		return home, away, false, nil
	}

	win := models.Record{Wins: 1}
	loss := models.Record{Losses: 1}
	if game.ConferenceGame {
		win.ConferenceWins = 1
		loss.ConferenceLosses = 1
	}

	if hp > ap {
		return win, loss, true, nil
	}
	return loss, win, true, nil
}

// Tally computes every team's record for a season from scratch. Teams not
// involved in any final game keep a zero record. A game naming a team
// absent from teams fails with models.ErrTeamNotFound.
func Tally(season int, teams []*models.Team, games []*models.Game, policy TiePolicy) (map[int]models.Record, int, error) {
	records := make(map[int]models.Record, len(teams))
	for _, t := range teams {
		records[t.APIID] = models.Record{}
	}

	counted := 0
	for _, g := range games {
		home, away, decided, err := Deltas(g, policy)
		if err != nil {
			return nil, counted, err
		}
		if !decided {
			continue
		}

		for _, id := range []int{g.HomeTeamID, g.AwayTeamID} {
			if _, ok := records[id]; !ok {
				return nil, counted, fmt.Errorf("%w: api_id=%d season=%d", models.ErrTeamNotFound, id, season)
			}
		}

		records[g.HomeTeamID] = records[g.HomeTeamID].Add(home)
		records[g.AwayTeamID] = records[g.AwayTeamID].Add(away)
		counted++
	}

	return records, counted, nil
}

// ApplyCompletion applies one game's result to both teams. It returns
// false when the game changed no record.
func (l *Ledger) ApplyCompletion(ctx context.Context, game *models.Game) (bool, error) {
	if game.Week > l.maxWeek {
		return false, nil
	}

	home, away, decided, err := Deltas(game, l.policy)
	if err != nil || !decided {
		return false, err
	}

	if err := l.store.IncrementRecord(ctx, game.HomeTeamID, game.Season, home); err != nil {
		return false, fmt.Errorf("failed to update home team record: %w", err)
	}
	if err := l.store.IncrementRecord(ctx, game.AwayTeamID, game.Season, away); err != nil {
		return false, fmt.Errorf("failed to update away team record: %w", err)
	}

	metrics.RecordDelta()
	log.Debug().
		Int("api_id", game.APIID).
		Int("season", game.Season).
		Int("home_id", game.HomeTeamID).
		Int("away_id", game.AwayTeamID).
		Msg("Applied game result to team records")

	return true, nil
}

// RecomputeResult summarizes a recompute
type RecomputeResult struct {
	Teams int
	Games int
}

// Recompute zeroes every record of the season and replays each final game
// of weeks 0 through MaxWeek. Running it twice gives the same records.
func (l *Ledger) Recompute(ctx context.Context, season int) (RecomputeResult, error) {
	teams, err := l.store.ListTeamsBySeason(ctx, season)
	if err != nil {
		return RecomputeResult{}, fmt.Errorf("failed to list teams: %w", err)
	}

	var games []*models.Game
	for week := 0; week <= l.maxWeek; week++ {
		weekGames, err := l.store.ListGamesByWeek(ctx, season, week)
		if err != nil {
			return RecomputeResult{}, fmt.Errorf("failed to list games for week %d: %w", week, err)
		}
		games = append(games, weekGames...)
	}

	records, counted, err := Tally(season, teams, games, l.policy)
	if err != nil {
		return RecomputeResult{}, err
	}

	if err := l.store.ReplaceRecords(ctx, season, records); err != nil {
		return RecomputeResult{}, fmt.Errorf("failed to save team records: %w", err)
	}

	log.Info().
		Int("season", season).
		Int("teams", len(teams)).
		Int("games", counted).
		Msg("Team records recalculated")

	return RecomputeResult{Teams: len(teams), Games: counted}, nil
}
