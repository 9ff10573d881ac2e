package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cfbplayoff/ingestion/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const gameColumns = `id, api_id, season, week, season_type, start_date,
	home_team_id, home_team, away_team_id, away_team,
	completed, home_points, away_points, conference_game, last_updated`

// GameRepository handles game database operations
type GameRepository struct {
	db *Database
}

func scanGame(row pgx.Row) (*models.Game, error) {
	var game models.Game
	err := row.Scan(
		&game.ID, &game.APIID, &game.Season, &game.Week, &game.SeasonType, &game.StartDate,
		&game.HomeTeamID, &game.HomeTeam, &game.AwayTeamID, &game.AwayTeam,
		&game.Completed, &game.HomePoints, &game.AwayPoints, &game.ConferenceGame,
		&game.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (r *GameRepository) list(ctx context.Context, operation, query string, args ...interface{}) ([]*models.Game, error) {
	start := time.Now()

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		observe(operation, "games", start, err)
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			observe(operation, "games", start, err)
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, game)
	}

	err = rows.Err()
	observe(operation, "games", start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}

	return games, nil
}

// gameLockSpace namespaces the advisory locks taken on game api ids
const gameLockSpace = 1001

// UpsertGame inserts or overwrites a game and reports whether the write
// gave it a final score. Writers of the same api id are serialized by an
// advisory lock, so exactly one of them sees the transition.
func (r *GameRepository) UpsertGame(ctx context.Context, game *models.Game) (change models.GameChange, err error) {
	start := time.Now()
	defer func() { observe("upsert", "games", start, err) }()

	err = r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, gameLockSpace, game.APIID); err != nil {
			return fmt.Errorf("failed to lock game %d: %w", game.APIID, err)
		}

		var prev *models.Game
		stored := models.Game{APIID: game.APIID}
		err := tx.QueryRow(ctx,
			`SELECT completed, home_points, away_points FROM games WHERE api_id = $1 FOR UPDATE`,
			game.APIID,
		).Scan(&stored.Completed, &stored.HomePoints, &stored.AwayPoints)
		switch {
		case err == nil:
			prev = &stored
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("failed to read game %d: %w", game.APIID, err)
		}

		query := `
			INSERT INTO games (
				api_id, season, week, season_type, start_date,
				home_team_id, home_team, away_team_id, away_team,
				completed, home_points, away_points, conference_game
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (api_id) DO UPDATE SET
				season = EXCLUDED.season,
				week = EXCLUDED.week,
				season_type = EXCLUDED.season_type,
				start_date = EXCLUDED.start_date,
				home_team_id = EXCLUDED.home_team_id,
				home_team = EXCLUDED.home_team,
				away_team_id = EXCLUDED.away_team_id,
				away_team = EXCLUDED.away_team,
				completed = EXCLUDED.completed,
				home_points = EXCLUDED.home_points,
				away_points = EXCLUDED.away_points,
				conference_game = EXCLUDED.conference_game,
				last_updated = NOW()
			RETURNING id, last_updated
		`
		if err := tx.QueryRow(
			ctx, query,
			game.APIID, game.Season, game.Week, game.SeasonType, game.StartDate,
			game.HomeTeamID, game.HomeTeam, game.AwayTeamID, game.AwayTeam,
			game.Completed, game.HomePoints, game.AwayPoints, game.ConferenceGame,
		).Scan(&game.ID, &game.LastUpdated); err != nil {
			return fmt.Errorf("failed to upsert game: %w", err)
		}

		change = models.DetectChange(prev, game)
		return nil
	})
	if err != nil {
		return models.GameChange{}, err
	}

	if change.Completed {
		log.Debug().
			Int("api_id", game.APIID).
			Str("home", game.HomeTeam).
			Str("away", game.AwayTeam).
			Msg("Game completed")
	}

	return change, nil
}

// GetGame retrieves a game by its API id
func (r *GameRepository) GetGame(ctx context.Context, apiID int) (*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE api_id = $1`

	game, err := scanGame(r.db.Pool.QueryRow(ctx, query, apiID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: api_id=%d", models.ErrGameNotFound, apiID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return game, nil
}

// ListGamesByWeek retrieves the games of one week
func (r *GameRepository) ListGamesByWeek(ctx context.Context, season, week int) ([]*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games
		WHERE season = $1 AND week = $2
		ORDER BY start_date, home_team`
	return r.list(ctx, "list_by_week", query, season, week)
}

// ListGamesBySeason retrieves every game of a season
func (r *GameRepository) ListGamesBySeason(ctx context.Context, season int) ([]*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games
		WHERE season = $1
		ORDER BY week, start_date`
	return r.list(ctx, "list_by_season", query, season)
}

// ListIncompleteGames retrieves games not yet completed
func (r *GameRepository) ListIncompleteGames(ctx context.Context, season int) ([]*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games
		WHERE season = $1 AND completed = FALSE
		ORDER BY start_date`
	return r.list(ctx, "list_incomplete", query, season)
}

// ListGamesByTeam retrieves a team's home and away games
func (r *GameRepository) ListGamesByTeam(ctx context.Context, apiID, season int) ([]*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games
		WHERE season = $2 AND (home_team_id = $1 OR away_team_id = $1)
		ORDER BY week, start_date`
	return r.list(ctx, "list_by_team", query, apiID, season)
}

// CountGames returns the number of games in a season
func (r *GameRepository) CountGames(ctx context.Context, season int) (int, error) {
	query := `SELECT COUNT(*) FROM games WHERE season = $1`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, season).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count games: %w", err)
	}

	return count, nil
}
