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

const teamColumns = `id, api_id, season, school, conference, division,
	wins, losses, conference_wins, conference_losses, last_updated`

// TeamRepository handles team database operations
type TeamRepository struct {
	db *Database
}

func scanTeam(row pgx.Row) (*models.Team, error) {
	var team models.Team
	err := row.Scan(
		&team.ID, &team.APIID, &team.Season, &team.School,
		&team.Conference, &team.Division,
		&team.Wins, &team.Losses, &team.ConferenceWins, &team.ConferenceLosses,
		&team.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func collectTeams(rows pgx.Rows) ([]*models.Team, error) {
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, team)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teams: %w", err)
	}

	return teams, nil
}

// UpsertTeam inserts or fully overwrites a team, counters included
func (r *TeamRepository) UpsertTeam(ctx context.Context, team *models.Team) (err error) {
	start := time.Now()
	defer func() { observe("upsert", "teams", start, err) }()

	query := `
		INSERT INTO teams (
			api_id, season, school, conference, division,
			wins, losses, conference_wins, conference_losses
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (api_id, season) DO UPDATE SET
			school = EXCLUDED.school,
			conference = EXCLUDED.conference,
			division = EXCLUDED.division,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			conference_wins = EXCLUDED.conference_wins,
			conference_losses = EXCLUDED.conference_losses,
			last_updated = NOW()
		RETURNING id, last_updated
	`

	err = r.db.Pool.QueryRow(
		ctx, query,
		team.APIID, team.Season, team.School, team.Conference, team.Division,
		team.Wins, team.Losses, team.ConferenceWins, team.ConferenceLosses,
	).Scan(&team.ID, &team.LastUpdated)

	if err != nil {
		return fmt.Errorf("failed to upsert team: %w", err)
	}

	return nil
}

// GetTeam retrieves a team by its API id and season
func (r *TeamRepository) GetTeam(ctx context.Context, apiID, season int) (*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE api_id = $1 AND season = $2`

	team, err := scanTeam(r.db.Pool.QueryRow(ctx, query, apiID, season))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: api_id=%d season=%d", models.ErrTeamNotFound, apiID, season)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	return team, nil
}

// ListTeamsBySeason retrieves all teams of a season
func (r *TeamRepository) ListTeamsBySeason(ctx context.Context, season int) ([]*models.Team, error) {
	start := time.Now()
	query := `SELECT ` + teamColumns + ` FROM teams WHERE season = $1 ORDER BY school`

	rows, err := r.db.Pool.Query(ctx, query, season)
	if err != nil {
		observe("list", "teams", start, err)
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	teams, err := collectTeams(rows)
	observe("list", "teams", start, err)
	return teams, err
}

// ListTeamsByConference retrieves the teams of one conference in a season
func (r *TeamRepository) ListTeamsByConference(ctx context.Context, conference string, season int) ([]*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE conference = $1 AND season = $2 ORDER BY school`

	rows, err := r.db.Pool.Query(ctx, query, conference, season)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams by conference: %w", err)
	}

	return collectTeams(rows)
}

// IncrementRecord adds delta to a team's counters in a single statement
func (r *TeamRepository) IncrementRecord(ctx context.Context, apiID, season int, delta models.Record) (err error) {
	start := time.Now()
	defer func() { observe("increment", "teams", start, err) }()

	query := `
		UPDATE teams SET
			wins = wins + $3,
			losses = losses + $4,
			conference_wins = conference_wins + $5,
			conference_losses = conference_losses + $6,
			last_updated = NOW()
		WHERE api_id = $1 AND season = $2
	`

	result, err := r.db.Pool.Exec(ctx, query,
		apiID, season,
		delta.Wins, delta.Losses, delta.ConferenceWins, delta.ConferenceLosses,
	)
	if err != nil {
		return fmt.Errorf("failed to update team record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: api_id=%d season=%d", models.ErrTeamNotFound, apiID, season)
	}

	return nil
}

// ReplaceRecords zeroes every team of the season and writes the given
// counters, all in one transaction
func (r *TeamRepository) ReplaceRecords(ctx context.Context, season int, records map[int]models.Record) (err error) {
	start := time.Now()
	defer func() { observe("replace_records", "teams", start, err) }()

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		reset := `
			UPDATE teams SET
				wins = 0, losses = 0, conference_wins = 0, conference_losses = 0,
				last_updated = NOW()
			WHERE season = $1
		`
		if _, err := tx.Exec(ctx, reset, season); err != nil {
			return fmt.Errorf("failed to reset team records: %w", err)
		}

		batch := &pgx.Batch{}
		for apiID, rec := range records {
			if rec.IsZero() {
				continue
			}
			batch.Queue(`
				UPDATE teams SET
					wins = $3, losses = $4, conference_wins = $5, conference_losses = $6
				WHERE api_id = $1 AND season = $2
			`, apiID, season, rec.Wins, rec.Losses, rec.ConferenceWins, rec.ConferenceLosses)
		}
		if batch.Len() == 0 {
			return nil
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("failed to write team record: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to write team records: %w", err)
		}

		log.Debug().
			Int("season", season).
			Int("teams", batch.Len()).
			Msg("Team records replaced")
		return nil
	})
}

// CountTeams returns the number of teams in a season
func (r *TeamRepository) CountTeams(ctx context.Context, season int) (int, error) {
	query := `SELECT COUNT(*) FROM teams WHERE season = $1`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, season).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count teams: %w", err)
	}

	return count, nil
}
