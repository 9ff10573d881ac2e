package repository

import (
	"context"
	"fmt"

	"cfbplayoff/ingestion/internal/models"
)

// ConferenceRepository handles conference database operations
type ConferenceRepository struct {
	db *Database
}

// UpsertConference inserts a conference or refreshes it. A blank
// abbreviation never erases a known one.
func (r *ConferenceRepository) UpsertConference(ctx context.Context, conf *models.Conference) error {
	query := `
		INSERT INTO conferences (name, season, abbreviation)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, season) DO UPDATE SET
			abbreviation = COALESCE(NULLIF(EXCLUDED.abbreviation, ''), conferences.abbreviation),
			last_updated = NOW()
		RETURNING id, abbreviation, last_updated
	`

	err := r.db.Pool.QueryRow(ctx, query, conf.Name, conf.Season, conf.Abbreviation).
		Scan(&conf.ID, &conf.Abbreviation, &conf.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert conference: %w", err)
	}

	return nil
}

// ListConferences retrieves the conferences of a season sorted by name
func (r *ConferenceRepository) ListConferences(ctx context.Context, season int) ([]*models.Conference, error) {
	query := `
		SELECT id, name, season, abbreviation, last_updated
		FROM conferences
		WHERE season = $1
		ORDER BY name
	`

	rows, err := r.db.Pool.Query(ctx, query, season)
	if err != nil {
		return nil, fmt.Errorf("failed to list conferences: %w", err)
	}
	defer rows.Close()

	var conferences []*models.Conference
	for rows.Next() {
		var conf models.Conference
		if err := rows.Scan(&conf.ID, &conf.Name, &conf.Season, &conf.Abbreviation, &conf.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan conference: %w", err)
		}
		conferences = append(conferences, &conf)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conferences: %w", err)
	}

	return conferences, nil
}
