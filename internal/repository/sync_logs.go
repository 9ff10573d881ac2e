package repository

import (
	"context"
	"errors"
	"fmt"

	"cfbplayoff/ingestion/internal/models"

	"github.com/jackc/pgx/v5"
)

// SyncLogRepository handles sync audit rows
type SyncLogRepository struct {
	db *Database
}

const syncLogColumns = `id, sync_type, season, week, status, start_time, end_time, records_processed, error_message`

// StartSyncLog creates the row for the log's key or resets an existing one
func (r *SyncLogRepository) StartSyncLog(ctx context.Context, entry *models.SyncLog) error {
	query := `
		INSERT INTO sync_log (sync_type, season, week, status, start_time)
		VALUES ($1, $2, $3, 'started', $4)
		ON CONFLICT (sync_type, season, (COALESCE(week, -1))) DO UPDATE SET
			status = 'started',
			start_time = EXCLUDED.start_time,
			end_time = NULL,
			records_processed = NULL,
			error_message = ''
		RETURNING id
	`

	entry.Status = models.SyncStarted
	entry.EndTime = nil
	entry.RecordsProcessed = nil
	entry.ErrorMessage = ""

	if err := r.db.Pool.QueryRow(ctx, query, entry.SyncType, entry.Season, entry.Week, entry.StartTime).Scan(&entry.ID); err != nil {
		return fmt.Errorf("failed to start sync log: %w", err)
	}
	return nil
}

// FinishSyncLog patches the terminal status onto the row, inserting it if
// the start was never recorded
func (r *SyncLogRepository) FinishSyncLog(ctx context.Context, entry *models.SyncLog) error {
	query := `
		INSERT INTO sync_log (sync_type, season, week, status, start_time, end_time, records_processed, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sync_type, season, (COALESCE(week, -1))) DO UPDATE SET
			status = EXCLUDED.status,
			end_time = EXCLUDED.end_time,
			records_processed = EXCLUDED.records_processed,
			error_message = EXCLUDED.error_message
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		entry.SyncType, entry.Season, entry.Week, string(entry.Status), entry.StartTime,
		entry.EndTime, entry.RecordsProcessed, entry.ErrorMessage,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to finish sync log: %w", err)
	}
	return nil
}

func scanSyncLog(row pgx.Row) (*models.SyncLog, error) {
	var entry models.SyncLog
	var status string
	err := row.Scan(
		&entry.ID, &entry.SyncType, &entry.Season, &entry.Week, &status,
		&entry.StartTime, &entry.EndTime, &entry.RecordsProcessed, &entry.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	entry.Status = models.SyncStatus(status)
	return &entry, nil
}

// GetSyncLog retrieves the row for a key
func (r *SyncLogRepository) GetSyncLog(ctx context.Context, syncType string, season int, week *int) (*models.SyncLog, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_log
		WHERE sync_type = $1 AND season = $2 AND COALESCE(week, -1) = COALESCE($3::int, -1)`

	entry, err := scanSyncLog(r.db.Pool.QueryRow(ctx, query, syncType, season, week))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("sync log not found: type=%s season=%d", syncType, season)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync log: %w", err)
	}
	return entry, nil
}

// ListSyncLogs retrieves the most recent runs of a season
func (r *SyncLogRepository) ListSyncLogs(ctx context.Context, season, limit int) ([]*models.SyncLog, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_log
		WHERE season = $1
		ORDER BY start_time DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, season, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.SyncLog
	for rows.Next() {
		entry, err := scanSyncLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}
	return entries, nil
}
