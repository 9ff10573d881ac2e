package syncer

import (
	"context"
	"fmt"

	"cfbplayoff/ingestion/internal/metrics"
	"cfbplayoff/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// run tracks the sync log row of one pipeline invocation
type run struct {
	entry *models.SyncLog
}

func (o *Orchestrator) begin(ctx context.Context, syncType string, season int, week *int) (*run, error) {
	entry := &models.SyncLog{
		SyncType:  syncType,
		Season:    season,
		Week:      week,
		Status:    models.SyncStarted,
		StartTime: o.clock.Now().UTC(),
	}
	if err := o.store.StartSyncLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to start sync log: %w", err)
	}
	return &run{entry: entry}, nil
}

func (o *Orchestrator) finish(ctx context.Context, r *run, status models.SyncStatus, processed int, cause error) {
	end := o.clock.Now().UTC()
	r.entry.Status = status
	r.entry.EndTime = &end
	r.entry.RecordsProcessed = &processed
	if cause != nil {
		r.entry.ErrorMessage = cause.Error()
	}

	if err := o.store.FinishSyncLog(ctx, r.entry); err != nil {
		log.Error().Err(err).Str("sync_type", r.entry.SyncType).Msg("Failed to finish sync log")
	}
}

func (o *Orchestrator) complete(ctx context.Context, r *run, processed int) {
	o.finish(ctx, r, models.SyncCompleted, processed, nil)
	duration := r.entry.EndTime.Sub(r.entry.StartTime)
	metrics.RecordSync(r.entry.SyncType, "success", duration.Seconds())
	o.invalidate(ctx, r.entry.Season)

	log.Info().
		Str("sync_type", r.entry.SyncType).
		Int("season", r.entry.Season).
		Int("count", processed).
		Dur("duration", duration).
		Msg("Sync completed")
}

func (o *Orchestrator) fail(ctx context.Context, r *run, processed int, cause error) {
	o.finish(ctx, r, models.SyncFailed, processed, cause)
	duration := r.entry.EndTime.Sub(r.entry.StartTime)
	metrics.RecordSync(r.entry.SyncType, "failure", duration.Seconds())
	metrics.RecordError("syncer", r.entry.SyncType)

	log.Error().
		Err(cause).
		Str("sync_type", r.entry.SyncType).
		Int("season", r.entry.Season).
		Int("count", processed).
		Msg("Sync failed")
}
