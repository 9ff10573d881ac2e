package models

import (
	"fmt"
	"time"
)

// SyncStatus is the lifecycle state of a sync run
type SyncStatus string

const (
	SyncStarted   SyncStatus = "started"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// SyncTypeFullSeason labels a whole-season sync
const SyncTypeFullSeason = "full_season"

// WeekSyncType returns the sync type label of a single-week sync
func WeekSyncType(week int) string {
	return fmt.Sprintf("games_week_%d", week)
}

// SyncLog is the audit row of one sync run, keyed by (SyncType, Season, Week)
type SyncLog struct {
	ID               int        `db:"id" json:"-"`
	SyncType         string     `db:"sync_type" json:"syncType"`
	Season           int        `db:"season" json:"season"`
	Week             *int       `db:"week" json:"week,omitempty"`
	Status           SyncStatus `db:"status" json:"status"`
	StartTime        time.Time  `db:"start_time" json:"startTime"`
	EndTime          *time.Time `db:"end_time" json:"endTime,omitempty"`
	RecordsProcessed *int       `db:"records_processed" json:"recordsProcessed,omitempty"`
	ErrorMessage     string     `db:"error_message" json:"errorMessage,omitempty"`
}

// Key returns the natural key of the log row as a string
func (l *SyncLog) Key() string {
	if l.Week == nil {
		return fmt.Sprintf("%s/%d", l.SyncType, l.Season)
	}
	return fmt.Sprintf("%s/%d/%d", l.SyncType, l.Season, *l.Week)
}
