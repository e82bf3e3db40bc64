// Package models holds the persistent sync bookkeeping types.
package models

import "time"

// Sync run kinds as recorded in sync_logs.
const (
	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"
	SyncTypeWebhook     = "webhook"
	SyncTypeReference   = "reference"
)

// Sync run lifecycle states.
const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// SyncConfig is the per-entity sync policy row.
type SyncConfig struct {
	ID                  int64      `db:"id" json:"id"`
	EntityType          string     `db:"entity_type" json:"entity_type"`
	SyncEnabled         bool       `db:"sync_enabled" json:"sync_enabled"`
	SyncIntervalMinutes int        `db:"sync_interval_minutes" json:"sync_interval_minutes"`
	LastSyncDate        *time.Time `db:"last_sync_date" json:"last_sync_date,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// SyncState is the incremental watermark row for an entity.
type SyncState struct {
	ID               int64      `db:"id" json:"id"`
	EntityType       string     `db:"entity_type" json:"entity_type"`
	LastModifiedDate *time.Time `db:"last_modified_date" json:"last_modified_date,omitempty"`
	LastFullSync     *time.Time `db:"last_full_sync" json:"last_full_sync,omitempty"`
	TotalRecords     int64      `db:"total_records" json:"total_records"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// SyncLog is one sync run, open or finished.
type SyncLog struct {
	ID               int64      `db:"id" json:"id"`
	EntityType       string     `db:"entity_type" json:"entity_type"`
	SyncType         string     `db:"sync_type" json:"sync_type"`
	Status           string     `db:"status" json:"status"`
	RecordsFetched   int64      `db:"records_fetched" json:"records_fetched"`
	RecordsProcessed int64      `db:"records_processed" json:"records_processed"`
	ErrorMessage     *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt        time.Time  `db:"started_at" json:"started_at"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	DurationSeconds  *float64   `db:"duration_seconds" json:"duration_seconds,omitempty"`
}
