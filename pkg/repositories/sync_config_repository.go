package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/brightpulse/bitrix-warehouse/pkg/apperrors"
	"github.com/brightpulse/bitrix-warehouse/pkg/database"
	"github.com/brightpulse/bitrix-warehouse/pkg/models"
)

// SyncConfigRepository manages per-entity sync policy rows.
type SyncConfigRepository interface {
	// List returns all policies ordered by entity type.
	List(ctx context.Context) ([]models.SyncConfig, error)
	// Get returns the policy for an entity, or nil when none exists.
	Get(ctx context.Context, entityType string) (*models.SyncConfig, error)
	// Upsert creates or replaces the policy for an entity.
	Upsert(ctx context.Context, entityType string, enabled bool, intervalMinutes int) error
	// UpdateLastSync stamps the policy row after a successful run.
	UpdateLastSync(ctx context.Context, entityType string, at time.Time) error
}

type syncConfigRepository struct {
	db *database.DB
}

// NewSyncConfigRepository creates a SyncConfigRepository.
func NewSyncConfigRepository(db *database.DB) SyncConfigRepository {
	return &syncConfigRepository{db: db}
}

var _ SyncConfigRepository = (*syncConfigRepository)(nil)

func (r *syncConfigRepository) List(ctx context.Context) ([]models.SyncConfig, error) {
	var configs []models.SyncConfig
	err := r.db.SelectContext(ctx, &configs,
		`SELECT id, entity_type, sync_enabled, sync_interval_minutes, last_sync_date, created_at, updated_at
		 FROM sync_config ORDER BY entity_type`)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "list sync config", Err: err}
	}
	return configs, nil
}

func (r *syncConfigRepository) Get(ctx context.Context, entityType string) (*models.SyncConfig, error) {
	var config models.SyncConfig
	query := r.db.Rebind(
		`SELECT id, entity_type, sync_enabled, sync_interval_minutes, last_sync_date, created_at, updated_at
		 FROM sync_config WHERE entity_type = ?`)
	err := r.db.GetContext(ctx, &config, query, entityType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "get sync config " + entityType, Err: err}
	}
	return &config, nil
}

func (r *syncConfigRepository) Upsert(ctx context.Context, entityType string, enabled bool, intervalMinutes int) error {
	query := `INSERT INTO sync_config (entity_type, sync_enabled, sync_interval_minutes)
		VALUES (?, ?, ?)
		ON CONFLICT (entity_type) DO UPDATE SET
			sync_enabled = EXCLUDED.sync_enabled,
			sync_interval_minutes = EXCLUDED.sync_interval_minutes,
			updated_at = NOW()`
	if r.db.Dialect == database.DialectMySQL {
		query = `INSERT INTO sync_config (entity_type, sync_enabled, sync_interval_minutes)
			VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE
				sync_enabled = VALUES(sync_enabled),
				sync_interval_minutes = VALUES(sync_interval_minutes),
				updated_at = NOW()`
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), entityType, enabled, intervalMinutes); err != nil {
		return &apperrors.DatabaseError{Op: "upsert sync config " + entityType, Err: err}
	}
	return nil
}

func (r *syncConfigRepository) UpdateLastSync(ctx context.Context, entityType string, at time.Time) error {
	query := r.db.Rebind(
		`UPDATE sync_config SET last_sync_date = ?, updated_at = NOW() WHERE entity_type = ?`)
	if _, err := r.db.ExecContext(ctx, query, at, entityType); err != nil {
		return &apperrors.DatabaseError{Op: "update last sync " + entityType, Err: err}
	}
	return nil
}
