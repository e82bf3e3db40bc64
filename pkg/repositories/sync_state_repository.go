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

// SyncStateRepository manages incremental watermarks.
type SyncStateRepository interface {
	// Get returns the watermark row for an entity, or nil when none exists.
	Get(ctx context.Context, entityType string) (*models.SyncState, error)
	// RecordFullSync replaces the whole watermark after a full sync.
	RecordFullSync(ctx context.Context, entityType string, lastModified *time.Time, totalRecords int64) error
	// UpdateLastModified advances only the incremental watermark,
	// leaving total_records untouched.
	UpdateLastModified(ctx context.Context, entityType string, lastModified time.Time) error
}

type syncStateRepository struct {
	db *database.DB
}

// NewSyncStateRepository creates a SyncStateRepository.
func NewSyncStateRepository(db *database.DB) SyncStateRepository {
	return &syncStateRepository{db: db}
}

var _ SyncStateRepository = (*syncStateRepository)(nil)

func (r *syncStateRepository) Get(ctx context.Context, entityType string) (*models.SyncState, error) {
	var state models.SyncState
	query := r.db.Rebind(
		`SELECT id, entity_type, last_modified_date, last_full_sync, total_records, updated_at
		 FROM sync_state WHERE entity_type = ?`)
	err := r.db.GetContext(ctx, &state, query, entityType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "get sync state " + entityType, Err: err}
	}
	return &state, nil
}

func (r *syncStateRepository) RecordFullSync(ctx context.Context, entityType string, lastModified *time.Time, totalRecords int64) error {
	query := `INSERT INTO sync_state (entity_type, last_modified_date, last_full_sync, total_records, updated_at)
		VALUES (?, ?, NOW(), ?, NOW())
		ON CONFLICT (entity_type) DO UPDATE SET
			last_modified_date = EXCLUDED.last_modified_date,
			last_full_sync = NOW(),
			total_records = EXCLUDED.total_records,
			updated_at = NOW()`
	if r.db.Dialect == database.DialectMySQL {
		query = `INSERT INTO sync_state (entity_type, last_modified_date, last_full_sync, total_records, updated_at)
			VALUES (?, ?, NOW(), ?, NOW())
			ON DUPLICATE KEY UPDATE
				last_modified_date = VALUES(last_modified_date),
				last_full_sync = NOW(),
				total_records = VALUES(total_records),
				updated_at = NOW()`
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), entityType, lastModified, totalRecords); err != nil {
		return &apperrors.DatabaseError{Op: "record full sync " + entityType, Err: err}
	}
	return nil
}

func (r *syncStateRepository) UpdateLastModified(ctx context.Context, entityType string, lastModified time.Time) error {
	query := `INSERT INTO sync_state (entity_type, last_modified_date, updated_at)
		VALUES (?, ?, NOW())
		ON CONFLICT (entity_type) DO UPDATE SET
			last_modified_date = EXCLUDED.last_modified_date,
			updated_at = NOW()`
	if r.db.Dialect == database.DialectMySQL {
		query = `INSERT INTO sync_state (entity_type, last_modified_date, updated_at)
			VALUES (?, ?, NOW())
			ON DUPLICATE KEY UPDATE
				last_modified_date = VALUES(last_modified_date),
				updated_at = NOW()`
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), entityType, lastModified); err != nil {
		return &apperrors.DatabaseError{Op: "update watermark " + entityType, Err: err}
	}
	return nil
}
