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

// LogFilter narrows sync log queries. Zero values mean no filtering;
// Limit defaults to 50.
type LogFilter struct {
	EntityType string
	Status     string
	Limit      int
	Offset     int
}

// EntityStats is a per-entity aggregate over the run log.
type EntityStats struct {
	EntityType       string     `db:"entity_type" json:"entity_type"`
	TotalRuns        int64      `db:"total_runs" json:"total_runs"`
	FailedRuns       int64      `db:"failed_runs" json:"failed_runs"`
	RecordsProcessed int64      `db:"records_processed" json:"records_processed"`
	LastCompletedAt  *time.Time `db:"last_completed_at" json:"last_completed_at,omitempty"`
}

// SyncLogRepository records sync run lifecycles.
type SyncLogRepository interface {
	// Start opens a running log row and returns its id.
	Start(ctx context.Context, entityType, syncType string) (int64, error)
	// Complete closes a run as completed with its fetched and written counts.
	Complete(ctx context.Context, id, recordsFetched, recordsProcessed int64) error
	// Fail closes a run as failed with the error message.
	Fail(ctx context.Context, id int64, message string) error
	// List returns runs matching the filter, newest first.
	List(ctx context.Context, filter LogFilter) ([]models.SyncLog, error)
	// Count returns how many runs match the filter.
	Count(ctx context.Context, filter LogFilter) (int64, error)
	// LastForEntity returns the newest run for an entity, or nil.
	LastForEntity(ctx context.Context, entityType string) (*models.SyncLog, error)
	// Stats aggregates runs per entity since the given time.
	Stats(ctx context.Context, since time.Time) ([]EntityStats, error)
}

type syncLogRepository struct {
	db *database.DB
}

// NewSyncLogRepository creates a SyncLogRepository.
func NewSyncLogRepository(db *database.DB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

var _ SyncLogRepository = (*syncLogRepository)(nil)

const syncLogColumns = `id, entity_type, sync_type, status, records_fetched, records_processed,
	error_message, started_at, completed_at, duration_seconds`

func (r *syncLogRepository) Start(ctx context.Context, entityType, syncType string) (int64, error) {
	if r.db.Dialect == database.DialectMySQL {
		query := r.db.Rebind(
			`INSERT INTO sync_logs (entity_type, sync_type, status, started_at) VALUES (?, ?, ?, NOW())`)
		res, err := r.db.ExecContext(ctx, query, entityType, syncType, models.SyncStatusRunning)
		if err != nil {
			return 0, &apperrors.DatabaseError{Op: "start sync log " + entityType, Err: err}
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, &apperrors.DatabaseError{Op: "start sync log " + entityType, Err: err}
		}
		return id, nil
	}

	query := r.db.Rebind(
		`INSERT INTO sync_logs (entity_type, sync_type, status, started_at) VALUES (?, ?, ?, NOW()) RETURNING id`)
	var id int64
	if err := r.db.QueryRowxContext(ctx, query, entityType, syncType, models.SyncStatusRunning).Scan(&id); err != nil {
		return 0, &apperrors.DatabaseError{Op: "start sync log " + entityType, Err: err}
	}
	return id, nil
}

// durationExpr computes elapsed seconds since started_at in SQL so the
// clock source stays consistent with started_at.
func (r *syncLogRepository) durationExpr() string {
	if r.db.Dialect == database.DialectMySQL {
		return "TIMESTAMPDIFF(MICROSECOND, started_at, NOW()) / 1000000"
	}
	return "EXTRACT(EPOCH FROM (NOW() - started_at))"
}

func (r *syncLogRepository) Complete(ctx context.Context, id, recordsFetched, recordsProcessed int64) error {
	query := r.db.Rebind(
		`UPDATE sync_logs SET status = ?, records_fetched = ?, records_processed = ?, completed_at = NOW(),
			duration_seconds = ` + r.durationExpr() + ` WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, models.SyncStatusCompleted, recordsFetched, recordsProcessed, id); err != nil {
		return &apperrors.DatabaseError{Op: "complete sync log", Err: err}
	}
	return nil
}

func (r *syncLogRepository) Fail(ctx context.Context, id int64, message string) error {
	query := r.db.Rebind(
		`UPDATE sync_logs SET status = ?, error_message = ?, completed_at = NOW(),
			duration_seconds = ` + r.durationExpr() + ` WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, models.SyncStatusFailed, message, id); err != nil {
		return &apperrors.DatabaseError{Op: "fail sync log", Err: err}
	}
	return nil
}

func (r *syncLogRepository) List(ctx context.Context, filter LogFilter) ([]models.SyncLog, error) {
	where, args := logFilterClause(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := r.db.Rebind(
		`SELECT ` + syncLogColumns + ` FROM sync_logs` + where +
			` ORDER BY started_at DESC LIMIT ? OFFSET ?`)

	var logs []models.SyncLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, &apperrors.DatabaseError{Op: "list sync logs", Err: err}
	}
	return logs, nil
}

func (r *syncLogRepository) Count(ctx context.Context, filter LogFilter) (int64, error) {
	where, args := logFilterClause(filter)
	query := r.db.Rebind(`SELECT COUNT(*) FROM sync_logs` + where)

	var count int64
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, &apperrors.DatabaseError{Op: "count sync logs", Err: err}
	}
	return count, nil
}

func (r *syncLogRepository) LastForEntity(ctx context.Context, entityType string) (*models.SyncLog, error) {
	query := r.db.Rebind(
		`SELECT ` + syncLogColumns + ` FROM sync_logs WHERE entity_type = ?
		 ORDER BY started_at DESC LIMIT 1`)

	var log models.SyncLog
	err := r.db.GetContext(ctx, &log, query, entityType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "last sync log " + entityType, Err: err}
	}
	return &log, nil
}

func (r *syncLogRepository) Stats(ctx context.Context, since time.Time) ([]EntityStats, error) {
	query := r.db.Rebind(
		`SELECT entity_type,
			COUNT(*) AS total_runs,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed_runs,
			COALESCE(SUM(records_processed), 0) AS records_processed,
			MAX(completed_at) AS last_completed_at
		 FROM sync_logs WHERE started_at >= ?
		 GROUP BY entity_type ORDER BY entity_type`)

	var stats []EntityStats
	if err := r.db.SelectContext(ctx, &stats, query, since); err != nil {
		return nil, &apperrors.DatabaseError{Op: "sync log stats", Err: err}
	}
	return stats, nil
}

func logFilterClause(filter LogFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.EntityType != "" {
		clauses = append(clauses, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}
