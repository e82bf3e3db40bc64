// Package repositories persists sync bookkeeping: per-entity policy,
// incremental watermarks, and the run log.
package repositories

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/apperrors"
	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
	"github.com/brightpulse/bitrix-warehouse/pkg/database"
)

// Bootstrap creates the bookkeeping tables when absent and seeds a default
// sync policy row for every known entity type. Existing rows are left alone.
func Bootstrap(ctx context.Context, db *database.DB, logger *zap.Logger) error {
	serial := "BIGSERIAL PRIMARY KEY"
	timestamp := "TIMESTAMP"
	double := "DOUBLE PRECISION"
	if db.Dialect == database.DialectMySQL {
		serial = "BIGINT AUTO_INCREMENT PRIMARY KEY"
		timestamp = "DATETIME"
		double = "DOUBLE"
	}

	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_config (
			id %s,
			entity_type VARCHAR(255) NOT NULL UNIQUE,
			sync_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			sync_interval_minutes INT NOT NULL DEFAULT 30,
			last_sync_date %s NULL,
			created_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, serial, timestamp, timestamp, timestamp),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_state (
			id %s,
			entity_type VARCHAR(255) NOT NULL UNIQUE,
			last_modified_date %s NULL,
			last_full_sync %s NULL,
			total_records BIGINT NOT NULL DEFAULT 0,
			updated_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, serial, timestamp, timestamp, timestamp),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_logs (
			id %s,
			entity_type VARCHAR(255) NOT NULL,
			sync_type VARCHAR(32) NOT NULL,
			status VARCHAR(32) NOT NULL,
			records_fetched BIGINT NOT NULL DEFAULT 0,
			records_processed BIGINT NOT NULL DEFAULT 0,
			error_message TEXT,
			started_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at %s NULL,
			duration_seconds %s NULL
		)`, serial, timestamp, timestamp, double),
	}

	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &apperrors.DatabaseError{Op: "bootstrap bookkeeping tables", Err: err}
		}
	}

	seed := `INSERT INTO sync_config (entity_type, sync_enabled, sync_interval_minutes)
		VALUES (?, TRUE, 30) ON CONFLICT (entity_type) DO NOTHING`
	if db.Dialect == database.DialectMySQL {
		seed = `INSERT IGNORE INTO sync_config (entity_type, sync_enabled, sync_interval_minutes)
			VALUES (?, TRUE, 30)`
	}
	seed = db.Rebind(seed)

	for _, entityType := range bitrix.KnownEntityTypes {
		if _, err := db.ExecContext(ctx, seed, entityType); err != nil {
			return &apperrors.DatabaseError{Op: "seed sync_config " + entityType, Err: err}
		}
	}

	logger.Info("bookkeeping tables ready", zap.Int("seeded_entities", len(bitrix.KnownEntityTypes)))
	return nil
}
