// Package services orchestrates entity synchronization runs: full,
// incremental and webhook-driven single-record syncs.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/apperrors"
	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
	"github.com/brightpulse/bitrix-warehouse/pkg/mapper"
	"github.com/brightpulse/bitrix-warehouse/pkg/models"
	"github.com/brightpulse/bitrix-warehouse/pkg/repositories"
)

// watermarkFormat is how incremental filter bounds are rendered for the API.
const watermarkFormat = "2006-01-02T15:04:05"

// modifiedFields names the change-tracking field per entity type.
var modifiedFields = map[string]string{
	bitrix.EntityDeal:             "DATE_MODIFY",
	bitrix.EntityContact:          "DATE_MODIFY",
	bitrix.EntityLead:             "DATE_MODIFY",
	bitrix.EntityCompany:          "DATE_MODIFY",
	bitrix.EntityTask:             "CHANGED_DATE",
	bitrix.EntityUser:             "LAST_LOGIN",
	bitrix.EntityCall:             "CALL_START_DATE",
	bitrix.EntityStageHistoryDeal: "CREATED_TIME",
	bitrix.EntityStageHistoryLead: "CREATED_TIME",
}

// BitrixAPI is the slice of the Bitrix client entity sync needs.
type BitrixAPI interface {
	GetEntities(ctx context.Context, entityType string, filter map[string]any, selectFields []string) ([]bitrix.Record, error)
	GetEntity(ctx context.Context, entityType, id string) (bitrix.Record, error)
	GetEntityFields(ctx context.Context, entityType string) (map[string]bitrix.FieldMeta, error)
	GetUserFields(ctx context.Context, entityType string) ([]bitrix.FieldMeta, error)
}

// TableManager reconciles entity tables with field metadata.
type TableManager interface {
	TableExists(ctx context.Context, table string) (bool, error)
	GetTableColumns(ctx context.Context, table string) ([]string, error)
	EnsureTable(ctx context.Context, table string, cols []mapper.Column) error
}

// RecordWriter persists coerced records.
type RecordWriter interface {
	UpsertRecords(ctx context.Context, table string, records []bitrix.Record) (int, error)
	DeleteByBitrixID(ctx context.Context, table, bitrixID string) (bool, error)
}

// EnumCapturer stores enumeration items discovered during field refresh.
type EnumCapturer interface {
	CaptureEnumValues(ctx context.Context, entityType string, fields []bitrix.FieldMeta) (int, error)
}

// SyncResult summarizes a finished run. RecordsFetched counts what Bitrix
// returned; RecordsProcessed what survived writing (records without an ID
// are dropped).
type SyncResult struct {
	EntityType       string `json:"entity_type"`
	SyncType         string `json:"sync_type"`
	RecordsFetched   int    `json:"records_fetched"`
	RecordsProcessed int    `json:"records_processed"`
}

// EntitySyncService runs entity syncs end to end.
type EntitySyncService struct {
	api     BitrixAPI
	tables  TableManager
	writer  RecordWriter
	enums   EnumCapturer
	configs repositories.SyncConfigRepository
	states  repositories.SyncStateRepository
	logs    repositories.SyncLogRepository
	logger  *zap.Logger
}

// NewEntitySyncService creates an EntitySyncService.
func NewEntitySyncService(
	api BitrixAPI,
	tables TableManager,
	writer RecordWriter,
	enums EnumCapturer,
	configs repositories.SyncConfigRepository,
	states repositories.SyncStateRepository,
	logs repositories.SyncLogRepository,
	logger *zap.Logger,
) *EntitySyncService {
	return &EntitySyncService{
		api:     api,
		tables:  tables,
		writer:  writer,
		enums:   enums,
		configs: configs,
		states:  states,
		logs:    logs,
		logger:  logger.Named("entitysync"),
	}
}

// FullSync refreshes field metadata, reconciles the table and replaces its
// contents from an unfiltered listing.
func (s *EntitySyncService) FullSync(ctx context.Context, entityType string) (*SyncResult, error) {
	if !bitrix.IsKnownEntityType(entityType) {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}

	logID, err := s.logs.Start(ctx, entityType, models.SyncTypeFull)
	if err != nil {
		return nil, err
	}

	result, err := s.fullSync(ctx, entityType)
	if err != nil {
		s.closeFailed(ctx, logID, err)
		return nil, &apperrors.SyncError{EntityType: entityType, Err: err}
	}
	if err := s.logs.Complete(ctx, logID, int64(result.RecordsFetched), int64(result.RecordsProcessed)); err != nil {
		s.logger.Warn("failed to close sync log", zap.Error(err))
	}
	return result, nil
}

func (s *EntitySyncService) fullSync(ctx context.Context, entityType string) (*SyncResult, error) {
	table := mapper.TableName(entityType)

	if _, err := s.refreshSchema(ctx, entityType, table); err != nil {
		return nil, err
	}

	// The watermark is taken before the fetch so records that change while
	// the run is in flight get picked up again next time.
	syncStart := time.Now().UTC()
	records, err := s.api.GetEntities(ctx, entityType, nil, nil)
	if err != nil {
		return nil, err
	}

	processed, err := s.writer.UpsertRecords(ctx, table, records)
	if err != nil {
		return nil, err
	}

	if err := s.states.RecordFullSync(ctx, entityType, &syncStart, int64(processed)); err != nil {
		return nil, err
	}
	if err := s.configs.UpdateLastSync(ctx, entityType, time.Now().UTC()); err != nil {
		return nil, err
	}

	s.logger.Info("full sync finished",
		zap.String("entity_type", entityType),
		zap.Int("records", processed))
	return &SyncResult{
		EntityType:       entityType,
		SyncType:         models.SyncTypeFull,
		RecordsFetched:   len(records),
		RecordsProcessed: processed,
	}, nil
}

// IncrementalSync fetches records changed since the stored watermark. When
// the table or watermark is missing it promotes itself to a full sync.
func (s *EntitySyncService) IncrementalSync(ctx context.Context, entityType string) (*SyncResult, error) {
	if !bitrix.IsKnownEntityType(entityType) {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}

	table := mapper.TableName(entityType)
	exists, err := s.tables.TableExists(ctx, table)
	if err != nil {
		return nil, &apperrors.SyncError{EntityType: entityType, Err: err}
	}
	state, err := s.states.Get(ctx, entityType)
	if err != nil {
		return nil, &apperrors.SyncError{EntityType: entityType, Err: err}
	}
	if !exists || state == nil || state.LastModifiedDate == nil {
		s.logger.Info("no incremental baseline, promoting to full sync",
			zap.String("entity_type", entityType))
		return s.FullSync(ctx, entityType)
	}

	logID, err := s.logs.Start(ctx, entityType, models.SyncTypeIncremental)
	if err != nil {
		return nil, err
	}

	result, err := s.incrementalSync(ctx, entityType, table, *state.LastModifiedDate)
	if err != nil {
		s.closeFailed(ctx, logID, err)
		return nil, &apperrors.SyncError{EntityType: entityType, Err: err}
	}
	if err := s.logs.Complete(ctx, logID, int64(result.RecordsFetched), int64(result.RecordsProcessed)); err != nil {
		s.logger.Warn("failed to close sync log", zap.Error(err))
	}
	return result, nil
}

func (s *EntitySyncService) incrementalSync(ctx context.Context, entityType, table string, since time.Time) (*SyncResult, error) {
	modField := modifiedFields[entityType]
	filter := map[string]any{">" + modField: since.Format(watermarkFormat)}

	syncStart := time.Now().UTC()
	records, err := s.api.GetEntities(ctx, entityType, filter, nil)
	if err != nil {
		return nil, err
	}

	if err := s.reconcileDrift(ctx, entityType, table, records); err != nil {
		return nil, err
	}

	processed, err := s.writer.UpsertRecords(ctx, table, records)
	if err != nil {
		return nil, err
	}

	// Advance the watermark even on empty runs so an idle entity does not
	// keep re-filtering from the same point forever.
	if err := s.states.UpdateLastModified(ctx, entityType, syncStart); err != nil {
		return nil, err
	}
	if err := s.configs.UpdateLastSync(ctx, entityType, time.Now().UTC()); err != nil {
		return nil, err
	}

	s.logger.Info("incremental sync finished",
		zap.String("entity_type", entityType),
		zap.Int("records", processed))
	return &SyncResult{
		EntityType:       entityType,
		SyncType:         models.SyncTypeIncremental,
		RecordsFetched:   len(records),
		RecordsProcessed: processed,
	}, nil
}

// SyncEntityByID pulls a single record after a webhook. Returns "synced",
// or "skipped" when the table is missing or the record is already gone.
func (s *EntitySyncService) SyncEntityByID(ctx context.Context, entityType, id string) (string, error) {
	table := mapper.TableName(entityType)
	exists, err := s.tables.TableExists(ctx, table)
	if err != nil {
		return "", &apperrors.SyncError{EntityType: entityType, Err: err}
	}
	if !exists {
		return "skipped", nil
	}

	record, err := s.api.GetEntity(ctx, entityType, id)
	if err != nil {
		return "", &apperrors.SyncError{EntityType: entityType, Err: err}
	}
	if record == nil {
		s.logger.Info("webhook record already gone",
			zap.String("entity_type", entityType), zap.String("id", id))
		return "skipped", nil
	}

	if _, err := s.writer.UpsertRecords(ctx, table, []bitrix.Record{record}); err != nil {
		return "", &apperrors.SyncError{EntityType: entityType, Err: err}
	}
	return "synced", nil
}

// DeleteEntityByID removes a record after a delete webhook. Idempotent.
func (s *EntitySyncService) DeleteEntityByID(ctx context.Context, entityType, id string) (string, error) {
	table := mapper.TableName(entityType)
	exists, err := s.tables.TableExists(ctx, table)
	if err != nil {
		return "", &apperrors.SyncError{EntityType: entityType, Err: err}
	}
	if !exists {
		return "skipped", nil
	}

	deleted, err := s.writer.DeleteByBitrixID(ctx, table, id)
	if err != nil {
		return "", &apperrors.SyncError{EntityType: entityType, Err: err}
	}
	if !deleted {
		return "skipped", nil
	}
	return "deleted", nil
}

// refreshSchema pulls field metadata, reconciles the table and captures
// enum values. Returns the column list.
func (s *EntitySyncService) refreshSchema(ctx context.Context, entityType, table string) ([]mapper.Column, error) {
	standard, err := s.api.GetEntityFields(ctx, entityType)
	if err != nil {
		return nil, err
	}

	var userFields []bitrix.FieldMeta
	if bitrix.IsCRMEntity(entityType) {
		userFields, err = s.api.GetUserFields(ctx, entityType)
		if err != nil {
			return nil, err
		}
	}

	cols := mapper.MapFields(standard, userFields)
	if err := s.tables.EnsureTable(ctx, table, cols); err != nil {
		return nil, err
	}

	// Enum capture is best effort; the entity sync proceeds without it.
	allFields := make([]bitrix.FieldMeta, 0, len(standard)+len(userFields))
	for _, meta := range standard {
		allFields = append(allFields, meta)
	}
	allFields = append(allFields, userFields...)
	if _, err := s.enums.CaptureEnumValues(ctx, entityType, allFields); err != nil {
		s.logger.Warn("enum capture failed",
			zap.String("entity_type", entityType), zap.Error(err))
	}
	return cols, nil
}

// reconcileDrift re-runs field discovery when changed records carry keys the
// table does not have yet.
func (s *EntitySyncService) reconcileDrift(ctx context.Context, entityType, table string, records []bitrix.Record) error {
	if len(records) == 0 {
		return nil
	}

	columns, err := s.tables.GetTableColumns(ctx, table)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(columns))
	for _, col := range columns {
		known[col] = true
	}

	for _, record := range records {
		for key := range record {
			name := strings.ToLower(key)
			if name == "id" {
				name = "bitrix_id"
			}
			if !known[name] {
				s.logger.Info("schema drift detected",
					zap.String("entity_type", entityType),
					zap.String("column", name))
				_, err := s.refreshSchema(ctx, entityType, table)
				return err
			}
		}
	}
	return nil
}

func (s *EntitySyncService) closeFailed(ctx context.Context, logID int64, cause error) {
	if err := s.logs.Fail(ctx, logID, cause.Error()); err != nil {
		s.logger.Warn("failed to mark sync log failed", zap.Error(err))
	}
}
