package services

import (
	"context"
	"time"

	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
	"github.com/brightpulse/bitrix-warehouse/pkg/mapper"
	"github.com/brightpulse/bitrix-warehouse/pkg/models"
	"github.com/brightpulse/bitrix-warehouse/pkg/repositories"
)

type mockAPI struct {
	fields     map[string]bitrix.FieldMeta
	userFields []bitrix.FieldMeta
	records    []bitrix.Record
	record     bitrix.Record
	listErr    error

	gotFilter map[string]any
}

func (m *mockAPI) GetEntities(_ context.Context, _ string, filter map[string]any, _ []string) ([]bitrix.Record, error) {
	m.gotFilter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.records, nil
}

func (m *mockAPI) GetEntity(_ context.Context, _, _ string) (bitrix.Record, error) {
	return m.record, nil
}

func (m *mockAPI) GetEntityFields(_ context.Context, _ string) (map[string]bitrix.FieldMeta, error) {
	return m.fields, nil
}

func (m *mockAPI) GetUserFields(_ context.Context, _ string) ([]bitrix.FieldMeta, error) {
	return m.userFields, nil
}

type mockTables struct {
	exists  bool
	columns []string

	ensuredTables []string
	ensuredCols   [][]mapper.Column
}

func (m *mockTables) TableExists(_ context.Context, _ string) (bool, error) {
	return m.exists, nil
}

func (m *mockTables) GetTableColumns(_ context.Context, _ string) ([]string, error) {
	return m.columns, nil
}

func (m *mockTables) EnsureTable(_ context.Context, table string, cols []mapper.Column) error {
	m.ensuredTables = append(m.ensuredTables, table)
	m.ensuredCols = append(m.ensuredCols, cols)
	return nil
}

type mockWriter struct {
	upserted   map[string][]bitrix.Record
	deleted    []string
	deleteHit  bool
	upsertErr  error
}

func (m *mockWriter) UpsertRecords(_ context.Context, table string, records []bitrix.Record) (int, error) {
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	if m.upserted == nil {
		m.upserted = map[string][]bitrix.Record{}
	}
	m.upserted[table] = append(m.upserted[table], records...)
	return len(records), nil
}

func (m *mockWriter) DeleteByBitrixID(_ context.Context, _, bitrixID string) (bool, error) {
	m.deleted = append(m.deleted, bitrixID)
	return m.deleteHit, nil
}

type mockEnums struct {
	captured map[string][]bitrix.FieldMeta
}

func (m *mockEnums) CaptureEnumValues(_ context.Context, entityType string, fields []bitrix.FieldMeta) (int, error) {
	if m.captured == nil {
		m.captured = map[string][]bitrix.FieldMeta{}
	}
	m.captured[entityType] = append(m.captured[entityType], fields...)
	return len(fields), nil
}

type mockConfigRepo struct {
	lastSync map[string]time.Time
}

func (m *mockConfigRepo) List(_ context.Context) ([]models.SyncConfig, error) { return nil, nil }

func (m *mockConfigRepo) Get(_ context.Context, _ string) (*models.SyncConfig, error) {
	return nil, nil
}

func (m *mockConfigRepo) Upsert(_ context.Context, _ string, _ bool, _ int) error { return nil }

func (m *mockConfigRepo) UpdateLastSync(_ context.Context, entityType string, at time.Time) error {
	if m.lastSync == nil {
		m.lastSync = map[string]time.Time{}
	}
	m.lastSync[entityType] = at
	return nil
}

type mockStateRepo struct {
	state *models.SyncState

	fullSyncWatermark *time.Time
	fullSyncTotal     int64
	lastModified      *time.Time
}

func (m *mockStateRepo) Get(_ context.Context, _ string) (*models.SyncState, error) {
	return m.state, nil
}

func (m *mockStateRepo) RecordFullSync(_ context.Context, _ string, lastModified *time.Time, total int64) error {
	m.fullSyncWatermark = lastModified
	m.fullSyncTotal = total
	return nil
}

func (m *mockStateRepo) UpdateLastModified(_ context.Context, _ string, lastModified time.Time) error {
	m.lastModified = &lastModified
	return nil
}

type mockLogRepo struct {
	nextID    int64
	started   []string // sync types
	completed []int64
	fetched   map[int64]int64
	failed    map[int64]string
}

func (m *mockLogRepo) Start(_ context.Context, _, syncType string) (int64, error) {
	m.nextID++
	m.started = append(m.started, syncType)
	return m.nextID, nil
}

func (m *mockLogRepo) Complete(_ context.Context, id, fetched, _ int64) error {
	m.completed = append(m.completed, id)
	if m.fetched == nil {
		m.fetched = map[int64]int64{}
	}
	m.fetched[id] = fetched
	return nil
}

func (m *mockLogRepo) Fail(_ context.Context, id int64, message string) error {
	if m.failed == nil {
		m.failed = map[int64]string{}
	}
	m.failed[id] = message
	return nil
}

func (m *mockLogRepo) List(_ context.Context, _ repositories.LogFilter) ([]models.SyncLog, error) {
	return nil, nil
}

func (m *mockLogRepo) Count(_ context.Context, _ repositories.LogFilter) (int64, error) {
	return 0, nil
}

func (m *mockLogRepo) LastForEntity(_ context.Context, _ string) (*models.SyncLog, error) {
	return nil, nil
}

func (m *mockLogRepo) Stats(_ context.Context, _ time.Time) ([]repositories.EntityStats, error) {
	return nil, nil
}
