package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
	"github.com/brightpulse/bitrix-warehouse/pkg/models"
	"github.com/brightpulse/bitrix-warehouse/pkg/repositories"
	"github.com/brightpulse/bitrix-warehouse/pkg/services/syncqueue"
	"github.com/brightpulse/bitrix-warehouse/pkg/warehouse"
)

type fakeQueue struct {
	outcome string
	taskID  uuid.UUID // returned instead of the submitted task's id when set
	tasks   []*syncqueue.Task
	snap    syncqueue.Snapshot
}

func (f *fakeQueue) Enqueue(task *syncqueue.Task) (string, uuid.UUID) {
	f.tasks = append(f.tasks, task)
	id := task.ID
	if f.taskID != uuid.Nil {
		id = f.taskID
	}
	if f.outcome == "" {
		return syncqueue.EnqueueQueued, id
	}
	if f.outcome == syncqueue.EnqueueRejected {
		return f.outcome, uuid.Nil
	}
	return f.outcome, id
}

func (f *fakeQueue) Status() syncqueue.Snapshot { return f.snap }

type fakeScheduler struct {
	calls []string
	err   error
}

func (f *fakeScheduler) Reschedule(entityType string, enabled bool, intervalMinutes int) error {
	f.calls = append(f.calls, entityType)
	return f.err
}

type fakeConfigRepo struct {
	configs  []models.SyncConfig
	current  *models.SyncConfig
	upserted []string
}

func (f *fakeConfigRepo) List(_ context.Context) ([]models.SyncConfig, error) {
	return f.configs, nil
}

func (f *fakeConfigRepo) Get(_ context.Context, _ string) (*models.SyncConfig, error) {
	return f.current, nil
}

func (f *fakeConfigRepo) Upsert(_ context.Context, entityType string, _ bool, _ int) error {
	f.upserted = append(f.upserted, entityType)
	return nil
}

func (f *fakeConfigRepo) UpdateLastSync(_ context.Context, _ string, _ time.Time) error {
	return nil
}

type fakeStateRepo struct {
	states map[string]*models.SyncState
}

func (f *fakeStateRepo) Get(_ context.Context, entityType string) (*models.SyncState, error) {
	return f.states[entityType], nil
}

func (f *fakeStateRepo) RecordFullSync(_ context.Context, _ string, _ *time.Time, _ int64) error {
	return nil
}

func (f *fakeStateRepo) UpdateLastModified(_ context.Context, _ string, _ time.Time) error {
	return nil
}

type fakeLogRepo struct {
	logs  []models.SyncLog
	total int64
	stats []repositories.EntityStats

	gotFilter repositories.LogFilter
}

func (f *fakeLogRepo) Start(_ context.Context, _, _ string) (int64, error) { return 1, nil }

func (f *fakeLogRepo) Complete(_ context.Context, _, _, _ int64) error { return nil }

func (f *fakeLogRepo) Fail(_ context.Context, _ int64, _ string) error { return nil }

func (f *fakeLogRepo) List(_ context.Context, filter repositories.LogFilter) ([]models.SyncLog, error) {
	f.gotFilter = filter
	return f.logs, nil
}

func (f *fakeLogRepo) Count(_ context.Context, _ repositories.LogFilter) (int64, error) {
	return f.total, nil
}

func (f *fakeLogRepo) LastForEntity(_ context.Context, _ string) (*models.SyncLog, error) {
	return nil, nil
}

func (f *fakeLogRepo) Stats(_ context.Context, _ time.Time) ([]repositories.EntityStats, error) {
	return f.stats, nil
}

type fakeAdmin struct {
	bound    []string
	unbound  []string
	hooks    []bitrix.RegisteredWebhook
	failWith error
}

func (f *fakeAdmin) RegisterWebhook(_ context.Context, event, _ string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.bound = append(f.bound, event)
	return nil
}

func (f *fakeAdmin) UnregisterWebhook(_ context.Context, event, _ string) error {
	f.unbound = append(f.unbound, event)
	return nil
}

func (f *fakeAdmin) ListRegisteredWebhooks(_ context.Context) ([]bitrix.RegisteredWebhook, error) {
	return f.hooks, nil
}

type fakeIntrospector struct {
	tables  []string
	columns map[string][]warehouse.ColumnInfo
	values  []warehouse.EnumValue
	err     error
}

func (f *fakeIntrospector) ListTables(_ context.Context) ([]string, error) {
	return f.tables, f.err
}

func (f *fakeIntrospector) TableColumns(_ context.Context, table string) ([]warehouse.ColumnInfo, error) {
	return f.columns[table], f.err
}

func (f *fakeIntrospector) EnumValues(_ context.Context, _, _ string) ([]warehouse.EnumValue, error) {
	return f.values, f.err
}

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (f *fakeCounter) RowCount(_ context.Context, table string) (int64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	count, ok := f.counts[table]
	return count, ok, nil
}

var errBitrixDown = errors.New("bitrix unavailable")
