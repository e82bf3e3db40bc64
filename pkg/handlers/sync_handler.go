package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
	"github.com/brightpulse/bitrix-warehouse/pkg/mapper"
	"github.com/brightpulse/bitrix-warehouse/pkg/models"
	"github.com/brightpulse/bitrix-warehouse/pkg/repositories"
	"github.com/brightpulse/bitrix-warehouse/pkg/services/syncqueue"
)

// SyncQueue is the queue surface the admin API uses. Enqueue returns the id
// of the task that will do the work: the submitted one when accepted, the
// already queued or running one on a dedup hit.
type SyncQueue interface {
	Enqueue(task *syncqueue.Task) (string, uuid.UUID)
	Status() syncqueue.Snapshot
}

// Rescheduler applies sync policy changes to the running scheduler.
type Rescheduler interface {
	Reschedule(entityType string, enabled bool, intervalMinutes int) error
}

// TableCounter reports warehouse table sizes. The boolean is false when the
// table has not been created yet.
type TableCounter interface {
	RowCount(ctx context.Context, table string) (int64, bool, error)
}

// SyncHandler exposes sync policy, control and history endpoints.
type SyncHandler struct {
	configs   repositories.SyncConfigRepository
	states    repositories.SyncStateRepository
	logs      repositories.SyncLogRepository
	queue     SyncQueue
	scheduler Rescheduler
	counts    TableCounter
	logger    *zap.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(
	configs repositories.SyncConfigRepository,
	states repositories.SyncStateRepository,
	logs repositories.SyncLogRepository,
	queue SyncQueue,
	scheduler Rescheduler,
	counts TableCounter,
	logger *zap.Logger,
) *SyncHandler {
	return &SyncHandler{
		configs:   configs,
		states:    states,
		logs:      logs,
		queue:     queue,
		scheduler: scheduler,
		counts:    counts,
		logger:    logger,
	}
}

// RegisterRoutes registers the sync handler's routes on the given mux.
func (h *SyncHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /sync/config", h.ListConfig)
	mux.HandleFunc("PUT /sync/config", h.UpdateConfig)
	mux.HandleFunc("POST /sync/start/{entity}", h.StartSync)
	mux.HandleFunc("GET /sync/status", h.Status)
	mux.HandleFunc("GET /sync/history", h.History)
	mux.HandleFunc("GET /sync/stats", h.Stats)
}

// ListConfig handles GET /sync/config.
func (h *SyncHandler) ListConfig(w http.ResponseWriter, r *http.Request) {
	configs, err := h.configs.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list sync config", zap.Error(err))
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"configs": configs})
}

type updateConfigRequest struct {
	EntityType          string `json:"entity_type"`
	SyncEnabled         *bool  `json:"sync_enabled"`
	SyncIntervalMinutes *int   `json:"sync_interval_minutes"`
}

// UpdateConfig handles PUT /sync/config.
func (h *SyncHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	entityType := req.EntityType
	if !bitrix.IsKnownEntityType(entityType) {
		_ = ErrorResponse(w, http.StatusBadRequest, "unknown_entity", "unknown entity type "+entityType)
		return
	}

	current, err := h.configs.Get(r.Context(), entityType)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	enabled := true
	interval := 30
	if current != nil {
		enabled = current.SyncEnabled
		interval = current.SyncIntervalMinutes
	}
	if req.SyncEnabled != nil {
		enabled = *req.SyncEnabled
	}
	if req.SyncIntervalMinutes != nil {
		interval = *req.SyncIntervalMinutes
	}
	if interval < 5 || interval > 1440 {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_interval", "sync_interval_minutes must be in 5..1440")
		return
	}

	if err := h.configs.Upsert(r.Context(), entityType, enabled, interval); err != nil {
		_ = WriteError(w, err)
		return
	}
	if err := h.scheduler.Reschedule(entityType, enabled, interval); err != nil {
		h.logger.Error("failed to reschedule", zap.String("entity_type", entityType), zap.Error(err))
		_ = WriteError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"entity_type":           entityType,
		"sync_enabled":          enabled,
		"sync_interval_minutes": interval,
	})
}

// StartSync handles POST /sync/start/{entity}. The optional type query
// parameter selects full (default) or incremental.
func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entity")
	if !bitrix.IsKnownEntityType(entityType) {
		_ = ErrorResponse(w, http.StatusBadRequest, "unknown_entity", "unknown entity type "+entityType)
		return
	}

	taskType := syncqueue.TaskFullSync
	switch r.URL.Query().Get("type") {
	case "", models.SyncTypeFull:
	case models.SyncTypeIncremental:
		taskType = syncqueue.TaskIncrementalSync
	default:
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_sync_type", "type must be full or incremental")
		return
	}

	outcome, taskID := h.queue.Enqueue(syncqueue.NewTask(taskType, entityType, "", syncqueue.PriorityManual))

	status := http.StatusAccepted
	body := map[string]any{
		"entity_type": entityType,
		"sync_type":   string(taskType),
		"task_id":     taskID,
	}
	switch outcome {
	case syncqueue.EnqueueQueued:
		body["status"] = "started"
	case syncqueue.EnqueueDuplicate:
		body["status"] = "already_queued"
		status = http.StatusOK
	case syncqueue.EnqueueAlreadyRunning:
		body["status"] = "already_running"
		status = http.StatusOK
	default:
		_ = ErrorResponse(w, http.StatusServiceUnavailable, "queue_full", "sync queue rejected the task")
		return
	}
	_ = WriteJSON(w, status, body)
}

// Status handles GET /sync/status: the queue snapshot plus per-entity
// watermarks and last runs.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	snapshot := h.queue.Status()

	entities := make([]map[string]any, 0, len(bitrix.KnownEntityTypes))
	for _, entityType := range bitrix.KnownEntityTypes {
		entry := map[string]any{"entity_type": entityType}
		if state, err := h.states.Get(r.Context(), entityType); err == nil && state != nil {
			entry["last_modified_date"] = state.LastModifiedDate
			entry["last_full_sync"] = state.LastFullSync
			entry["total_records"] = state.TotalRecords
		}
		if last, err := h.logs.LastForEntity(r.Context(), entityType); err == nil && last != nil {
			entry["last_run_status"] = last.Status
			entry["last_run_started_at"] = last.StartedAt
		}
		entities = append(entities, entry)
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"queue":    snapshot,
		"entities": entities,
	})
}

// History handles GET /sync/history with entity_type, status, limit and
// offset query parameters.
func (h *SyncHandler) History(w http.ResponseWriter, r *http.Request) {
	filter := repositories.LogFilter{
		EntityType: r.URL.Query().Get("entity_type"),
		Status:     r.URL.Query().Get("status"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			_ = ErrorResponse(w, http.StatusBadRequest, "bad_limit", "limit must be in 1..500")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			_ = ErrorResponse(w, http.StatusBadRequest, "bad_offset", "offset must be non-negative")
			return
		}
		filter.Offset = n
	}

	logs, err := h.logs.List(r.Context(), filter)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	total, err := h.logs.Count(r.Context(), filter)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"total": total,
	})
}

// Stats handles GET /sync/stats. The optional hours parameter bounds the
// window; default is 24.
func (h *SyncHandler) Stats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 24*30 {
			_ = ErrorResponse(w, http.StatusBadRequest, "bad_hours", "hours must be in 1..720")
			return
		}
		hours = n
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	stats, err := h.logs.Stats(r.Context(), since)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	tables := make([]map[string]any, 0, len(bitrix.KnownEntityTypes))
	for _, entityType := range bitrix.KnownEntityTypes {
		table := mapper.TableName(entityType)
		entry := map[string]any{
			"entity_type": entityType,
			"table":       table,
		}
		count, exists, err := h.counts.RowCount(r.Context(), table)
		if err != nil {
			_ = WriteError(w, err)
			return
		}
		entry["exists"] = exists
		if exists {
			entry["row_count"] = count
		}
		if state, err := h.states.Get(r.Context(), entityType); err == nil && state != nil {
			entry["last_full_sync"] = state.LastFullSync
			entry["last_modified_date"] = state.LastModifiedDate
		}
		tables = append(tables, entry)
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"since":  since,
		"stats":  stats,
		"tables": tables,
	})
}
