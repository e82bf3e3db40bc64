package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/references"
	"github.com/brightpulse/bitrix-warehouse/pkg/repositories"
	"github.com/brightpulse/bitrix-warehouse/pkg/services/syncqueue"
)

// ReferencesHandler exposes reference dictionary sync endpoints.
type ReferencesHandler struct {
	queue  SyncQueue
	counts TableCounter
	logs   repositories.SyncLogRepository
	logger *zap.Logger
}

// NewReferencesHandler creates a ReferencesHandler.
func NewReferencesHandler(queue SyncQueue, counts TableCounter, logs repositories.SyncLogRepository, logger *zap.Logger) *ReferencesHandler {
	return &ReferencesHandler{queue: queue, counts: counts, logs: logs, logger: logger}
}

// RegisterRoutes registers the references handler's routes on the given mux.
func (h *ReferencesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /references/sync/{name}", h.SyncOne)
	mux.HandleFunc("POST /references/sync-all", h.SyncAll)
	mux.HandleFunc("GET /references/status", h.Status)
}

// SyncOne handles POST /references/sync/{name}.
func (h *ReferencesHandler) SyncOne(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	def, ok := references.Lookup(name)
	if !ok {
		_ = ErrorResponse(w, http.StatusNotFound, "unknown_reference", "unknown reference "+name)
		return
	}
	if def.Method == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "not_syncable",
			"reference "+name+" is filled during entity sync")
		return
	}

	outcome, taskID := h.queue.Enqueue(syncqueue.NewTask(
		syncqueue.TaskReferenceSync, name, "", syncqueue.PriorityReference))
	h.respondEnqueue(w, outcome, map[string]any{"reference": name, "task_id": taskID})
}

// SyncAll handles POST /references/sync-all.
func (h *ReferencesHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	outcome, taskID := h.queue.Enqueue(syncqueue.NewTask(
		syncqueue.TaskReferenceSyncAll, "", "", syncqueue.PriorityReference))
	h.respondEnqueue(w, outcome, map[string]any{"references": references.Names(), "task_id": taskID})
}

// Status handles GET /references/status: the registry with per-reference
// row counts and last sync runs.
func (h *ReferencesHandler) Status(w http.ResponseWriter, r *http.Request) {
	entries := make([]map[string]any, 0, len(references.Registry))
	for _, def := range references.Registry {
		entry := map[string]any{
			"name":              def.Name,
			"table":             def.Table,
			"unique_key":        def.UniqueKey,
			"directly_syncable": def.Method != "",
		}
		count, exists, err := h.counts.RowCount(r.Context(), def.Table)
		if err != nil {
			_ = WriteError(w, err)
			return
		}
		entry["exists"] = exists
		if exists {
			entry["row_count"] = count
		}
		if last, err := h.logs.LastForEntity(r.Context(), def.Name); err == nil && last != nil {
			entry["last_run_status"] = last.Status
			entry["last_run_started_at"] = last.StartedAt
		}
		entries = append(entries, entry)
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"references": entries})
}

func (h *ReferencesHandler) respondEnqueue(w http.ResponseWriter, outcome string, body map[string]any) {
	status := http.StatusAccepted
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
