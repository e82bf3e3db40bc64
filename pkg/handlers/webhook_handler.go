package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
	"github.com/brightpulse/bitrix-warehouse/pkg/services/syncqueue"
	"github.com/brightpulse/bitrix-warehouse/pkg/webhook"
)

const maxWebhookBody = 1 << 20

// WebhookAdmin manages event bindings on the Bitrix side.
type WebhookAdmin interface {
	RegisterWebhook(ctx context.Context, event, handlerURL string) error
	UnregisterWebhook(ctx context.Context, event, handlerURL string) error
	ListRegisteredWebhooks(ctx context.Context) ([]bitrix.RegisteredWebhook, error)
}

// WebhookHandler receives Bitrix event notifications and manages bindings.
type WebhookHandler struct {
	queue  SyncQueue
	admin  WebhookAdmin
	logger *zap.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(queue SyncQueue, admin WebhookAdmin, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{queue: queue, admin: admin, logger: logger}
}

// RegisterRoutes registers the webhook handler's routes on the given mux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/bitrix", h.Receive)
	mux.HandleFunc("POST /webhooks/register", h.Register)
	mux.HandleFunc("DELETE /webhooks/unregister", h.Unregister)
	mux.HandleFunc("GET /webhooks", h.List)
}

// Receive handles POST /webhooks/bitrix. It always answers quickly; the
// actual record fetch runs on the webhook lane.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}

	notification, err := webhook.ParseNotification(string(body))
	if err != nil {
		h.logger.Warn("undecodable webhook payload", zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_payload", err.Error())
		return
	}

	route, ok := webhook.RouteEvent(notification.Event)
	if !ok {
		_ = WriteJSON(w, http.StatusOK, map[string]any{
			"status": "ignored",
			"reason": "unsupported_event",
			"event":  notification.Event,
		})
		return
	}
	if notification.EntityID == "" {
		_ = WriteJSON(w, http.StatusOK, map[string]any{
			"status": "ignored",
			"reason": "missing_entity_id",
			"event":  notification.Event,
		})
		return
	}

	taskType := syncqueue.TaskWebhookSync
	if route.Delete {
		taskType = syncqueue.TaskWebhookDelete
	}
	outcome, _ := h.queue.Enqueue(syncqueue.NewTask(
		taskType, route.EntityType, notification.EntityID, syncqueue.PriorityWebhook))
	if outcome != syncqueue.EnqueueQueued {
		_ = ErrorResponse(w, http.StatusServiceUnavailable, "queue_full", "webhook lane is full")
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "accepted",
		"event":     notification.Event,
		"entity_id": notification.EntityID,
	})
}

type bindRequest struct {
	HandlerURL string `json:"handler_url"`
}

// Register handles POST /webhooks/register: binds all twelve CRM events to
// the given handler URL.
func (h *WebhookHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.bindAll(w, r, h.admin.RegisterWebhook, "registered")
}

// Unregister handles POST /webhooks/unregister.
func (h *WebhookHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	h.bindAll(w, r, h.admin.UnregisterWebhook, "unregistered")
}

// List handles GET /webhooks: the current bindings on the Bitrix side.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.admin.ListRegisteredWebhooks(r.Context())
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"webhooks": hooks})
}

func (h *WebhookHandler) bindAll(w http.ResponseWriter, r *http.Request, bind func(context.Context, string, string) error, verb string) {
	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HandlerURL == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "handler_url is required")
		return
	}

	results := make(map[string]string, len(bitrix.CRMEvents))
	failures := 0
	for _, event := range bitrix.CRMEvents {
		if err := bind(r.Context(), event, req.HandlerURL); err != nil {
			h.logger.Error("event binding failed", zap.String("event", event), zap.Error(err))
			results[event] = err.Error()
			failures++
			continue
		}
		results[event] = verb
	}

	status := http.StatusOK
	if failures > 0 {
		status = http.StatusBadGateway
	}
	_ = WriteJSON(w, status, map[string]any{
		"handler_url": req.HandlerURL,
		"results":     results,
		"failures":    failures,
	})
}
