// Package syncqueue serializes heavy sync work on a single priority worker
// while webhook tasks flow through a separate bounded-concurrency lane.
package syncqueue

import (
	"time"

	"github.com/google/uuid"
)

// TaskType identifies what a queued task will do.
type TaskType string

const (
	TaskFullSync         TaskType = "full_sync"
	TaskIncrementalSync  TaskType = "incremental_sync"
	TaskWebhookSync      TaskType = "webhook_sync"
	TaskWebhookDelete    TaskType = "webhook_delete"
	TaskReferenceSync    TaskType = "reference_sync"
	TaskReferenceSyncAll TaskType = "reference_sync_all"
)

// Lower value means served first. Webhooks bypass the heavy lane entirely;
// their priority only matters if one is ever routed there.
const (
	PriorityWebhook   = 0
	PriorityManual    = 10
	PriorityReference = 20
	PriorityScheduled = 30
)

// Task is one unit of queued sync work. EntityType doubles as the reference
// name for reference tasks and stays empty for reference_sync_all.
type Task struct {
	ID         uuid.UUID `json:"id"`
	Type       TaskType  `json:"type"`
	EntityType string    `json:"entity_type,omitempty"`
	RecordID   string    `json:"record_id,omitempty"`
	Priority   int       `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTask creates a task stamped with a fresh id and creation time.
func NewTask(taskType TaskType, entityType, recordID string, priority int) *Task {
	return &Task{
		ID:         uuid.New(),
		Type:       taskType,
		EntityType: entityType,
		RecordID:   recordID,
		Priority:   priority,
		CreatedAt:  time.Now().UTC(),
	}
}

// DedupKey collapses equivalent heavy tasks: one full sync per entity in
// the queue at a time, regardless of who asked.
func (t *Task) DedupKey() string {
	return string(t.Type) + ":" + t.EntityType
}

// IsWebhook reports whether the task belongs on the webhook lane.
func (t *Task) IsWebhook() bool {
	return t.Type == TaskWebhookSync || t.Type == TaskWebhookDelete
}

// taskHeap orders tasks by (priority, created_at).
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].CreatedAt.Before(h[j].CreatedAt)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return task
}
