package syncqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Enqueue outcomes.
const (
	EnqueueQueued         = "queued"
	EnqueueAlreadyRunning = "already_running"
	EnqueueDuplicate      = "duplicate"
	EnqueueRejected       = "rejected"
)

const (
	webhookBuffer  = 1024
	webhookWorkers = 3
)

// Handler executes one task.
type Handler func(ctx context.Context, task *Task) error

// TaskInfo is a queue snapshot entry.
type TaskInfo struct {
	Type       TaskType  `json:"type"`
	EntityType string    `json:"entity_type,omitempty"`
	Priority   int       `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`
}

// Snapshot describes the queue at one moment.
type Snapshot struct {
	Started        bool       `json:"started"`
	Running        *TaskInfo  `json:"running,omitempty"`
	Queued         []TaskInfo `json:"queued"`
	WebhookBacklog int        `json:"webhook_backlog"`
}

// Queue runs heavy tasks one at a time in priority order and webhook tasks
// concurrently up to a fixed bound.
type Queue struct {
	mu           sync.Mutex
	heap         taskHeap
	pending      map[string]uuid.UUID
	currentHeavy *Task
	started      bool

	handlers  map[TaskType]Handler
	webhookCh chan *Task
	sem       *semaphore.Weighted
	notify    chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a Queue. Register handlers before Start.
func New(logger *zap.Logger) *Queue {
	return &Queue{
		pending:   make(map[string]uuid.UUID),
		handlers:  make(map[TaskType]Handler),
		webhookCh: make(chan *Task, webhookBuffer),
		sem:       semaphore.NewWeighted(webhookWorkers),
		notify:    make(chan struct{}, 1),
		logger:    logger.Named("syncqueue"),
	}
}

// Register binds a handler to a task type.
func (q *Queue) Register(taskType TaskType, handler Handler) {
	q.handlers[taskType] = handler
}

// Enqueue routes a task to its lane. Heavy tasks are deduplicated by
// DedupKey against both the backlog and the currently running task; on a
// dedup hit the returned id is the existing task's, so callers can report
// which run is already covering the request.
func (q *Queue) Enqueue(task *Task) (string, uuid.UUID) {
	if task.IsWebhook() {
		select {
		case q.webhookCh <- task:
			return EnqueueQueued, task.ID
		default:
			q.logger.Warn("webhook lane full, dropping task",
				zap.String("entity_type", task.EntityType),
				zap.String("record_id", task.RecordID))
			return EnqueueRejected, uuid.Nil
		}
	}

	key := task.DedupKey()
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.currentHeavy != nil && q.currentHeavy.DedupKey() == key {
		return EnqueueAlreadyRunning, q.currentHeavy.ID
	}
	if existing, ok := q.pending[key]; ok {
		return EnqueueDuplicate, existing
	}

	heap.Push(&q.heap, task)
	q.pending[key] = task.ID
	select {
	case q.notify <- struct{}{}:
	default:
	}
	q.logger.Info("task queued",
		zap.String("type", string(task.Type)),
		zap.String("entity_type", task.EntityType),
		zap.Int("priority", task.Priority))
	return EnqueueQueued, task.ID
}

// Start launches the two lanes. The queue stops when Stop is called or the
// parent context ends.
func (q *Queue) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	q.cancel = cancel

	q.mu.Lock()
	q.started = true
	q.mu.Unlock()

	q.wg.Add(2)
	go q.heavyLoop(ctx)
	go q.webhookLoop(ctx)
}

// Stop cancels the lanes and waits up to grace for in-flight work.
func (q *Queue) Stop(grace time.Duration) {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	q.started = false
	q.mu.Unlock()
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		q.logger.Warn("queue shutdown grace period elapsed")
	}
}

// Status returns a point-in-time view of both lanes.
func (q *Queue) Status() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := Snapshot{
		Started:        q.started,
		Queued:         make([]TaskInfo, 0, len(q.heap)),
		WebhookBacklog: len(q.webhookCh),
	}
	if q.currentHeavy != nil {
		info := taskInfo(q.currentHeavy)
		snap.Running = &info
	}
	for _, task := range q.heap {
		snap.Queued = append(snap.Queued, taskInfo(task))
	}
	return snap
}

func taskInfo(t *Task) TaskInfo {
	return TaskInfo{Type: t.Type, EntityType: t.EntityType, Priority: t.Priority, CreatedAt: t.CreatedAt}
}

func (q *Queue) heavyLoop(ctx context.Context) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		var task *Task
		if q.heap.Len() > 0 {
			task = heap.Pop(&q.heap).(*Task)
			delete(q.pending, task.DedupKey())
			q.currentHeavy = task
		}
		q.mu.Unlock()

		if task == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}

		q.run(ctx, task)

		q.mu.Lock()
		q.currentHeavy = nil
		q.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
	}
}

func (q *Queue) webhookLoop(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.webhookCh:
			if err := q.sem.Acquire(ctx, 1); err != nil {
				return
			}
			q.wg.Add(1)
			go func() {
				defer q.wg.Done()
				defer q.sem.Release(1)
				q.run(ctx, task)
			}()
		}
	}
}

func (q *Queue) run(ctx context.Context, task *Task) {
	handler, ok := q.handlers[task.Type]
	if !ok {
		q.logger.Error("no handler for task type", zap.String("type", string(task.Type)))
		return
	}

	start := time.Now()
	if err := handler(ctx, task); err != nil {
		q.logger.Error("task failed",
			zap.String("type", string(task.Type)),
			zap.String("entity_type", task.EntityType),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	q.logger.Info("task finished",
		zap.String("type", string(task.Type)),
		zap.String("entity_type", task.EntityType),
		zap.Duration("elapsed", time.Since(start)))
}
