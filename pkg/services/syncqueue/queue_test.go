package syncqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnqueueDeduplicatesHeavyTasks(t *testing.T) {
	q := New(zap.NewNop())

	first := NewTask(TaskFullSync, "deal", "", PriorityManual)
	outcome, id := q.Enqueue(first)
	assert.Equal(t, EnqueueQueued, outcome)
	assert.Equal(t, first.ID, id)

	// the duplicate answer carries the already queued task's id
	duplicate := NewTask(TaskFullSync, "deal", "", PriorityScheduled)
	outcome, id = q.Enqueue(duplicate)
	assert.Equal(t, EnqueueDuplicate, outcome)
	assert.Equal(t, first.ID, id)

	// same entity, different task type is a distinct key
	other := NewTask(TaskIncrementalSync, "deal", "", PriorityScheduled)
	outcome, id = q.Enqueue(other)
	assert.Equal(t, EnqueueQueued, outcome)
	assert.Equal(t, other.ID, id)
}

func TestEnqueueReportsAlreadyRunning(t *testing.T) {
	q := New(zap.NewNop())

	started := make(chan struct{})
	release := make(chan struct{})
	q.Register(TaskFullSync, func(ctx context.Context, task *Task) error {
		close(started)
		<-release
		return nil
	})

	q.Start(context.Background())
	defer q.Stop(time.Second)

	running := NewTask(TaskFullSync, "deal", "", PriorityManual)
	outcome, _ := q.Enqueue(running)
	require.Equal(t, EnqueueQueued, outcome)
	<-started

	outcome, id := q.Enqueue(NewTask(TaskFullSync, "deal", "", PriorityManual))
	assert.Equal(t, EnqueueAlreadyRunning, outcome)
	assert.Equal(t, running.ID, id)
	close(release)
}

func TestHeavyLaneRunsInPriorityOrder(t *testing.T) {
	q := New(zap.NewNop())

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 3)
	handler := func(ctx context.Context, task *Task) error {
		mu.Lock()
		order = append(order, task.EntityType)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}
	q.Register(TaskFullSync, handler)
	q.Register(TaskIncrementalSync, handler)
	q.Register(TaskReferenceSync, handler)

	// enqueue before starting so ordering is decided purely by priority
	q.Enqueue(NewTask(TaskIncrementalSync, "scheduled-deal", "", PriorityScheduled))
	q.Enqueue(NewTask(TaskReferenceSync, "crm_status", "", PriorityReference))
	q.Enqueue(NewTask(TaskFullSync, "manual-deal", "", PriorityManual))

	q.Start(context.Background())
	defer q.Stop(time.Second)

	for range 3 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"manual-deal", "crm_status", "scheduled-deal"}, order)
}

func TestWebhookLaneBoundsConcurrency(t *testing.T) {
	q := New(zap.NewNop())

	var active, peak int64
	done := make(chan struct{}, 10)
	q.Register(TaskWebhookSync, func(ctx context.Context, task *Task) error {
		n := atomic.AddInt64(&active, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		done <- struct{}{}
		return nil
	})

	q.Start(context.Background())
	defer q.Stop(time.Second)

	for i := 0; i < 10; i++ {
		outcome, _ := q.Enqueue(NewTask(TaskWebhookSync, "deal", "1", PriorityWebhook))
		assert.Equal(t, EnqueueQueued, outcome)
	}
	for range 10 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for webhook tasks")
		}
	}

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
	assert.Greater(t, atomic.LoadInt64(&peak), int64(0))
}

func TestWebhooksNeverDeduplicate(t *testing.T) {
	q := New(zap.NewNop())
	outcome, _ := q.Enqueue(NewTask(TaskWebhookSync, "deal", "1", PriorityWebhook))
	assert.Equal(t, EnqueueQueued, outcome)
	outcome, _ = q.Enqueue(NewTask(TaskWebhookSync, "deal", "1", PriorityWebhook))
	assert.Equal(t, EnqueueQueued, outcome)
	assert.Equal(t, 2, q.Status().WebhookBacklog)
}

func TestStatusSnapshot(t *testing.T) {
	q := New(zap.NewNop())
	q.Enqueue(NewTask(TaskFullSync, "deal", "", PriorityManual))
	q.Enqueue(NewTask(TaskIncrementalSync, "contact", "", PriorityScheduled))

	snap := q.Status()
	assert.False(t, snap.Started)
	assert.Nil(t, snap.Running)
	assert.Len(t, snap.Queued, 2)
	assert.Zero(t, snap.WebhookBacklog)
}

func TestRequeueAfterCompletion(t *testing.T) {
	q := New(zap.NewNop())

	done := make(chan struct{}, 2)
	q.Register(TaskFullSync, func(ctx context.Context, task *Task) error {
		done <- struct{}{}
		return nil
	})

	q.Start(context.Background())
	defer q.Stop(time.Second)

	outcome, _ := q.Enqueue(NewTask(TaskFullSync, "deal", "", PriorityManual))
	require.Equal(t, EnqueueQueued, outcome)
	<-done

	// completed tasks free the dedup key
	require.Eventually(t, func() bool {
		outcome, _ := q.Enqueue(NewTask(TaskFullSync, "deal", "", PriorityManual))
		return outcome == EnqueueQueued
	}, 2*time.Second, 10*time.Millisecond)
	<-done
}

func TestStopWaitsForGrace(t *testing.T) {
	q := New(zap.NewNop())
	q.Register(TaskFullSync, func(ctx context.Context, task *Task) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	q.Start(context.Background())
	q.Enqueue(NewTask(TaskFullSync, "deal", "", PriorityManual))
	time.Sleep(10 * time.Millisecond)
	q.Stop(time.Second) // returns once the in-flight task drains
}
