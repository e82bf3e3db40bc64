// Package scheduler turns per-entity sync policies into recurring
// incremental sync tasks.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/repositories"
	"github.com/brightpulse/bitrix-warehouse/pkg/services/syncqueue"
)

// Enqueuer is the queue surface the scheduler needs.
type Enqueuer interface {
	Enqueue(task *syncqueue.Task) (string, uuid.UUID)
}

// Scheduler owns one cron entry per enabled entity.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	queue   Enqueuer
	configs repositories.SyncConfigRepository
	entries map[string]cron.EntryID
	logger  *zap.Logger
}

// New creates a Scheduler. All schedules run in UTC.
func New(queue Enqueuer, configs repositories.SyncConfigRepository, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		queue:   queue,
		configs: configs,
		entries: make(map[string]cron.EntryID),
		logger:  logger.Named("scheduler"),
	}
}

// Start loads enabled policies, registers their schedules and starts the
// cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	configs, err := s.configs.List(ctx)
	if err != nil {
		return err
	}
	for _, config := range configs {
		if !config.SyncEnabled {
			continue
		}
		if err := s.schedule(config.EntityType, config.SyncIntervalMinutes); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("entities", len(s.entries)))
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Reschedule applies a changed policy: it drops any existing entry and, when
// the policy is enabled, registers a new one.
func (s *Scheduler) Reschedule(entityType string, enabled bool, intervalMinutes int) error {
	s.remove(entityType)
	if !enabled {
		s.logger.Info("schedule removed", zap.String("entity_type", entityType))
		return nil
	}
	return s.schedule(entityType, intervalMinutes)
}

// NextRuns reports the next fire time per scheduled entity.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]time.Time, len(s.entries))
	for entityType, id := range s.entries {
		entry := s.cron.Entry(id)
		if entry.ID == id {
			next[entityType] = entry.Next
		}
	}
	return next
}

func (s *Scheduler) schedule(entityType string, intervalMinutes int) error {
	spec := fmt.Sprintf("@every %dm", intervalMinutes)
	id, err := s.cron.AddFunc(spec, func() {
		task := syncqueue.NewTask(syncqueue.TaskIncrementalSync, entityType, "", syncqueue.PriorityScheduled)
		outcome, _ := s.queue.Enqueue(task)
		s.logger.Info("scheduled sync enqueued",
			zap.String("entity_type", entityType),
			zap.String("outcome", outcome))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", entityType, err)
	}

	s.mu.Lock()
	s.entries[entityType] = id
	s.mu.Unlock()

	s.logger.Info("schedule registered",
		zap.String("entity_type", entityType),
		zap.Int("interval_minutes", intervalMinutes))
	return nil
}

func (s *Scheduler) remove(entityType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[entityType]; ok {
		s.cron.Remove(id)
		delete(s.entries, entityType)
	}
}
