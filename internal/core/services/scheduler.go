package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/core/ports/driving"
	"github.com/custodia-labs/townhall/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// TaskRunner executes one run of a background task and reports how many
// items it processed.
type TaskRunner func(ctx context.Context) (int, error)

// historyKeep is how many results per task survive pruning.
const historyKeep = 100

type registeredTask struct {
	name string
	run  TaskRunner
}

// Scheduler manages background task execution.
// It is a pure core service with no external control API.
type Scheduler struct {
	config domain.SchedulerConfig
	store  driven.SchedulerStore
	tasks  map[string]registeredTask

	mu      sync.Mutex
	running bool
	active  map[string]bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(config domain.SchedulerConfig, store driven.SchedulerStore) *Scheduler {
	return &Scheduler{
		config: config,
		store:  store,
		tasks:  make(map[string]registeredTask),
		active: make(map[string]bool),
	}
}

// Register makes a task runnable. Only tasks enabled in the configuration
// are scheduled.
func (s *Scheduler) Register(id, name string, run TaskRunner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = registeredTask{name: name, run: run}
}

// Start begins the scheduler loop. This method blocks until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Enabled {
		logger.Info("Scheduler disabled")
	} else if err := s.initialiseTasks(ctx); err != nil {
		logger.Error(err, "scheduler: initialise tasks")
	}

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for running tasks to complete
	s.wg.Wait()

	return nil
}

// initialiseTasks stores every registered, enabled task and drops stored
// tasks that are no longer registered or have been switched off.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	s.mu.Lock()
	tasks := make(map[string]registeredTask, len(s.tasks))
	for id, t := range s.tasks {
		tasks[id] = t
	}
	s.mu.Unlock()

	for id, t := range tasks {
		taskCfg := s.config.Task(id)
		if !taskCfg.Enabled || taskCfg.Interval <= 0 {
			continue
		}
		if err := s.ensureTask(ctx, id, t.name, taskCfg); err != nil {
			return err
		}
	}

	stored, err := s.store.ListTasks(ctx)
	if err != nil {
		return err
	}
	for i := range stored {
		id := stored[i].ID
		cfg := s.config.Task(id)
		if _, ok := tasks[id]; ok && cfg.Enabled && cfg.Interval > 0 {
			continue
		}
		logger.Debug("scheduler: dropping task %s", id)
		if err := s.store.DeleteTask(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now().Add(cfg.Interval),
		}
	} else {
		// Recalculate next run from now when the interval changed
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	if s.config.Enabled {
		s.checkAndRunDueTasks(ctx)
	}

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			if s.config.Enabled {
				s.checkAndRunDueTasks(ctx)
			}
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Error(err, "scheduler: list tasks")
		return
	}

	now := time.Now()
	for i := range tasks {
		if tasks[i].Due(now) {
			s.runTask(ctx, &tasks[i])
		}
	}
}

// runTask executes a single task unless a previous run is still going.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.mu.Lock()
	registered, ok := s.tasks[task.ID]
	if !ok {
		s.mu.Unlock()
		logger.Warn("scheduler: unknown task ID: %s", task.ID)
		return
	}
	if s.active[task.ID] {
		s.mu.Unlock()
		logger.Debug("scheduler: %s still running", task.ID)
		return
	}
	s.active[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, task.ID)
			s.mu.Unlock()
		}()

		logger.Info("scheduler: running %s", task.ID)
		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		n, err := registered.run(ctx)
		result.ItemsProcessed = n
		result.EndedAt = time.Now()
		if err != nil {
			result.Success = false
			result.Error = err.Error()
			task.LastError = err.Error()
			logger.Error(err, "scheduler: task %s", task.ID)
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
		}

		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)

		if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
			logger.Error(saveErr, "scheduler: save task %s", task.ID)
		}
		if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
			logger.Error(recordErr, "scheduler: record result for %s", task.ID)
		}

		if pruneErr := s.store.PruneHistory(ctx, historyKeep); pruneErr != nil {
			logger.Error(pruneErr, "scheduler: prune history")
		}
	}()
}

// Status returns every stored task with up to recent of its latest runs.
func (s *Scheduler) Status(ctx context.Context, recent int) ([]domain.TaskStatus, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	out := make([]domain.TaskStatus, 0, len(tasks))
	for i := range tasks {
		history, err := s.store.GetTaskHistory(ctx, tasks[i].ID, recent)
		if err != nil {
			return nil, fmt.Errorf("task %s history: %w", tasks[i].ID, err)
		}
		out = append(out, domain.TaskStatus{Task: tasks[i], Recent: history})
	}
	return out, nil
}

// ReingestTask re-runs ingestion over the sources load returns. Unchanged
// documents are skipped by hash, so a run over a stable corpus is cheap.
func ReingestTask(ingest driving.IngestService, load func() ([]domain.SourceDescriptor, error)) TaskRunner {
	return func(ctx context.Context) (int, error) {
		srcs, err := load()
		if err != nil {
			return 0, err
		}
		report := ingest.IngestBatch(ctx, srcs, false)
		return report.Created + report.Updated, nil
	}
}

// ViolationSweepTask purges off-topic violations older than retention.
func ViolationSweepTask(gate *OfftopicGate, retention time.Duration) TaskRunner {
	return func(ctx context.Context) (int, error) {
		return gate.Sweep(ctx, retention)
	}
}
