package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// --- Mock implementations for scheduler testing ---

// mockSchedulerStore implements driven.SchedulerStore for testing.
type mockSchedulerStore struct {
	mu       sync.RWMutex
	tasks    map[string]*domain.ScheduledTask
	results  map[string][]domain.TaskResult
	saveErr  error
	listErr  error
	getErr   error
	pruneErr error
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		tasks:   make(map[string]*domain.ScheduledTask),
		results: make(map[string][]domain.TaskResult),
	}
}

func (m *mockSchedulerStore) GetTask(_ context.Context, taskID string) (*domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	task, exists := m.tasks[taskID]
	if !exists {
		return nil, nil
	}
	// Return a copy
	taskCopy := *task
	return &taskCopy, nil
}

func (m *mockSchedulerStore) ListTasks(_ context.Context) ([]domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	tasks := make([]domain.ScheduledTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

func (m *mockSchedulerStore) SaveTask(_ context.Context, task *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if task == nil {
		return domain.ErrInvalidInput
	}
	taskCopy := *task
	m.tasks[task.ID] = &taskCopy
	return nil
}

func (m *mockSchedulerStore) DeleteTask(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	return nil
}

func (m *mockSchedulerStore) RecordResult(_ context.Context, result *domain.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result == nil {
		return domain.ErrInvalidInput
	}
	m.results[result.TaskID] = append(m.results[result.TaskID], *result)
	return nil
}

func (m *mockSchedulerStore) GetTaskHistory(_ context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := m.results[taskID]
	if len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

func (m *mockSchedulerStore) PruneHistory(_ context.Context, _ int) error {
	return m.pruneErr
}

func (m *mockSchedulerStore) taskResults(taskID string) []domain.TaskResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.TaskResult(nil), m.results[taskID]...)
}

// countingTask counts its runs and returns err.
type countingTask struct {
	runs  atomic.Int32
	items int
	err   error
}

func (c *countingTask) run(context.Context) (int, error) {
	c.runs.Add(1)
	return c.items, c.err
}

// Ensure mocks implement interfaces
var _ driven.SchedulerStore = (*mockSchedulerStore)(nil)

// ==================== Scheduler Tests ====================

func TestNewScheduler(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	store := newMockSchedulerStore()

	scheduler := NewScheduler(config, store)

	require.NotNil(t, scheduler)
	assert.Equal(t, config.Enabled, scheduler.config.Enabled)
	assert.Empty(t, scheduler.tasks)
}

func TestScheduler_StartStop(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	store := newMockSchedulerStore()

	scheduler := NewScheduler(config, store)

	ctx, cancel := context.WithCancel(context.Background())

	// Start scheduler in goroutine
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	// Give it time to start
	time.Sleep(50 * time.Millisecond)

	// Stop scheduler
	cancel()
	err := scheduler.Stop()
	require.NoError(t, err)

	wg.Wait()
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore())

	// Stop without starting should be safe
	err := scheduler.Stop()
	require.NoError(t, err)
}

func TestScheduler_DoubleStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First start
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	// Second start should return immediately (already running)
	err := scheduler.Start(context.Background())
	assert.NoError(t, err)

	cancel()
	scheduler.Stop() //nolint:errcheck
	wg.Wait()
}

func TestScheduler_InitialiseTasks(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	config.Tasks[domain.TaskIDViolationSweep] = domain.TaskConfig{Enabled: false, Interval: time.Hour}
	store := newMockSchedulerStore()

	scheduler := NewScheduler(config, store)
	scheduler.Register(domain.TaskIDReingest, "Re-ingest", (&countingTask{}).run)
	scheduler.Register(domain.TaskIDViolationSweep, "Violation Sweep", (&countingTask{}).run)
	scheduler.Register("unconfigured", "Nobody", (&countingTask{}).run)

	ctx := context.Background()
	require.NoError(t, scheduler.initialiseTasks(ctx))

	task, err := store.GetTask(ctx, domain.TaskIDReingest)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "Re-ingest", task.Name)
	assert.True(t, task.Enabled)
	assert.Equal(t, 6*time.Hour, task.Interval)

	sweep, err := store.GetTask(ctx, domain.TaskIDViolationSweep)
	require.NoError(t, err)
	assert.Nil(t, sweep, "disabled tasks are not scheduled")

	unconfigured, err := store.GetTask(ctx, "unconfigured")
	require.NoError(t, err)
	assert.Nil(t, unconfigured)
}

func TestScheduler_InitialiseTasks_StoreError(t *testing.T) {
	store := newMockSchedulerStore()
	store.getErr = errors.New("db locked")
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store)
	scheduler.Register(domain.TaskIDReingest, "Re-ingest", (&countingTask{}).run)

	assert.Error(t, scheduler.initialiseTasks(context.Background()))
}

func TestScheduler_InitialiseTasks_DropsStaleTasks(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	config.Tasks[domain.TaskIDViolationSweep] = domain.TaskConfig{Enabled: false}
	store := newMockSchedulerStore()
	ctx := context.Background()
	for _, id := range []string{domain.TaskIDViolationSweep, "retired"} {
		require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{ID: id, Interval: time.Hour, Enabled: true}))
	}

	scheduler := NewScheduler(config, store)
	scheduler.Register(domain.TaskIDReingest, "Re-ingest", (&countingTask{}).run)
	scheduler.Register(domain.TaskIDViolationSweep, "Violation Sweep", (&countingTask{}).run)
	require.NoError(t, scheduler.initialiseTasks(ctx))

	tasks, err := store.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskIDReingest, tasks[0].ID)
}

func TestScheduler_Status(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store)
	sweep := &countingTask{items: 4}
	scheduler.Register(domain.TaskIDViolationSweep, "Violation Sweep", sweep.run)
	ctx := context.Background()
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID: domain.TaskIDViolationSweep, Name: "Violation Sweep", Interval: time.Hour, Enabled: true,
	}))

	for range 3 {
		scheduler.runTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDViolationSweep, Interval: time.Hour, Enabled: true})
		scheduler.wg.Wait()
	}

	status, err := scheduler.Status(ctx, 2)

	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, domain.TaskIDViolationSweep, status[0].Task.ID)
	require.Len(t, status[0].Recent, 2)
	assert.Equal(t, 4, status[0].Recent[0].ItemsProcessed)
}

func TestScheduler_Status_ListError(t *testing.T) {
	store := newMockSchedulerStore()
	store.listErr = errors.New("db closed")

	_, err := NewScheduler(domain.DefaultSchedulerConfig(), store).Status(context.Background(), 5)

	assert.ErrorContains(t, err, "listing tasks")
}

func TestScheduler_EnsureTask_UpdateInterval(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store)
	ctx := context.Background()

	// Create initial task
	taskCfg := domain.TaskConfig{
		Enabled:  true,
		Interval: 1 * time.Hour,
	}
	err := scheduler.ensureTask(ctx, "test-task", "Test Task", taskCfg)
	require.NoError(t, err)

	// Update with new interval
	taskCfg.Interval = 2 * time.Hour
	err = scheduler.ensureTask(ctx, "test-task", "Test Task", taskCfg)
	require.NoError(t, err)

	// Verify interval was updated
	task, err := store.GetTask(ctx, "test-task")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, task.Interval)
}

func TestScheduler_CheckAndRunDueTasks(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store)
	due := &countingTask{items: 3}
	later := &countingTask{}
	scheduler.Register("due", "Due", due.run)
	scheduler.Register("later", "Later", later.run)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID: "due", Interval: time.Hour, NextRun: now.Add(-time.Minute), Enabled: true,
	}))
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID: "later", Interval: time.Hour, NextRun: now.Add(time.Hour), Enabled: true,
	}))

	scheduler.checkAndRunDueTasks(ctx)
	scheduler.wg.Wait()

	assert.Equal(t, int32(1), due.runs.Load())
	assert.Zero(t, later.runs.Load())

	results := store.taskResults("due")
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 3, results[0].ItemsProcessed)

	task, err := store.GetTask(ctx, "due")
	require.NoError(t, err)
	assert.True(t, task.NextRun.After(now))
	assert.False(t, task.LastSuccess.IsZero())
}

func TestScheduler_RunTask_RecordsFailure(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store)
	failing := &countingTask{err: errors.New("manifest missing")}
	scheduler.Register(domain.TaskIDReingest, "Re-ingest", failing.run)
	ctx := context.Background()

	scheduler.runTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDReingest, Interval: time.Hour, Enabled: true})
	scheduler.wg.Wait()

	results := store.taskResults(domain.TaskIDReingest)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "manifest missing", results[0].Error)

	task, err := store.GetTask(ctx, domain.TaskIDReingest)
	require.NoError(t, err)
	assert.Equal(t, "manifest missing", task.LastError)
}

func TestScheduler_RunTask_SkipsActiveTask(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store)

	release := make(chan struct{})
	var runs atomic.Int32
	scheduler.Register("slow", "Slow", func(ctx context.Context) (int, error) {
		runs.Add(1)
		<-release
		return 0, nil
	})
	ctx := context.Background()

	scheduler.runTask(ctx, &domain.ScheduledTask{ID: "slow", Interval: time.Hour, Enabled: true})
	scheduler.runTask(ctx, &domain.ScheduledTask{ID: "slow", Interval: time.Hour, Enabled: true})
	close(release)
	scheduler.wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_RunTask_UnknownTaskID(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore())

	task := &domain.ScheduledTask{
		ID:      "unknown-task",
		Name:    "Unknown",
		Enabled: true,
	}

	// This should just log and return, not panic
	scheduler.runTask(context.Background(), task)
	scheduler.wg.Wait()
}

// stubIngest implements driving.IngestService for task tests.
type stubIngest struct {
	srcs   []domain.SourceDescriptor
	report domain.BatchReport
}

func (s *stubIngest) Ingest(context.Context, domain.SourceDescriptor, bool) (domain.IngestResult, error) {
	return domain.IngestResult{}, nil
}

func (s *stubIngest) IngestBatch(_ context.Context, srcs []domain.SourceDescriptor, _ bool) domain.BatchReport {
	s.srcs = srcs
	return s.report
}

func TestReingestTask(t *testing.T) {
	ingest := &stubIngest{report: domain.BatchReport{Created: 1, Updated: 2, Skipped: 7}}
	task := ReingestTask(ingest, func() ([]domain.SourceDescriptor, error) {
		return []domain.SourceDescriptor{{SourceURL: "https://obec.cz/"}}, nil
	})

	n, err := task(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, ingest.srcs, 1)

	failing := ReingestTask(ingest, func() ([]domain.SourceDescriptor, error) {
		return nil, errors.New("no manifest")
	})
	_, err = failing(context.Background())
	assert.Error(t, err)
}

func TestViolationSweepTask(t *testing.T) {
	store := &memViolationStore{}
	clock := &fakeClock{t: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	gate := newTestGate(store, clock)
	require.NoError(t, gate.RecordViolation(context.Background(), "g", "x"))
	clock.Advance(48 * time.Hour)

	n, err := ViolationSweepTask(gate, 24*time.Hour)(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
