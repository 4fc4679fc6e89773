package domain

import "time"

// Built-in background tasks run by serve.
const (
	TaskIDReingest       = "reingest"
	TaskIDViolationSweep = "violation-sweep"
)

// ScheduledTask is the persisted state of a recurring task. It survives
// restarts so a task does not run again right after every deploy.
type ScheduledTask struct {
	ID          string
	Name        string
	Interval    time.Duration
	Enabled     bool
	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time
	LastError   string // cleared by the next successful run
}

// Due reports whether the task should run at now. A task that never ran is due.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && (t.NextRun.IsZero() || !t.NextRun.After(now))
}

// TaskResult records one run of a task.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed counts documents created or updated by a reingest,
	// or violations purged by a sweep.
	ItemsProcessed int
}

// Duration is how long the run took.
func (r TaskResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// TaskStatus is a task together with its most recent runs.
type TaskStatus struct {
	Task   ScheduledTask
	Recent []TaskResult
}

// TaskConfig enables a task and sets how often it runs.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// SchedulerConfig is the scheduler section of the settings.
type SchedulerConfig struct {
	Enabled bool
	Tasks   map[string]TaskConfig
}

// Task returns the configuration of id, or a disabled zero value.
func (c *SchedulerConfig) Task(id string) TaskConfig {
	return c.Tasks[id]
}

// DefaultSchedulerConfig re-ingests the manifest every six hours and purges
// expired violations once a day.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		Tasks: map[string]TaskConfig{
			TaskIDReingest:       {Enabled: true, Interval: 6 * time.Hour},
			TaskIDViolationSweep: {Enabled: true, Interval: 24 * time.Hour},
		},
	}
}
