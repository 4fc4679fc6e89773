package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	assert.True(t, config.Enabled)
	assert.Len(t, config.Tasks, 2)

	reingest := config.Tasks[TaskIDReingest]
	assert.True(t, reingest.Enabled)
	assert.Equal(t, 6*time.Hour, reingest.Interval)

	sweep := config.Tasks[TaskIDViolationSweep]
	assert.True(t, sweep.Enabled)
	assert.Equal(t, 24*time.Hour, sweep.Interval)
}

func TestSchedulerConfig_Task(t *testing.T) {
	config := DefaultSchedulerConfig()

	assert.True(t, config.Task(TaskIDReingest).Enabled)

	unknown := config.Task("unknown-task")
	assert.False(t, unknown.Enabled)
	assert.Equal(t, time.Duration(0), unknown.Interval)
}

func TestSchedulerConfig_Task_NilMap(t *testing.T) {
	config := SchedulerConfig{Enabled: true}

	cfg := config.Task("any-task")
	assert.False(t, cfg.Enabled)
}

func TestScheduledTask_Due(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		task ScheduledTask
		want bool
	}{
		{"never ran", ScheduledTask{Enabled: true}, true},
		{"next run passed", ScheduledTask{Enabled: true, NextRun: now.Add(-time.Minute)}, true},
		{"next run now", ScheduledTask{Enabled: true, NextRun: now}, true},
		{"next run ahead", ScheduledTask{Enabled: true, NextRun: now.Add(time.Minute)}, false},
		{"disabled", ScheduledTask{NextRun: now.Add(-time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.Due(now))
		})
	}
}

func TestTaskResult_Duration(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := TaskResult{StartedAt: start, EndedAt: start.Add(90 * time.Second)}

	assert.Equal(t, 90*time.Second, r.Duration())
}

func TestDefaultAppSettings(t *testing.T) {
	s := DefaultAppSettings()

	assert.Equal(t, SearchModeHybrid, s.Retrieval.Mode)
	assert.Equal(t, 50, s.Retrieval.CandidateLimit)
	assert.Equal(t, 10, s.Retrieval.RRFK)
	assert.Equal(t, 2, s.Citations.MinWebpages)
	assert.Equal(t, 4, s.Citations.InitialCount)
	assert.Equal(t, "[OFFTOPIC]", s.Offtopic.Marker)
	assert.Equal(t, 5, s.Offtopic.Threshold)
	assert.Equal(t, 24*time.Hour, s.Offtopic.Window)
	assert.True(t, s.Embedding.Provider.IsValid())
	assert.True(t, s.LLM.Provider.RequiresAPIKey())
	assert.False(t, AIProviderOllama.RequiresAPIKey())
	assert.Equal(t, "Disabled", AIProviderNone.Description())
}
