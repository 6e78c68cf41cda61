package domain

import "time"

// Task IDs for built-in maintenance tasks.
const (
	// TaskIDIndexRebuild re-embeds passages missing from the vector index.
	TaskIDIndexRebuild = "index-rebuild"

	// TaskIDHistoryPrune trims the status history table.
	TaskIDHistoryPrune = "history-prune"
)

// ScheduledTask is a recurring background task and its run state.
type ScheduledTask struct {
	ID          string
	Name        string
	Interval    time.Duration
	LastRun     time.Time
	NextRun     time.Time
	LastError   string
	LastSuccess time.Time
	Enabled     bool
}

// TaskResult is the outcome of one task execution.
type TaskResult struct {
	TaskID         string
	StartedAt      time.Time
	EndedAt        time.Time
	Success        bool
	Error          string
	ItemsProcessed int
}

// TaskConfig holds configuration for a single task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Enabled is the master switch for the scheduler.
	Enabled bool

	// HistoryKeep is how many status events per graph survive a prune.
	HistoryKeep int

	// TaskConfigs holds per-task configuration keyed by task ID.
	TaskConfigs map[string]TaskConfig
}

// GetTaskConfig returns the configuration for a task, or a zero
// TaskConfig when the task is not configured.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig returns the default maintenance schedule.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:     true,
		HistoryKeep: 100,
		TaskConfigs: map[string]TaskConfig{
			TaskIDIndexRebuild: {Enabled: true, Interval: 6 * time.Hour},
			TaskIDHistoryPrune: {Enabled: true, Interval: 24 * time.Hour},
		},
	}
}
