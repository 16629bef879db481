package domain

import "time"

// Run represents one orchestration attempt for a project
type Run struct {
	ID             string
	ProjectName    string
	Status         RunStatus
	ConfigSnapshot string // JSON snapshot of the project config used
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LogEntry is an immutable timestamped note attached to a task
type LogEntry struct {
	ID        int64
	TaskID    string
	AgentName string
	Level     string
	Message   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Execution records one attempt to carry out a task via an agent/implementer pair
type Execution struct {
	ID          int64
	TaskID      string
	RunID       string
	AgentName   string
	Implementer string
	Status      string
	InputPrompt string
	Output      string
	Error       string
	TokensUsed  map[string]int
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// RunSummary aggregates a run with its tasks and per-status counts
type RunSummary struct {
	Run          *Run
	Tasks        []*Task
	TotalTasks   int
	StatusCounts map[TaskStatus]int
}
