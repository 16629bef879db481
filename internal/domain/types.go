package domain

// RunStatus represents the lifecycle state of an orchestration run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunPlanning  RunStatus = "planning"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Terminal reports whether a task status can never change again
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// LogLevel values for task log entries
const (
	LogInfo  = "info"
	LogWarn  = "warn"
	LogError = "error"
)

// ExecutionStatus values for agent execution records
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)
