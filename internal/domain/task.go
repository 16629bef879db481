package domain

import "time"

// Task is one atomic unit of work within a run
type Task struct {
	ID            string
	RunID         string
	TicketID      string
	Title         string
	Description   string
	AssignedAgent string
	Status        TaskStatus
	Priority      int
	Dependencies  []string
	Result        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Ready returns true if the task is pending and every dependency is in the
// completed set. A dependency that never completes keeps the task unready
// forever.
func (t *Task) Ready(completed map[string]bool) bool {
	if t.Status != TaskPending {
		return false
	}
	for _, dep := range t.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// TaskResult is the outcome of executing one task
type TaskResult struct {
	TaskID  string
	Success bool
	Output  string
	Error   string
}
