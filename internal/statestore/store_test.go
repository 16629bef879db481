package statestore

import (
	"errors"
	"testing"
	"time"

	"github.com/groundctl/ground-control/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustCreateRun(t *testing.T, store *Store, id string) {
	t.Helper()
	if _, err := store.CreateRun(id, "test-project", nil); err != nil {
		t.Fatal(err)
	}
}

func mustCreateTask(t *testing.T, store *Store, p TaskParams) {
	t.Helper()
	if _, err := store.CreateTask(p); err != nil {
		t.Fatal(err)
	}
}

func TestStore_CreateAndGetRun(t *testing.T) {
	store := newTestStore(t)

	run, err := store.CreateRun("run-001", "test-project", map[string]string{"repo": "/tmp/repo"})
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != domain.RunPending {
		t.Errorf("Status = %q, want pending", run.Status)
	}

	got, err := store.GetRun("run-001")
	if err != nil {
		t.Fatal(err)
	}
	if got.ProjectName != "test-project" {
		t.Errorf("ProjectName = %q, want test-project", got.ProjectName)
	}
	if got.ConfigSnapshot == "" {
		t.Error("ConfigSnapshot should be persisted")
	}
}

func TestStore_CreateRun_Duplicate(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-001")

	_, err := store.CreateRun("run-001", "other-project", nil)
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("err = %v, want ErrDuplicateKey", err)
	}
}

func TestStore_SetRunStatus(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-001")

	if err := store.SetRunStatus("run-001", domain.RunRunning); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetRun("run-001")
	if got.Status != domain.RunRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}

	err := store.SetRunStatus("run-999", domain.RunFailed)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_ListRuns(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.CreateRun("run-a", "alpha", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateRun("run-b", "beta", nil); err != nil {
		t.Fatal(err)
	}

	all, err := store.ListRuns("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("runs = %d, want 2", len(all))
	}

	alpha, err := store.ListRuns("alpha", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(alpha) != 1 || alpha[0].ID != "run-a" {
		t.Errorf("alpha runs = %v, want [run-a]", alpha)
	}
}

func TestStore_TaskLifecycle(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-001")

	task, err := store.CreateTask(TaskParams{
		ID:            "task-001",
		RunID:         "run-001",
		Title:         "Implement login",
		Description:   "Create login endpoint",
		AssignedAgent: "developer",
		Priority:      5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != domain.TaskPending {
		t.Errorf("Status = %q, want pending", task.Status)
	}

	if err := store.UpdateTaskStatus("task-001", domain.TaskRunning); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetTask("task-001")
	if got.Status != domain.TaskRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}

	if err := store.UpdateTaskStatusResult("task-001", domain.TaskCompleted, "Done"); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetTask("task-001")
	if got.Status != domain.TaskCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Result != "Done" {
		t.Errorf("Result = %q, want Done", got.Result)
	}
	if got.AssignedAgent != "developer" {
		t.Errorf("AssignedAgent = %q, want developer", got.AssignedAgent)
	}
}

func TestStore_CreateTask_Duplicate(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-001")
	mustCreateTask(t, store, TaskParams{ID: "task-1", RunID: "run-001", Title: "Task"})

	_, err := store.CreateTask(TaskParams{ID: "task-1", RunID: "run-001", Title: "Again"})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("err = %v, want ErrDuplicateKey", err)
	}
}

func TestStore_UpdateTaskStatus_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateTaskStatus("ghost", domain.TaskCompleted)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	err = store.UpdateTaskStatusResult("ghost", domain.TaskFailed, "boom")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_ListTasks_Ordering(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-001")

	// Created in this order; listing must sort by priority desc, then
	// creation time asc.
	mustCreateTask(t, store, TaskParams{ID: "low", RunID: "run-001", Title: "Low", Priority: 1})
	time.Sleep(5 * time.Millisecond)
	mustCreateTask(t, store, TaskParams{ID: "high-old", RunID: "run-001", Title: "High old", Priority: 8})
	time.Sleep(5 * time.Millisecond)
	mustCreateTask(t, store, TaskParams{ID: "high-new", RunID: "run-001", Title: "High new", Priority: 8})

	tasks, err := store.ListTasks("run-001")
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	want := []string{"high-old", "high-new", "low"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestStore_ReadyTasks_DependencyResolution(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-001")

	mustCreateTask(t, store, TaskParams{ID: "task-a", RunID: "run-001", Title: "A"})
	mustCreateTask(t, store, TaskParams{ID: "task-b", RunID: "run-001", Title: "B", Dependencies: []string{"task-a"}})
	mustCreateTask(t, store, TaskParams{ID: "task-c", RunID: "run-001", Title: "C"})

	ready, err := store.ReadyTasks("run-001")
	if err != nil {
		t.Fatal(err)
	}
	ids := taskIDSet(ready)
	if !ids["task-a"] || !ids["task-c"] || ids["task-b"] {
		t.Errorf("ready = %v, want task-a and task-c only", ids)
	}

	if err := store.UpdateTaskStatus("task-a", domain.TaskCompleted); err != nil {
		t.Fatal(err)
	}
	ready, err = store.ReadyTasks("run-001")
	if err != nil {
		t.Fatal(err)
	}
	ids = taskIDSet(ready)
	if !ids["task-b"] {
		t.Errorf("task-b should be ready once task-a completed, got %v", ids)
	}
}

func TestStore_ReadyTasks_FailedDependencyStarves(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-001")

	mustCreateTask(t, store, TaskParams{ID: "task-x", RunID: "run-001", Title: "X"})
	mustCreateTask(t, store, TaskParams{ID: "task-y", RunID: "run-001", Title: "Y", Dependencies: []string{"task-x"}})

	if err := store.UpdateTaskStatusResult("task-x", domain.TaskFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	ready, err := store.ReadyTasks("run-001")
	if err != nil {
		t.Fatal(err)
	}
	if len(ready) != 0 {
		t.Errorf("ready = %d tasks, want 0 (task-y starved by failed dependency)", len(ready))
	}
}

func TestStore_ReadyTasks_DanglingDependency(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-001")

	mustCreateTask(t, store, TaskParams{ID: "task-d", RunID: "run-001", Title: "D", Dependencies: []string{"no-such-task"}})

	ready, err := store.ReadyTasks("run-001")
	if err != nil {
		t.Fatal(err)
	}
	if len(ready) != 0 {
		t.Errorf("ready = %d tasks, want 0 (dangling dependency never satisfied)", len(ready))
	}
}

func TestStore_ReadyTasks_ExcludesTerminalTasks(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-001")

	mustCreateTask(t, store, TaskParams{ID: "done", RunID: "run-001", Title: "Done"})
	mustCreateTask(t, store, TaskParams{ID: "broken", RunID: "run-001", Title: "Broken"})
	mustCreateTask(t, store, TaskParams{ID: "manual", RunID: "run-001", Title: "Manual"})
	mustCreateTask(t, store, TaskParams{ID: "after-manual", RunID: "run-001", Title: "After", Dependencies: []string{"manual"}})

	if err := store.UpdateTaskStatus("done", domain.TaskCompleted); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateTaskStatus("broken", domain.TaskFailed); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateTaskStatus("manual", domain.TaskSkipped); err != nil {
		t.Fatal(err)
	}

	ready, err := store.ReadyTasks("run-001")
	if err != nil {
		t.Fatal(err)
	}
	if len(ready) != 0 {
		t.Errorf("ready = %v, want none (terminal tasks excluded, skipped does not satisfy dependencies)", taskIDSet(ready))
	}
}

func TestStore_Logs(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-001")
	mustCreateTask(t, store, TaskParams{ID: "task-1", RunID: "run-001", Title: "Task"})

	if err := store.AppendLog("task-1", domain.LogInfo, "Starting work", "developer", nil); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendLog("task-1", domain.LogInfo, "Completed", "", map[string]any{"files": 3}); err != nil {
		t.Fatal(err)
	}

	logs, err := store.GetLogs("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	if logs[0].Message != "Starting work" || logs[0].AgentName != "developer" {
		t.Errorf("first log = %+v", logs[0])
	}
	if logs[1].Metadata["files"] != float64(3) {
		t.Errorf("metadata files = %v, want 3", logs[1].Metadata["files"])
	}
}

func TestStore_AppendLog_UnknownTask(t *testing.T) {
	store := newTestStore(t)

	err := store.AppendLog("ghost", domain.LogInfo, "hello", "", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_Executions(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-001")
	mustCreateTask(t, store, TaskParams{ID: "task-1", RunID: "run-001", Title: "Task"})

	id, err := store.CreateExecution("task-1", "run-001", "developer", "claude_code", "do the thing")
	if err != nil {
		t.Fatal(err)
	}

	err = store.FinishExecution(id, domain.ExecutionCompleted, "all good", "", map[string]int{"input_tokens": 120})
	if err != nil {
		t.Fatal(err)
	}

	execs, err := store.ListExecutions("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 1 {
		t.Fatalf("executions = %d, want 1", len(execs))
	}
	e := execs[0]
	if e.Status != domain.ExecutionCompleted || e.Output != "all good" {
		t.Errorf("execution = %+v", e)
	}
	if e.TokensUsed["input_tokens"] != 120 {
		t.Errorf("tokens = %v, want input_tokens=120", e.TokensUsed)
	}
	if e.StartedAt == nil || e.FinishedAt == nil {
		t.Error("timestamps should be set")
	}
}

func TestStore_RunSummary(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-001")

	mustCreateTask(t, store, TaskParams{ID: "t1", RunID: "run-001", Title: "T1"})
	mustCreateTask(t, store, TaskParams{ID: "t2", RunID: "run-001", Title: "T2"})
	mustCreateTask(t, store, TaskParams{ID: "t3", RunID: "run-001", Title: "T3"})
	mustCreateTask(t, store, TaskParams{ID: "t4", RunID: "run-001", Title: "T4"})

	store.UpdateTaskStatus("t1", domain.TaskCompleted)
	store.UpdateTaskStatus("t2", domain.TaskCompleted)
	store.UpdateTaskStatusResult("t3", domain.TaskFailed, "boom")
	// t4 stays pending (e.g. starved by a failed dependency)

	summary, err := store.RunSummary("run-001")
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalTasks != 4 {
		t.Errorf("TotalTasks = %d, want 4", summary.TotalTasks)
	}
	if summary.StatusCounts[domain.TaskCompleted] != 2 {
		t.Errorf("completed = %d, want 2", summary.StatusCounts[domain.TaskCompleted])
	}
	if summary.StatusCounts[domain.TaskFailed] != 1 {
		t.Errorf("failed = %d, want 1", summary.StatusCounts[domain.TaskFailed])
	}
	if summary.StatusCounts[domain.TaskPending] != 1 {
		t.Errorf("pending = %d, want 1", summary.StatusCounts[domain.TaskPending])
	}
}

func TestStore_PruneRunsBefore(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-old")
	mustCreateTask(t, store, TaskParams{ID: "t1", RunID: "run-old", Title: "T1"})
	store.AppendLog("t1", domain.LogInfo, "hi", "", nil)

	removed, err := store.PruneRunsBefore(time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := store.GetRun("run-old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("run should be gone, err = %v", err)
	}
	if _, err := store.GetTask("t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("task should be gone, err = %v", err)
	}
}

func TestStore_PruneRunsBefore_KeepsRecent(t *testing.T) {
	store := newTestStore(t)
	mustCreateRun(t, store, "run-new")

	removed, err := store.PruneRunsBefore(time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	if _, err := store.GetRun("run-new"); err != nil {
		t.Errorf("recent run should survive, err = %v", err)
	}
}

func taskIDSet(tasks []*domain.Task) map[string]bool {
	ids := make(map[string]bool)
	for _, t := range tasks {
		ids[t.ID] = true
	}
	return ids
}
