package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/groundctl/ground-control/internal/domain"
	"github.com/groundctl/ground-control/internal/statestore"
)

func newTestQueue(t *testing.T, maxParallel int) (*Queue, *statestore.Store) {
	t.Helper()
	store, err := statestore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	if _, err := store.CreateRun("run-001", "test-project", nil); err != nil {
		t.Fatal(err)
	}

	q := New(store, maxParallel)
	q.PollInterval = time.Millisecond
	return q, store
}

func createTask(t *testing.T, store *statestore.Store, id string, priority int, deps ...string) {
	t.Helper()
	_, err := store.CreateTask(statestore.TaskParams{
		ID:           id,
		RunID:        "run-001",
		Title:        "Task " + id,
		Priority:     priority,
		Dependencies: deps,
	})
	if err != nil {
		t.Fatal(err)
	}
	// Keep creation timestamps strictly ordered for deterministic slot order.
	time.Sleep(2 * time.Millisecond)
}

func okExecutor(ctx context.Context, task *domain.Task) domain.TaskResult {
	return domain.TaskResult{Success: true, Output: "ok"}
}

func TestQueue_ExecuteAll_AllSucceed(t *testing.T) {
	q, store := newTestQueue(t, 2)
	createTask(t, store, "task-1", 5)
	createTask(t, store, "task-2", 3)
	createTask(t, store, "task-3", 1)

	results, err := q.ExecuteAll(context.Background(), "run-001", okExecutor)
	if err != nil {
		t.Fatal(err)
	}

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for _, r := range results {
		if !r.Success {
			t.Errorf("task %s failed: %s", r.TaskID, r.Error)
		}
	}

	for _, id := range []string{"task-1", "task-2", "task-3"} {
		task, err := store.GetTask(id)
		if err != nil {
			t.Fatal(err)
		}
		if task.Status != domain.TaskCompleted {
			t.Errorf("task %s status = %q, want completed", id, task.Status)
		}
		if task.Result != "ok" {
			t.Errorf("task %s result = %q, want ok", id, task.Result)
		}
	}
}

func TestQueue_ExecuteAll_DependencyOrdering(t *testing.T) {
	// A (no deps), B (dep A), C (no deps), maxParallel 2: A and C form the
	// first batch, B only runs after A completes.
	q, store := newTestQueue(t, 2)
	createTask(t, store, "task-a", 0)
	createTask(t, store, "task-b", 0, "task-a")
	createTask(t, store, "task-c", 0)

	var mu sync.Mutex
	var order []string
	executor := func(ctx context.Context, task *domain.Task) domain.TaskResult {
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return domain.TaskResult{Success: true, Output: "ok"}
	}

	results, err := q.ExecuteAll(context.Background(), "run-001", executor)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}

	idx := func(id string) int {
		for i, v := range order {
			if v == id {
				return i
			}
		}
		t.Fatalf("%s never executed (order %v)", id, order)
		return -1
	}
	if idx("task-a") > idx("task-b") {
		t.Errorf("task-b ran before its dependency task-a: %v", order)
	}
}

func TestQueue_ExecuteAll_FailureStarvesDependent(t *testing.T) {
	// X fails with "boom"; Y depends on X. Y never runs, the loop still
	// terminates, and Y is absent from the results.
	q, store := newTestQueue(t, 2)
	createTask(t, store, "task-x", 0)
	createTask(t, store, "task-y", 0, "task-x")

	executor := func(ctx context.Context, task *domain.Task) domain.TaskResult {
		return domain.TaskResult{Success: false, Error: "boom"}
	}

	results, err := q.ExecuteAll(context.Background(), "run-001", executor)
	if err != nil {
		t.Fatal(err)
	}

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1 (task-y starved)", len(results))
	}
	if results[0].TaskID != "task-x" || results[0].Success || results[0].Error != "boom" {
		t.Errorf("result = %+v, want failed task-x with error boom", results[0])
	}

	y, err := store.GetTask("task-y")
	if err != nil {
		t.Fatal(err)
	}
	if y.Status != domain.TaskPending {
		t.Errorf("task-y status = %q, want pending", y.Status)
	}

	x, _ := store.GetTask("task-x")
	if x.Status != domain.TaskFailed || x.Result != "boom" {
		t.Errorf("task-x = %q/%q, want failed/boom", x.Status, x.Result)
	}
}

func TestQueue_ExecuteAll_ConcurrencyBound(t *testing.T) {
	const maxParallel = 2
	q, store := newTestQueue(t, maxParallel)
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		createTask(t, store, id, 0)
	}

	var running, peak int32
	executor := func(ctx context.Context, task *domain.Task) domain.TaskResult {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return domain.TaskResult{Success: true, Output: "ok"}
	}

	if _, err := q.ExecuteAll(context.Background(), "run-001", executor); err != nil {
		t.Fatal(err)
	}

	if p := atomic.LoadInt32(&peak); p > maxParallel {
		t.Errorf("peak concurrency = %d, want <= %d", p, maxParallel)
	}
}

func TestQueue_ExecuteAll_PriorityAcquisitionOrder(t *testing.T) {
	// With a single slot, slots are acquired in priority-descending order.
	q, store := newTestQueue(t, 1)
	createTask(t, store, "low", 1)
	createTask(t, store, "high", 9)
	createTask(t, store, "mid", 5)

	var mu sync.Mutex
	var order []string
	executor := func(ctx context.Context, task *domain.Task) domain.TaskResult {
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return domain.TaskResult{Success: true}
	}

	if _, err := q.ExecuteAll(context.Background(), "run-001", executor); err != nil {
		t.Fatal(err)
	}

	want := []string{"high", "mid", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestQueue_ExecuteAll_PanicBecomesFailure(t *testing.T) {
	q, store := newTestQueue(t, 2)
	createTask(t, store, "boomer", 0)
	createTask(t, store, "steady", 0)

	executor := func(ctx context.Context, task *domain.Task) domain.TaskResult {
		if task.ID == "boomer" {
			panic("unexpected fault")
		}
		return domain.TaskResult{Success: true, Output: "ok"}
	}

	results, err := q.ExecuteAll(context.Background(), "run-001", executor)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	boomer, _ := store.GetTask("boomer")
	if boomer.Status != domain.TaskFailed {
		t.Errorf("boomer status = %q, want failed", boomer.Status)
	}
	steady, _ := store.GetTask("steady")
	if steady.Status != domain.TaskCompleted {
		t.Errorf("steady status = %q, want completed", steady.Status)
	}
}

func TestQueue_ExecuteAll_TerminalTasksStayTerminal(t *testing.T) {
	// A second ExecuteAll over a drained run must not touch tasks that
	// already reached a terminal state.
	q, store := newTestQueue(t, 2)
	createTask(t, store, "good", 0)
	createTask(t, store, "bad", 0)

	executor := func(ctx context.Context, task *domain.Task) domain.TaskResult {
		if task.ID == "bad" {
			return domain.TaskResult{Success: false, Error: "boom"}
		}
		return domain.TaskResult{Success: true, Output: "ok"}
	}
	if _, err := q.ExecuteAll(context.Background(), "run-001", executor); err != nil {
		t.Fatal(err)
	}

	var calls int32
	counting := func(ctx context.Context, task *domain.Task) domain.TaskResult {
		atomic.AddInt32(&calls, 1)
		return domain.TaskResult{Success: true, Output: "again"}
	}
	results, err := q.ExecuteAll(context.Background(), "run-001", counting)
	if err != nil {
		t.Fatal(err)
	}

	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("executor called %d times on a drained run, want 0", n)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}

	good, _ := store.GetTask("good")
	if good.Status != domain.TaskCompleted || good.Result != "ok" {
		t.Errorf("good = %q/%q, want completed/ok", good.Status, good.Result)
	}
	bad, _ := store.GetTask("bad")
	if bad.Status != domain.TaskFailed || bad.Result != "boom" {
		t.Errorf("bad = %q/%q, want failed/boom", bad.Status, bad.Result)
	}
}

func TestQueue_ExecuteAll_SkippedTaskNeverRuns(t *testing.T) {
	// A task skipped by an external caller is never executed, and a
	// dependent of a skipped task stays pending.
	q, store := newTestQueue(t, 2)
	createTask(t, store, "manual", 0)
	createTask(t, store, "after-manual", 0, "manual")
	createTask(t, store, "free", 0)

	if err := store.UpdateTaskStatus("manual", domain.TaskSkipped); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var executed []string
	executor := func(ctx context.Context, task *domain.Task) domain.TaskResult {
		mu.Lock()
		executed = append(executed, task.ID)
		mu.Unlock()
		return domain.TaskResult{Success: true, Output: "ok"}
	}

	results, err := q.ExecuteAll(context.Background(), "run-001", executor)
	if err != nil {
		t.Fatal(err)
	}

	if len(results) != 1 || results[0].TaskID != "free" {
		t.Fatalf("results = %+v, want free only", results)
	}
	if len(executed) != 1 || executed[0] != "free" {
		t.Errorf("executed = %v, want [free]", executed)
	}

	manual, _ := store.GetTask("manual")
	if manual.Status != domain.TaskSkipped {
		t.Errorf("manual status = %q, want skipped", manual.Status)
	}
	dependent, _ := store.GetTask("after-manual")
	if dependent.Status != domain.TaskPending {
		t.Errorf("after-manual status = %q, want pending", dependent.Status)
	}
}

func TestQueue_ExecuteAll_EmptyRun(t *testing.T) {
	q, _ := newTestQueue(t, 2)

	results, err := q.ExecuteAll(context.Background(), "run-001", okExecutor)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestQueue_ExecuteAll_DiamondDependency(t *testing.T) {
	// base -> {left, right} -> top
	q, store := newTestQueue(t, 3)
	createTask(t, store, "base", 0)
	createTask(t, store, "left", 0, "base")
	createTask(t, store, "right", 0, "base")
	createTask(t, store, "top", 0, "left", "right")

	var mu sync.Mutex
	done := make(map[string]bool)
	executor := func(ctx context.Context, task *domain.Task) domain.TaskResult {
		mu.Lock()
		defer mu.Unlock()
		for _, dep := range task.Dependencies {
			if !done[dep] {
				return domain.TaskResult{Success: false, Error: "dependency " + dep + " not finished"}
			}
		}
		done[task.ID] = true
		return domain.TaskResult{Success: true, Output: "ok"}
	}

	results, err := q.ExecuteAll(context.Background(), "run-001", executor)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}
	for _, r := range results {
		if !r.Success {
			t.Errorf("task %s failed: %s", r.TaskID, r.Error)
		}
	}
}
