// Package scheduler drives every task in a run to a terminal state,
// respecting dependency order and a fixed concurrency bound. It keeps no
// scheduling state of its own: readiness is recomputed from the store on
// every cycle, so a task snapshot is never trusted across iterations.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/groundctl/ground-control/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is how long the loop sleeps when no task is ready but
// some are still in flight.
const DefaultPollInterval = 500 * time.Millisecond

// Store is the slice of the state store the scheduler needs
type Store interface {
	ReadyTasks(runID string) ([]*domain.Task, error)
	ListTasks(runID string) ([]*domain.Task, error)
	UpdateTaskStatus(id string, status domain.TaskStatus) error
	UpdateTaskStatusResult(id string, status domain.TaskStatus, result string) error
}

// Executor performs the actual work for one task. Failures are reported
// through the returned TaskResult, never as panics; a panic that does escape
// is recorded as a failed outcome.
type Executor func(ctx context.Context, task *domain.Task) domain.TaskResult

// Queue executes the tasks of a run in dependency order with bounded
// parallelism. The concurrency bound lives in process memory only: after a
// crash mid-run, tasks left queued/running in the store must be resolved
// externally before ExecuteAll can make progress again.
type Queue struct {
	store       Store
	maxParallel int

	// PollInterval is the idle wait between readiness polls. Tests set it
	// near zero.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// New creates a Queue executing at most maxParallel tasks at once
func New(store Store, maxParallel int) *Queue {
	return &Queue{
		store:        store,
		maxParallel:  maxParallel,
		PollInterval: DefaultPollInterval,
		Logger:       slog.Default(),
	}
}

// ExecuteAll runs every task of the run to a terminal state and returns the
// outcomes of all tasks that were attempted. Tasks permanently starved by a
// failed, skipped, or missing dependency stay pending and are excluded from
// the result; RunSummary accounts for them.
//
// A task failure is isolated to that task. A store failure aborts the loop
// and propagates.
func (q *Queue) ExecuteAll(ctx context.Context, runID string, executor Executor) ([]domain.TaskResult, error) {
	var (
		mu      sync.Mutex
		results []domain.TaskResult
	)

	for {
		ready, err := q.store.ReadyTasks(runID)
		if err != nil {
			return nil, err
		}

		if len(ready) == 0 {
			inFlight, err := q.hasInFlight(runID)
			if err != nil {
				return nil, err
			}
			if !inFlight {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(q.PollInterval):
			}
			continue
		}

		// Commit the whole batch as queued before any execution starts, so
		// a concurrent reader never sees a running task that was not first
		// visible as queued.
		for _, task := range ready {
			if err := q.store.UpdateTaskStatus(task.ID, domain.TaskQueued); err != nil {
				return nil, err
			}
		}

		// Launch in list order (priority desc, creation asc): g.Go blocks
		// once maxParallel tasks are running, so under contention slots go
		// to higher-priority tasks first.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(q.maxParallel)
		for _, task := range ready {
			task := task
			g.Go(func() error {
				result, err := q.runOne(gctx, task, executor)
				if err != nil {
					return err
				}
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
				return nil
			})
		}

		// The next readiness query waits for the full batch to drain; a
		// slot freed mid-batch is not back-filled until the next cycle.
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func (q *Queue) hasInFlight(runID string) (bool, error) {
	tasks, err := q.store.ListTasks(runID)
	if err != nil {
		return false, err
	}
	for _, t := range tasks {
		if t.Status == domain.TaskQueued || t.Status == domain.TaskRunning {
			return true, nil
		}
	}
	return false, nil
}

func (q *Queue) runOne(ctx context.Context, task *domain.Task, executor Executor) (domain.TaskResult, error) {
	if err := q.store.UpdateTaskStatus(task.ID, domain.TaskRunning); err != nil {
		return domain.TaskResult{}, err
	}
	q.Logger.Info("task started", "task", task.ID, "title", task.Title)

	result := invoke(ctx, task, executor)

	if result.Success {
		if err := q.store.UpdateTaskStatusResult(task.ID, domain.TaskCompleted, result.Output); err != nil {
			return domain.TaskResult{}, err
		}
		q.Logger.Info("task completed", "task", task.ID)
	} else {
		if err := q.store.UpdateTaskStatusResult(task.ID, domain.TaskFailed, result.Error); err != nil {
			return domain.TaskResult{}, err
		}
		q.Logger.Warn("task failed", "task", task.ID, "error", result.Error)
	}
	return result, nil
}

// invoke calls the executor, converting a panic into a failed outcome so one
// misbehaving task cannot take down the run.
func invoke(ctx context.Context, task *domain.Task, executor Executor) (result domain.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.TaskResult{
				TaskID:  task.ID,
				Success: false,
				Error:   fmt.Sprintf("executor panic: %v", r),
			}
		}
	}()

	result = executor(ctx, task)
	result.TaskID = task.ID
	return result
}
