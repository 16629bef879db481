package statestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/groundctl/ground-control/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for runs, tasks, logs, and
// executions. It is the single source of truth for scheduling decisions:
// every write is committed before the call returns.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
// Use ":memory:" for an ephemeral store in tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer at a time; serialize access through a single
	// connection so concurrent task goroutines queue instead of failing
	// with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// ── Runs ──────────────────────────────────────────────────────────────

// CreateRun inserts a new run with status pending. configSnapshot, if
// non-nil, is stored as JSON alongside the run.
func (s *Store) CreateRun(id, projectName string, configSnapshot any) (*domain.Run, error) {
	now := time.Now().UTC()

	var snapshot sql.NullString
	if configSnapshot != nil {
		data, err := json.Marshal(configSnapshot)
		if err != nil {
			return nil, fmt.Errorf("marshaling config snapshot: %w", err)
		}
		snapshot = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, project_name, status, config_snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, projectName, string(domain.RunPending), snapshot, now, now)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("run %q: %w", id, ErrDuplicateKey)
		}
		return nil, err
	}

	return &domain.Run{
		ID:             id,
		ProjectName:    projectName,
		Status:         domain.RunPending,
		ConfigSnapshot: snapshot.String,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// SetRunStatus updates a run's status. The store does not validate
// transition legality; it is a ledger, not a state machine.
func (s *Store) SetRunStatus(id string, status domain.RunStatus) error {
	res, err := s.db.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return checkFound(res, "run", id)
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*domain.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, project_name, status, config_snapshot, created_at, updated_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs, optionally filtered by project name
func (s *Store) ListRuns(projectName string, limit int) ([]*domain.Run, error) {
	query := `SELECT id, project_name, status, config_snapshot, created_at, updated_at FROM runs`
	var args []any
	if projectName != "" {
		query += " WHERE project_name = ?"
		args = append(args, projectName)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ── Tasks ─────────────────────────────────────────────────────────────

// TaskParams holds the fields for creating a task
type TaskParams struct {
	ID            string
	RunID         string
	Title         string
	Description   string
	TicketID      string
	AssignedAgent string
	Priority      int
	Dependencies  []string
}

// CreateTask inserts a new task with status pending
func (s *Store) CreateTask(p TaskParams) (*domain.Task, error) {
	now := time.Now().UTC()

	deps := p.Dependencies
	if deps == nil {
		deps = []string{}
	}
	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`
		INSERT INTO tasks
			(id, run_id, ticket_id, title, description, assigned_agent, status, priority, dependencies, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.RunID, nullable(p.TicketID), p.Title, p.Description,
		nullable(p.AssignedAgent), string(domain.TaskPending), p.Priority,
		string(depsJSON), now, now,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("task %q: %w", p.ID, ErrDuplicateKey)
		}
		return nil, err
	}

	return &domain.Task{
		ID:            p.ID,
		RunID:         p.RunID,
		TicketID:      p.TicketID,
		Title:         p.Title,
		Description:   p.Description,
		AssignedAgent: p.AssignedAgent,
		Status:        domain.TaskPending,
		Priority:      p.Priority,
		Dependencies:  deps,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// UpdateTaskStatus updates a task's status, leaving its result untouched
func (s *Store) UpdateTaskStatus(id string, status domain.TaskStatus) error {
	res, err := s.db.Exec(`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return checkFound(res, "task", id)
}

// UpdateTaskStatusResult updates a task's status and stores its result
// (success output or failure reason).
func (s *Store) UpdateTaskStatusResult(id string, status domain.TaskStatus, result string) error {
	res, err := s.db.Exec(`UPDATE tasks SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		string(status), result, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return checkFound(res, "task", id)
}

// GetTask retrieves a task by ID
func (s *Store) GetTask(id string) (*domain.Task, error) {
	row := s.db.QueryRow(taskColumns+` FROM tasks WHERE id = ?`, id)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	return task, err
}

// ListTasks returns all tasks for a run, ordered by priority descending then
// creation time ascending. The scheduler acquires concurrency slots in this
// order.
func (s *Store) ListTasks(runID string) ([]*domain.Task, error) {
	rows, err := s.db.Query(taskColumns+`
		FROM tasks WHERE run_id = ?
		ORDER BY priority DESC, created_at ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ReadyTasks returns every pending task in the run whose dependencies are
// all completed. A task naming a dependency that can never complete (failed,
// skipped, or nonexistent) is never returned.
func (s *Store) ReadyTasks(runID string) ([]*domain.Task, error) {
	tasks, err := s.ListTasks(runID)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]bool)
	for _, t := range tasks {
		if t.Status == domain.TaskCompleted {
			completed[t.ID] = true
		}
	}

	var ready []*domain.Task
	for _, t := range tasks {
		if t.Ready(completed) {
			ready = append(ready, t)
		}
	}
	return ready, nil
}

// ── Task Logs ─────────────────────────────────────────────────────────

// AppendLog attaches an immutable log entry to a task. Logs are for
// observability only; the scheduler never reads them.
func (s *Store) AppendLog(taskID, level, message, agentName string, metadata map[string]any) error {
	var meta sql.NullString
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		meta = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO task_logs (task_id, agent_name, level, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, taskID, nullable(agentName), level, message, meta, time.Now().UTC())
	if err != nil && isForeignKeyViolation(err) {
		return fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}
	return err
}

// GetLogs returns all log entries for a task in creation order
func (s *Store) GetLogs(taskID string) ([]*domain.LogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, agent_name, level, message, metadata, created_at
		FROM task_logs WHERE task_id = ? ORDER BY id ASC
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		var agentName, meta sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskID, &agentName, &e.Level, &e.Message, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.AgentName = agentName.String
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, err
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ── Agent Executions ──────────────────────────────────────────────────

// CreateExecution records the start of one task execution attempt and
// returns its id.
func (s *Store) CreateExecution(taskID, runID, agentName, implementer, inputPrompt string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO agent_executions (task_id, run_id, agent_name, implementer, status, input_prompt, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, taskID, runID, agentName, nullable(implementer), domain.ExecutionRunning, nullable(inputPrompt), time.Now().UTC())
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("task %q: %w", taskID, ErrNotFound)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// FinishExecution records the outcome of an execution attempt
func (s *Store) FinishExecution(id int64, status, output, errMsg string, tokens map[string]int) error {
	var tokensJSON sql.NullString
	if tokens != nil {
		data, err := json.Marshal(tokens)
		if err != nil {
			return err
		}
		tokensJSON = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.Exec(`
		UPDATE agent_executions SET status = ?, output = ?, error = ?, tokens_used = ?, finished_at = ?
		WHERE id = ?
	`, status, nullable(output), nullable(errMsg), tokensJSON, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return checkFound(res, "execution", fmt.Sprint(id))
}

// ListExecutions returns all execution records for a task, oldest first
func (s *Store) ListExecutions(taskID string) ([]*domain.Execution, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, run_id, agent_name, implementer, status, input_prompt, output, error, tokens_used, started_at, finished_at
		FROM agent_executions WHERE task_id = ? ORDER BY id ASC
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*domain.Execution
	for rows.Next() {
		var e domain.Execution
		var implementer, prompt, output, errMsg, tokens sql.NullString
		var started, finished sql.NullTime
		if err := rows.Scan(&e.ID, &e.TaskID, &e.RunID, &e.AgentName, &implementer, &e.Status,
			&prompt, &output, &errMsg, &tokens, &started, &finished); err != nil {
			return nil, err
		}
		e.Implementer = implementer.String
		e.InputPrompt = prompt.String
		e.Output = output.String
		e.Error = errMsg.String
		if tokens.Valid {
			if err := json.Unmarshal([]byte(tokens.String), &e.TokensUsed); err != nil {
				return nil, err
			}
		}
		if started.Valid {
			t := started.Time
			e.StartedAt = &t
		}
		if finished.Valid {
			t := finished.Time
			e.FinishedAt = &t
		}
		execs = append(execs, &e)
	}
	return execs, rows.Err()
}

// ── Summary ───────────────────────────────────────────────────────────

// RunSummary returns a read-only aggregate of a run and its tasks for
// reporting. The scheduling loop never calls it.
func (s *Store) RunSummary(runID string) (*domain.RunSummary, error) {
	run, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}

	tasks, err := s.ListTasks(runID)
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.TaskStatus]int)
	for _, t := range tasks {
		counts[t.Status]++
	}

	return &domain.RunSummary{
		Run:          run,
		Tasks:        tasks,
		TotalTasks:   len(tasks),
		StatusCounts: counts,
	}, nil
}

// ── Maintenance ───────────────────────────────────────────────────────

// PruneRunsBefore deletes runs created before the cutoff, together with
// their tasks, logs, and execution records. The core never deletes; this
// exists for external maintenance only. Returns the number of runs removed.
func (s *Store) PruneRunsBefore(cutoff time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM task_logs WHERE task_id IN
			(SELECT id FROM tasks WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?))
	`, cutoff); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`
		DELETE FROM agent_executions WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)
	`, cutoff); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`
		DELETE FROM tasks WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)
	`, cutoff); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return removed, tx.Commit()
}

// ── Scan helpers ──────────────────────────────────────────────────────

const taskColumns = `SELECT id, run_id, ticket_id, title, description, assigned_agent, status, priority, dependencies, result, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var status string
	var snapshot sql.NullString

	err := row.Scan(&run.ID, &run.ProjectName, &status, &snapshot, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	run.ConfigSnapshot = snapshot.String
	return &run, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var status, depsJSON string
	var ticketID, agent, result sql.NullString

	err := row.Scan(&task.ID, &task.RunID, &ticketID, &task.Title, &task.Description,
		&agent, &status, &task.Priority, &depsJSON, &result, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}

	task.TicketID = ticketID.String
	task.AssignedAgent = agent.String
	task.Status = domain.TaskStatus(status)
	task.Result = result.String

	if err := json.Unmarshal([]byte(depsJSON), &task.Dependencies); err != nil {
		return nil, fmt.Errorf("task %s: parsing dependencies: %w", task.ID, err)
	}
	return &task, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func checkFound(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	return nil
}
