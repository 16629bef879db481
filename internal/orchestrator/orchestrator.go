// Package orchestrator is the engine that ties tickets, planning, agents,
// and execution together into a single run.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/groundctl/ground-control/internal/agents"
	"github.com/groundctl/ground-control/internal/config"
	"github.com/groundctl/ground-control/internal/domain"
	"github.com/groundctl/ground-control/internal/implementer"
	"github.com/groundctl/ground-control/internal/llm"
	"github.com/groundctl/ground-control/internal/notify"
	"github.com/groundctl/ground-control/internal/planner"
	"github.com/groundctl/ground-control/internal/scheduler"
	"github.com/groundctl/ground-control/internal/statestore"
	"github.com/groundctl/ground-control/internal/tickets"
)

// Orchestrator coordinates planning, agents, and execution for one project
type Orchestrator struct {
	project  *config.ProjectConfig
	agents   *agents.Manager
	store    *statestore.Store
	llm      llm.Provider
	source   tickets.Source
	notifier notify.Notifier
	logger   *slog.Logger

	// NewImplementer resolves implementer names; tests swap it for fakes.
	NewImplementer func(name string) (implementer.Implementer, error)

	implementers map[string]implementer.Implementer
}

// New creates an Orchestrator from explicit collaborators
func New(project *config.ProjectConfig, mgr *agents.Manager, store *statestore.Store, provider llm.Provider, source tickets.Source, notifier notify.Notifier) *Orchestrator {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Orchestrator{
		project:        project,
		agents:         mgr,
		store:          store,
		llm:            provider,
		source:         source,
		notifier:       notifier,
		logger:         slog.Default(),
		NewImplementer: implementer.New,
		implementers:   make(map[string]implementer.Implementer),
	}
}

// FromProjectName builds an Orchestrator for a named project using the
// workspace configuration
func FromProjectName(projectName string, cfg *config.Config, notifier notify.Notifier) (*Orchestrator, error) {
	projectPath, err := config.FindProject(projectName, cfg.General.ProjectsDir)
	if err != nil {
		return nil, err
	}
	project, err := config.LoadProject(projectPath)
	if err != nil {
		return nil, err
	}

	mgr := agents.NewManager(cfg.General.AgentsDir)
	if _, err := mgr.LoadAll(); err != nil {
		return nil, err
	}

	store, err := statestore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(project.Settings.DefaultLLM, "", "")
	if err != nil {
		store.Close()
		return nil, err
	}

	source, err := tickets.NewSource(project.TicketSource.Type, project.TicketSource.Path)
	if err != nil {
		store.Close()
		return nil, err
	}

	return New(project, mgr, store, provider, source, notifier), nil
}

// Store exposes the underlying state store
func (o *Orchestrator) Store() *statestore.Store { return o.store }

// Close releases the orchestrator's resources
func (o *Orchestrator) Close() error { return o.store.Close() }

// Run executes a full orchestration run and returns the run ID.
//
// The run moves through planning, task creation, and execution; it ends
// completed only when every attempted task succeeded.
func (o *Orchestrator) Run(ctx context.Context) (string, error) {
	runID := "run-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	if _, err := o.store.CreateRun(runID, o.project.Name, o.project); err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}

	o.logger.Info("run started", "run", runID, "project", o.project.Name, "repo", o.project.RepoPath)

	if err := o.store.SetRunStatus(runID, domain.RunPlanning); err != nil {
		return runID, err
	}

	allTickets, err := o.source.LoadTickets(ctx)
	if err != nil {
		o.store.SetRunStatus(runID, domain.RunFailed)
		return runID, fmt.Errorf("loading tickets: %w", err)
	}

	var open []*tickets.Ticket
	for _, t := range allTickets {
		if t.Status == tickets.StatusOpen {
			open = append(open, t)
		}
	}
	o.logger.Info("tickets loaded", "run", runID, "total", len(allTickets), "open", len(open))

	if len(open) == 0 {
		o.logger.Info("no open tickets to process", "run", runID)
		return runID, o.store.SetRunStatus(runID, domain.RunCompleted)
	}

	defs := make([]*agents.Definition, 0, len(o.project.Agents))
	for _, name := range o.project.Agents {
		def, err := o.agents.Get(name)
		if err != nil {
			o.store.SetRunStatus(runID, domain.RunFailed)
			return runID, err
		}
		defs = append(defs, def)
	}

	plan := planner.New(o.llm, o.project)
	planned, err := plan.Plan(ctx, open, defs)
	if err != nil {
		o.store.SetRunStatus(runID, domain.RunFailed)
		return runID, err
	}
	o.logger.Info("tasks planned", "run", runID, "tasks", len(planned))

	for _, pt := range planned {
		_, err := o.store.CreateTask(statestore.TaskParams{
			ID:            pt.ID,
			RunID:         runID,
			TicketID:      pt.TicketID,
			Title:         pt.Title,
			Description:   pt.Description,
			AssignedAgent: pt.AssignedAgent,
			Priority:      pt.Priority,
			Dependencies:  pt.Dependencies,
		})
		if err != nil {
			o.store.SetRunStatus(runID, domain.RunFailed)
			return runID, fmt.Errorf("creating task %s: %w", pt.ID, err)
		}
	}

	if err := o.store.SetRunStatus(runID, domain.RunRunning); err != nil {
		return runID, err
	}

	queue := scheduler.New(o.store, o.project.Settings.MaxParallelAgents)
	queue.Logger = o.logger
	results, err := queue.ExecuteAll(ctx, runID, o.executeTask)
	if err != nil {
		o.store.SetRunStatus(runID, domain.RunFailed)
		return runID, err
	}

	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}

	finalStatus := domain.RunCompleted
	if failed > 0 {
		finalStatus = domain.RunFailed
	}
	if err := o.store.SetRunStatus(runID, finalStatus); err != nil {
		return runID, err
	}

	o.logger.Info("run finished", "run", runID, "status", finalStatus,
		"succeeded", succeeded, "failed", failed, "total", len(results))

	o.notifier.Send(notify.Notification{
		Title: fmt.Sprintf("Run %s %s", runID, finalStatus),
		Message: fmt.Sprintf("Project %s: %d succeeded, %d failed, %d total",
			o.project.Name, succeeded, failed, len(results)),
		Type:  notifyType(failed),
		RunID: runID,
	})

	return runID, nil
}

func notifyType(failed int) notify.NotificationType {
	if failed > 0 {
		return notify.NotifyError
	}
	return notify.NotifySuccess
}

// executeTask runs a single task through its agent's implementer, recording
// an execution row and per-task logs along the way.
func (o *Orchestrator) executeTask(ctx context.Context, task *domain.Task) domain.TaskResult {
	agentName := task.AssignedAgent
	if agentName == "" {
		agentName = "developer"
	}

	def, err := o.agents.Get(agentName)
	if err != nil {
		return domain.TaskResult{TaskID: task.ID, Success: false, Error: err.Error()}
	}

	implementerName := def.Implementer
	if implementerName == "" {
		implementerName = o.project.Settings.Implementer
	}

	prompt := o.buildPrompt(task, def)

	execID, err := o.store.CreateExecution(task.ID, task.RunID, agentName, implementerName, prompt)
	if err != nil {
		return domain.TaskResult{TaskID: task.ID, Success: false, Error: err.Error()}
	}

	o.store.AppendLog(task.ID, domain.LogInfo,
		fmt.Sprintf("Starting execution with agent %q via %q", agentName, implementerName),
		agentName, nil)

	impl, err := o.implementerFor(implementerName)
	if err != nil {
		o.store.FinishExecution(execID, domain.ExecutionFailed, "", err.Error(), nil)
		o.store.AppendLog(task.ID, domain.LogError, "Execution error: "+err.Error(), agentName, nil)
		return domain.TaskResult{TaskID: task.ID, Success: false, Error: err.Error()}
	}

	result, err := impl.Execute(ctx, prompt, o.project.RepoPath)
	if err != nil {
		o.store.FinishExecution(execID, domain.ExecutionFailed, "", err.Error(), nil)
		o.store.AppendLog(task.ID, domain.LogError, "Execution error: "+err.Error(), agentName, nil)
		return domain.TaskResult{TaskID: task.ID, Success: false, Error: err.Error()}
	}

	execStatus := domain.ExecutionCompleted
	logLevel := domain.LogInfo
	logMsg := "Execution completed"
	if !result.Success {
		execStatus = domain.ExecutionFailed
		logLevel = domain.LogError
		logMsg = "Execution failed"
	}
	o.store.FinishExecution(execID, execStatus, result.Output, result.Error, nil)
	o.store.AppendLog(task.ID, logLevel, logMsg, agentName, nil)

	return domain.TaskResult{
		TaskID:  task.ID,
		Success: result.Success,
		Output:  result.Output,
		Error:   result.Error,
	}
}

// buildPrompt combines the agent's system prompt with the task details and
// project context
func (o *Orchestrator) buildPrompt(task *domain.Task, def *agents.Definition) string {
	parts := []string{
		def.SystemPrompt,
		"",
		"---",
		"",
		"## Task: " + task.Title,
		"",
		task.Description,
		"",
		"**Project path:** " + o.project.RepoPath,
		"**Language:** " + o.project.Structure.Language,
	}
	if o.project.Structure.Framework != "" {
		parts = append(parts, "**Framework:** "+o.project.Structure.Framework)
	}
	if o.project.Structure.TestRunner != "" {
		parts = append(parts, "**Test runner:** "+o.project.Structure.TestRunner)
	}
	return strings.Join(parts, "\n")
}

func (o *Orchestrator) implementerFor(name string) (implementer.Implementer, error) {
	if impl, ok := o.implementers[name]; ok {
		return impl, nil
	}
	impl, err := o.NewImplementer(name)
	if err != nil {
		return nil, err
	}
	o.implementers[name] = impl
	return impl, nil
}
