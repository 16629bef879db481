// Package planner decomposes tickets into atomic tasks using an LLM.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/groundctl/ground-control/internal/agents"
	"github.com/groundctl/ground-control/internal/config"
	"github.com/groundctl/ground-control/internal/llm"
	"github.com/groundctl/ground-control/internal/tickets"
)

// PlannedTask is a single atomic task produced by the planner
type PlannedTask struct {
	ID            string
	Title         string
	Description   string
	AssignedAgent string
	Priority      int
	Dependencies  []string
	TicketID      string
}

const systemPromptTemplate = `You are a project planning AI. Given a list of tickets and available agents, decompose each ticket into atomic, implementable tasks and assign them to the most appropriate agent.

Rules:
- Each task must be small enough for a single agent to complete in one session
- Tasks can have dependencies on other tasks (use task IDs)
- Assign each task to exactly one agent based on their capabilities
- Set priority: higher number = higher priority (0-10)
- Return valid JSON only

Available agents and their capabilities:
%s

Project context:
- Language: %s
- Framework: %s
- Test runner: %s`

const userPromptTemplate = `Decompose these tickets into atomic tasks:

%s

Respond with a JSON object:
{
  "tasks": [
    {
      "id": "task-<short-uuid>",
      "title": "Brief task title",
      "description": "Detailed description of what to do",
      "assigned_agent": "<agent-name>",
      "priority": <0-10>,
      "dependencies": ["task-id-1"],
      "ticket_id": "<original-ticket-id>"
    }
  ]
}`

// Planner uses an LLM to decompose tickets into tasks assigned to agents
type Planner struct {
	llm     llm.Provider
	project *config.ProjectConfig
}

// New creates a Planner for the given project
func New(provider llm.Provider, project *config.ProjectConfig) *Planner {
	return &Planner{llm: provider, project: project}
}

// Plan produces tasks for the given tickets. An empty ticket list yields an
// empty plan without calling the model.
func (p *Planner) Plan(ctx context.Context, ts []*tickets.Ticket, defs []*agents.Definition) ([]*PlannedTask, error) {
	if len(ts) == 0 {
		return nil, nil
	}

	ticketsJSON, err := formatTickets(ts)
	if err != nil {
		return nil, err
	}

	framework := p.project.Structure.Framework
	if framework == "" {
		framework = "none"
	}
	testRunner := p.project.Structure.TestRunner
	if testRunner == "" {
		testRunner = "none"
	}

	system := fmt.Sprintf(systemPromptTemplate,
		formatAgents(defs),
		p.project.Structure.Language,
		framework,
		testRunner,
	)
	user := fmt.Sprintf(userPromptTemplate, ticketsJSON)

	result, err := p.llm.CompleteJSON(ctx,
		[]llm.Message{{Role: "user", Content: user}},
		llm.Options{System: system, Temperature: 0.2, MaxTokens: 8192},
	)
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}

	return parsePlan(result)
}

func formatAgents(defs []*agents.Definition) string {
	lines := make([]string, 0, len(defs))
	for _, a := range defs {
		caps := "general"
		if len(a.Capabilities) > 0 {
			caps = strings.Join(a.Capabilities, ", ")
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): capabilities=[%s]", a.Name, a.Role, caps))
	}
	return strings.Join(lines, "\n")
}

func formatTickets(ts []*tickets.Ticket) (string, error) {
	type item struct {
		ID                 string   `json:"id"`
		Title              string   `json:"title"`
		Description        string   `json:"description"`
		Priority           string   `json:"priority"`
		AcceptanceCriteria []string `json:"acceptance_criteria"`
		Dependencies       []string `json:"dependencies"`
	}

	items := make([]item, 0, len(ts))
	for _, t := range ts {
		items = append(items, item{
			ID:                 t.ID,
			Title:              t.Title,
			Description:        t.Description,
			Priority:           string(t.Priority),
			AcceptanceCriteria: t.AcceptanceCriteria,
			Dependencies:       t.Dependencies,
		})
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parsePlan extracts planned tasks from the model's JSON output. Missing
// fields get safe defaults so one sloppy entry does not sink the plan.
func parsePlan(data map[string]any) ([]*PlannedTask, error) {
	rawTasks, ok := data["tasks"].([]any)
	if !ok {
		return nil, fmt.Errorf("plan output has no tasks list")
	}

	planned := make([]*PlannedTask, 0, len(rawTasks))
	for _, raw := range rawTasks {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		id := stringField(entry, "id")
		if id == "" {
			id = "task-" + uuid.NewString()[:8]
		}
		title := stringField(entry, "title")
		if title == "" {
			title = "Untitled task"
		}
		agent := stringField(entry, "assigned_agent")
		if agent == "" {
			agent = "developer"
		}

		planned = append(planned, &PlannedTask{
			ID:            id,
			Title:         title,
			Description:   stringField(entry, "description"),
			AssignedAgent: agent,
			Priority:      intField(entry, "priority"),
			Dependencies:  stringSliceField(entry, "dependencies"),
			TicketID:      stringField(entry, "ticket_id"),
		})
	}
	return planned, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
