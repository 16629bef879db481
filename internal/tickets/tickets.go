// Package tickets provides the work items that planning turns into tasks.
// Sources abstract over where tickets live; the default reads YAML files
// from a local directory.
package tickets

import (
	"context"
	"errors"
	"fmt"
)

// ErrTicketNotFound is returned when a ticket id is unknown to the source
var ErrTicketNotFound = errors.New("ticket not found")

// Status of a ticket in its source
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Priority of a ticket
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Weight maps a priority onto the numeric scale the scheduler orders by
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 10
	case PriorityLow:
		return 1
	default:
		return 5
	}
}

// Ticket is a work item to be processed by agents
type Ticket struct {
	ID                 string         `yaml:"id"`
	Title              string         `yaml:"title"`
	Description        string         `yaml:"description"`
	Priority           Priority       `yaml:"priority"`
	Status             Status         `yaml:"status"`
	Labels             []string       `yaml:"labels"`
	Dependencies       []string       `yaml:"dependencies"`
	AcceptanceCriteria []string       `yaml:"acceptance_criteria"`
	Metadata           map[string]any `yaml:"metadata"`
}

// Source loads tickets from some backing store
type Source interface {
	LoadTickets(ctx context.Context) ([]*Ticket, error)
	GetTicket(ctx context.Context, id string) (*Ticket, error)
	UpdateTicketStatus(ctx context.Context, id string, status Status) error
}

// NewSource creates a ticket source by type name
func NewSource(sourceType, path string) (Source, error) {
	switch sourceType {
	case "local_yaml":
		return NewLocalYAML(path), nil
	default:
		return nil, fmt.Errorf("unknown ticket source: %q (available: local_yaml)", sourceType)
	}
}
