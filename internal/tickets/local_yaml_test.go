package tickets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLocalYAML_SingleIndexFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tickets.yaml", `
tickets:
  - id: T-1
    title: First ticket
    description: Do the first thing
    priority: high
    dependencies: [T-0]
    acceptance_criteria:
      - it works
  - id: T-2
    title: Second ticket
`)

	src := NewLocalYAML(dir)
	ts, err := src.LoadTickets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ts) != 2 {
		t.Fatalf("loaded %d tickets, want 2", len(ts))
	}

	first := ts[0]
	if first.ID != "T-1" || first.Priority != PriorityHigh {
		t.Errorf("first = %+v", first)
	}
	if len(first.Dependencies) != 1 || first.Dependencies[0] != "T-0" {
		t.Errorf("Dependencies = %v", first.Dependencies)
	}
	if len(first.AcceptanceCriteria) != 1 {
		t.Errorf("AcceptanceCriteria = %v", first.AcceptanceCriteria)
	}

	// Defaults applied to unset fields.
	second := ts[1]
	if second.Priority != PriorityMedium || second.Status != StatusOpen {
		t.Errorf("second defaults = %s/%s", second.Priority, second.Status)
	}
}

func TestLocalYAML_OneFilePerTicket(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "id: T-a\ntitle: Alpha\n")
	writeFile(t, dir, "b.yml", "id: T-b\ntitle: Beta\nstatus: done\n")

	src := NewLocalYAML(dir)
	ts, err := src.LoadTickets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ts) != 2 {
		t.Fatalf("loaded %d tickets, want 2", len(ts))
	}
	if ts[0].ID != "T-a" || ts[1].ID != "T-b" {
		t.Errorf("order = %s, %s", ts[0].ID, ts[1].ID)
	}
	if ts[1].Status != StatusDone {
		t.Errorf("T-b status = %s, want done", ts[1].Status)
	}
}

func TestLocalYAML_DuplicateIDsFirstWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tickets.yaml", "tickets:\n  - id: T-1\n    title: From index\n")
	writeFile(t, dir, "extra.yaml", "id: T-1\ntitle: From extra\n")

	src := NewLocalYAML(dir)
	ts, err := src.LoadTickets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ts) != 1 {
		t.Fatalf("loaded %d tickets, want 1", len(ts))
	}
	if ts[0].Title != "From index" {
		t.Errorf("Title = %q, want From index", ts[0].Title)
	}
}

func TestLocalYAML_MissingDir(t *testing.T) {
	src := NewLocalYAML(filepath.Join(t.TempDir(), "nope"))
	ts, err := src.LoadTickets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ts) != 0 {
		t.Errorf("loaded %d tickets, want 0", len(ts))
	}
}

func TestLocalYAML_GetTicket(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "id: T-a\ntitle: Alpha\n")

	src := NewLocalYAML(dir)
	ticket, err := src.GetTicket(context.Background(), "T-a")
	if err != nil {
		t.Fatal(err)
	}
	if ticket.Title != "Alpha" {
		t.Errorf("Title = %q", ticket.Title)
	}

	_, err = src.GetTicket(context.Background(), "T-z")
	if !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("err = %v, want ErrTicketNotFound", err)
	}
}

func TestLocalYAML_UpdateTicketStatus(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tickets.yaml", `
tickets:
  - id: T-1
    title: First
    status: open
  - id: T-2
    title: Second
    status: open
`)

	src := NewLocalYAML(dir)
	ctx := context.Background()
	if err := src.UpdateTicketStatus(ctx, "T-2", StatusInProgress); err != nil {
		t.Fatal(err)
	}

	ticket, err := src.GetTicket(ctx, "T-2")
	if err != nil {
		t.Fatal(err)
	}
	if ticket.Status != StatusInProgress {
		t.Errorf("status = %s, want in_progress", ticket.Status)
	}

	// The sibling ticket is untouched.
	other, _ := src.GetTicket(ctx, "T-1")
	if other.Status != StatusOpen {
		t.Errorf("T-1 status = %s, want open", other.Status)
	}
}

func TestLocalYAML_UpdateTicketStatus_SingleTicketFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "id: T-a\ntitle: Alpha\nstatus: open\n")

	src := NewLocalYAML(dir)
	ctx := context.Background()
	if err := src.UpdateTicketStatus(ctx, "T-a", StatusDone); err != nil {
		t.Fatal(err)
	}
	ticket, _ := src.GetTicket(ctx, "T-a")
	if ticket.Status != StatusDone {
		t.Errorf("status = %s, want done", ticket.Status)
	}
}

func TestLocalYAML_UpdateTicketStatus_Unknown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "id: T-a\ntitle: Alpha\n")

	src := NewLocalYAML(dir)
	err := src.UpdateTicketStatus(context.Background(), "T-z", StatusDone)
	if !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("err = %v, want ErrTicketNotFound", err)
	}
}

func TestNewSource(t *testing.T) {
	src, err := NewSource("local_yaml", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*LocalYAML); !ok {
		t.Errorf("src = %T, want *LocalYAML", src)
	}

	if _, err := NewSource("jira", ""); err == nil {
		t.Error("expected error for unknown source type")
	}
}

func TestPriority_Weight(t *testing.T) {
	tests := []struct {
		p    Priority
		want int
	}{
		{PriorityHigh, 10},
		{PriorityMedium, 5},
		{PriorityLow, 1},
		{Priority(""), 5},
	}
	for _, tt := range tests {
		if got := tt.p.Weight(); got != tt.want {
			t.Errorf("Weight(%q) = %d, want %d", tt.p, got, tt.want)
		}
	}
}
