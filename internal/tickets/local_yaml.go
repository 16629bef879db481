package tickets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// LocalYAML loads tickets from YAML files in a local directory.
//
// Two layouts are supported: a single tickets.yaml holding a list, or one
// file per ticket. Files may contain a bare ticket mapping, a list of
// tickets, or a mapping with a top-level "tickets" list.
type LocalYAML struct {
	path string
}

// NewLocalYAML creates a source reading from dir
func NewLocalYAML(dir string) *LocalYAML {
	return &LocalYAML{path: dir}
}

// LoadTickets reads every YAML file in the directory. When the same ticket
// id appears in multiple files, the first occurrence wins.
func (s *LocalYAML) LoadTickets(ctx context.Context) ([]*Ticket, error) {
	files, err := s.allYAMLFiles()
	if err != nil {
		return nil, err
	}

	var all []*Ticket
	for _, file := range files {
		loaded, err := loadTicketFile(file)
		if err != nil {
			return nil, fmt.Errorf("loading tickets from %s: %w", file, err)
		}
		all = append(all, loaded...)
	}

	seen := make(map[string]bool, len(all))
	unique := all[:0]
	for _, t := range all {
		if !seen[t.ID] {
			seen[t.ID] = true
			unique = append(unique, t)
		}
	}
	return unique, nil
}

// GetTicket returns the ticket with the given id, or ErrTicketNotFound
func (s *LocalYAML) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	all, err := s.LoadTickets(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range all {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("ticket %q: %w", id, ErrTicketNotFound)
}

// UpdateTicketStatus rewrites the file containing the ticket with the new
// status
func (s *LocalYAML) UpdateTicketStatus(ctx context.Context, id string, status Status) error {
	files, err := s.allYAMLFiles()
	if err != nil {
		return err
	}
	for _, file := range files {
		updated, err := updateStatusInFile(file, id, status)
		if err != nil {
			return err
		}
		if updated {
			return nil
		}
	}
	return fmt.Errorf("ticket %q: %w", id, ErrTicketNotFound)
}

// allYAMLFiles lists the directory's YAML files with tickets.yaml first,
// then the remaining .yaml files sorted, then .yml files sorted.
func (s *LocalYAML) allYAMLFiles() ([]string, error) {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var yamls, ymls []string
	hasIndex := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml":
			if entry.Name() == "tickets.yaml" {
				hasIndex = true
				continue
			}
			yamls = append(yamls, filepath.Join(s.path, entry.Name()))
		case ".yml":
			ymls = append(ymls, filepath.Join(s.path, entry.Name()))
		}
	}
	sort.Strings(yamls)
	sort.Strings(ymls)

	var files []string
	if hasIndex {
		files = append(files, filepath.Join(s.path, "tickets.yaml"))
	}
	files = append(files, yamls...)
	files = append(files, ymls...)
	return files, nil
}

func loadTicketFile(path string) ([]*Ticket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// A file may hold a list, a {tickets: [...]} mapping, or one ticket.
	var asList []*Ticket
	if err := yaml.Unmarshal(data, &asList); err == nil {
		return fillDefaults(asList), nil
	}

	var asDoc struct {
		Tickets []*Ticket `yaml:"tickets"`
	}
	if err := yaml.Unmarshal(data, &asDoc); err == nil && asDoc.Tickets != nil {
		return fillDefaults(asDoc.Tickets), nil
	}

	var single Ticket
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	if single.ID == "" && single.Title == "" {
		return nil, nil
	}
	return fillDefaults([]*Ticket{&single}), nil
}

func fillDefaults(ts []*Ticket) []*Ticket {
	for _, t := range ts {
		if t.Priority == "" {
			t.Priority = PriorityMedium
		}
		if t.Status == "" {
			t.Status = StatusOpen
		}
	}
	return ts
}

// updateStatusInFile sets the status of the ticket inside one YAML file,
// preserving the file's layout. Returns false when the ticket is not in
// this file.
func updateStatusInFile(path, id string, status Status) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false, err
	}
	if doc == nil {
		return false, nil
	}

	if !setStatus(doc, id, status) {
		return false, nil
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return false, err
	}
	return true, os.WriteFile(path, out, 0644)
}

func setStatus(doc any, id string, status Status) bool {
	switch v := doc.(type) {
	case []any:
		for _, item := range v {
			if setStatus(item, id, status) {
				return true
			}
		}
	case map[string]any:
		if list, ok := v["tickets"]; ok {
			return setStatus(list, id, status)
		}
		if fmt.Sprint(v["id"]) == id {
			v["status"] = string(status)
			return true
		}
	}
	return false
}
