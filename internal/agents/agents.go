// Package agents loads agent definitions from Markdown files with YAML
// frontmatter. The frontmatter carries the agent's identity and tooling,
// the Markdown body is its system prompt.
package agents

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is a parsed agent definition from a .md file
type Definition struct {
	Name         string
	Role         string
	LLMProvider  string
	LLMModel     string
	Implementer  string
	Capabilities []string
	SystemPrompt string
	SourcePath   string
}

type frontmatter struct {
	Name         string   `yaml:"name"`
	Role         string   `yaml:"role"`
	LLMProvider  string   `yaml:"llm_provider"`
	LLMModel     string   `yaml:"llm_model"`
	Implementer  string   `yaml:"implementer"`
	Capabilities []string `yaml:"capabilities"`
}

// Manager loads agent definitions from a directory of .md files
type Manager struct {
	agentsDir string
	agents    map[string]*Definition
}

// NewManager creates a Manager reading from agentsDir. Definitions are
// loaded lazily on first access.
func NewManager(agentsDir string) *Manager {
	return &Manager{agentsDir: agentsDir}
}

// LoadAll reads every .md file in the agents directory
func (m *Manager) LoadAll() (map[string]*Definition, error) {
	entries, err := os.ReadDir(m.agentsDir)
	if err != nil {
		return nil, fmt.Errorf("agents directory not found: %s", m.agentsDir)
	}

	m.agents = make(map[string]*Definition)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		path := filepath.Join(m.agentsDir, entry.Name())
		agent, err := parseAgentFile(path)
		if err != nil {
			return nil, fmt.Errorf("parsing agent %s: %w", entry.Name(), err)
		}
		m.agents[agent.Name] = agent
	}
	return m.agents, nil
}

// Get returns a loaded agent by name
func (m *Manager) Get(name string) (*Definition, error) {
	if m.agents == nil {
		if _, err := m.LoadAll(); err != nil {
			return nil, err
		}
	}
	agent, ok := m.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent %q not found, available: %v", name, m.names())
	}
	return agent, nil
}

// List returns all loaded agents sorted by name
func (m *Manager) List() ([]*Definition, error) {
	if m.agents == nil {
		if _, err := m.LoadAll(); err != nil {
			return nil, err
		}
	}
	list := make([]*Definition, 0, len(m.agents))
	for _, a := range m.agents {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *Manager) names() []string {
	names := make([]string, 0, len(m.agents))
	for n := range m.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func parseAgentFile(path string) (*Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fm, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}

	name := fm.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".md")
	}
	role := fm.Role
	if role == "" {
		role = titleCase(strings.ReplaceAll(name, "-", " "))
	}
	provider := fm.LLMProvider
	if provider == "" {
		provider = "anthropic"
	}

	return &Definition{
		Name:         name,
		Role:         role,
		LLMProvider:  provider,
		LLMModel:     fm.LLMModel,
		Implementer:  fm.Implementer,
		Capabilities: fm.Capabilities,
		SystemPrompt: strings.TrimSpace(string(body)),
		SourcePath:   path,
	}, nil
}

// splitFrontmatter extracts YAML frontmatter from markdown content.
// Content without a frontmatter block is returned unchanged.
func splitFrontmatter(content []byte) (*frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &frontmatter{}, content, nil
	}

	rest := content[4:]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return &frontmatter{}, content, nil
	}

	fmData := rest[:endIdx]
	remaining := rest[endIdx+4:]

	var fm frontmatter
	if err := yaml.Unmarshal(fmData, &fm); err != nil {
		return nil, nil, err
	}
	return &fm, bytes.TrimLeft(remaining, "\n"), nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
