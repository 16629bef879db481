package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfig describes one managed project
type ProjectConfig struct {
	Name         string             `yaml:"name"`
	RepoPath     string             `yaml:"repo_path"`
	Structure    ProjectStructure   `yaml:"structure"`
	TicketSource TicketSourceConfig `yaml:"ticket_source"`
	Agents       []string           `yaml:"agents"`
	Settings     ProjectSettings    `yaml:"settings"`
}

// ProjectStructure describes the codebase so agents know what they work on
type ProjectStructure struct {
	Language   string `yaml:"language"`
	Framework  string `yaml:"framework"`
	TestRunner string `yaml:"test_runner"`
}

// TicketSourceConfig selects where project tickets come from
type TicketSourceConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// ProjectSettings holds per-project execution tuning
type ProjectSettings struct {
	MaxParallelAgents int    `yaml:"max_parallel_agents"`
	Implementer       string `yaml:"implementer"`
	DefaultLLM        string `yaml:"default_llm"`
}

func defaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Structure: ProjectStructure{
			Language: "python",
		},
		TicketSource: TicketSourceConfig{
			Type: "local_yaml",
			Path: "./tickets/",
		},
		Agents: []string{"developer", "reviewer"},
		Settings: ProjectSettings{
			MaxParallelAgents: 3,
			Implementer:       "claude_code",
			DefaultLLM:        "anthropic",
		},
	}
}

// LoadProject reads and validates a project config from a YAML file
func LoadProject(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project config: %w", err)
	}

	cfg := defaultProjectConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing project config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and clamps out-of-range settings
func (p *ProjectConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("project config is missing a name")
	}
	if p.RepoPath == "" {
		return fmt.Errorf("project %q is missing repo_path", p.Name)
	}

	repoPath := ExpandPath(p.RepoPath)
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return fmt.Errorf("resolving repo_path for %q: %w", p.Name, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("repository path does not exist: %s", abs)
	}
	p.RepoPath = abs

	if p.Settings.MaxParallelAgents < 1 {
		p.Settings.MaxParallelAgents = 1
	}
	if p.Settings.MaxParallelAgents > 20 {
		p.Settings.MaxParallelAgents = 20
	}
	return nil
}

// FindProject locates a project config by name in the projects directory.
// Both .yaml and .yml extensions are accepted.
func FindProject(name, projectsDir string) (string, error) {
	candidates := []string{
		filepath.Join(projectsDir, name+".yaml"),
		filepath.Join(projectsDir, name+".yml"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no config found for project %q in %s", name, projectsDir)
}
