// Package implementer wraps the CLI coding tools that actually write code
// in a project checkout.
package implementer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// DefaultTimeout bounds a single implementer invocation
const DefaultTimeout = 10 * time.Minute

// Result of one implementer execution
type Result struct {
	Success bool
	Output  string
	Error   string
}

// Implementer executes a coding task inside a project repository
type Implementer interface {
	// Execute runs the tool with the full prompt in the project directory.
	// Tool failures are reported through the Result, not the error.
	Execute(ctx context.Context, prompt, projectPath string) (*Result, error)
	// Available reports whether the tool's CLI is installed.
	Available() bool
	// Name identifies the implementer in config and logs.
	Name() string
}

// New creates an implementer by name
func New(name string) (Implementer, error) {
	switch name {
	case "claude_code":
		return &ClaudeCode{Timeout: DefaultTimeout}, nil
	case "cursor_cli":
		return &CursorCLI{Timeout: DefaultTimeout}, nil
	default:
		return nil, fmt.Errorf("unknown implementer: %q (available: claude_code, cursor_cli)", name)
	}
}

// runCommand executes the tool with a timeout, capturing stdout and stderr
// separately. A non-zero exit becomes a failed Result.
func runCommand(ctx context.Context, timeout time.Duration, dir, name string, args ...string) *Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return &Result{
			Success: false,
			Output:  stdout.String(),
			Error:   fmt.Sprintf("%s timed out after %s", name, timeout),
		}
	}
	if err != nil {
		return &Result{
			Success: false,
			Output:  stdout.String(),
			Error:   fmt.Sprintf("%s failed: %v: %s", name, err, stderr.String()),
		}
	}
	return &Result{Success: true, Output: stdout.String()}
}

// ClaudeCode executes tasks via the Claude Code CLI
type ClaudeCode struct {
	Timeout time.Duration
}

func (c *ClaudeCode) Name() string { return "claude_code" }

func (c *ClaudeCode) Available() bool {
	_, err := exec.LookPath("claude")
	return err == nil
}

func (c *ClaudeCode) Execute(ctx context.Context, prompt, projectPath string) (*Result, error) {
	if !c.Available() {
		return &Result{
			Success: false,
			Error:   "Claude Code CLI not found. Install it: npm install -g @anthropic-ai/claude-code",
		}, nil
	}
	return runCommand(ctx, c.Timeout, projectPath, "claude",
		"-p", prompt,
		"--output-format", "text",
		"--max-turns", "50",
		"--dangerously-skip-permissions",
	), nil
}

// CursorCLI executes tasks via the Cursor CLI
type CursorCLI struct {
	Timeout time.Duration
}

func (c *CursorCLI) Name() string { return "cursor_cli" }

func (c *CursorCLI) Available() bool {
	_, err := exec.LookPath("cursor")
	return err == nil
}

func (c *CursorCLI) Execute(ctx context.Context, prompt, projectPath string) (*Result, error) {
	if !c.Available() {
		return &Result{
			Success: false,
			Error:   "Cursor CLI not found. Install it from https://cursor.com",
		}, nil
	}
	return runCommand(ctx, c.Timeout, projectPath, "cursor",
		"--project-path", projectPath,
		"--prompt", prompt,
	), nil
}
