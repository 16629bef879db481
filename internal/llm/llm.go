// Package llm provides chat-completion clients for the providers agents
// can be configured with.
package llm

import (
	"context"
	"fmt"
	"os"
)

// Message is one turn of a chat conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is a structured completion result
type Response struct {
	Content string
	Model   string
	Usage   map[string]int
}

// Options tune a single completion request. Zero values fall back to the
// provider defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	System      string
}

func (o Options) maxTokens() int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return 4096
}

// Provider is a chat-completion backend
type Provider interface {
	// Complete sends a chat completion request and returns the response.
	Complete(ctx context.Context, messages []Message, opts Options) (*Response, error)
	// CompleteJSON sends a request expecting a JSON object response and
	// returns the parsed object.
	CompleteJSON(ctx context.Context, messages []Message, opts Options) (map[string]any, error)
}

// NewProvider creates an LLM provider by name. The API key is read from
// the provider's environment variable when apiKey is empty.
func NewProvider(name, apiKey, defaultModel string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropic(apiKey, defaultModel), nil
	case "openai":
		return NewOpenAI(apiKey, defaultModel), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (available: anthropic, openai)", name)
	}
}

// APIKey returns the configured API key for a provider, or "" when unset
func APIKey(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// CheckRequiredKeys reports which of the given providers have an API key
// set in the environment
func CheckRequiredKeys(providers []string) map[string]bool {
	result := make(map[string]bool, len(providers))
	for _, p := range providers {
		result[p] = APIKey(p) != ""
	}
	return result
}
