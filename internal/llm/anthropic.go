package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultAnthropicModel is used when neither the call nor the provider
// specifies a model
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

const anthropicVersion = "2023-06-01"

// Anthropic is a Provider backed by the Anthropic Messages API
type Anthropic struct {
	apiKey       string
	defaultModel string

	// BaseURL can be overridden in tests.
	BaseURL string
	Client  *http.Client
}

// NewAnthropic creates an Anthropic provider. An empty apiKey falls back
// to ANTHROPIC_API_KEY.
func NewAnthropic(apiKey, defaultModel string) *Anthropic {
	if apiKey == "" {
		apiKey = APIKey("anthropic")
	}
	if defaultModel == "" {
		defaultModel = DefaultAnthropicModel
	}
	return &Anthropic{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		BaseURL:      "https://api.anthropic.com",
		Client:       &http.Client{Timeout: 120 * time.Second},
	}
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a chat completion request
func (a *Anthropic) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	model := opts.Model
	if model == "" {
		model = a.defaultModel
	}

	reqBody := anthropicRequest{
		Model:       model,
		MaxTokens:   opts.maxTokens(),
		Temperature: opts.Temperature,
		System:      opts.System,
		Messages:    messages,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("anthropic returned unparseable response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("anthropic error (%s): %s", parsed.Error.Type, parsed.Error.Message)
		}
		return nil, fmt.Errorf("anthropic returned status %d", resp.StatusCode)
	}

	var content strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &Response{
		Content: content.String(),
		Model:   parsed.Model,
		Usage: map[string]int{
			"input_tokens":  parsed.Usage.InputTokens,
			"output_tokens": parsed.Usage.OutputTokens,
		},
	}, nil
}

// CompleteJSON instructs the model to answer with bare JSON and parses the
// result
func (a *Anthropic) CompleteJSON(ctx context.Context, messages []Message, opts Options) (map[string]any, error) {
	jsonSystem := strings.TrimSpace(opts.System +
		"\n\nYou MUST respond with valid JSON only. No markdown fences, no extra text.")
	opts.System = jsonSystem

	resp, err := a.Complete(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	return parseJSONObject(resp.Content)
}

// parseJSONObject parses a JSON object, tolerating markdown code fences
// some models wrap their output in.
func parseJSONObject(content string) (map[string]any, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(trimmed), &result); err != nil {
		return nil, fmt.Errorf("parsing model JSON output: %w", err)
	}
	return result, nil
}
