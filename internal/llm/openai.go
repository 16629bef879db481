package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultOpenAIModel is used when neither the call nor the provider
// specifies a model
const DefaultOpenAIModel = "gpt-4o"

// OpenAI is a Provider backed by the OpenAI chat completions API
type OpenAI struct {
	apiKey       string
	defaultModel string

	// BaseURL can be overridden in tests.
	BaseURL string
	Client  *http.Client
}

// NewOpenAI creates an OpenAI provider. An empty apiKey falls back to
// OPENAI_API_KEY.
func NewOpenAI(apiKey, defaultModel string) *OpenAI {
	if apiKey == "" {
		apiKey = APIKey("openai")
	}
	if defaultModel == "" {
		defaultModel = DefaultOpenAIModel
	}
	return &OpenAI{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		BaseURL:      "https://api.openai.com",
		Client:       &http.Client{Timeout: 120 * time.Second},
	}
}

type openAIRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a chat completion request
func (o *OpenAI) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	return o.complete(ctx, messages, opts, nil)
}

// CompleteJSON requests a JSON object response using the API's native
// response_format and parses the result
func (o *OpenAI) CompleteJSON(ctx context.Context, messages []Message, opts Options) (map[string]any, error) {
	resp, err := o.complete(ctx, messages, opts, map[string]any{"type": "json_object"})
	if err != nil {
		return nil, err
	}
	return parseJSONObject(resp.Content)
}

func (o *OpenAI) complete(ctx context.Context, messages []Message, opts Options, responseFormat map[string]any) (*Response, error) {
	model := opts.Model
	if model == "" {
		model = o.defaultModel
	}

	full := messages
	if opts.System != "" {
		full = append([]Message{{Role: "system", Content: opts.System}}, messages...)
	}

	reqBody := openAIRequest{
		Model:          model,
		Messages:       full,
		Temperature:    opts.Temperature,
		MaxTokens:      opts.maxTokens(),
		ResponseFormat: responseFormat,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("openai returned unparseable response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("openai error (%s): %s", parsed.Error.Type, parsed.Error.Message)
		}
		return nil, fmt.Errorf("openai returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return &Response{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
		Usage: map[string]int{
			"prompt_tokens":     parsed.Usage.PromptTokens,
			"completion_tokens": parsed.Usage.CompletionTokens,
		},
	}, nil
}
