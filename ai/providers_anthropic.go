package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Miles0sage/agentgate/core"
)

const anthropicAPIVersion = "2023-06-01"

// anthropicAdapter talks to Anthropic's native Messages API directly over
// net/http, following the teacher's ai/providers/anthropic/client.go —
// the teacher hand-rolls this call rather than pulling in an SDK, so this
// adapter does the same.
type anthropicAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

func init() {
	MustRegister(core.ProviderAnthropic, func(cfg AdapterConfig) (Adapter, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: ANTHROPIC_API_KEY not configured")
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.anthropic.com"
		}
		return &anthropicAdapter{
			apiKey:     cfg.APIKey,
			baseURL:    baseURL,
			httpClient: &http.Client{Timeout: cfg.Timeout},
			logger:     cfg.Logger,
		}, nil
	})
}

func (a *anthropicAdapter) SupportsTools() bool { return true }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string                 `json:"type"`
		Text  string                 `json:"text,omitempty"`
		ID    string                 `json:"id,omitempty"`
		Name  string                 `json:"name,omitempty"`
		Input map[string]interface{} `json:"input,omitempty"`
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

func (a *anthropicAdapter) Generate(ctx context.Context, model, systemPrompt string, messages []core.Message, opts GenerateOptions) (GenerateResult, error) {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	reqBody := anthropicRequest{Model: model, System: systemPrompt, MaxTokens: maxTokens}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range opts.Tools {
		reqBody.Tools = append(reqBody.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.JSONSchema})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return GenerateResult{}, fmt.Errorf("anthropic: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return GenerateResult{}, core.NewGatewayError("ai.anthropic.Generate", core.ErrKindNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerateResult{}, core.NewGatewayError("ai.anthropic.Generate", core.ErrKindNetwork, err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResult{}, core.NewGatewayError("ai.anthropic.Generate", core.ErrKindInternal, err)
	}

	if resp.StatusCode != http.StatusOK {
		return GenerateResult{}, classifyAnthropicStatus(resp.StatusCode, parsed)
	}

	result := GenerateResult{InputTokens: parsed.Usage.InputTokens, OutputTokens: parsed.Usage.OutputTokens}
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			result.Text += block.Text
		case "tool_use":
			result.ToolCalls = append(result.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
		}
	}
	return result, nil
}

func classifyAnthropicStatus(status int, parsed anthropicResponse) error {
	msg := "anthropic API error"
	if parsed.Error != nil {
		msg = parsed.Error.Message
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.NewGatewayError("ai.anthropic.Generate", core.ErrKindAuthentication, fmt.Errorf(msg))
	case http.StatusTooManyRequests:
		return core.NewGatewayError("ai.anthropic.Generate", core.ErrKindRateLimit, fmt.Errorf(msg))
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return core.NewGatewayError("ai.anthropic.Generate", core.ErrKindTimeout, fmt.Errorf(msg))
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return core.NewGatewayError("ai.anthropic.Generate", core.ErrKindModelError, fmt.Errorf(msg))
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return core.NewGatewayError("ai.anthropic.Generate", core.ErrKindInternal, fmt.Errorf(msg))
	default:
		return core.NewGatewayError("ai.anthropic.Generate", core.ErrKindInternal, fmt.Errorf("%s (status %d)", msg, status))
	}
}
