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

// deepseekAdapter speaks the OpenAI-compatible chat completions wire
// format, following the teacher's "openai.deepseek" provider-alias
// convention (ai/provider.go WithProviderAlias): deepseek is treated as
// an OpenAI-compatible subprovider with its own base URL and API key.
type deepseekAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func init() {
	MustRegister(core.ProviderDeepSeek, func(cfg AdapterConfig) (Adapter, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("deepseek: DEEPSEEK_API_KEY not configured")
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.deepseek.com"
		}
		return &deepseekAdapter{apiKey: cfg.APIKey, baseURL: baseURL, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
	})
}

func (d *deepseekAdapter) SupportsTools() bool { return true }

type openAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAICompatRequest struct {
	Model     string                 `json:"model"`
	Messages  []openAICompatMessage  `json:"messages"`
	MaxTokens int                    `json:"max_tokens,omitempty"`
	Tools     []openAICompatTool     `json:"tools,omitempty"`
}

type openAICompatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description,omitempty"`
		Parameters  map[string]interface{} `json:"parameters,omitempty"`
	} `json:"function"`
}

type openAICompatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (d *deepseekAdapter) Generate(ctx context.Context, model, systemPrompt string, messages []core.Message, opts GenerateOptions) (GenerateResult, error) {
	reqBody := openAICompatRequest{Model: model, MaxTokens: opts.MaxTokens}
	if systemPrompt != "" {
		reqBody.Messages = append(reqBody.Messages, openAICompatMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, openAICompatMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range opts.Tools {
		tool := openAICompatTool{Type: "function"}
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.JSONSchema
		reqBody.Tools = append(reqBody.Tools, tool)
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("deepseek: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return GenerateResult{}, fmt.Errorf("deepseek: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return GenerateResult{}, core.NewGatewayError("ai.deepseek.Generate", core.ErrKindNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerateResult{}, core.NewGatewayError("ai.deepseek.Generate", core.ErrKindNetwork, err)
	}

	var parsed openAICompatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResult{}, core.NewGatewayError("ai.deepseek.Generate", core.ErrKindInternal, err)
	}

	if resp.StatusCode != http.StatusOK {
		return GenerateResult{}, classifyOpenAICompatStatus("ai.deepseek.Generate", resp.StatusCode, parsed.Error)
	}

	if len(parsed.Choices) == 0 {
		return GenerateResult{}, core.NewGatewayError("ai.deepseek.Generate", core.ErrKindModelError, fmt.Errorf("empty choices"))
	}

	result := GenerateResult{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}
	for _, tc := range parsed.Choices[0].Message.ToolCalls {
		var args map[string]interface{}
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		result.ToolCalls = append(result.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return result, nil
}

func classifyOpenAICompatStatus(op string, status int, apiErr *struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}) error {
	msg := "provider API error"
	if apiErr != nil {
		msg = apiErr.Message
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.NewGatewayError(op, core.ErrKindAuthentication, fmt.Errorf(msg))
	case http.StatusTooManyRequests:
		return core.NewGatewayError(op, core.ErrKindRateLimit, fmt.Errorf(msg))
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return core.NewGatewayError(op, core.ErrKindTimeout, fmt.Errorf(msg))
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return core.NewGatewayError(op, core.ErrKindModelError, fmt.Errorf(msg))
	default:
		return core.NewGatewayError(op, core.ErrKindInternal, fmt.Errorf("%s (status %d)", msg, status))
	}
}
