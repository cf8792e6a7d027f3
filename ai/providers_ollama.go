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

// ollamaAdapter talks to a local Ollama server's chat API. Ollama needs no
// API key — the teacher's WithProviderAlias auto-configuration treats it
// the same way (ai/provider.go, "ollama" subprovider branch).
type ollamaAdapter struct {
	baseURL    string
	httpClient *http.Client
}

func init() {
	MustRegister(core.ProviderOllama, func(cfg AdapterConfig) (Adapter, error) {
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return &ollamaAdapter{baseURL: baseURL, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
	})
}

func (o *ollamaAdapter) SupportsTools() bool { return false }

type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []openAICompatMessage  `json:"messages"`
	Stream   bool                   `json:"stream"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int   `json:"prompt_eval_count"`
	EvalCount       int   `json:"eval_count"`
	Error           string `json:"error"`
}

func (o *ollamaAdapter) Generate(ctx context.Context, model, systemPrompt string, messages []core.Message, opts GenerateOptions) (GenerateResult, error) {
	reqBody := ollamaRequest{Model: model}
	if systemPrompt != "" {
		reqBody.Messages = append(reqBody.Messages, openAICompatMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, openAICompatMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return GenerateResult{}, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return GenerateResult{}, core.NewGatewayError("ai.ollama.Generate", core.ErrKindNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerateResult{}, core.NewGatewayError("ai.ollama.Generate", core.ErrKindNetwork, err)
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResult{}, core.NewGatewayError("ai.ollama.Generate", core.ErrKindInternal, err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return GenerateResult{}, core.NewGatewayError("ai.ollama.Generate", core.ErrKindInternal, fmt.Errorf(parsed.Error))
		}
		return GenerateResult{}, core.NewGatewayError("ai.ollama.Generate", core.ErrKindInternal, fmt.Errorf("status %d", resp.StatusCode))
	}

	return GenerateResult{
		Text:         parsed.Message.Content,
		InputTokens:  parsed.PromptEvalCount,
		OutputTokens: parsed.EvalCount,
	}, nil
}
