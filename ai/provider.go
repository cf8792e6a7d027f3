// Package ai implements provider adapters for the Model Dispatcher
// (spec.md §4.2): a thin, provider-agnostic Generate contract plus one
// adapter per configured core.Provider, following the teacher's
// functional-options AIConfig and provider-alias auto-configuration
// pattern (ai/provider.go in the teacher framework).
package ai

import (
	"context"
	"os"
	"time"

	"github.com/Miles0sage/agentgate/core"
)

// GenerateResult is a provider adapter's response to one call.
type GenerateResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
	ToolCalls    []ToolCall
}

// ToolCall is one tool-use request a provider's response asked for.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// GenerateOptions passes per-call knobs down to a provider adapter.
type GenerateOptions struct {
	Temperature float32
	MaxTokens   int
	Tools       []core.ToolDefinition
}

// Adapter is the provider adapter interface every providers_*.go adapter
// in this package implements (spec.md §6 "Provider adapter interface").
type Adapter interface {
	Generate(ctx context.Context, model, systemPrompt string, messages []core.Message, opts GenerateOptions) (GenerateResult, error)
	// SupportsTools reports whether this adapter can pass tool definitions
	// natively; the dispatcher reroutes a single call to
	// tool_execution_fallback when it cannot.
	SupportsTools() bool
}

// AdapterConfig configures a provider adapter at construction.
type AdapterConfig struct {
	Provider core.Provider

	// ProviderAlias names an OpenAI-compatible subprovider, e.g.
	// "openai.deepseek". NewAdapterConfig sets it for deepseek; no adapter
	// reads it.
	ProviderAlias string

	APIKey  string
	BaseURL string
	Region  string // AWS region, used by the minimax (Bedrock) adapter

	Timeout time.Duration

	Logger    core.Logger
	Telemetry core.Telemetry
}

// AdapterOption configures an AdapterConfig.
type AdapterOption func(*AdapterConfig)

func WithAPIKey(key string) AdapterOption    { return func(c *AdapterConfig) { c.APIKey = key } }
func WithBaseURL(url string) AdapterOption   { return func(c *AdapterConfig) { c.BaseURL = url } }
func WithRegion(region string) AdapterOption { return func(c *AdapterConfig) { c.Region = region } }
func WithTimeout(d time.Duration) AdapterOption {
	return func(c *AdapterConfig) { c.Timeout = d }
}
func WithAdapterLogger(l core.Logger) AdapterOption {
	return func(c *AdapterConfig) { c.Logger = l }
}
func WithAdapterTelemetry(t core.Telemetry) AdapterOption {
	return func(c *AdapterConfig) { c.Telemetry = t }
}

// NewAdapterConfig builds an AdapterConfig for a provider, auto-configuring
// each API credential field from well-known environment variables unless
// the caller already supplied that field explicitly — the teacher's "intelligent
// configuration over convention" three-tier precedence (explicit config >
// env var > hardcoded default).
func NewAdapterConfig(provider core.Provider, opts ...AdapterOption) AdapterConfig {
	cfg := AdapterConfig{
		Provider:  provider,
		Timeout:   30 * time.Second,
		Logger:    core.NoOpLogger{},
		Telemetry: core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch provider {
	case core.ProviderAnthropic:
		cfg.APIKey = firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, os.Getenv("ANTHROPIC_BASE_URL"), "https://api.anthropic.com")
	case core.ProviderDeepSeek:
		cfg.ProviderAlias = "openai.deepseek"
		cfg.APIKey = firstNonEmpty(cfg.APIKey, os.Getenv("DEEPSEEK_API_KEY"))
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, os.Getenv("DEEPSEEK_BASE_URL"), "https://api.deepseek.com")
	case core.ProviderMiniMax:
		cfg.Region = firstNonEmpty(cfg.Region, os.Getenv("AWS_REGION"), "us-east-1")
	case core.ProviderOllama:
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, os.Getenv("OLLAMA_BASE_URL"), "http://localhost:11434")
	}
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
