// Package core provides the dependency-free foundations shared by every
// subsystem of the gateway: the Logger/Telemetry seams, the error
// taxonomy, and the data model types that flow between the router,
// dispatcher, cost enforcer, health tracker, and orchestrator.
package core

import (
	"context"
	"time"
)

// Logger is the minimal structured-logging interface every subsystem
// depends on. ProductionLogger is the only implementation; tests use
// NoOpLogger.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger lets a subsystem derive a logger scoped to its own
// component name so log lines stay filterable (component == "router",
// "dispatcher", "cost", "health", "orchestrator").
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is the tracing/metrics seam. The telemetry package's Provider
// implements it; NoOpTelemetry is the default when telemetry is disabled.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents a single telemetry span.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// NoOpLogger discards everything. Used when callers do not supply a logger.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Debug(string, map[string]interface{}) {}
func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}
func (n NoOpLogger) WithComponent(string) Logger                                    { return n }

// NoOpTelemetry discards every span and metric.
type NoOpTelemetry struct{}

func (NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, NoOpSpan{}
}
func (NoOpTelemetry) RecordMetric(string, float64, map[string]string) {}

// NoOpSpan discards attribute and error recording.
type NoOpSpan struct{}

func (NoOpSpan) End()                               {}
func (NoOpSpan) SetAttribute(string, interface{})   {}
func (NoOpSpan) RecordError(error)                  {}

// Provider identifies a closed set of LLM providers a configured Agent can
// be bound to. New providers are added by extending this const block and
// registering an adapter in the ai package at startup — never at runtime.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderMiniMax   Provider = "minimax"
	ProviderOllama    Provider = "ollama"
)

// Intent is the Router's coarse classification of a query (spec.md §3).
// It is derived per call and never persisted.
type Intent string

const (
	IntentSecurity    Intent = "security"
	IntentDevelopment Intent = "development"
	IntentDatabase    Intent = "database"
	IntentPlanning    Intent = "planning"
	IntentGeneral     Intent = "general"
)

// Agent is a named, immutable capability handler created from
// configuration at startup (spec.md §3 "Agent").
type Agent struct {
	ID                string
	DisplayName       string
	Provider          Provider
	Model             string
	CostPerInputToken float64 // USD per 1M input tokens
	CostPerOutputToken float64 // USD per 1M output tokens
	SkillTags         []string
	IntentAffinities  map[Intent]float64
	FallbackChain     []AgentModelRef
	Tools             []ToolDefinition
}

// AgentModelRef names an alternate (agent, model) pair in a fallback chain.
type AgentModelRef struct {
	AgentID string
	Model   string
}

// ToolDefinition is a named JSON-schema tool an agent may invoke during a
// tool loop (spec.md §4.2). The schema and handler are opaque to the core;
// only the dispatcher's tool loop needs the name and schema to pass
// through to the provider.
type ToolDefinition struct {
	Name        string
	Description string
	JSONSchema  map[string]interface{}
}

// Message is the minimal provider-agnostic chat message shape (spec.md §6).
type Message struct {
	Role    string // user | assistant | system | tool
	Content string
}

// RoutingDecision is the Router's output (spec.md §3).
type RoutingDecision struct {
	AgentID        string
	Confidence     float64
	Intent         Intent
	MatchedKeywords []string
	CostScore      float64
	SemanticScore  float64
	Cached         bool
	Rationale      string
	ComputedAt     time.Time
}

// ErrorKind is the closed error taxonomy of spec.md §7.
type ErrorKind string

const (
	ErrKindTimeout        ErrorKind = "timeout"
	ErrKindRateLimit      ErrorKind = "rate_limit"
	ErrKindNetwork        ErrorKind = "network"
	ErrKindAuthentication ErrorKind = "authentication"
	ErrKindModelError     ErrorKind = "model_error"
	ErrKindInternal       ErrorKind = "internal"
	ErrKindValidation     ErrorKind = "validation"
	ErrKindBudgetExceeded ErrorKind = "budget_exceeded"
	ErrKindUpstreamFailed ErrorKind = "upstream_failed"
	ErrKindCancelled      ErrorKind = "cancelled"
)

// CallAttempt is a single provider invocation record (spec.md §3).
type CallAttempt struct {
	AgentID      string
	Provider     Provider
	Model        string
	InputTokens  int
	OutputTokens int
	StartedAt    time.Time
	Duration     time.Duration
	Outcome      string // "success" or an ErrorKind value
	ErrorDetail  string
}
