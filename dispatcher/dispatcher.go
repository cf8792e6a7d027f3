// Package dispatcher implements the Model Dispatcher (spec.md §4.2): it
// executes an agent selection as an actual provider call, enforcing
// per-attempt timeout, exponential-backoff retry, ordered fallback
// chains, and an optional tool-use loop.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/Miles0sage/agentgate/ai"
	"github.com/Miles0sage/agentgate/core"
)

const maxToolLoopIterations = 8

// AgentLookup resolves an agent ID to its configuration.
type AgentLookup func(agentID string) (*core.Agent, bool)

// AdapterResolver builds or fetches a provider Adapter, satisfied by
// *ai.Pool in production and a fake in tests.
type AdapterResolver interface {
	Get(provider core.Provider) (ai.Adapter, error)
}

// HealthTracker is the subset of the Agent Health Tracker (spec.md §4.5)
// the dispatcher depends on. Declared locally so dispatcher never imports
// the health package directly — health depends on dispatcher's attempt
// outcomes, not the reverse.
type HealthTracker interface {
	TrackSuccess(agentID string, latency time.Duration)
	TrackFailure(agentID string, kind core.ErrorKind)
	IsUnreachable(agentID string) bool
}

// CostRecorder is the subset of the Cost & Quota Enforcer (spec.md §4.3)
// the dispatcher writes to on every successful call. Budget preflight
// (CheckBudget) happens one layer up, after the router has selected the
// agent and before Dispatch is called;
// the dispatcher only ever records actuals after a call completes.
type CostRecorder interface {
	RecordCost(ctx context.Context, project, agentID, model string, inputTokens, outputTokens int) (float64, error)
}

// ToolExecutor invokes a single named tool with its arguments and returns
// the tool result to append as a tool-result message. Tools are opaque to
// the dispatcher; callers register handlers externally.
type ToolExecutor func(ctx context.Context, name string, args map[string]interface{}) (string, error)

// Options configures one Dispatch call (spec.md §4.2 "opts").
type Options struct {
	TimeoutPerAttempt     time.Duration
	MaxRetriesPerModel    int
	FallbackChain         []core.AgentModelRef
	ForceProvider         core.Provider
	AbortOn               []core.ErrorKind
	ToolExecutionFallback string // agent ID to reroute a single tool-incapable call to
	Project               string // cost ledger key; defaults to "default"
}

// Dispatcher is the Model Dispatcher.
type Dispatcher struct {
	lookup    AgentLookup
	adapters  AdapterResolver
	health    HealthTracker
	cost      CostRecorder
	tools     ToolExecutor
	logger    core.Logger
	telemetry core.Telemetry

	defaultTimeout    time.Duration
	defaultMaxRetries int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l core.Logger) Option       { return func(d *Dispatcher) { d.logger = l } }
func WithTelemetry(t core.Telemetry) Option { return func(d *Dispatcher) { d.telemetry = t } }
func WithToolExecutor(fn ToolExecutor) Option {
	return func(d *Dispatcher) { d.tools = fn }
}
func WithDefaults(timeout time.Duration, maxRetries int) Option {
	return func(d *Dispatcher) { d.defaultTimeout = timeout; d.defaultMaxRetries = maxRetries }
}

// New builds a Dispatcher.
func New(lookup AgentLookup, adapters AdapterResolver, health HealthTracker, cost CostRecorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		lookup:            lookup,
		adapters:          adapters,
		health:            health,
		cost:              cost,
		logger:            core.NoOpLogger{},
		telemetry:         core.NoOpTelemetry{},
		defaultTimeout:    30 * time.Second,
		defaultMaxRetries: 3,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result is Dispatch's return value.
type Result struct {
	ResponseText string
	TokensUsed   int
	CostUSD      float64
	Attempts     []core.CallAttempt
}

// Dispatch executes an agent selection against a provider (spec.md §4.2).
func (d *Dispatcher) Dispatch(ctx context.Context, agentID, prompt string, history []core.Message, opts Options) (Result, error) {
	ctx, span := d.telemetry.StartSpan(ctx, "dispatcher.Dispatch")
	defer span.End()

	timeout := opts.TimeoutPerAttempt
	if timeout == 0 {
		timeout = d.defaultTimeout
	}
	maxRetries := opts.MaxRetriesPerModel
	if maxRetries == 0 {
		maxRetries = d.defaultMaxRetries
	}

	chain, err := d.buildChain(agentID, opts)
	if err != nil {
		return Result{}, err
	}

	var attempts []core.CallAttempt
	for _, ref := range chain {
		agent, ok := d.lookup(ref.AgentID)
		if !ok {
			continue
		}
		if opts.ForceProvider == "" && d.health.IsUnreachable(agent.ID) {
			d.logger.Warn("skipping unreachable agent in fallback chain", map[string]interface{}{"agent_id": agent.ID})
			continue
		}

		model := ref.Model
		if model == "" {
			model = agent.Model
		}

		text, tokens, cost, linkAttempts, err := d.dispatchToAgent(ctx, agent, model, prompt, history, timeout, maxRetries, opts)
		attempts = append(attempts, linkAttempts...)
		if err == nil {
			return Result{ResponseText: text, TokensUsed: tokens, CostUSD: cost, Attempts: attempts}, nil
		}
		if isAbortKind(core.KindOf(err), opts.AbortOn) {
			return Result{Attempts: attempts}, err
		}
	}

	return Result{Attempts: attempts}, core.NewGatewayError("dispatcher.Dispatch", core.ErrKindUpstreamFailed, core.ErrFallbackChainExhausted)
}

// buildChain resolves the ordered list of (agent, model) pairs to try:
// the caller-supplied override, else the primary agent followed by its
// configured fallbacks.
func (d *Dispatcher) buildChain(agentID string, opts Options) ([]core.AgentModelRef, error) {
	if opts.ForceProvider != "" {
		return []core.AgentModelRef{{AgentID: agentID}}, nil
	}
	if len(opts.FallbackChain) > 0 {
		return opts.FallbackChain, nil
	}
	agent, ok := d.lookup(agentID)
	if !ok {
		return nil, core.NewGatewayError("dispatcher.Dispatch", core.ErrKindValidation, fmt.Errorf("%w: %s", core.ErrAgentNotFound, agentID))
	}
	chain := append([]core.AgentModelRef{{AgentID: agent.ID, Model: agent.Model}}, agent.FallbackChain...)
	return chain, nil
}

func isAbortKind(kind core.ErrorKind, abortOn []core.ErrorKind) bool {
	for _, k := range abortOn {
		if k == kind {
			return true
		}
	}
	return !core.IsRetryable(&core.GatewayError{Kind: kind})
}

// dispatchToAgent runs the retry loop and tool loop against one
// (agent, model) pair.
func (d *Dispatcher) dispatchToAgent(ctx context.Context, agent *core.Agent, model, prompt string, history []core.Message, timeout time.Duration, maxRetries int, opts Options) (string, int, float64, []core.CallAttempt, error) {
	adapter, err := d.adapters.Get(agent.Provider)
	if err != nil {
		return "", 0, 0, nil, core.NewGatewayError("dispatcher.dispatchToAgent", core.ErrKindInternal, err)
	}

	if len(agent.Tools) > 0 && !adapter.SupportsTools() && opts.ToolExecutionFallback != "" {
		if fallbackAgent, ok := d.lookup(opts.ToolExecutionFallback); ok {
			if fallbackAdapter, err := d.adapters.Get(fallbackAgent.Provider); err == nil {
				adapter = fallbackAdapter
				model = fallbackAgent.Model
			}
		}
	}

	var attempts []core.CallAttempt
	var totalCost float64
	var finalErr error

	messages := append([]core.Message{}, history...)
	messages = append(messages, core.Message{Role: "user", Content: prompt})

	for loop := 0; loop < maxToolLoopIterations; loop++ {
		text, tokensIn, tokensOut, toolCalls, linkAttempts, err := d.callWithRetry(ctx, agent, model, adapter, messages, timeout, maxRetries, opts)
		attempts = append(attempts, linkAttempts...)

		if err != nil {
			d.health.TrackFailure(agent.ID, core.KindOf(err))
			return "", 0, totalCost, attempts, err
		}

		lastAttempt := linkAttempts[len(linkAttempts)-1]
		d.health.TrackSuccess(agent.ID, lastAttempt.Duration)
		project := opts.Project
		if project == "" {
			project = "default"
		}
		cost, recErr := d.cost.RecordCost(ctx, project, agent.ID, model, tokensIn, tokensOut)
		if recErr != nil {
			d.logger.ErrorWithContext(ctx, "cost recording failed", map[string]interface{}{"agent_id": agent.ID, "error": recErr.Error()})
		}
		totalCost += cost

		if len(toolCalls) == 0 || d.tools == nil {
			return text, tokensIn + tokensOut, totalCost, attempts, nil
		}

		messages = append(messages, core.Message{Role: "assistant", Content: text})
		for _, tc := range toolCalls {
			result, toolErr := d.tools(ctx, tc.Name, tc.Arguments)
			if toolErr != nil {
				result = "error: " + toolErr.Error()
			}
			messages = append(messages, core.Message{Role: "tool", Content: result})
		}
	}

	finalErr = core.NewGatewayError("dispatcher.dispatchToAgent", core.ErrKindInternal, fmt.Errorf("tool loop exceeded %d iterations", maxToolLoopIterations))
	return "", 0, totalCost, attempts, finalErr
}
