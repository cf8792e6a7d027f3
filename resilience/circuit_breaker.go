// Package resilience adapts the gateway's circuit breaker onto
// core.CircuitBreaker (spec.md §4.5 supplement: "circuit breaker beneath
// health tracker"). It trips open after a run of consecutive failures,
// cools down for a fixed timeout, then allows a bounded number of
// half-open probes before closing again.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Miles0sage/agentgate/core"
)

// CircuitState mirrors the three states a breaker moves through.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements core.CircuitBreaker with a consecutive-failure
// trip and a cool-down/half-open recovery probe.
type CircuitBreaker struct {
	name   string
	config core.CircuitBreakerConfig
	logger core.Logger

	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int

	totalSuccess atomic.Uint64
	totalFailure atomic.Uint64
}

// NewCircuitBreaker builds a breaker from CircuitBreakerParams (spec.md
// default: threshold 3, 30s cool-down, 3 half-open probes).
func NewCircuitBreaker(params core.CircuitBreakerParams) *CircuitBreaker {
	logger := params.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	cfg := params.Config
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 3
	}
	return &CircuitBreaker{name: params.Name, config: cfg, logger: logger}
}

// CanExecute reports whether the breaker currently allows a call, without
// running one. The dispatcher uses this to skip straight to the next
// fallback-chain entry instead of waiting out a timeout.
func (cb *CircuitBreaker) CanExecute() bool {
	if !cb.config.Enabled {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.canExecuteLocked()
}

func (cb *CircuitBreaker) canExecuteLocked() bool {
	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.Timeout {
			cb.transitionLocked(StateHalfOpen)
			cb.halfOpenInFlight = 1
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenInFlight < cb.config.HalfOpenRequests {
			cb.halfOpenInFlight++
			return true
		}
		return false
	default:
		return true
	}
}

// Execute runs fn if the breaker is closed (or probing), recording the
// outcome against the trip/recovery state machine.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.CanExecute() {
		return core.NewGatewayError("circuit_breaker."+cb.name, core.ErrKindUpstreamFailed, core.ErrCircuitBreakerOpen)
	}
	err := fn()
	cb.recordResult(err)
	return err
}

// ExecuteWithTimeout wraps fn in a per-call context.WithTimeout before
// running it through the same Execute path.
func (cb *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return cb.Execute(attemptCtx, func() error {
		done := make(chan error, 1)
		go func() { done <- fn() }()
		select {
		case err := <-done:
			return err
		case <-attemptCtx.Done():
			return core.NewGatewayError("circuit_breaker."+cb.name, core.ErrKindTimeout, attemptCtx.Err())
		}
	})
}

// RecordSuccess and RecordFailure let a caller that already knows the
// outcome (the health tracker, which derives it from a GatewayError kind
// rather than calling through the breaker) update the state machine
// directly, without routing through Execute.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.recordResult(nil)
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.recordResult(errRecordedFailure)
}

var errRecordedFailure = fmt.Errorf("circuit breaker: recorded failure")

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.totalSuccess.Add(1)
		cb.consecutiveFailures = 0
		if cb.state != StateClosed {
			cb.transitionLocked(StateClosed)
		}
		return
	}

	cb.totalFailure.Add(1)
	cb.consecutiveFailures++
	if cb.state == StateHalfOpen {
		cb.transitionLocked(StateOpen)
		return
	}
	if cb.state == StateClosed && cb.consecutiveFailures >= cb.config.Threshold {
		cb.transitionLocked(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	if to == StateOpen {
		cb.openedAt = time.Now()
	}
	if to == StateClosed {
		cb.consecutiveFailures = 0
		cb.halfOpenInFlight = 0
	}
	if from != to {
		cb.logger.Info("circuit breaker state change", map[string]interface{}{
			"name": cb.name,
			"from": from.String(),
			"to":   to.String(),
		})
	}
}

// GetState returns "closed", "open", or "half-open".
func (cb *CircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// GetMetrics returns a point-in-time snapshot for diagnostics endpoints.
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mu.Lock()
	state := cb.state.String()
	consecutive := cb.consecutiveFailures
	cb.mu.Unlock()

	return map[string]interface{}{
		"name":                 cb.name,
		"state":                state,
		"consecutive_failures": consecutive,
		"total_success":        cb.totalSuccess.Load(),
		"total_failure":        cb.totalFailure.Load(),
	}
}

// Reset forces the breaker back to closed, clearing failure counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
}

// Registry builds and caches one breaker per agent, so dispatcher and
// health both consult the same state for a given agent ID.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	logger   core.Logger
}

func NewRegistry(logger core.Logger) *Registry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Registry{breakers: make(map[string]*CircuitBreaker), logger: logger}
}

// Get returns the breaker for agentID, constructing it with the gateway
// defaults (core.DefaultCircuitBreakerParams) on first use.
func (r *Registry) Get(agentID string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[agentID]; ok {
		return cb
	}
	params := core.DefaultCircuitBreakerParams(fmt.Sprintf("agent.%s", agentID))
	params.Logger = r.logger
	cb := NewCircuitBreaker(params)
	r.breakers[agentID] = cb
	return cb
}
