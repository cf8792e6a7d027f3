package core

import (
	"context"
	"time"
)

// CircuitBreaker protects a downstream call (a provider, an agent) against
// cascading failure by tripping open after a run of failures and probing
// recovery in a half-open state. The health tracker keeps one per agent
// and feeds it every tracked outcome; its IsUnreachable, which the
// dispatcher checks before each call, consults the breaker, while its
// StatusOf derives status from the success/failure counters alone.
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func() error) error
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error

	// GetState returns "closed", "open", or "half-open".
	GetState() string
	GetMetrics() map[string]interface{}
	Reset()

	// CanExecute reports whether the breaker would currently allow a call,
	// without running one. The dispatcher uses this to skip an agent in
	// favor of the next fallback-chain entry.
	CanExecute() bool
}

// CircuitBreakerConfig configures a CircuitBreaker implementation.
type CircuitBreakerConfig struct {
	Enabled          bool
	Threshold        int           // consecutive failures that trip the breaker open
	Timeout          time.Duration // how long the breaker stays open before probing
	HalfOpenRequests int           // probe calls allowed while half-open
}

// CircuitBreakerParams bundles a CircuitBreakerConfig with the
// implementation-specific dependencies (logging, metrics) every
// constructor needs.
type CircuitBreakerParams struct {
	Name      string
	Config    CircuitBreakerConfig
	Logger    Logger
	Telemetry Telemetry
}

// DefaultCircuitBreakerParams returns the gateway's default breaker
// tuning: 3 consecutive failures trips it open (matching the "unhealthy"
// threshold in spec.md §3), a 30s cool-down, 3 half-open probes.
func DefaultCircuitBreakerParams(name string) CircuitBreakerParams {
	return CircuitBreakerParams{
		Name: name,
		Config: CircuitBreakerConfig{
			Enabled:          true,
			Threshold:        3,
			Timeout:          30 * time.Second,
			HalfOpenRequests: 3,
		},
	}
}
