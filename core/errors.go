package core

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per taxonomy kind (spec.md §7), for comparison via
// errors.Is(). GatewayError wraps these with operation context; callers
// that only care about the kind can still errors.Is() against the
// sentinel directly.
var (
	ErrTimeout        = errors.New("operation exceeded its deadline")
	ErrRateLimit      = errors.New("provider returned a rate limit signal")
	ErrNetwork        = errors.New("network failure")
	ErrAuthentication = errors.New("provider rejected credentials")
	ErrModelError     = errors.New("provider reported an invalid model")
	ErrInternal       = errors.New("provider returned an internal error")
	ErrValidation     = errors.New("request rejected before dispatch")
	ErrBudgetExceeded = errors.New("quota enforcer rejected the request")
	ErrUpstreamFailed = errors.New("a dependency terminally failed")
	ErrCancelled      = errors.New("cooperative cancellation")

	ErrAgentNotFound          = errors.New("agent not found")
	ErrMaxRetriesExceeded     = errors.New("maximum retries exceeded")
	ErrCircuitBreakerOpen     = errors.New("circuit breaker open")
	ErrFallbackChainExhausted = errors.New("fallback chain exhausted")
	ErrPlanHasCycle           = errors.New("execution plan contains a cycle")
)

var sentinelByKind = map[ErrorKind]error{
	ErrKindTimeout:        ErrTimeout,
	ErrKindRateLimit:      ErrRateLimit,
	ErrKindNetwork:        ErrNetwork,
	ErrKindAuthentication: ErrAuthentication,
	ErrKindModelError:     ErrModelError,
	ErrKindInternal:       ErrInternal,
	ErrKindValidation:     ErrValidation,
	ErrKindBudgetExceeded: ErrBudgetExceeded,
	ErrKindUpstreamFailed: ErrUpstreamFailed,
	ErrKindCancelled:      ErrCancelled,
}

// GatewayError carries structured error context: the operation that
// failed, the closed taxonomy kind, an optional entity ID, a
// human-readable message, and the wrapped cause.
type GatewayError struct {
	Op      string
	Kind    ErrorKind
	ID      string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Op != "" {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %s", e.Op, e.ID, e.causeMessage())
		}
		return fmt.Sprintf("%s: %s", e.Op, e.causeMessage())
	}
	return e.causeMessage()
}

func (e *GatewayError) causeMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Unwrap exposes the underlying sentinel error so errors.Is(err,
// core.ErrTimeout) works even when the error was constructed with only a
// Kind and no explicit Err.
func (e *GatewayError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return sentinelByKind[e.Kind]
}

// NewGatewayError builds a GatewayError, defaulting Err to the kind's
// sentinel when the caller does not supply a more specific cause.
func NewGatewayError(op string, kind ErrorKind, err error) *GatewayError {
	if err == nil {
		err = sentinelByKind[kind]
	}
	return &GatewayError{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from an error if it (or something it
// wraps) is a *GatewayError; otherwise returns ErrKindInternal — an
// unclassified provider error is treated as retryable rather than
// silently swallowed.
func KindOf(err error) ErrorKind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ErrKindInternal
}

// retryableKinds are the four kinds the dispatcher's retry loop handles
// locally before advancing its fallback chain (spec.md §7).
var retryableKinds = map[ErrorKind]bool{
	ErrKindTimeout:   true,
	ErrKindRateLimit: true,
	ErrKindNetwork:   true,
	ErrKindInternal:  true,
}

// IsRetryable reports whether an error's kind belongs to the retryable set.
func IsRetryable(err error) bool {
	return retryableKinds[KindOf(err)]
}

// IsTerminal is the complement of IsRetryable.
func IsTerminal(err error) bool {
	return !IsRetryable(err)
}
