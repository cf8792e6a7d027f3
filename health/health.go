// Package health implements the Agent Health Tracker (spec.md §4.5):
// per-agent running success/failure metrics with a status derived fresh
// on every read, never persisted.
package health

import (
	"sync"
	"time"

	"github.com/Miles0sage/agentgate/core"
	"github.com/Miles0sage/agentgate/resilience"
)

// Status is the derived health classification (spec.md §3).
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnhealthy   Status = "unhealthy"
	StatusUnreachable Status = "unreachable"
)

// AgentHealth is a snapshot of one agent's running metrics plus its
// derived status.
type AgentHealth struct {
	AgentID             string
	TotalRequests       uint64
	TotalFailures       uint64
	ConsecutiveFailures uint64
	LastSuccess         time.Time
	LastFailure         time.Time
	SuccessRate         float64
	Status              Status
}

// agentCounters is the mutable per-agent state; one lock each, per the
// spec's "updates are atomic per agent" concurrency requirement.
type agentCounters struct {
	mu                  sync.Mutex
	totalRequests       uint64
	totalFailures       uint64
	consecutiveFailures uint64
	lastSuccess         time.Time
	lastFailure         time.Time
}

// Tracker is the Agent Health Tracker. It keeps a circuit breaker
// alongside each agent's counters: the breaker trips open after 3
// consecutive failures, so an agent that is mid-outage stops receiving
// traffic before its status reaches unreachable at 5 consecutive
// failures.
type Tracker struct {
	mu       sync.RWMutex
	agents   map[string]*agentCounters
	breakers *resilience.Registry
	logger   core.Logger
}

// New builds a Tracker.
func New(logger core.Logger) *Tracker {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Tracker{
		agents:   make(map[string]*agentCounters),
		breakers: resilience.NewRegistry(logger),
		logger:   logger,
	}
}

func (t *Tracker) counters(agentID string) *agentCounters {
	t.mu.RLock()
	c, ok := t.agents[agentID]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.agents[agentID]; ok {
		return c
	}
	c = &agentCounters{}
	t.agents[agentID] = c
	return c
}

// TrackSuccess records a successful call, resetting ConsecutiveFailures
// to 0 (spec.md §3 invariant).
func (t *Tracker) TrackSuccess(agentID string, _ time.Duration) {
	c := t.counters(agentID)
	c.mu.Lock()
	c.totalRequests++
	c.consecutiveFailures = 0
	c.lastSuccess = time.Now().UTC()
	c.mu.Unlock()

	t.breakers.Get(agentID).RecordSuccess()
}

// TrackFailure records a failed call.
func (t *Tracker) TrackFailure(agentID string, _ core.ErrorKind) {
	c := t.counters(agentID)
	c.mu.Lock()
	c.totalRequests++
	c.totalFailures++
	c.consecutiveFailures++
	c.lastFailure = time.Now().UTC()
	c.mu.Unlock()

	t.breakers.Get(agentID).RecordFailure()
}

// StatusOf returns a consistent snapshot of one agent's health, deriving
// status fresh from the current counters (spec.md §4.5).
func (t *Tracker) StatusOf(agentID string) AgentHealth {
	c := t.counters(agentID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshotLocked(agentID, c)
}

func snapshotLocked(agentID string, c *agentCounters) AgentHealth {
	var successRate float64 = 1.0
	if c.totalRequests > 0 {
		successRate = 1 - float64(c.totalFailures)/float64(c.totalRequests)
	}
	return AgentHealth{
		AgentID:             agentID,
		TotalRequests:       c.totalRequests,
		TotalFailures:       c.totalFailures,
		ConsecutiveFailures: c.consecutiveFailures,
		LastSuccess:         c.lastSuccess,
		LastFailure:         c.lastFailure,
		SuccessRate:         successRate,
		Status:              deriveStatus(c.consecutiveFailures, successRate),
	}
}

// deriveStatus applies the thresholds of spec.md §3.
func deriveStatus(consecutiveFailures uint64, successRate float64) Status {
	switch {
	case consecutiveFailures >= 5:
		return StatusUnreachable
	case consecutiveFailures >= 3 || successRate < 0.5:
		return StatusUnhealthy
	case consecutiveFailures >= 1 || (successRate >= 0.5 && successRate < 0.9):
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// IsUnreachable satisfies dispatcher.HealthTracker: the dispatcher's
// pre-call filter skips an agent whose status is unreachable, or whose
// circuit breaker has tripped open ahead of the 5-failure status
// threshold.
func (t *Tracker) IsUnreachable(agentID string) bool {
	if t.StatusOf(agentID).Status == StatusUnreachable {
		return true
	}
	return !t.breakers.Get(agentID).CanExecute()
}

// Breaker returns the circuit breaker backing agentID, letting the
// dispatcher wrap a call in Execute/ExecuteWithTimeout directly instead
// of only consulting IsUnreachable beforehand.
func (t *Tracker) Breaker(agentID string) core.CircuitBreaker {
	return t.breakers.Get(agentID)
}

// FilterHealthy drops any candidate agent that is neither healthy nor
// degraded (spec.md §4.5).
func (t *Tracker) FilterHealthy(candidates []string) []string {
	filtered := make([]string, 0, len(candidates))
	for _, id := range candidates {
		status := t.StatusOf(id).Status
		if status == StatusHealthy || status == StatusDegraded {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

// Summary returns a snapshot for every tracked agent.
func (t *Tracker) Summary() map[string]AgentHealth {
	t.mu.RLock()
	ids := make([]string, 0, len(t.agents))
	for id := range t.agents {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	summary := make(map[string]AgentHealth, len(ids))
	for _, id := range ids {
		summary[id] = t.StatusOf(id)
	}
	return summary
}
