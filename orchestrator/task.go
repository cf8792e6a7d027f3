// Package orchestrator implements the Parallel Task Orchestrator
// (spec.md §4.4): it executes an ExecutionPlan across bounded per-pool
// worker sets, honors blocked_by dependencies, and aggregates results
// with security-first conflict resolution before a final synthesis call.
package orchestrator

import (
	"time"
)

// Pool names the three closed task categories (spec.md §3, §4.4).
type Pool string

const (
	PoolCodegen  Pool = "codegen"
	PoolSecurity Pool = "security"
	PoolDatabase Pool = "database"
)

// Status is a Task's lifecycle state (spec.md §3 invariant: pending →
// running → (completed | failed | timeout); failed may re-enter pending
// up to max_retries times; completed and timeout are terminal).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
)

// Task is one unit of parallel work.
type Task struct {
	ID         string
	Pool       Pool
	Prompt     string
	Priority   int
	Timeout    time.Duration
	MaxRetries int
	BlockedBy  []string

	Status      Status
	Result      map[string]interface{}
	ErrorDetail string
	FailReason  string // "upstream_failed", "cancelled", or an ErrorKind

	StartedAt   time.Time
	CompletedAt time.Time
	retries     int
}

// ExecutionPlan is the Orchestrator's input: a set of Tasks whose
// blocked_by edges must form a DAG. ID is optional; callers that want
// the run persisted via an ExecutionStore set it, otherwise Execute
// runs without a durable debug record.
type ExecutionPlan struct {
	ID    string
	Tasks []*Task
}
