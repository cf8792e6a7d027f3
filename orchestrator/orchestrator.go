package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/Miles0sage/agentgate/core"
)

// PoolConfig configures one worker pool's bounded concurrency, per-task
// timeout default, and retry budget default (spec.md §4.4).
type PoolConfig struct {
	Concurrency int
	Timeout     time.Duration
	MaxRetries  int
}

// DefaultPoolConfigs returns the spec's named defaults.
func DefaultPoolConfigs() map[Pool]PoolConfig {
	return map[Pool]PoolConfig{
		PoolCodegen:  {Concurrency: 3, Timeout: 300 * time.Second, MaxRetries: 2},
		PoolSecurity: {Concurrency: 2, Timeout: 300 * time.Second, MaxRetries: 2},
		PoolDatabase: {Concurrency: 2, Timeout: 180 * time.Second, MaxRetries: 2},
	}
}

// TaskDispatcher runs one task's prompt through the router+dispatcher
// pipeline and returns a pool-shaped result map.
type TaskDispatcher func(ctx context.Context, t *Task) (map[string]interface{}, error)

// Synthesizer runs the final coordinator call over the aggregated
// unified context.
type Synthesizer func(ctx context.Context, originalRequest string, unifiedContext map[Pool]PoolResults) (string, error)

// ExecutionStore persists a plan's outcome for later debugging or
// replay. Saving is best-effort: a store failure is logged, never
// returned to the caller of Execute.
type ExecutionStore interface {
	SaveResult(ctx context.Context, planID string, result ExecutionResult) error
}

// Orchestrator is the Parallel Task Orchestrator.
type Orchestrator struct {
	pools      map[Pool]PoolConfig
	dispatch   TaskDispatcher
	synthesize Synthesizer
	store      ExecutionStore
	logger     core.Logger
	telemetry  core.Telemetry
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithPools(pools map[Pool]PoolConfig) Option { return func(o *Orchestrator) { o.pools = pools } }
func WithLogger(l core.Logger) Option            { return func(o *Orchestrator) { o.logger = l } }
func WithTelemetry(t core.Telemetry) Option      { return func(o *Orchestrator) { o.telemetry = t } }
func WithExecutionStore(s ExecutionStore) Option { return func(o *Orchestrator) { o.store = s } }

// New builds an Orchestrator.
func New(dispatch TaskDispatcher, synthesize Synthesizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pools:      DefaultPoolConfigs(),
		dispatch:   dispatch,
		synthesize: synthesize,
		logger:     core.NoOpLogger{},
		telemetry:  core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExecutionResult is Execute's return value.
type ExecutionResult struct {
	Tasks    []*Task
	Response string
}

// Execute runs an ExecutionPlan to a fixed point, aggregates, and
// synthesizes a final response (spec.md §4.4).
func (o *Orchestrator) Execute(ctx context.Context, plan ExecutionPlan, originalRequest string) (ExecutionResult, error) {
	ctx, span := o.telemetry.StartSpan(ctx, "orchestrator.Execute")
	defer span.End()

	d, err := newDAG(plan)
	if err != nil {
		return ExecutionResult{}, err
	}

	sems := make(map[Pool]chan struct{}, len(o.pools))
	for pool, cfg := range o.pools {
		sems[pool] = make(chan struct{}, cfg.Concurrency)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex // guards task state transitions

	for {
		mu.Lock()
		if d.allTerminal() {
			mu.Unlock()
			break
		}
		if ctx.Err() != nil {
			o.cancelRemaining(d)
			mu.Unlock()
			break
		}

		runnable := d.ready()
		for _, t := range runnable {
			t.Status = StatusRunning
			t.StartedAt = time.Now().UTC()
		}
		for _, id := range d.order {
			t := d.byID[id]
			if t.Status == StatusPending && d.hasFailedDependency(t) {
				t.Status = StatusFailed
				t.FailReason = "upstream_failed"
				t.CompletedAt = time.Now().UTC()
			}
		}
		mu.Unlock()

		if len(runnable) == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		for _, t := range runnable {
			wg.Add(1)
			go o.runTask(ctx, t, o.pools[t.Pool], sems[t.Pool], &mu, &wg)
		}
		wg.Wait()
	}

	aggregated := aggregate(d)
	response, err := o.synthesize(ctx, originalRequest, aggregated)
	if err != nil {
		result := ExecutionResult{Tasks: tasksOf(d)}
		o.persist(ctx, plan.ID, result)
		return result, core.NewGatewayError("orchestrator.Execute", core.ErrKindUpstreamFailed, err)
	}

	result := ExecutionResult{Tasks: tasksOf(d), Response: response}
	o.persist(ctx, plan.ID, result)
	return result, nil
}

// persist saves a run's outcome when the caller configured a store and
// supplied a plan ID. Failures never affect Execute's return value.
func (o *Orchestrator) persist(ctx context.Context, planID string, result ExecutionResult) {
	if o.store == nil || planID == "" {
		return
	}
	if err := o.store.SaveResult(ctx, planID, result); err != nil {
		o.logger.Warn("execution store save failed", map[string]interface{}{"plan_id": planID, "error": err.Error()})
	}
}

func (o *Orchestrator) runTask(ctx context.Context, t *Task, cfg PoolConfig, sem chan struct{}, mu *sync.Mutex, wg *sync.WaitGroup) {
	defer wg.Done()
	sem <- struct{}{}
	defer func() { <-sem }()

	timeout := t.Timeout
	if timeout == 0 {
		timeout = cfg.Timeout
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := o.dispatch(taskCtx, t)

	mu.Lock()
	defer mu.Unlock()

	if err != nil {
		maxRetries := t.MaxRetries
		if maxRetries == 0 {
			maxRetries = cfg.MaxRetries
		}
		timedOut := taskCtx.Err() == context.DeadlineExceeded

		if t.retries < maxRetries && (timedOut || core.IsRetryable(err)) {
			t.retries++
			t.Status = StatusPending
			return
		}

		if timedOut {
			t.Status = StatusTimeout
		} else {
			t.Status = StatusFailed
		}
		t.FailReason = string(core.KindOf(err))
		t.ErrorDetail = err.Error()
		t.CompletedAt = time.Now().UTC()
		return
	}

	t.Result = result
	t.Status = StatusCompleted
	t.CompletedAt = time.Now().UTC()
}

func (o *Orchestrator) cancelRemaining(d *dag) {
	for _, id := range d.order {
		t := d.byID[id]
		if t.Status == StatusPending || t.Status == StatusRunning {
			t.Status = StatusFailed
			t.FailReason = "cancelled"
			t.CompletedAt = time.Now().UTC()
		}
	}
}

func tasksOf(d *dag) []*Task {
	tasks := make([]*Task, 0, len(d.order))
	for _, id := range d.order {
		tasks = append(tasks, d.byID[id])
	}
	return tasks
}
