package orchestrator

import (
	"fmt"

	"github.com/Miles0sage/agentgate/core"
)

// dag indexes a plan's tasks by ID and validates that blocked_by edges
// form an acyclic graph, following the teacher's
// orchestration/workflow_dag.go DFS cycle-detection approach.
type dag struct {
	byID  map[string]*Task
	order []string
}

func newDAG(plan ExecutionPlan) (*dag, error) {
	d := &dag{byID: make(map[string]*Task, len(plan.Tasks))}
	for _, t := range plan.Tasks {
		if _, dup := d.byID[t.ID]; dup {
			return nil, core.NewGatewayError("orchestrator.newDAG", core.ErrKindValidation, fmt.Errorf("duplicate task id %q", t.ID))
		}
		d.byID[t.ID] = t
		d.order = append(d.order, t.ID)
	}
	for _, t := range plan.Tasks {
		for _, dep := range t.BlockedBy {
			if _, ok := d.byID[dep]; !ok {
				return nil, core.NewGatewayError("orchestrator.newDAG", core.ErrKindValidation, fmt.Errorf("task %q blocked_by unknown task %q", t.ID, dep))
			}
		}
	}
	if err := d.detectCycle(); err != nil {
		return nil, err
	}
	return d, nil
}

// detectCycle runs a three-color DFS (white/gray/black) over blocked_by
// edges; a gray node revisited means a cycle (spec.md §3 "the graph must
// be a DAG; cycles are a construction-time error").
func (d *dag) detectCycle() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.order))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, dep := range d.byID[id].BlockedBy {
			switch color[dep] {
			case gray:
				return core.NewGatewayError("orchestrator.detectCycle", core.ErrKindValidation, core.ErrPlanHasCycle)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, id := range d.order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// ready returns every task still pending whose blocked_by set is
// entirely completed.
func (d *dag) ready() []*Task {
	var runnable []*Task
	for _, id := range d.order {
		t := d.byID[id]
		if t.Status != StatusPending {
			continue
		}
		if d.dependenciesSatisfied(t) {
			runnable = append(runnable, t)
		}
	}
	return runnable
}

func (d *dag) dependenciesSatisfied(t *Task) bool {
	for _, dep := range t.BlockedBy {
		if d.byID[dep].Status != StatusCompleted {
			return false
		}
	}
	return true
}

// hasFailedDependency reports whether any of t's blocked_by tasks is
// terminally failed or timed out — such a task is marked upstream_failed
// and never runs.
func (d *dag) hasFailedDependency(t *Task) bool {
	for _, dep := range t.BlockedBy {
		status := d.byID[dep].Status
		if status == StatusFailed || status == StatusTimeout {
			return true
		}
	}
	return false
}

func (d *dag) allTerminal() bool {
	for _, id := range d.order {
		switch d.byID[id].Status {
		case StatusCompleted, StatusFailed, StatusTimeout:
		default:
			return false
		}
	}
	return true
}
