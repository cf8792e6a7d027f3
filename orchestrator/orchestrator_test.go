package orchestrator_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miles0sage/agentgate/orchestrator"
)

func TestExecute_RunsIndependentTasksAndSynthesizes(t *testing.T) {
	plan := orchestrator.ExecutionPlan{Tasks: []*orchestrator.Task{
		{ID: "t1", Pool: orchestrator.PoolCodegen, Prompt: "build frontend"},
		{ID: "t2", Pool: orchestrator.PoolDatabase, Prompt: "design schema"},
	}}

	dispatch := func(ctx context.Context, task *orchestrator.Task) (map[string]interface{}, error) {
		switch task.Pool {
		case orchestrator.PoolCodegen:
			return map[string]interface{}{"code": "package main"}, nil
		case orchestrator.PoolDatabase:
			return map[string]interface{}{"schema": "CREATE TABLE x (id int)"}, nil
		}
		return nil, fmt.Errorf("unexpected pool")
	}
	synthesize := func(ctx context.Context, req string, unified map[orchestrator.Pool]orchestrator.PoolResults) (string, error) {
		return "synthesis complete", nil
	}

	o := orchestrator.New(dispatch, synthesize)
	result, err := o.Execute(context.Background(), plan, "build the thing")

	require.NoError(t, err)
	assert.Equal(t, "synthesis complete", result.Response)
	for _, task := range result.Tasks {
		assert.Equal(t, orchestrator.StatusCompleted, task.Status)
	}
}

func TestExecute_UpstreamFailurePropagates(t *testing.T) {
	plan := orchestrator.ExecutionPlan{Tasks: []*orchestrator.Task{
		{ID: "t1", Pool: orchestrator.PoolCodegen, Prompt: "build backend"},
		{ID: "t2", Pool: orchestrator.PoolSecurity, Prompt: "audit", BlockedBy: []string{"t1"}},
	}}

	dispatch := func(ctx context.Context, task *orchestrator.Task) (map[string]interface{}, error) {
		if task.ID == "t1" {
			return nil, fmt.Errorf("terminal failure")
		}
		return map[string]interface{}{"findings": []interface{}{}}, nil
	}
	synthesize := func(ctx context.Context, req string, unified map[orchestrator.Pool]orchestrator.PoolResults) (string, error) {
		return "partial", nil
	}

	o := orchestrator.New(dispatch, synthesize)
	result, err := o.Execute(context.Background(), plan, "ship it")
	require.NoError(t, err)

	var t1, t2 *orchestrator.Task
	for _, task := range result.Tasks {
		switch task.ID {
		case "t1":
			t1 = task
		case "t2":
			t2 = task
		}
	}
	assert.Equal(t, orchestrator.StatusFailed, t1.Status)
	assert.Equal(t, orchestrator.StatusFailed, t2.Status)
	assert.Equal(t, "upstream_failed", t2.FailReason)
}

func TestNewDAG_RejectsCycles(t *testing.T) {
	plan := orchestrator.ExecutionPlan{Tasks: []*orchestrator.Task{
		{ID: "a", Pool: orchestrator.PoolCodegen, BlockedBy: []string{"b"}},
		{ID: "b", Pool: orchestrator.PoolCodegen, BlockedBy: []string{"a"}},
	}}
	dispatch := func(ctx context.Context, task *orchestrator.Task) (map[string]interface{}, error) {
		return map[string]interface{}{"code": "x"}, nil
	}
	synthesize := func(ctx context.Context, req string, unified map[orchestrator.Pool]orchestrator.PoolResults) (string, error) {
		return "", nil
	}
	o := orchestrator.New(dispatch, synthesize)
	_, err := o.Execute(context.Background(), plan, "req")
	require.Error(t, err)
}
