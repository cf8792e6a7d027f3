package cost_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miles0sage/agentgate/core"
	"github.com/Miles0sage/agentgate/cost"
)

func testAgents() []*core.Agent {
	return []*core.Agent{{ID: "agent-1", CostPerInputToken: 3.0, CostPerOutputToken: 15.0}}
}

func defaultTiers() map[cost.Tier]cost.TierLimits {
	return map[cost.Tier]cost.TierLimits{
		cost.TierTask:  {LimitUSD: 10, WarnUSD: 5},
		cost.TierDay:   {LimitUSD: 50, WarnUSD: 40},
		cost.TierMonth: {LimitUSD: 1000, WarnUSD: 800},
	}
}

func TestCheckBudget_ApprovesSmallRequest(t *testing.T) {
	e := cost.New(testAgents(), defaultTiers())
	result, err := e.CheckBudget(context.Background(), "proj-a", "agent-1", "m", 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, cost.DecisionApproved, result.Decision)
}

func TestCheckBudget_RejectsOverTaskLimit(t *testing.T) {
	e := cost.New(testAgents(), defaultTiers())
	_, err := e.CheckBudget(context.Background(), "proj-a", "agent-1", "m", 5_000_000, 5_000_000)
	require.Error(t, err)
	assert.True(t, core.IsTerminal(err))
}

func TestRecordCost_AccumulatesAndLedgers(t *testing.T) {
	dir := t.TempDir()
	ledger := filepath.Join(dir, "cost.jsonl")
	e := cost.New(testAgents(), defaultTiers(), cost.WithLedgerPath(ledger))

	usd, err := e.RecordCost(context.Background(), "proj-a", "agent-1", "m", 1000, 1000)
	require.NoError(t, err)
	assert.Greater(t, usd, 0.0)

	data, err := os.ReadFile(ledger)
	require.NoError(t, err)
	assert.Contains(t, string(data), "proj-a")
}

func TestCheckBudget_RejectionReportsRemainingFromPreEstimateSpend(t *testing.T) {
	e := cost.New(testAgents(), defaultTiers())
	ctx := context.Background()

	// Bring the day tier to $49.50 of its $50 limit before the check.
	_, err := e.RecordCost(ctx, "proj-a", "agent-1", "m", 0, 3_300_000)
	require.NoError(t, err)

	result, err := e.CheckBudget(ctx, "proj-a", "agent-1", "m", 500_000, 0)
	require.Error(t, err)
	assert.Equal(t, cost.DecisionRejected, result.Decision)
	assert.Equal(t, cost.TierDay, result.Tier)
	assert.InDelta(t, 0.50, result.RemainingUSD, 0.001)
}

func TestRecordCost_FeedsSubsequentCheckBudget(t *testing.T) {
	e := cost.New(testAgents(), defaultTiers())
	// Five $9 calls put the day tier at $45: past the $40 warning, under $50.
	for i := 0; i < 5; i++ {
		_, err := e.RecordCost(context.Background(), "proj-a", "agent-1", "m", 500_000, 500_000)
		require.NoError(t, err)
	}
	result, err := e.CheckBudget(context.Background(), "proj-a", "agent-1", "m", 100, 100)
	require.NoError(t, err)
	assert.NotEqual(t, cost.DecisionApproved, result.Decision)
}

func TestSummary_AggregatesByProjectAgentModel(t *testing.T) {
	dir := t.TempDir()
	ledger := filepath.Join(dir, "cost.jsonl")
	e := cost.New(testAgents(), defaultTiers(), cost.WithLedgerPath(ledger))
	_, err := e.RecordCost(context.Background(), "proj-a", "agent-1", "model-x", 1000, 1000)
	require.NoError(t, err)

	summary, err := e.Summary(cost.SummaryFilter{})
	require.NoError(t, err)
	assert.Greater(t, summary["project:proj-a"], 0.0)
	assert.Greater(t, summary["agent:agent-1"], 0.0)
	assert.Greater(t, summary["model:model-x"], 0.0)
}
