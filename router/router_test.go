package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miles0sage/agentgate/core"
	"github.com/Miles0sage/agentgate/router"
)

func testAgents() []*core.Agent {
	return []*core.Agent{
		{
			ID: "sec-agent", DisplayName: "Security Agent", Provider: core.ProviderAnthropic,
			CostPerInputToken: 3.0, SkillTags: []string{"security", "vulnerability", "auth"},
			IntentAffinities: map[core.Intent]float64{core.IntentSecurity: 0.9},
		},
		{
			ID: "dev-agent", DisplayName: "Dev Agent", Provider: core.ProviderDeepSeek,
			CostPerInputToken: 0.5, SkillTags: []string{"code", "refactor", "function"},
			IntentAffinities: map[core.Intent]float64{core.IntentDevelopment: 0.9},
		},
		{
			ID: "default-agent", DisplayName: "General Agent", Provider: core.ProviderOllama,
			CostPerInputToken: 0.1, SkillTags: []string{"general"},
		},
	}
}

func TestSelect_RoutesByKeyword(t *testing.T) {
	r := router.New(testAgents(), "default-agent")
	decision := r.Select(context.Background(), "find the auth vulnerability in this endpoint", nil, "")
	assert.Equal(t, "sec-agent", decision.AgentID)
	assert.Equal(t, core.IntentSecurity, decision.Intent)
	assert.Greater(t, decision.Confidence, 0.1)
}

func TestSelect_AgentHintBypassesScoring(t *testing.T) {
	r := router.New(testAgents(), "default-agent")
	decision := r.Select(context.Background(), "anything at all", nil, "dev-agent")
	assert.Equal(t, "dev-agent", decision.AgentID)
	assert.Equal(t, 1.0, decision.Confidence)
}

func TestSelect_FallsBackToDefaultWhenNothingMatches(t *testing.T) {
	r := router.New(testAgents(), "default-agent")
	decision := r.Select(context.Background(), "zzz qqq xxx", nil, "")
	assert.Equal(t, "default-agent", decision.AgentID)
}

func TestSelect_CachesRepeatQueries(t *testing.T) {
	r := router.New(testAgents(), "default-agent", router.WithCacheTTL(time.Minute))
	first := r.Select(context.Background(), "refactor this function", nil, "")
	require.False(t, first.Cached)
	second := r.Select(context.Background(), "refactor this function", nil, "")
	assert.True(t, second.Cached)
	assert.Equal(t, first.AgentID, second.AgentID)
}

func TestClearCache_DropsEntries(t *testing.T) {
	r := router.New(testAgents(), "default-agent")
	r.Select(context.Background(), "refactor this function", nil, "")
	r.ClearCache()
	decision := r.Select(context.Background(), "refactor this function", nil, "")
	assert.False(t, decision.Cached)
}

func TestEnableSemantic_FailsWithoutEmbedder(t *testing.T) {
	r := router.New(testAgents(), "default-agent")
	assert.False(t, r.EnableSemantic())
}

func TestEnableSemantic_SucceedsWithEmbedder(t *testing.T) {
	r := router.New(testAgents(), "default-agent", router.WithEmbedder(func(s string) []float64 {
		return []float64{1, 0, 0}
	}))
	assert.True(t, r.EnableSemantic())
}

func TestStats_TracksRoutedAgents(t *testing.T) {
	r := router.New(testAgents(), "default-agent")
	r.Select(context.Background(), "refactor this function", nil, "")
	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.RoutedByAgent["dev-agent"])
}
