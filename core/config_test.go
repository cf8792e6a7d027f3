package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miles0sage/agentgate/core"
)

func validAgentSpec() core.AgentSpec {
	return core.AgentSpec{ID: "a1", Provider: "anthropic", Model: "claude"}
}

func TestNewConfig_RejectsEmptyAgentList(t *testing.T) {
	_, err := core.NewConfig()
	require.Error(t, err)
}

func TestNewConfig_AcceptsValidAgents(t *testing.T) {
	cfg, err := core.NewConfig(func(c *core.Config) { c.Agents = []core.AgentSpec{validAgentSpec()} })
	require.NoError(t, err)
	assert.Len(t, cfg.ToAgents(), 1)
}

func TestValidate_RejectsDuplicateAgentIDs(t *testing.T) {
	_, err := core.NewConfig(func(c *core.Config) {
		c.Agents = []core.AgentSpec{validAgentSpec(), validAgentSpec()}
	})
	require.Error(t, err)
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	_, err := core.NewConfig(func(c *core.Config) {
		c.Agents = []core.AgentSpec{{ID: "a1", Provider: "made-up"}}
	})
	require.Error(t, err)
}

func TestValidate_RejectsWarnAboveLimit(t *testing.T) {
	_, err := core.NewConfig(func(c *core.Config) {
		c.Agents = []core.AgentSpec{validAgentSpec()}
		c.QuotaTiers = map[string]core.QuotaTierSpec{"task": {LimitUSD: 5, WarnUSD: 10}}
	})
	require.Error(t, err)
}
