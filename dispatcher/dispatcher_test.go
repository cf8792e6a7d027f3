package dispatcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miles0sage/agentgate/ai"
	"github.com/Miles0sage/agentgate/core"
	"github.com/Miles0sage/agentgate/dispatcher"
)

type fakeAdapters struct {
	byProvider map[core.Provider]ai.Adapter
}

func (f *fakeAdapters) Get(p core.Provider) (ai.Adapter, error) { return f.byProvider[p], nil }

type fakeHealth struct {
	unreachable map[string]bool
	successes   map[string]int
	failures    map[string]int
}

func newFakeHealth() *fakeHealth {
	return &fakeHealth{unreachable: map[string]bool{}, successes: map[string]int{}, failures: map[string]int{}}
}
func (h *fakeHealth) TrackSuccess(agentID string, _ time.Duration) { h.successes[agentID]++ }
func (h *fakeHealth) TrackFailure(agentID string, _ core.ErrorKind) { h.failures[agentID]++ }
func (h *fakeHealth) IsUnreachable(agentID string) bool            { return h.unreachable[agentID] }

type fakeCost struct{ recorded int }

func (c *fakeCost) RecordCost(ctx context.Context, project, agentID, model string, in, out int) (float64, error) {
	c.recorded++
	return 0, nil
}

func agentLookup(agents map[string]*core.Agent) dispatcher.AgentLookup {
	return func(id string) (*core.Agent, bool) {
		a, ok := agents[id]
		return a, ok
	}
}

func TestDispatch_SuccessOnPrimary(t *testing.T) {
	mock := ai.NewMockAdapter("hello there")
	agents := map[string]*core.Agent{
		"dev-agent": {ID: "dev-agent", DisplayName: "Dev", Provider: core.ProviderAnthropic, Model: "claude"},
	}
	adapters := &fakeAdapters{byProvider: map[core.Provider]ai.Adapter{core.ProviderAnthropic: mock}}
	health := newFakeHealth()
	cost := &fakeCost{}

	d := dispatcher.New(agentLookup(agents), adapters, health, cost)
	result, err := d.Dispatch(context.Background(), "dev-agent", "hi", nil, dispatcher.Options{})

	require.NoError(t, err)
	assert.Equal(t, "hello there", result.ResponseText)
	assert.Equal(t, 1, health.successes["dev-agent"])
	assert.Equal(t, 1, cost.recorded)
}

func TestDispatch_FallsBackOnFailure(t *testing.T) {
	failing := &ai.MockAdapter{Err: core.NewGatewayError("x", core.ErrKindNetwork, nil)}
	working := ai.NewMockAdapter("fallback response")
	agents := map[string]*core.Agent{
		"primary":  {ID: "primary", Provider: core.ProviderAnthropic, Model: "m1", FallbackChain: []core.AgentModelRef{{AgentID: "backup", Model: "m2"}}},
		"backup":   {ID: "backup", Provider: core.ProviderDeepSeek, Model: "m2"},
	}
	adapters := &fakeAdapters{byProvider: map[core.Provider]ai.Adapter{
		core.ProviderAnthropic: failing,
		core.ProviderDeepSeek:  working,
	}}
	health := newFakeHealth()
	cost := &fakeCost{}

	d := dispatcher.New(agentLookup(agents), adapters, health, cost, dispatcher.WithDefaults(time.Second, 0))
	result, err := d.Dispatch(context.Background(), "primary", "hi", nil, dispatcher.Options{})

	require.NoError(t, err)
	assert.Equal(t, "fallback response", result.ResponseText)
	assert.Equal(t, 1, health.failures["primary"])
	assert.Equal(t, 1, health.successes["backup"])
}

func TestDispatch_RecordsOneAttemptPerProviderInvocation(t *testing.T) {
	failing := &ai.MockAdapter{Err: core.NewGatewayError("x", core.ErrKindNetwork, nil), FailTimes: 3}
	working := ai.NewMockAdapter("fallback response")
	agents := map[string]*core.Agent{
		"primary": {ID: "primary", Provider: core.ProviderAnthropic, Model: "m1", FallbackChain: []core.AgentModelRef{{AgentID: "backup", Model: "m2"}}},
		"backup":  {ID: "backup", Provider: core.ProviderDeepSeek, Model: "m2"},
	}
	adapters := &fakeAdapters{byProvider: map[core.Provider]ai.Adapter{
		core.ProviderAnthropic: failing,
		core.ProviderDeepSeek:  working,
	}}
	health := newFakeHealth()
	cost := &fakeCost{}

	d := dispatcher.New(agentLookup(agents), adapters, health, cost, dispatcher.WithDefaults(time.Second, 2))
	result, err := d.Dispatch(context.Background(), "primary", "hi", nil, dispatcher.Options{})

	require.NoError(t, err)
	assert.Equal(t, "fallback response", result.ResponseText)
	assert.Len(t, result.Attempts, 4)
	for _, a := range result.Attempts[:3] {
		assert.Equal(t, "primary", a.AgentID)
	}
	assert.Equal(t, "backup", result.Attempts[3].AgentID)
}

func TestDispatch_SkipsUnreachableAgent(t *testing.T) {
	working := ai.NewMockAdapter("ok")
	agents := map[string]*core.Agent{
		"primary": {ID: "primary", Provider: core.ProviderAnthropic, Model: "m1", FallbackChain: []core.AgentModelRef{{AgentID: "backup", Model: "m2"}}},
		"backup":  {ID: "backup", Provider: core.ProviderDeepSeek, Model: "m2"},
	}
	adapters := &fakeAdapters{byProvider: map[core.Provider]ai.Adapter{core.ProviderDeepSeek: working}}
	health := newFakeHealth()
	health.unreachable["primary"] = true
	cost := &fakeCost{}

	d := dispatcher.New(agentLookup(agents), adapters, health, cost)
	result, err := d.Dispatch(context.Background(), "primary", "hi", nil, dispatcher.Options{})

	require.NoError(t, err)
	assert.Equal(t, "ok", result.ResponseText)
}

func TestDispatch_ChainExhausted(t *testing.T) {
	failing := &ai.MockAdapter{Err: core.NewGatewayError("x", core.ErrKindAuthentication, nil)}
	agents := map[string]*core.Agent{
		"primary": {ID: "primary", Provider: core.ProviderAnthropic, Model: "m1"},
	}
	adapters := &fakeAdapters{byProvider: map[core.Provider]ai.Adapter{core.ProviderAnthropic: failing}}
	health := newFakeHealth()
	cost := &fakeCost{}

	d := dispatcher.New(agentLookup(agents), adapters, health, cost)
	_, err := d.Dispatch(context.Background(), "primary", "hi", nil, dispatcher.Options{})
	require.Error(t, err)
}
