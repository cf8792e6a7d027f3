package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miles0sage/agentgate/core"
	"github.com/Miles0sage/agentgate/resilience"
)

func newTestBreaker() *resilience.CircuitBreaker {
	params := core.DefaultCircuitBreakerParams("test")
	params.Config.Timeout = 20 * time.Millisecond
	return resilience.NewCircuitBreaker(params)
}

func TestExecute_TripsOpenAfterThreshold(t *testing.T) {
	cb := newTestBreaker()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func() error { return boom })
		require.Error(t, err)
	}

	assert.Equal(t, "open", cb.GetState())
	assert.False(t, cb.CanExecute())
}

func TestExecute_StaysClosedBelowThreshold(t *testing.T) {
	cb := newTestBreaker()
	boom := errors.New("boom")

	_ = cb.Execute(context.Background(), func() error { return boom })
	_ = cb.Execute(context.Background(), func() error { return boom })

	assert.Equal(t, "closed", cb.GetState())
	assert.True(t, cb.CanExecute())
}

func TestCanExecute_MovesToHalfOpenAfterCooldown(t *testing.T) {
	cb := newTestBreaker()
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return boom })
	}
	require.Equal(t, "open", cb.GetState())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, cb.CanExecute())
	assert.Equal(t, "half-open", cb.GetState())
}

func TestExecute_ClosesAfterHalfOpenSuccess(t *testing.T) {
	cb := newTestBreaker()
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return boom })
	}
	time.Sleep(30 * time.Millisecond)

	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "closed", cb.GetState())
}

func TestExecuteWithTimeout_ReturnsTimeoutKind(t *testing.T) {
	cb := newTestBreaker()
	err := cb.ExecuteWithTimeout(context.Background(), 5*time.Millisecond, func() error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, core.ErrKindTimeout, core.KindOf(err))
}

func TestRegistry_ReturnsSameBreakerForSameAgent(t *testing.T) {
	reg := resilience.NewRegistry(nil)
	a := reg.Get("agent-1")
	b := reg.Get("agent-1")
	assert.Same(t, a, b)
}
