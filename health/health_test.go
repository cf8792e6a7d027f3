package health_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Miles0sage/agentgate/core"
	"github.com/Miles0sage/agentgate/health"
)

func TestStatusOf_HealthyByDefault(t *testing.T) {
	tr := health.New(nil)
	assert.Equal(t, health.StatusHealthy, tr.StatusOf("agent-1").Status)
}

func TestTrackFailure_EscalatesToUnreachable(t *testing.T) {
	tr := health.New(nil)
	for i := 0; i < 5; i++ {
		tr.TrackFailure("agent-1", core.ErrKindNetwork)
	}
	status := tr.StatusOf("agent-1")
	assert.Equal(t, health.StatusUnreachable, status.Status)
	assert.True(t, tr.IsUnreachable("agent-1"))
}

func TestTrackSuccess_ResetsConsecutiveFailures(t *testing.T) {
	tr := health.New(nil)
	tr.TrackFailure("agent-1", core.ErrKindNetwork)
	tr.TrackFailure("agent-1", core.ErrKindNetwork)
	tr.TrackSuccess("agent-1", 0)
	status := tr.StatusOf("agent-1")
	assert.Equal(t, uint64(0), status.ConsecutiveFailures)
}

func TestFilterHealthy_DropsUnreachable(t *testing.T) {
	tr := health.New(nil)
	for i := 0; i < 5; i++ {
		tr.TrackFailure("bad-agent", core.ErrKindNetwork)
	}
	tr.TrackSuccess("good-agent", 0)

	filtered := tr.FilterHealthy([]string{"bad-agent", "good-agent"})
	assert.Equal(t, []string{"good-agent"}, filtered)
}

func TestIsUnreachable_TripsOnBreakerBeforeStatusThreshold(t *testing.T) {
	tr := health.New(nil)
	// 3 consecutive failures trips the circuit breaker even though the
	// status-derived threshold for "unreachable" is 5.
	for i := 0; i < 3; i++ {
		tr.TrackFailure("agent-1", core.ErrKindNetwork)
	}
	assert.Equal(t, health.StatusUnhealthy, tr.StatusOf("agent-1").Status)
	assert.True(t, tr.IsUnreachable("agent-1"))
}

func TestSummary_IncludesEveryTrackedAgent(t *testing.T) {
	tr := health.New(nil)
	tr.TrackSuccess("agent-1", 0)
	tr.TrackFailure("agent-2", core.ErrKindTimeout)

	summary := tr.Summary()
	assert.Len(t, summary, 2)
}
