package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Miles0sage/agentgate/core"
)

func TestIsRetryable_TrueForRetryableKinds(t *testing.T) {
	err := core.NewGatewayError("dispatch", core.ErrKindTimeout, nil)
	assert.True(t, core.IsRetryable(err))
	assert.False(t, core.IsTerminal(err))
}

func TestIsRetryable_FalseForTerminalKinds(t *testing.T) {
	err := core.NewGatewayError("dispatch", core.ErrKindAuthentication, nil)
	assert.False(t, core.IsRetryable(err))
	assert.True(t, core.IsTerminal(err))
}

func TestGatewayError_UnwrapsToSentinel(t *testing.T) {
	err := core.NewGatewayError("dispatch", core.ErrKindRateLimit, nil)
	assert.True(t, errors.Is(err, core.ErrRateLimit))
}

func TestKindOf_DefaultsToInternalForUnclassifiedErrors(t *testing.T) {
	assert.Equal(t, core.ErrKindInternal, core.KindOf(errors.New("boom")))
}
