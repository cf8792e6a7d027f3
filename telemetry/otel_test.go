package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miles0sage/agentgate/telemetry"
)

func TestNewProvider_RejectsEmptyServiceName(t *testing.T) {
	_, err := telemetry.NewProvider("")
	require.Error(t, err)
}

func TestStartSpan_ReturnsUsableSpan(t *testing.T) {
	p, err := telemetry.NewProvider("test-service")
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	_, span := p.StartSpan(context.Background(), "unit-test-span")
	span.SetAttribute("key", "value")
	span.RecordError(errors.New("boom"))
	span.End()
}

func TestRecordMetric_DoesNotPanic(t *testing.T) {
	p, err := telemetry.NewProvider("test-service")
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	assert.NotPanics(t, func() {
		p.RecordMetric("requests_total", 1, map[string]string{"agent_id": "a1"})
	})
}
