package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/cropagent/internal/telemetry"
)

func TestInit_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := telemetry.Init(context.Background(), telemetry.Config{ServiceName: "cropagent"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	// The global providers still hand out usable instruments.
	counter, err := telemetry.Meter("test").Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	_, span := telemetry.Tracer("test").Start(context.Background(), "noop")
	span.End()
}

func TestSinceMS(t *testing.T) {
	ms := telemetry.SinceMS(time.Now().Add(-25 * time.Millisecond))
	assert.GreaterOrEqual(t, ms, 25.0)
}
