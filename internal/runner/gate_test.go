package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/baton/internal/models"
	"github.com/example/baton/internal/ports/secondary"
)

func TestGateExecutor_ExitCodeZero(t *testing.T) {
	g := NewGateExecutor()

	outcome, err := g.Run(context.Background(), secondary.GateSpec{
		Name:    "unit tests",
		Command: "true",
		Kind:    models.GateExitZero,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Passed)
	assert.Equal(t, 0, outcome.ExitCode)
}

func TestGateExecutor_NonZeroExitFails(t *testing.T) {
	g := NewGateExecutor()

	outcome, err := g.Run(context.Background(), secondary.GateSpec{
		Name:    "unit tests",
		Command: "exit 3",
		Kind:    models.GateExitZero,
	})
	require.NoError(t, err)
	assert.False(t, outcome.Passed)
	assert.Equal(t, 3, outcome.ExitCode)
}

func TestGateExecutor_OutputMatch(t *testing.T) {
	g := NewGateExecutor()

	outcome, err := g.Run(context.Background(), secondary.GateSpec{
		Name:      "healthcheck",
		Command:   "echo service is healthy",
		Kind:      models.GateOutputMatch,
		Criterion: "healthy",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Passed)
}

func TestGateExecutor_OutputMatchIgnoresExitCode(t *testing.T) {
	g := NewGateExecutor()

	// Criterion decides, not the exit code.
	outcome, err := g.Run(context.Background(), secondary.GateSpec{
		Name:      "healthcheck",
		Command:   "echo degraded; exit 1",
		Kind:      models.GateOutputMatch,
		Criterion: "healthy",
	})
	require.NoError(t, err)
	assert.False(t, outcome.Passed)

	outcome, err = g.Run(context.Background(), secondary.GateSpec{
		Name:      "healthcheck",
		Command:   "echo healthy; exit 1",
		Kind:      models.GateOutputMatch,
		Criterion: "healthy",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Passed)
}

func TestGateExecutor_Timeout(t *testing.T) {
	g := NewGateExecutor()

	start := time.Now()
	outcome, err := g.Run(context.Background(), secondary.GateSpec{
		Name:    "slow gate",
		Command: "sleep 30",
		Kind:    models.GateExitZero,
		Timeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, outcome.TimedOut)
	assert.False(t, outcome.Passed)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGateExecutor_TimeoutKillsChildren(t *testing.T) {
	g := NewGateExecutor()

	// A backgrounded child inherits the output pipe; it must not keep
	// the gate alive past its deadline.
	start := time.Now()
	outcome, err := g.Run(context.Background(), secondary.GateSpec{
		Name:    "forking gate",
		Command: "sleep 30 & wait",
		Kind:    models.GateExitZero,
		Timeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, outcome.TimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGateExecutor_EmptyCommand(t *testing.T) {
	g := NewGateExecutor()

	_, err := g.Run(context.Background(), secondary.GateSpec{Name: "empty"})
	assert.Error(t, err)
}
