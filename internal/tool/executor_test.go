package tool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/sentientos/internal/errs"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{
		ID:              "echo_tool",
		CommandTemplate: "echo {msg}",
		TimeoutSeconds:  5,
		ArgSchema:       &Schema{Fields: []Field{{Name: "msg", Type: FieldString, Required: true}}},
	}))
	require.NoError(t, r.Register(Tool{
		ID:                   "dangerous_tool",
		CommandTemplate:      "echo danger",
		RequiresPrivilege:    true,
		RequiresConfirmation: true,
		TimeoutSeconds:       5,
	}))
	require.NoError(t, r.Register(Tool{
		ID:             "sleepy_tool",
		CommandTemplate: "sleep 5",
		TimeoutSeconds: 1,
	}))
	return r
}

func TestExecuteValidatedModeRunsAndCapturesOutput(t *testing.T) {
	reg := testRegistry(t)
	ex := NewExecutor(reg, false, t.TempDir(), nil)

	args, _ := json.Marshal(map[string]string{"msg": "hello"})
	result, err := ex.Execute(context.Background(), "echo_tool", ModeValidated, args)
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "hello")
	assert.Equal(t, 0, result.ExitCode)
}

func TestExecuteUnknownToolFails(t *testing.T) {
	reg := testRegistry(t)
	ex := NewExecutor(reg, false, t.TempDir(), nil)

	_, err := ex.Execute(context.Background(), "nope", ModeValidated, nil)
	assert.ErrorIs(t, err, errs.UnknownTool)
}

func TestExecuteMissingRequiredArgFails(t *testing.T) {
	reg := testRegistry(t)
	ex := NewExecutor(reg, false, t.TempDir(), nil)

	_, err := ex.Execute(context.Background(), "echo_tool", ModeValidated, nil)
	assert.ErrorIs(t, err, errs.InvalidArgs)
}

func TestExecuteDangerousModeRejectsNonDangerousTool(t *testing.T) {
	reg := testRegistry(t)
	ex := NewExecutor(reg, false, t.TempDir(), nil)

	args, _ := json.Marshal(map[string]string{"msg": "x"})
	_, err := ex.Execute(context.Background(), "echo_tool", ModeDangerous, args)
	assert.ErrorIs(t, err, errs.InvalidArgs)
}

func TestExecutePrivilegedModeWithoutGrantFails(t *testing.T) {
	reg := testRegistry(t)
	ex := NewExecutor(reg, false, t.TempDir(), nil)

	_, err := ex.Execute(context.Background(), "dangerous_tool", ModePrivileged, nil)
	assert.ErrorIs(t, err, errs.Unauthorised)
}

func TestExecuteDangerousModeDeclinedConfirmationCancels(t *testing.T) {
	reg := testRegistry(t)
	ex := NewExecutor(reg, true, t.TempDir(), func(Tool, Mode, string) bool { return false })

	_, err := ex.Execute(context.Background(), "dangerous_tool", ModeDangerous, nil)
	assert.ErrorIs(t, err, errs.Cancelled)
}

func TestExecuteDangerousModeAcceptedConfirmationRuns(t *testing.T) {
	reg := testRegistry(t)
	ex := NewExecutor(reg, true, t.TempDir(), func(Tool, Mode, string) bool { return true })

	result, err := ex.Execute(context.Background(), "dangerous_tool", ModeDangerous, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "danger")
}

func TestExecuteBackgroundModeReturnsImmediately(t *testing.T) {
	reg := testRegistry(t)
	ex := NewExecutor(reg, false, t.TempDir(), nil)

	start := time.Now()
	result, err := ex.Execute(context.Background(), "sleepy_tool", ModeBackground, nil)
	require.NoError(t, err)
	assert.True(t, result.Started)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExecuteTimeoutInterrupts(t *testing.T) {
	reg := testRegistry(t)
	ex := NewExecutor(reg, false, t.TempDir(), nil)

	result, err := ex.Execute(context.Background(), "sleepy_tool", ModeValidated, nil)
	assert.ErrorIs(t, err, errs.Timeout)
	assert.True(t, result.Interrupted)
	assert.Equal(t, -1, result.ExitCode)
}
