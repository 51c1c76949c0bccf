package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/mscrnt/sentientos/internal/errs"
	"github.com/mscrnt/sentientos/internal/logging"
	"github.com/mscrnt/sentientos/internal/metrics"
	"github.com/mscrnt/sentientos/internal/safety"
)

var execLog = logging.For("tool.executor")

const pingTimeout = 2 * time.Second

// killGrace is how long Executor waits after sending terminate before
// escalating to kill on timeout expiry.
const killGrace = 3 * time.Second

// ConfirmFunc is consulted before a confirmation-requiring mode executes;
// it returns false to decline. A nil ConfirmFunc auto-declines, the safe
// default for an unattended daemon.
type ConfirmFunc func(t Tool, mode Mode, renderedCommand string) bool

// Executor runs tools looked up from a Registry under the mode-selected
// safety envelope.
type Executor struct {
	registry         *Registry
	confirm          ConfirmFunc
	privilegeGranted bool
	sandbox          *sandbox
	policy           *CommandPolicy
}

// NewExecutor builds an executor bound to registry. sandboxDir is the
// fallback isolation directory used when no Docker daemon is reachable.
func NewExecutor(registry *Registry, privilegeGranted bool, sandboxDir string, confirm ConfirmFunc) *Executor {
	return &Executor{
		registry:         registry,
		confirm:          confirm,
		privilegeGranted: privilegeGranted,
		sandbox:          newSandbox(sandboxDir),
		policy:           DefaultPolicy(),
	}
}

// Execute looks up the named tool, validates args, applies the given
// mode's safety envelope, renders and runs the command, and returns its
// result. Mode prefixes are parsed separately, by ParsePrefix.
func (e *Executor) Execute(ctx context.Context, toolID string, mode Mode, rawArgs json.RawMessage) (Result, error) {
	t, ok := e.registry.Get(toolID)
	if !ok {
		return Result{}, errs.Wrap(errs.UnknownTool, errFmt("unknown tool %q", toolID))
	}

	args, err := ValidateArgs(t.ArgSchema, rawArgs)
	if err != nil {
		return Result{}, errs.Wrap(errs.InvalidArgs, err)
	}

	switch mode {
	case ModeDangerous:
		if !t.RequiresPrivilege && !t.RequiresConfirmation {
			return Result{}, errs.Wrap(errs.InvalidArgs, errFmt("tool %q is not marked dangerous", toolID))
		}
	case ModePrivileged:
		if !e.privilegeGranted {
			return Result{}, errs.Wrap(errs.Unauthorised, errFmt("executor was not granted privilege"))
		}
		if !t.RequiresPrivilege {
			return Result{}, errs.Wrap(errs.Unauthorised, errFmt("tool %q does not require privilege", toolID))
		}
	}

	rendered, err := renderCommand(t.CommandTemplate, args)
	if err != nil {
		return Result{}, errs.Wrap(errs.InvalidArgs, err)
	}

	if e.policy.IsBlocked(rendered) {
		return Result{}, errs.Wrap(errs.Unauthorised, errFmt("command policy blocks %q", rendered))
	}

	if (t.RequiresConfirmation || mode == ModeDangerous) && mode != ModeBackground {
		if e.confirm == nil || !e.confirm(t, mode, rendered) {
			return Result{}, errs.Wrap(errs.Cancelled, errFmt("confirmation declined for tool %q", toolID))
		}
	}

	timeout := time.Duration(t.TimeoutSeconds) * time.Second

	if mode == ModeBackground {
		go e.runDetached(rendered, timeout)
		return Result{ToolID: toolID, Started: true}, nil
	}

	var result Result
	if mode == ModeSandboxed && e.sandbox.containerAvailable() {
		result, err = e.runSandboxedContainer(ctx, toolID, rendered, timeout)
	} else if mode == ModeSandboxed {
		env, dir := e.sandbox.fallbackEnv()
		result, err = e.run(ctx, toolID, rendered, timeout, env, dir)
	} else {
		result, err = e.run(ctx, toolID, rendered, timeout, nil, "")
	}

	metrics.ToolExecutionSeconds.WithLabelValues(toolID, string(mode)).Observe(float64(result.DurationMS) / 1000)
	return result, err
}

func (e *Executor) runSandboxedContainer(ctx context.Context, toolID, rendered string, timeout time.Duration) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := e.sandbox.runContainer(cctx, rendered)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		return Result{}, errs.Wrap(errs.Timeout, err)
	}

	redactedOut, _ := safety.RedactSensitiveText(stdout)
	redactedErr, _ := safety.RedactSensitiveText(stderr)
	return Result{
		ToolID:     toolID,
		Stdout:     redactedOut,
		Stderr:     redactedErr,
		ExitCode:   exitCode,
		DurationMS: duration,
	}, nil
}

func (e *Executor) run(ctx context.Context, toolID, rendered string, timeout time.Duration, extraEnv []string, workDir string) (Result, error) {
	start := time.Now()

	cmd := exec.Command("/bin/sh", "-c", rendered)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(extraEnv) > 0 {
		cmd.Env = append(cmd.Environ(), extraEnv...)
	}
	if workDir != "" {
		cmd.Dir = workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{}, errs.Wrap(errs.InvalidArgs, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		duration := time.Since(start).Milliseconds()
		exitCode := exitCodeOf(err)
		redactedOut, _ := safety.RedactSensitiveText(stdout.String())
		redactedErr, _ := safety.RedactSensitiveText(stderr.String())
		return Result{
			ToolID:     toolID,
			Stdout:     redactedOut,
			Stderr:     redactedErr,
			ExitCode:   exitCode,
			DurationMS: duration,
		}, nil

	case <-timer.C:
		terminateGroup(cmd)
		select {
		case <-done:
		case <-time.After(killGrace):
			killGroup(cmd)
			<-done
		}
		duration := time.Since(start).Milliseconds()
		redactedOut, _ := safety.RedactSensitiveText(stdout.String())
		redactedErr, _ := safety.RedactSensitiveText(stderr.String())
		return Result{
			ToolID:      toolID,
			Stdout:      redactedOut,
			Stderr:      redactedErr,
			ExitCode:    -1,
			DurationMS:  duration,
			Interrupted: true,
		}, errs.Wrap(errs.Timeout, errFmt("tool %q exceeded %s timeout", toolID, timeout))

	case <-ctx.Done():
		terminateGroup(cmd)
		<-done
		return Result{ToolID: toolID, ExitCode: -1, Interrupted: true}, ctx.Err()
	}
}

func (e *Executor) runDetached(rendered string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", rendered)
	if err := cmd.Start(); err != nil {
		cancel()
		execLog.Warn().Err(err).Msg("background tool failed to start")
		return
	}
	if err := cmd.Wait(); err != nil {
		execLog.Debug().Err(err).Msg("background tool exited non-zero")
	}
	cancel()
}

func terminateGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func errFmt(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
