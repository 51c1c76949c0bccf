package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mscrnt/sentientos/internal/metrics"
)

// Status is a supervised process's lifecycle state. Its numeric order
// matches metrics.ServiceStatus's documented enum.
type Status int

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusFailed
	StatusRestarting
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusFailed:
		return "failed"
	case StatusRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// restartBackoff is the pause between a failed process's exit and its
// next restart attempt, avoiding a tight crash loop.
const restartBackoff = 2 * time.Second

// ProcessState is a supervised process's observable state.
type ProcessState struct {
	Status       Status
	PID          int
	StartedAt    time.Time
	RestartCount int
	LastExitCode int
}

// managedProcess pairs a manifest with its live state and OS handle.
type managedProcess struct {
	manifest Manifest

	mu    sync.Mutex
	state ProcessState
	cmd   *exec.Cmd
}

// ProcessManager starts, monitors, restarts, and stops the services named
// by a set of manifests.
type ProcessManager struct {
	mu        sync.RWMutex
	processes map[string]*managedProcess
}

// NewProcessManager returns an empty process manager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{processes: make(map[string]*managedProcess)}
}

// Register adds a manifest without starting it.
func (pm *ProcessManager) Register(m Manifest) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.processes[m.Name] = &managedProcess{
		manifest: m,
		state:    ProcessState{Status: StatusStopped},
	}
}

// State returns the named service's current state and whether it is known.
func (pm *ProcessManager) State(name string) (ProcessState, bool) {
	pm.mu.RLock()
	p, ok := pm.processes[name]
	pm.mu.RUnlock()
	if !ok {
		return ProcessState{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, true
}

// Names returns every registered service name.
func (pm *ProcessManager) Names() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	names := make([]string, 0, len(pm.processes))
	for name := range pm.processes {
		names = append(names, name)
	}
	return names
}

// Start launches the named service's process and blocks monitoring it
// (restarting per policy) until ctx is cancelled or the policy says not
// to restart again. Callers run one Start per service, typically inside
// an errgroup.
func (pm *ProcessManager) Start(ctx context.Context, name string) error {
	pm.mu.RLock()
	p, ok := pm.processes[name]
	pm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown service %q", name)
	}

	for {
		if err := pm.spawn(ctx, p); err != nil {
			pm.setStatus(p, StatusFailed)
			log.Error().Err(err).Str("service", name).Msg("failed to spawn service")
			return err
		}

		exitErr := pm.wait(p)
		exitCode := exitCodeOf(exitErr)

		p.mu.Lock()
		p.state.LastExitCode = exitCode
		restartCount := p.state.RestartCount
		p.mu.Unlock()

		if ctx.Err() != nil {
			pm.setStatus(p, StatusStopped)
			return ctx.Err()
		}

		if !shouldRestart(p.manifest.RestartPolicy, exitErr) {
			pm.setStatus(p, StatusStopped)
			return nil
		}

		pm.setStatus(p, StatusRestarting)
		p.mu.Lock()
		p.state.RestartCount = restartCount + 1
		p.mu.Unlock()
		log.Warn().Str("service", name).Int("exit_code", exitCode).
			Int("restart_count", restartCount+1).Msg("service exited, restarting")

		select {
		case <-ctx.Done():
			pm.setStatus(p, StatusStopped)
			return ctx.Err()
		case <-time.After(restartBackoff):
		}
	}
}

// shouldRestart applies the restart-policy state machine: Never always
// stops, Always always restarts, OnFailure restarts only on a non-clean
// exit, and UnlessStopped behaves like Always since explicit stop requests
// are delivered by cancelling ctx rather than by exit code.
func shouldRestart(policy RestartPolicy, exitErr error) bool {
	switch policy {
	case RestartNever:
		return false
	case RestartAlways, RestartUnlessStopped:
		return true
	case RestartOnFailure:
		return exitErr != nil
	default:
		return exitErr != nil
	}
}

func (pm *ProcessManager) spawn(ctx context.Context, p *managedProcess) error {
	pm.setStatus(p, StatusStarting)

	m := p.manifest
	cmd := exec.CommandContext(ctx, m.Command, m.Args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = shutdownGrace
	if m.WorkingDirectory != "" {
		cmd.Dir = m.WorkingDirectory
	}
	if len(m.Env) > 0 {
		env := os.Environ()
		for k, v := range m.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	p.mu.Lock()
	p.cmd = cmd
	p.state.PID = cmd.Process.Pid
	p.state.StartedAt = time.Now()
	p.mu.Unlock()

	pm.setStatus(p, StatusRunning)
	log.Info().Str("service", m.Name).Int("pid", cmd.Process.Pid).Msg("service started")
	return nil
}

func (pm *ProcessManager) wait(p *managedProcess) error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		return fmt.Errorf("supervisor: process not started")
	}
	return cmd.Wait()
}

func (pm *ProcessManager) setStatus(p *managedProcess, status Status) {
	p.mu.Lock()
	p.state.Status = status
	name := p.manifest.Name
	p.mu.Unlock()
	metrics.ServiceStatus.WithLabelValues(name).Set(float64(status))
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
