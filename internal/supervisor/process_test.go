package supervisor

import (
	"context"
	"testing"
	"time"
)

func TestProcessManager_StartRunsAndStopsOnCancel(t *testing.T) {
	pm := NewProcessManager()
	pm.Register(Manifest{Name: "sleeper", Command: "/bin/sh", Args: []string{"-c", "sleep 30"}, RestartPolicy: RestartNever})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pm.Start(ctx, "sleeper") }()

	waitForStatus(t, pm, "sleeper", StatusRunning)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}

	state, _ := pm.State("sleeper")
	if state.Status != StatusStopped {
		t.Errorf("expected stopped after cancellation, got %s", state.Status)
	}
}

func TestProcessManager_RestartsOnFailureWhenPolicySaysSo(t *testing.T) {
	pm := NewProcessManager()
	pm.Register(Manifest{Name: "flaky", Command: "/bin/false", RestartPolicy: RestartAlways})

	ctx, cancel := context.WithTimeout(context.Background(), 3*restartBackoff+time.Second)
	defer cancel()
	_ = pm.Start(ctx, "flaky")

	state, ok := pm.State("flaky")
	if !ok {
		t.Fatal("expected flaky to be registered")
	}
	if state.RestartCount < 1 {
		t.Errorf("expected at least one restart, got %d", state.RestartCount)
	}
}

func TestProcessManager_NeverPolicyDoesNotRestart(t *testing.T) {
	pm := NewProcessManager()
	pm.Register(Manifest{Name: "onceonly", Command: "/bin/true", RestartPolicy: RestartNever})

	err := pm.Start(context.Background(), "onceonly")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	state, _ := pm.State("onceonly")
	if state.RestartCount != 0 {
		t.Errorf("expected no restarts under Never policy, got %d", state.RestartCount)
	}
	if state.Status != StatusStopped {
		t.Errorf("expected stopped status, got %s", state.Status)
	}
}

func TestProcessManager_StopSendsSIGTERM(t *testing.T) {
	pm := NewProcessManager()
	pm.Register(Manifest{Name: "sleeper", Command: "/bin/sh", Args: []string{"-c", "trap 'exit 0' TERM; sleep 30"}, RestartPolicy: RestartNever})

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- pm.Start(ctx, "sleeper") }()

	waitForStatus(t, pm, "sleeper", StatusRunning)

	if err := pm.Stop("sleeper"); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case <-done:
	case <-time.After(shutdownGrace + 2*time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func waitForStatus(t *testing.T, pm *ProcessManager, name string, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state, ok := pm.State(name); ok && state.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s to reach status %s", name, want)
}
