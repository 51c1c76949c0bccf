package activity

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	q, err := NewQueue(filepath.Join(t.TempDir(), "goals.jsonl"))
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	dayLog, err := NewDayLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewDayLog: %v", err)
	}
	loop := NewLoop(q, dayLog, time.Hour, time.Hour)
	loop.CommandTimeout = 2 * time.Second
	return loop
}

func TestLoop_DrainQueueMarksGoalsProcessed(t *testing.T) {
	loop := newTestLoop(t)
	if err := loop.Queue.Inject(Goal{ID: "g1", Text: "check uptime status", Source: SourceQueue}); err != nil {
		t.Fatalf("Inject: %v", err)
	}

	loop.drainQueue(context.Background())

	pending, err := loop.Queue.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected queue drained, got %d pending", len(pending))
	}
	if loop.processedCount.Load() != 1 {
		t.Errorf("expected 1 processed goal, got %d", loop.processedCount.Load())
	}
}

func TestLoop_InjectHeartbeatExecutesSyntheticGoal(t *testing.T) {
	loop := newTestLoop(t)
	loop.injectHeartbeat(context.Background())
	if loop.processedCount.Load() != 1 {
		t.Errorf("expected heartbeat to execute one goal, got %d", loop.processedCount.Load())
	}
}

func TestRunCommand_TimeoutReportsFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, success := runCommand(ctx, "sleep 5")
	if success {
		t.Error("expected timed-out command to report failure")
	}
}

func TestRunCommand_SuccessCapturesOutput(t *testing.T) {
	out, success := runCommand(context.Background(), "echo hello")
	if !success {
		t.Fatal("expected command to succeed")
	}
	if out == "" {
		t.Error("expected captured output")
	}
}
