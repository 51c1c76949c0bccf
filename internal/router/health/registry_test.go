package health

import (
	"errors"
	"testing"
	"time"
)

func TestRegistry_UnseenModelIsAvailable(t *testing.T) {
	r := NewRegistry(time.Minute, DefaultConfig())

	snap := r.Snapshot("claude-candidate")
	if !snap.Available {
		t.Error("expected an unseen model to start available")
	}
	if snap.RecentErrors != 0 {
		t.Errorf("expected 0 recent errors, got %d", snap.RecentErrors)
	}
}

func TestRegistry_RecordResultTracksLatencyAndErrors(t *testing.T) {
	r := NewRegistry(time.Minute, DefaultConfig())

	r.RecordResult("ollama-candidate", 120*time.Millisecond, errors.New("timeout"))
	snap := r.Snapshot("ollama-candidate")

	if snap.RecentErrors != 1 {
		t.Errorf("expected 1 recent error, got %d", snap.RecentErrors)
	}
	if snap.LastLatency != 120*time.Millisecond {
		t.Errorf("expected latency to be recorded, got %v", snap.LastLatency)
	}
}

func TestRegistry_RecordResultSuccessDoesNotCountAsError(t *testing.T) {
	r := NewRegistry(time.Minute, DefaultConfig())

	r.RecordResult("openai-candidate", 50*time.Millisecond, nil)
	snap := r.Snapshot("openai-candidate")

	if snap.RecentErrors != 0 {
		t.Errorf("expected 0 recent errors after success, got %d", snap.RecentErrors)
	}
	if !snap.Available {
		t.Error("expected model to remain available after success")
	}
}

func TestRegistry_FilterExcludesTrippedAndNoisyModels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 2
	r := NewRegistry(time.Minute, cfg)

	// trips the breaker entirely
	r.RecordResult("down", 0, errors.New("boom"))
	r.RecordResult("down", 0, errors.New("boom"))

	// available but noisy
	r.RecordResult("flaky", 0, errors.New("blip"))

	// clean
	r.RecordResult("healthy", 10*time.Millisecond, nil)

	filtered := r.Filter([]string{"down", "flaky", "healthy"}, 1)
	if len(filtered) != 1 || filtered[0] != "healthy" {
		t.Errorf("expected only healthy to survive filtering, got %v", filtered)
	}
}

func TestRegistry_FilterPreservesInputOrder(t *testing.T) {
	r := NewRegistry(time.Minute, DefaultConfig())

	filtered := r.Filter([]string{"c", "a", "b"}, 3)
	if len(filtered) != 3 || filtered[0] != "c" || filtered[1] != "a" || filtered[2] != "b" {
		t.Errorf("expected priority order preserved, got %v", filtered)
	}
}
