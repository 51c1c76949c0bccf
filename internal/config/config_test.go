package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OLLAMA_URL", "")
	t.Setenv("GOAL_INTERVAL_MS", "")
	t.Setenv("SENTIENTOS_DATA_DIR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama url, got %q", cfg.OllamaURL)
	}
	if cfg.GoalInterval != 5*time.Second {
		t.Errorf("expected default goal interval 5s, got %v", cfg.GoalInterval)
	}
	if cfg.DataDir == "" || cfg.GoalQueuePath == "" {
		t.Error("expected derived paths to be populated")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GOAL_INTERVAL_MS", "1500")
	t.Setenv("SENTIENT_PYTHON_SANDBOX", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GoalInterval != 1500*time.Millisecond {
		t.Errorf("expected overridden goal interval, got %v", cfg.GoalInterval)
	}
	if !cfg.PythonSandbox {
		t.Error("expected python sandbox flag to be true")
	}
}

func TestEnsureDataDirs(t *testing.T) {
	cfg := &Config{
		DataDir:           t.TempDir(),
		ActivityLogDir:    t.TempDir() + "/activity",
		ConditionRulesDir: t.TempDir() + "/conditions",
		ManifestDir:       t.TempDir() + "/services",
		CheckpointDir:     t.TempDir() + "/checkpoints",
		GoalQueuePath:     t.TempDir() + "/goals.jsonl",
		TraceLogPath:      t.TempDir() + "/trace.jsonl",
		ReplayBufferPath:  t.TempDir() + "/replay.bin.gz",
	}

	if err := cfg.EnsureDataDirs(); err != nil {
		t.Fatalf("EnsureDataDirs() error = %v", err)
	}
}
