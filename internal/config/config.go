// Package config loads the core's runtime configuration from the
// environment, optionally layered over a .env file in development. Command
// line flags are parsed by the daemon entry points, not here.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the core recognises, plus the
// data-directory layout the rest of the core reads and writes under.
type Config struct {
	// Model back-ends.
	OllamaURL string
	SDURL     string

	// Daemon tick intervals.
	GoalInterval      time.Duration
	HeartbeatInterval time.Duration
	LLMInterval       time.Duration

	// Policy-inference sandboxing.
	PythonSandbox bool
	PythonTimeout time.Duration

	// Data directory layout: each field defaults to a subdirectory of
	// DataDir so a single env var relocates the whole tree.
	DataDir           string
	GoalQueuePath     string
	TraceLogPath      string
	ActivityLogDir    string
	ConditionRulesDir string
	ManifestDir       string
	CheckpointDir     string
	ReplayBufferPath  string

	LogLevel string
}

// Load reads configuration from the process environment, first applying a
// .env file in the working directory if one is present (development
// convenience only; absence is not an error).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getenv("SENTIENTOS_DATA_DIR", "/var/lib/sentientos")

	cfg := &Config{
		OllamaURL:         getenv("OLLAMA_URL", "http://localhost:11434"),
		SDURL:             os.Getenv("SD_URL"),
		GoalInterval:      getenvDurationMS("GOAL_INTERVAL_MS", 5*time.Second),
		HeartbeatInterval: getenvDurationMS("HEARTBEAT_INTERVAL_MS", 60*time.Second),
		LLMInterval:       getenvDurationMS("LLM_INTERVAL_MS", 5*time.Minute),
		PythonSandbox:     getenvBool("SENTIENT_PYTHON_SANDBOX", false),
		PythonTimeout:     getenvDurationMS("SENTIENT_PYTHON_TIMEOUT", 5*time.Second),
		DataDir:           dataDir,
		GoalQueuePath:     filepath.Join(dataDir, "goals.jsonl"),
		TraceLogPath:      filepath.Join(dataDir, "trace.jsonl"),
		ActivityLogDir:    filepath.Join(dataDir, "activity"),
		ConditionRulesDir: filepath.Join(dataDir, "conditions"),
		ManifestDir:       filepath.Join(dataDir, "services"),
		CheckpointDir:     filepath.Join(dataDir, "checkpoints"),
		ReplayBufferPath:  filepath.Join(dataDir, "replay.bin.gz"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDurationMS(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// EnsureDataDirs creates every directory the config layout needs, failing
// fast the way the service supervisor and trainer must: a working
// directory or checkpoint directory that can't be created is fatal.
func (c *Config) EnsureDataDirs() error {
	dirs := []string{
		c.DataDir,
		c.ActivityLogDir,
		c.ConditionRulesDir,
		c.ManifestDir,
		c.CheckpointDir,
		filepath.Dir(c.GoalQueuePath),
		filepath.Dir(c.TraceLogPath),
		filepath.Dir(c.ReplayBufferPath),
	}
	seen := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		if seen[d] {
			continue
		}
		seen[d] = true
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
