package rl

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTraceFile(t *testing.T, entries []TraceEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "traces.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range entries {
		require.NoError(t, enc.Encode(e))
	}
	return path
}

func sampleTraces(n int) []TraceEntry {
	entries := make([]TraceEntry, n)
	for i := range entries {
		ms := int64(50)
		entries[i] = TraceEntry{
			Goal:   "check disk",
			Action: "disk_info",
			Result: TraceResult{Success: i%2 == 0, ExecutionTimeMS: &ms},
		}
	}
	return entries
}

func TestJSONLEnv_LoadAndReset(t *testing.T) {
	path := writeTraceFile(t, sampleTraces(20))
	cfg := DefaultJSONLEnvConfig(path)
	cfg.MaxEpisodeLength = 5

	env, err := NewJSONLEnv(cfg, 1)
	require.NoError(t, err)

	obs, err := env.Reset(context.Background())
	require.NoError(t, err)
	require.Len(t, obs, cfg.ObservationDim)
}

func TestJSONLEnv_StepIgnoresActionAndAdvances(t *testing.T) {
	path := writeTraceFile(t, sampleTraces(10))
	cfg := DefaultJSONLEnvConfig(path)
	cfg.MaxEpisodeLength = 4

	env, err := NewJSONLEnv(cfg, 1)
	require.NoError(t, err)
	_, err = env.Reset(context.Background())
	require.NoError(t, err)

	var lastDone bool
	for i := 0; i < 4; i++ {
		result, err := env.Step(context.Background(), 0)
		require.NoError(t, err)
		lastDone = result.Done
	}
	require.True(t, lastDone, "episode should terminate at MaxEpisodeLength")
}

func TestJSONLEnv_RewardsSuccessAndFailureDifferently(t *testing.T) {
	successMS := int64(50)
	successEntry := TraceEntry{Goal: "g", Action: "a", Result: TraceResult{Success: true, ExecutionTimeMS: &successMS}}
	failEntry := TraceEntry{Goal: "g", Action: "a", Result: TraceResult{Success: false, Error: "it panicked"}}

	path := writeTraceFile(t, []TraceEntry{successEntry, failEntry})
	cfg := DefaultJSONLEnvConfig(path)
	cfg.MaxEpisodeLength = 2

	env, err := NewJSONLEnv(cfg, 0)
	require.NoError(t, err)

	env.episode = []TraceEntry{successEntry}
	successReward := env.computeReward(successEntry)
	failReward := env.computeReward(failEntry)

	require.Greater(t, successReward, failReward)
	require.Less(t, failReward, float32(0))
}

func TestJSONLEnv_RejectsEmptyTraceFile(t *testing.T) {
	path := writeTraceFile(t, nil)
	_, err := NewJSONLEnv(DefaultJSONLEnvConfig(path), 0)
	require.Error(t, err)
}
