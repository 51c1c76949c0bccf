package rl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"
)

// TraceEntry is one recorded goal-execution outcome, the unit JSONLEnv
// replays episodes from.
type TraceEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Goal      string      `json:"goal"`
	Action    string      `json:"action"`
	Result    TraceResult `json:"result"`
}

// TraceResult is a trace entry's outcome.
type TraceResult struct {
	Success           bool   `json:"success"`
	Output            string `json:"output,omitempty"`
	Error             string `json:"error,omitempty"`
	ExecutionTimeMS   *int64 `json:"execution_time_ms,omitempty"`
}

// RewardConfig shapes JSONLEnv's per-step reward.
type RewardConfig struct {
	SuccessReward   float32
	FailurePenalty  float32
	CrashPenalty    float32
	StepPenalty     float32
	EfficiencyBonus float32
}

// DefaultRewardConfig matches the reference environment's tuned shaping.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		SuccessReward:   1.0,
		FailurePenalty:  -0.5,
		CrashPenalty:    -1.0,
		StepPenalty:     -0.01,
		EfficiencyBonus: 0.2,
	}
}

// JSONLEnvConfig configures a JSONLEnv.
type JSONLEnvConfig struct {
	TraceFile         string
	MaxEpisodeLength  int
	ObservationDim    int
	ActionDim         int
	RewardConfig      RewardConfig
}

// DefaultJSONLEnvConfig mirrors the reference defaults, minus the trace
// file path which callers must always supply.
func DefaultJSONLEnvConfig(traceFile string) JSONLEnvConfig {
	return JSONLEnvConfig{
		TraceFile:        traceFile,
		MaxEpisodeLength: 200,
		ObservationDim:   64,
		ActionDim:        10,
		RewardConfig:     DefaultRewardConfig(),
	}
}

// JSONLEnv replays recorded goal traces as an episodic RL environment:
// Reset samples a random window of consecutive traces and Step walks
// through it one entry at a time, rewarding each step by the recorded
// outcome rather than by re-executing anything.
type JSONLEnv struct {
	cfg     JSONLEnvConfig
	traces  []TraceEntry
	episode []TraceEntry
	step    int
	rng     *rand.Rand
}

// NewJSONLEnv loads cfg.TraceFile (one JSON TraceEntry per line, blank
// lines skipped) and returns a ready-to-reset environment.
func NewJSONLEnv(cfg JSONLEnvConfig, seed int64) (*JSONLEnv, error) {
	traces, err := loadTraces(cfg.TraceFile)
	if err != nil {
		return nil, err
	}
	if len(traces) == 0 {
		return nil, fmt.Errorf("rl: trace file %q contains no entries", cfg.TraceFile)
	}
	return &JSONLEnv{cfg: cfg, traces: traces, rng: rand.New(rand.NewSource(seed))}, nil
}

func loadTraces(path string) ([]TraceEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rl: failed to read trace file: %w", err)
	}
	defer f.Close()

	var traces []TraceEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry TraceEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("rl: failed to parse trace entry: %w", err)
		}
		traces = append(traces, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return traces, nil
}

func (e *JSONLEnv) ObservationDim() int { return e.cfg.ObservationDim }
func (e *JSONLEnv) ActionDim() int      { return e.cfg.ActionDim }

// Reset samples a random starting index and takes up to
// MaxEpisodeLength consecutive traces as the new episode.
func (e *JSONLEnv) Reset(ctx context.Context) ([]float32, error) {
	startIdx := e.rng.Intn(len(e.traces))
	episodeLen := e.cfg.MaxEpisodeLength
	if remaining := len(e.traces) - startIdx; remaining < episodeLen {
		episodeLen = remaining
	}
	e.episode = e.traces[startIdx : startIdx+episodeLen]
	e.step = 0
	return e.traceToObservation(e.episode[0], 0), nil
}

// Step ignores the action index — JSONLEnv replays recorded outcomes
// rather than branching on the policy's choice, matching the reference
// implementation — and advances to the next trace entry.
func (e *JSONLEnv) Step(ctx context.Context, actionIdx int) (StepResult, error) {
	if e.step >= len(e.episode) {
		return StepResult{}, fmt.Errorf("rl: episode already ended")
	}

	current := e.episode[e.step]
	reward := e.computeReward(current)
	e.step++

	done := e.step >= len(e.episode) || e.step >= e.cfg.MaxEpisodeLength
	var obs []float32
	if done {
		obs = make([]float32, e.cfg.ObservationDim)
	} else {
		obs = e.traceToObservation(e.episode[e.step], e.step)
	}

	return StepResult{
		Observation: obs,
		Reward:      reward,
		Done:        done,
		Truncated:   e.step >= e.cfg.MaxEpisodeLength,
	}, nil
}

func (e *JSONLEnv) traceToObservation(trace TraceEntry, step int) []float32 {
	obs := make([]float32, e.cfg.ObservationDim)

	obs[0] = float32(stringHash(trace.Goal)%1000) / 1000
	obs[1] = float32(stringHash(trace.Action)%1000) / 1000

	if trace.Result.Success {
		obs[2] = 1.0
	} else {
		obs[2] = -1.0
	}

	if trace.Result.ExecutionTimeMS != nil {
		obs[3] = float32(math.Tanh(float64(*trace.Result.ExecutionTimeMS) / 1000))
	}

	obs[4] = float32(math.Tanh(float64(step) / float64(e.cfg.MaxEpisodeLength)))

	for i := 5; i < e.cfg.ObservationDim; i++ {
		obs[i] = float32(math.Sin(float64(i) * 0.1))
	}
	return obs
}

func (e *JSONLEnv) computeReward(trace TraceEntry) float32 {
	reward := e.cfg.RewardConfig.StepPenalty

	if trace.Result.Success {
		reward += e.cfg.RewardConfig.SuccessReward
		if trace.Result.ExecutionTimeMS != nil && *trace.Result.ExecutionTimeMS < 100 {
			reward += e.cfg.RewardConfig.EfficiencyBonus
		}
	} else {
		reward += e.cfg.RewardConfig.FailurePenalty
		if strings.Contains(trace.Result.Error, "crash") || strings.Contains(trace.Result.Error, "panic") {
			reward += e.cfg.RewardConfig.CrashPenalty
		}
	}
	return reward
}

func stringHash(s string) uint32 {
	var sum uint32
	for _, r := range s {
		sum += uint32(r)
	}
	return sum
}
