package rl

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"os/exec"
	"strings"
	"time"
)

// defaultGoalTemplates are the live-goal-task environment's action
// space: action index i selects templates[i].
var defaultGoalTemplates = []string{
	"Monitor disk I/O activity",
	"Check memory usage patterns",
	"Analyze CPU load distribution",
	"Review network connections",
	"Scan system logs for errors",
}

// GoalTaskEnvConfig configures a GoalTaskEnv.
type GoalTaskEnvConfig struct {
	GoalTemplates       []string
	MaxSteps            int
	ObservationDim      int
	ExecuteRealCommands bool
	CommandTimeout      time.Duration
}

// DefaultGoalTaskEnvConfig matches the reference environment's defaults:
// simulated (not real) command execution, a 50-step episode cap.
func DefaultGoalTaskEnvConfig() GoalTaskEnvConfig {
	return GoalTaskEnvConfig{
		GoalTemplates:       append([]string(nil), defaultGoalTemplates...),
		MaxSteps:            50,
		ObservationDim:      64,
		ExecuteRealCommands: false,
		CommandTimeout:      5 * time.Second,
	}
}

type goalExecution struct {
	goal          string
	success       bool
	executionTime time.Duration
}

// GoalTaskEnv is a live goal-execution environment: each action index
// selects a goal template, GoalTaskEnv maps it to a shell command
// (executed for real or simulated, per config), and rewards the policy
// on the outcome, tracking a bounded execution history that feeds back
// into the next observation.
type GoalTaskEnv struct {
	cfg         GoalTaskEnvConfig
	currentGoal string
	step        int
	history     []goalExecution
	rng         *rand.Rand
}

const goalHistoryCap = 100

// NewGoalTaskEnv builds a GoalTaskEnv whose action space has one entry
// per configured goal template.
func NewGoalTaskEnv(cfg GoalTaskEnvConfig, seed int64) *GoalTaskEnv {
	if len(cfg.GoalTemplates) == 0 {
		cfg.GoalTemplates = append([]string(nil), defaultGoalTemplates...)
	}
	return &GoalTaskEnv{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

func (e *GoalTaskEnv) ObservationDim() int { return e.cfg.ObservationDim }
func (e *GoalTaskEnv) ActionDim() int      { return len(e.cfg.GoalTemplates) }

func (e *GoalTaskEnv) Reset(ctx context.Context) ([]float32, error) {
	e.step = 0
	e.currentGoal = ""
	return e.observation(), nil
}

// Step executes the goal template at actionIdx and rewards the policy
// on its outcome. actionIdx out of range is a caller error, not a
// silently clamped one, since an out-of-range action usually means the
// policy's output dimension doesn't match this environment's action
// space.
func (e *GoalTaskEnv) Step(ctx context.Context, actionIdx int) (StepResult, error) {
	if actionIdx < 0 || actionIdx >= len(e.cfg.GoalTemplates) {
		return StepResult{}, fmt.Errorf("rl: action index %d out of range [0,%d)", actionIdx, len(e.cfg.GoalTemplates))
	}

	goal := e.cfg.GoalTemplates[actionIdx]
	e.currentGoal = goal

	execution := e.executeGoal(ctx, goal)
	reward := computeGoalTaskReward(execution)

	if len(e.history) >= goalHistoryCap {
		e.history = e.history[1:]
	}
	e.history = append(e.history, execution)

	e.step++
	done := e.step >= e.cfg.MaxSteps

	return StepResult{
		Observation: e.observation(),
		Reward:      reward,
		Done:        done,
		Truncated:   done,
	}, nil
}

func (e *GoalTaskEnv) observation() []float32 {
	obs := make([]float32, e.cfg.ObservationDim)

	if e.currentGoal != "" {
		obs[0] = float32(stringHash(e.currentGoal)%1000) / 1000
	}
	obs[1] = float32(math.Tanh(float64(e.step) / float64(e.cfg.MaxSteps)))

	if len(e.history) > 0 {
		successes := 0
		var totalTime float64
		for _, g := range e.history {
			if g.success {
				successes++
			}
			totalTime += g.executionTime.Seconds()
		}
		obs[2] = float32(successes) / float32(len(e.history))
		obs[3] = float32(math.Tanh(totalTime / float64(len(e.history))))
	} else {
		obs[2] = 0.5
	}

	for i := 4; i < e.cfg.ObservationDim; i++ {
		obs[i] = float32(math.Sin(float64(i)*0.1) * 0.5)
	}
	return obs
}

func (e *GoalTaskEnv) executeGoal(ctx context.Context, goal string) goalExecution {
	start := time.Now()
	command := goalToShellCommand(goal)

	var success bool
	if e.cfg.ExecuteRealCommands {
		cctx, cancel := context.WithTimeout(ctx, e.cfg.CommandTimeout)
		defer cancel()
		cmd := exec.CommandContext(cctx, "sh", "-c", command)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		success = cmd.Run() == nil
	} else {
		time.Sleep(100 * time.Millisecond)
		success = e.rng.Float32() > 0.3
	}

	return goalExecution{goal: goal, success: success, executionTime: time.Since(start)}
}

// goalToShellCommand maps a goal template to a shell command by
// keyword, a small fixed table distinct from the activity loop's
// broader dispatch table since this environment only ever sees the
// five templates above.
func goalToShellCommand(goal string) string {
	lower := strings.ToLower(goal)
	switch {
	case strings.Contains(lower, "disk") && strings.Contains(lower, "i/o"):
		return "df -h | head -5"
	case strings.Contains(lower, "memory"):
		return "free -h"
	case strings.Contains(lower, "cpu"):
		return "top -bn1 | head -10"
	case strings.Contains(lower, "network"):
		return "netstat -an | head -10"
	case strings.Contains(lower, "log"):
		return "journalctl -n 10"
	default:
		return "echo 'Unknown goal'"
	}
}

func computeGoalTaskReward(exec goalExecution) float32 {
	reward := float32(-0.01)
	if exec.success {
		reward += 1.0
		if exec.executionTime.Seconds() < 0.5 {
			reward += 0.2
		}
	} else {
		reward -= 0.5
	}
	return reward
}
