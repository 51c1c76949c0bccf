// Package rl implements the policy-gradient trainer and its concrete
// environments: a PPO agent over a small multi-layer-perceptron policy,
// trained either by replaying recorded goal traces or by driving live
// goal execution, plus a policy injector that turns a trained policy's
// output into system goals.
package rl

import (
	"context"

	"github.com/mscrnt/sentientos/internal/logging"
)

var log = logging.For("rl")

// StepResult is one environment transition.
type StepResult struct {
	Observation []float32
	Reward      float32
	Done        bool
	Truncated   bool
}

// Environment is the minimal reset/step contract every concrete
// environment in this package implements.
type Environment interface {
	// Reset starts a new episode and returns its initial observation.
	Reset(ctx context.Context) ([]float32, error)
	// Step applies a discrete action index and returns the resulting
	// transition.
	Step(ctx context.Context, actionIdx int) (StepResult, error)
	// ObservationDim and ActionDim describe the spaces Reset/Step
	// produce and accept, so a policy can be sized to match before
	// the first rollout.
	ObservationDim() int
	ActionDim() int
}
