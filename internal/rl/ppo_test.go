package rl

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mscrnt/sentientos/internal/checkpoint"
)

func TestTrainer_CollectRolloutAndTrainProducesFiniteLosses(t *testing.T) {
	cfg := DefaultGoalTaskEnvConfig()
	cfg.MaxSteps = 1000 // avoid episode resets mid-collection
	env := NewGoalTaskEnv(cfg, 1)

	policyCfg := DefaultMLPConfig(env.ObservationDim(), env.ActionDim())
	policyCfg.UseValueHead = true
	policy := NewMLPPolicy(policyCfg, 1)

	trainCfg := DefaultPPOConfig()
	trainCfg.NumMinibatches = 2
	trainCfg.PPOEpochs = 1
	trainer := NewTrainer(trainCfg, policy, env, nil)

	require.NoError(t, trainer.CollectRollout(context.Background(), 8))

	stats, err := trainer.Train()
	require.NoError(t, err)
	require.False(t, math.IsNaN(float64(stats.PolicyLoss)))
	require.False(t, math.IsInf(float64(stats.PolicyLoss), 0))
	require.False(t, math.IsNaN(float64(stats.ValueLoss)))
}

func TestTrainer_TrainErrorsOnEmptyBuffer(t *testing.T) {
	env := NewGoalTaskEnv(DefaultGoalTaskEnvConfig(), 1)
	policy := NewMLPPolicy(DefaultMLPConfig(env.ObservationDim(), env.ActionDim()), 1)
	trainer := NewTrainer(DefaultPPOConfig(), policy, env, nil)

	_, err := trainer.Train()
	require.Error(t, err)
}

func TestTrainer_SaveCheckpointNoopWithoutStore(t *testing.T) {
	env := NewGoalTaskEnv(DefaultGoalTaskEnvConfig(), 1)
	policy := NewMLPPolicy(DefaultMLPConfig(env.ObservationDim(), env.ActionDim()), 1)
	trainer := NewTrainer(DefaultPPOConfig(), policy, env, nil)

	require.NoError(t, trainer.SaveCheckpoint(1.0))
}

func TestTrainer_SaveAndLoadCheckpointRoundTrips(t *testing.T) {
	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "checkpoints"))
	require.NoError(t, err)
	defer store.Close()

	env := NewGoalTaskEnv(DefaultGoalTaskEnvConfig(), 1)
	policyCfg := DefaultMLPConfig(env.ObservationDim(), env.ActionDim())
	srcPolicy := NewMLPPolicy(policyCfg, 5)
	trainer := NewTrainer(DefaultPPOConfig(), srcPolicy, env, store)

	require.NoError(t, trainer.SaveCheckpoint(0.42))

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)

	best, ok, err := store.Best()
	require.NoError(t, err)
	require.True(t, ok)

	cp, err := store.Load(best)
	require.NoError(t, err)

	dstPolicy := NewMLPPolicy(policyCfg, 99)
	require.NoError(t, LoadPolicyFromCheckpoint(dstPolicy, cp))
	require.Equal(t, srcPolicy.GetParameters(), dstPolicy.GetParameters())
}
