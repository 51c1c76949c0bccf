package rl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObservationToTensor_NormalizesPercentagesAndCounts(t *testing.T) {
	obs := SystemObservation{
		CPUUsage:    80,
		MemoryUsage: 50,
		DiskUsage:   10,
		TimeOfDay:   0.5,
		DayOfWeek:   0.2,
	}
	tensor := observationToTensor(obs)
	require.Len(t, tensor, 10)
	require.InDelta(t, 0.8, tensor[0], 1e-6)
	require.InDelta(t, 0.5, tensor[1], 1e-6)
	require.InDelta(t, 0.1, tensor[2], 1e-6)
	require.InDelta(t, 0.5, tensor[8], 1e-6)
	require.InDelta(t, 0.2, tensor[9], 1e-6)
}

func TestHeuristicPredict_MatchesReferenceBranching(t *testing.T) {
	cpuHeavy := heuristicPredict([]float32{0.9, 0.1, 0.1})
	require.Equal(t, float32(0.9), cpuHeavy[2])

	memHeavy := heuristicPredict([]float32{0.1, 0.9, 0.1})
	require.Equal(t, float32(0.9), memHeavy[1])

	diskHeavy := heuristicPredict([]float32{0.1, 0.1, 0.9})
	require.Equal(t, float32(0.9), diskHeavy[0])

	idle := heuristicPredict([]float32{0.1, 0.1, 0.1})
	require.Equal(t, float32(0.7), idle[8])
}

func TestActionToGoals_PicksHighestScoringSlot(t *testing.T) {
	action := make([]float32, len(injectorGoalTemplates))
	action[4] = 0.95

	goals := actionToGoals(action, SystemObservation{GoalSuccessRate: 0.8})
	require.Len(t, goals, 1)
	require.Equal(t, injectorGoalTemplates[4].goal, goals[0].Goal)
	require.InDelta(t, 0.95, goals[0].Confidence, 1e-6)
	require.NotEmpty(t, goals[0].ID)
}

func TestInjector_TickSkipsWhenAutoInjectDisabled(t *testing.T) {
	cfg := DefaultPolicyInjectorConfig()
	cfg.AutoInject = false

	var injected int
	in := NewInjector(cfg, nil, func(GoalSuggestion) error {
		injected++
		return nil
	})
	require.NoError(t, in.Tick(context.Background()))
	require.Equal(t, 0, injected)
}

func TestInjector_TickInjectsAboveConfidenceThreshold(t *testing.T) {
	cfg := DefaultPolicyInjectorConfig()
	cfg.AutoInject = true
	cfg.ConfidenceThreshold = 0.5
	cfg.MaxGoalsPerInterval = 1

	var received []GoalSuggestion
	in := NewInjector(cfg, nil, func(s GoalSuggestion) error {
		received = append(received, s)
		return nil
	})
	require.NoError(t, in.Tick(context.Background()))
	require.LessOrEqual(t, len(received), 1)
}

func TestInjector_AddFeedbackMatchesByID(t *testing.T) {
	in := NewInjector(DefaultPolicyInjectorConfig(), nil, nil)
	in.recordInjection(GoalSuggestion{ID: "g1", Goal: "Check memory usage patterns", Confidence: 0.9})

	in.AddFeedback(GoalFeedback{GoalID: "g1", Goal: "Check memory usage patterns", Success: true})

	require.NotNil(t, in.history[0].feedback)
	require.True(t, in.history[0].feedback.Success)
}
