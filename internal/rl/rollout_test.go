package rl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRolloutBuffer_GAEMatchesHandComputation(t *testing.T) {
	b := newRolloutBuffer()
	// Two steps, reward 1.0 each, values 0.5 and 0.5, not done, gamma=0.99,
	// lambda=0.95, bootstrap lastValue=0.5.
	b.add(nil, nil, 1.0, 0.5, 0, false)
	b.add(nil, nil, 1.0, 0.5, 0, false)

	const gamma, lambda, lastValue = float32(0.99), float32(0.95), float32(0.5)
	b.computeReturnsAndAdvantages(lastValue, gamma, lambda)

	// delta_1 = r_1 + gamma*lastValue - v_1 = 1.0 + 0.99*0.5 - 0.5 = 0.995
	delta1 := float32(1.0) + gamma*lastValue - 0.5
	advantage1 := delta1
	// delta_0 = r_0 + gamma*v_1 - v_0 = 1.0 + 0.99*0.5 - 0.5 = 0.995
	delta0 := float32(1.0) + gamma*0.5 - 0.5
	advantage0 := delta0 + gamma*lambda*advantage1

	require.InDelta(t, advantage1, b.advantages[1], 1e-5)
	require.InDelta(t, advantage0, b.advantages[0], 1e-5)
	require.InDelta(t, b.advantages[1]+0.5, b.returns[1], 1e-5)
	require.InDelta(t, b.advantages[0]+0.5, b.returns[0], 1e-5)
}

func TestRolloutBuffer_DoneResetsBootstrap(t *testing.T) {
	b := newRolloutBuffer()
	b.add(nil, nil, 1.0, 0.5, 0, true)
	b.add(nil, nil, 1.0, 0.5, 0, false)
	b.computeReturnsAndAdvantages(0.9, 0.99, 0.95)

	// Step 0 is terminal, so its advantage must not bootstrap off step 1's
	// value through the done boundary.
	delta0 := float32(1.0) + 0.99*0*1 - 0.5
	require.InDelta(t, delta0, b.advantages[0], 1e-5)
}

func TestRolloutBuffer_NormalizeAdvantagesZeroMeanUnitVariance(t *testing.T) {
	b := newRolloutBuffer()
	b.advantages = []float32{1, 2, 3, 4, 5}
	b.normalizeAdvantages()

	var mean float32
	for _, a := range b.advantages {
		mean += a
	}
	mean /= float32(len(b.advantages))
	require.InDelta(t, 0, mean, 1e-5)
}

func TestRolloutBuffer_ClearResetsAllSlices(t *testing.T) {
	b := newRolloutBuffer()
	b.add(nil, nil, 1, 1, 0, false)
	b.computeReturnsAndAdvantages(0, 0.99, 0.95)
	b.clear()

	require.Equal(t, 0, b.len())
	require.Nil(t, b.advantages)
	require.Nil(t, b.returns)
}
