package rl

import "math"

// rolloutBuffer accumulates one on-policy rollout's transitions and, once
// full, computes per-step advantages and returns via generalized
// advantage estimation.
type rolloutBuffer struct {
	observations [][]float32
	actions      [][]float32
	rewards      []float32
	values       []float32
	logProbs     []float32
	dones        []bool

	advantages []float32
	returns    []float32
}

func newRolloutBuffer() *rolloutBuffer {
	return &rolloutBuffer{}
}

func (b *rolloutBuffer) add(obs, action []float32, reward, value, logProb float32, done bool) {
	b.observations = append(b.observations, obs)
	b.actions = append(b.actions, action)
	b.rewards = append(b.rewards, reward)
	b.values = append(b.values, value)
	b.logProbs = append(b.logProbs, logProb)
	b.dones = append(b.dones, done)
}

func (b *rolloutBuffer) len() int { return len(b.rewards) }

// computeReturnsAndAdvantages runs GAE backward over the buffer:
// delta_t = r_t + gamma*V(s_{t+1})*(1-done_t) - V(s_t)
// A_t      = delta_t + gamma*lambda*(1-done_t)*A_{t+1}
// return_t = A_t + V(s_t)
// lastValue bootstraps the final step's next-state value when the
// rollout was truncated rather than terminated.
func (b *rolloutBuffer) computeReturnsAndAdvantages(lastValue, gamma, gaeLambda float32) {
	n := len(b.rewards)
	b.advantages = make([]float32, n)
	b.returns = make([]float32, n)

	var lastGAE float32
	nextValue := lastValue

	for i := n - 1; i >= 0; i-- {
		if i != n-1 {
			nextValue = b.values[i+1]
		}
		nextNonTerminal := float32(1)
		if b.dones[i] {
			nextNonTerminal = 0
		}

		delta := b.rewards[i] + gamma*nextValue*nextNonTerminal - b.values[i]
		lastGAE = delta + gamma*gaeLambda*nextNonTerminal*lastGAE
		b.advantages[i] = lastGAE
		b.returns[i] = b.advantages[i] + b.values[i]

		if b.dones[i] {
			lastGAE = 0
			nextValue = 0
		}
	}
}

// normalizeAdvantages standardizes advantages to zero mean, unit
// variance, matching the reference trainer's stabilization step.
func (b *rolloutBuffer) normalizeAdvantages() {
	n := len(b.advantages)
	if n == 0 {
		return
	}
	var mean float32
	for _, a := range b.advantages {
		mean += a
	}
	mean /= float32(n)

	var variance float32
	for _, a := range b.advantages {
		d := a - mean
		variance += d * d
	}
	variance /= float32(n)
	std := float32(math.Sqrt(float64(variance))) + 1e-8

	for i := range b.advantages {
		b.advantages[i] = (b.advantages[i] - mean) / std
	}
}

func (b *rolloutBuffer) clear() {
	b.observations = nil
	b.actions = nil
	b.rewards = nil
	b.values = nil
	b.logProbs = nil
	b.dones = nil
	b.advantages = nil
	b.returns = nil
}
