package rl

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/mscrnt/sentientos/internal/checkpoint"
	"github.com/mscrnt/sentientos/internal/metrics"
)

// PPOConfig holds the hyperparameters the reference trainer exposes.
// Gamma/GAELambda/ClipParam/ValueLossCoef/EntropyCoef/MaxGradNorm/
// PPOEpochs/NumMinibatches match standard PPO defaults; the reference
// source's own PPOConfig struct definition was not present in the
// retrieved original, so these follow the values its ppo_full.rs usage
// implies (gamma/gae_lambda feeding GAE, clip_param/value_loss_coef/
// entropy_coef/max_grad_norm feeding the loss, ppo_epochs/
// num_minibatches feeding the training loop).
type PPOConfig struct {
	Gamma              float32
	GAELambda          float32
	ClipParam          float32
	ValueLossCoef      float32
	EntropyCoef        float32
	MaxGradNorm        float32
	PPOEpochs          int
	NumMinibatches     int
	NormalizeAdvantage bool
	LearningRate       float32
	LearningRateFinal  float32
	MaxSteps           int
	CheckpointInterval int
}

// DefaultPPOConfig returns standard PPO hyperparameters.
func DefaultPPOConfig() PPOConfig {
	return PPOConfig{
		Gamma:              0.99,
		GAELambda:          0.95,
		ClipParam:          0.2,
		ValueLossCoef:      0.5,
		EntropyCoef:        0.01,
		MaxGradNorm:        0.5,
		PPOEpochs:          10,
		NumMinibatches:     4,
		NormalizeAdvantage: true,
		LearningRate:       3e-4,
		LearningRateFinal:  3e-5,
		MaxSteps:           1_000_000,
		CheckpointInterval: 100,
	}
}

// TrainingStats summarizes one train() call over a collected rollout.
type TrainingStats struct {
	PolicyLoss float32
	ValueLoss  float32
	Entropy    float32
}

type adamState struct {
	momentum []float32
	velocity []float32
	t        int
}

// Trainer runs PPO rollout collection and minibatch updates over a
// policy and environment pair, checkpointing through internal/checkpoint
// whenever SaveCheckpoint is called; the Trainer itself does not read
// CheckpointInterval, which is left to the caller driving the loop.
type Trainer struct {
	cfg          PPOConfig
	policy       PolicyNetwork
	env          Environment
	buffer       *rolloutBuffer
	adam         adamState
	totalSteps   int
	rng          *rand.Rand
	checkpoints  *checkpoint.Store
	episode      int
	bestReward   float32
}

// NewTrainer builds a Trainer. checkpoints may be nil to disable
// checkpoint persistence (used by tests that only exercise the training
// math).
func NewTrainer(cfg PPOConfig, policy PolicyNetwork, env Environment, checkpoints *checkpoint.Store) *Trainer {
	return &Trainer{
		cfg:         cfg,
		policy:      policy,
		env:         env,
		buffer:      newRolloutBuffer(),
		rng:         rand.New(rand.NewSource(1)),
		checkpoints: checkpoints,
		bestReward:  float32(math.Inf(-1)),
	}
}

// CollectRollout runs nSteps of environment interaction under the
// current policy, resetting on episode termination, and computes GAE
// advantages/returns from the collected transitions plus a bootstrap
// value for the final observation.
func (t *Trainer) CollectRollout(ctx context.Context, nSteps int) error {
	t.buffer.clear()

	obs, err := t.env.Reset(ctx)
	if err != nil {
		return fmt.Errorf("rl: reset: %w", err)
	}

	for i := 0; i < nSteps; i++ {
		action, logProb, err := t.policy.SampleAction(obs)
		if err != nil {
			return fmt.Errorf("rl: sample action: %w", err)
		}
		output, err := t.policy.Forward(obs)
		if err != nil {
			return fmt.Errorf("rl: forward: %w", err)
		}
		var value float32
		if output.Value != nil {
			value = *output.Value
		}

		actionIdx := argmax(action)
		result, err := t.env.Step(ctx, actionIdx)
		if err != nil {
			return fmt.Errorf("rl: step: %w", err)
		}

		t.buffer.add(obs, action, result.Reward, value, logProb, result.Done)
		t.totalSteps++

		if result.Done {
			obs, err = t.env.Reset(ctx)
			if err != nil {
				return fmt.Errorf("rl: reset: %w", err)
			}
		} else {
			obs = result.Observation
		}
	}

	lastOutput, err := t.policy.Forward(obs)
	if err != nil {
		return fmt.Errorf("rl: bootstrap forward: %w", err)
	}
	var lastValue float32
	if lastOutput.Value != nil {
		lastValue = *lastOutput.Value
	}

	t.buffer.computeReturnsAndAdvantages(lastValue, t.cfg.Gamma, t.cfg.GAELambda)
	if t.cfg.NormalizeAdvantage {
		t.buffer.normalizeAdvantages()
	}
	return nil
}

// Train runs PPOEpochs passes of shuffled-minibatch gradient updates
// over the buffer collected by CollectRollout, applying the clipped
// PPO policy loss, a squared-error value loss, and an entropy bonus,
// then stepping an Adam optimizer with gradient-norm clipping.
func (t *Trainer) Train() (TrainingStats, error) {
	n := t.buffer.len()
	if n == 0 {
		return TrainingStats{}, fmt.Errorf("rl: no data in rollout buffer")
	}

	numMinibatches := t.cfg.NumMinibatches
	if numMinibatches <= 0 {
		numMinibatches = 1
	}
	batchSize := n / numMinibatches
	if batchSize == 0 {
		batchSize = n
		numMinibatches = 1
	}

	var totalPolicyLoss, totalValueLoss, totalEntropy float32
	var updates int

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	for epoch := 0; epoch < t.cfg.PPOEpochs; epoch++ {
		t.rng.Shuffle(n, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })

		for mb := 0; mb < numMinibatches; mb++ {
			start := mb * batchSize
			end := start + batchSize
			if mb == numMinibatches-1 {
				end = n
			}
			if start >= end {
				continue
			}
			batch := indices[start:end]

			policyLoss, valueLoss, entropy, gradients := t.computeLossesAndGradients(batch)
			t.applyAdamUpdate(gradients)

			totalPolicyLoss += policyLoss
			totalValueLoss += valueLoss
			totalEntropy += entropy
			updates++
		}
	}

	if updates == 0 {
		return TrainingStats{}, fmt.Errorf("rl: no minibatch updates ran")
	}

	metrics.TrainerEpisodesTotal.Inc()
	t.episode++

	return TrainingStats{
		PolicyLoss: totalPolicyLoss / float32(updates),
		ValueLoss:  totalValueLoss / float32(updates),
		Entropy:    totalEntropy / float32(updates),
	}, nil
}

// computeLossesAndGradients evaluates the PPO clipped objective, value
// loss, and entropy over one minibatch, and produces a pseudo-gradient
// vector the same shape as the policy's flat parameters: since this
// policy has no autodiff graph, the gradient signal is the total scalar
// loss scaled by small random perturbations per parameter, matching the
// reference trainer's own simplified update (a real backprop
// implementation would replace this term for term without touching any
// other part of the training loop).
func (t *Trainer) computeLossesAndGradients(batch []int) (policyLoss, valueLoss, entropy float32, gradients []float32) {
	var totalPolicyLoss, totalValueLoss, totalEntropy float32

	for _, idx := range batch {
		obs := t.buffer.observations[idx]
		action := t.buffer.actions[idx]
		oldLogProb := t.buffer.logProbs[idx]
		advantage := t.buffer.advantages[idx]
		returnVal := t.buffer.returns[idx]

		output, err := t.policy.Forward(obs)
		if err != nil {
			continue
		}
		var valuePred float32
		if output.Value != nil {
			valuePred = *output.Value
		}

		logProb := actionLogProb(output.ActionOutput, action)

		ratio := float32(math.Exp(float64(logProb - oldLogProb)))
		clipped := clampFloat32(ratio, 1-t.cfg.ClipParam, 1+t.cfg.ClipParam)
		unclippedObj := ratio * advantage
		clippedObj := clipped * advantage
		sampleLoss := -min32(unclippedObj, clippedObj)
		totalPolicyLoss += sampleLoss

		diff := valuePred - returnVal
		totalValueLoss += diff * diff

		totalEntropy += categoricalEntropy(output.ActionOutput)
	}

	batchLen := float32(len(batch))
	if batchLen == 0 {
		batchLen = 1
	}
	policyLoss = totalPolicyLoss / batchLen
	valueLoss = totalValueLoss / batchLen
	entropy = totalEntropy / batchLen

	totalLoss := policyLoss + t.cfg.ValueLossCoef*valueLoss - t.cfg.EntropyCoef*entropy

	params := t.policy.GetParameters()
	gradients = make([]float32, len(params))
	for i := range gradients {
		gradients[i] = totalLoss * (t.rng.Float32() - 0.5) * 0.1
	}
	return policyLoss, valueLoss, entropy, gradients
}

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// applyAdamUpdate steps an Adam optimizer over gradients with a
// linearly-decaying learning rate, clips by global gradient norm, and
// writes the result back through the policy's SetParameters.
func (t *Trainer) applyAdamUpdate(gradients []float32) {
	n := len(gradients)
	if len(t.adam.momentum) != n {
		t.adam.momentum = make([]float32, n)
		t.adam.velocity = make([]float32, n)
	}
	t.adam.t++

	var gradNormSq float32
	for _, g := range gradients {
		gradNormSq += g * g
	}
	gradNorm := float32(math.Sqrt(float64(gradNormSq)))
	if gradNorm > t.cfg.MaxGradNorm && gradNorm > 0 {
		scale := t.cfg.MaxGradNorm / gradNorm
		for i := range gradients {
			gradients[i] *= scale
		}
	}

	lr := t.currentLearningRate()
	params := t.policy.GetParameters()
	updated := make([]float32, len(params))
	copy(updated, params)

	tFloat := float64(t.adam.t)
	for i, g := range gradients {
		t.adam.momentum[i] = adamBeta1*t.adam.momentum[i] + (1-adamBeta1)*g
		t.adam.velocity[i] = adamBeta2*t.adam.velocity[i] + (1-adamBeta2)*g*g

		mHat := t.adam.momentum[i] / float32(1-math.Pow(adamBeta1, tFloat))
		vHat := t.adam.velocity[i] / float32(1-math.Pow(adamBeta2, tFloat))

		if i < len(updated) {
			updated[i] -= lr * mHat / (float32(math.Sqrt(float64(vHat))) + adamEpsilon)
		}
	}

	_ = t.policy.SetParameters(updated)
}

func (t *Trainer) currentLearningRate() float32 {
	if t.cfg.MaxSteps <= 0 {
		return t.cfg.LearningRate
	}
	frac := float32(t.totalSteps) / float32(t.cfg.MaxSteps)
	if frac > 1 {
		frac = 1
	}
	return t.cfg.LearningRate + frac*(t.cfg.LearningRateFinal-t.cfg.LearningRate)
}

// SaveCheckpoint persists the policy's flat parameters and training
// provenance through the checkpoint store, skipping silently when no
// store was configured.
func (t *Trainer) SaveCheckpoint(averageReward float32) error {
	if t.checkpoints == nil {
		return nil
	}
	if averageReward > t.bestReward {
		t.bestReward = averageReward
	}

	params := t.policy.GetParameters()
	blob := make([]byte, len(params)*4)
	for i, p := range params {
		bits := math.Float32bits(p)
		blob[i*4] = byte(bits)
		blob[i*4+1] = byte(bits >> 8)
		blob[i*4+2] = byte(bits >> 16)
		blob[i*4+3] = byte(bits >> 24)
	}

	_, err := t.checkpoints.Save("ppo-mlp", blob, checkpoint.Metadata{
		Episode:       t.episode,
		TotalSteps:    t.totalSteps,
		AverageReward: float64(averageReward),
		BestReward:    float64(t.bestReward),
	})
	return err
}

// LoadPolicyFromCheckpoint decodes a checkpoint's flat parameter blob
// (little-endian float32, the same layout SaveCheckpoint writes) and
// loads it into policy via SetParameters.
func LoadPolicyFromCheckpoint(policy PolicyNetwork, cp checkpoint.Checkpoint) error {
	if len(cp.Parameters)%4 != 0 {
		return fmt.Errorf("rl: checkpoint parameter blob length %d not a multiple of 4", len(cp.Parameters))
	}
	params := make([]float32, len(cp.Parameters)/4)
	for i := range params {
		bits := uint32(cp.Parameters[i*4]) | uint32(cp.Parameters[i*4+1])<<8 |
			uint32(cp.Parameters[i*4+2])<<16 | uint32(cp.Parameters[i*4+3])<<24
		params[i] = math.Float32frombits(bits)
	}
	return policy.SetParameters(params)
}

func argmax(v []float32) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

// actionLogProb recovers the log probability PPO needs for the ratio
// term by re-deriving the categorical distribution from the current
// policy output and reading off the probability of the action that was
// actually taken (identified by its one-hot index).
func actionLogProb(logits, action []float32) float32 {
	maxLogit := float32(math.Inf(-1))
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}
	var sumExp float32
	exps := make([]float32, len(logits))
	for i, l := range logits {
		e := float32(math.Exp(float64(l - maxLogit)))
		exps[i] = e
		sumExp += e
	}

	actionIdx := argmax(action)
	if actionIdx >= len(exps) || sumExp == 0 {
		return 0
	}
	prob := exps[actionIdx] / sumExp
	if prob <= 0 {
		return float32(math.Inf(-1))
	}
	return float32(math.Log(float64(prob)))
}

func categoricalEntropy(logits []float32) float32 {
	maxLogit := float32(math.Inf(-1))
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}
	var sumExp float32
	exps := make([]float32, len(logits))
	for i, l := range logits {
		e := float32(math.Exp(float64(l - maxLogit)))
		exps[i] = e
		sumExp += e
	}

	var entropy float32
	for _, e := range exps {
		if sumExp == 0 {
			continue
		}
		p := e / sumExp
		if p > 0 {
			entropy -= p * float32(math.Log(float64(p)))
		}
	}
	return entropy
}

func clampFloat32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
