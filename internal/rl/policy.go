package rl

import (
	"fmt"
	"math"
	"math/rand"
)

// PolicyOutput is one forward pass: either action logits (discrete) or
// an action mean plus log-std (continuous), and an optional value
// estimate for actor-critic training.
type PolicyOutput struct {
	ActionOutput []float32
	Value        *float32
	LogStd       []float32
}

// PolicyNetwork is the trainable policy interface: a network that maps
// observations to actions, can be sampled stochastically, trained by
// gradient update, and whose flat parameter vector can be read back and
// restored (the shape checkpointing and the injector both depend on).
type PolicyNetwork interface {
	Forward(observation []float32) (PolicyOutput, error)
	SampleAction(observation []float32) (action []float32, logProb float32, err error)
	Update(gradients []float32) error
	GetParameters() []float32
	SetParameters(params []float32) error
	Clone() PolicyNetwork
}

// MLPConfig configures an MLPPolicy.
type MLPConfig struct {
	InputDim     int
	HiddenDims   []int
	OutputDim    int
	Activation   string // "tanh", "relu", "sigmoid", or "" for identity
	UseValueHead bool
	InitLogStd   float32
	Continuous   bool // when false, SampleAction treats OutputDim as a discrete action count
}

// DefaultMLPConfig matches the reference PPO agent's network shape: two
// 64-unit tanh hidden layers with a value head.
func DefaultMLPConfig(inputDim, outputDim int) MLPConfig {
	return MLPConfig{
		InputDim:     inputDim,
		HiddenDims:   []int{64, 64},
		OutputDim:    outputDim,
		Activation:   "tanh",
		UseValueHead: true,
		InitLogStd:   -0.5,
	}
}

// MLPPolicy is a pure-Go multi-layer perceptron policy: no autodiff
// framework backs it, so Update applies a plain fixed-learning-rate
// gradient step over a caller-supplied gradient vector rather than
// backpropagating through Forward itself.
type MLPPolicy struct {
	cfg MLPConfig

	weights [][]float32 // weights[i] is a row-major (in x out) matrix for layer i
	wDims   [][2]int
	biases  [][]float32

	valueWeights []float32 // (lastHidden x 1)
	valueBias    []float32

	logStd []float32 // non-nil only when cfg.Continuous

	rng *rand.Rand
}

const mlpUpdateLR = 3e-4

// NewMLPPolicy builds a policy with Xavier-initialized weights, matching
// the reference implementation's fan-in/fan-out uniform initialization.
func NewMLPPolicy(cfg MLPConfig, seed int64) *MLPPolicy {
	p := &MLPPolicy{cfg: cfg, rng: rand.New(rand.NewSource(seed))}

	prevDim := cfg.InputDim
	for _, hidden := range cfg.HiddenDims {
		w, dims := p.xavier(prevDim, hidden)
		p.weights = append(p.weights, w)
		p.wDims = append(p.wDims, dims)
		p.biases = append(p.biases, make([]float32, hidden))
		prevDim = hidden
	}
	w, dims := p.xavier(prevDim, cfg.OutputDim)
	p.weights = append(p.weights, w)
	p.wDims = append(p.wDims, dims)
	p.biases = append(p.biases, make([]float32, cfg.OutputDim))

	if cfg.UseValueHead {
		lastHidden := prevDim
		if len(cfg.HiddenDims) == 0 {
			lastHidden = cfg.InputDim
		} else {
			lastHidden = cfg.HiddenDims[len(cfg.HiddenDims)-1]
		}
		w, _ := p.xavier(lastHidden, 1)
		p.valueWeights = w
		p.valueBias = make([]float32, 1)
	}

	if cfg.Continuous {
		p.logStd = make([]float32, cfg.OutputDim)
		for i := range p.logStd {
			p.logStd[i] = cfg.InitLogStd
		}
	}

	return p
}

func (p *MLPPolicy) xavier(inDim, outDim int) ([]float32, [2]int) {
	limit := math.Sqrt(6.0 / float64(inDim+outDim))
	w := make([]float32, inDim*outDim)
	for i := range w {
		w[i] = float32((p.rng.Float64()*2 - 1) * limit)
	}
	return w, [2]int{inDim, outDim}
}

func matVec(x []float32, w []float32, dims [2]int, bias []float32) []float32 {
	inDim, outDim := dims[0], dims[1]
	out := make([]float32, outDim)
	for j := 0; j < outDim; j++ {
		var sum float32
		for i := 0; i < inDim; i++ {
			sum += x[i] * w[i*outDim+j]
		}
		out[j] = sum + bias[j]
	}
	return out
}

func applyActivation(x []float32, kind string) []float32 {
	out := make([]float32, len(x))
	switch kind {
	case "relu":
		for i, v := range x {
			out[i] = float32(math.Max(0, float64(v)))
		}
	case "tanh":
		for i, v := range x {
			out[i] = float32(math.Tanh(float64(v)))
		}
	case "sigmoid":
		for i, v := range x {
			out[i] = float32(1 / (1 + math.Exp(-float64(v))))
		}
	default:
		copy(out, x)
	}
	return out
}

// Forward runs a forward pass through every hidden layer (with
// activation applied), then an unactivated output layer, and, when a
// value head is configured, a linear value estimate from the last
// hidden representation.
func (p *MLPPolicy) Forward(observation []float32) (PolicyOutput, error) {
	if len(observation) != p.cfg.InputDim {
		return PolicyOutput{}, fmt.Errorf("rl: observation dim %d does not match policy input dim %d", len(observation), p.cfg.InputDim)
	}

	hidden := observation
	for i := range p.cfg.HiddenDims {
		hidden = matVec(hidden, p.weights[i], p.wDims[i], p.biases[i])
		hidden = applyActivation(hidden, p.cfg.Activation)
	}
	lastHidden := hidden

	outIdx := len(p.cfg.HiddenDims)
	actionOutput := matVec(hidden, p.weights[outIdx], p.wDims[outIdx], p.biases[outIdx])

	out := PolicyOutput{ActionOutput: actionOutput}
	if p.cfg.UseValueHead {
		valueOut := matVec(lastHidden, p.valueWeights, [2]int{len(lastHidden), 1}, p.valueBias)
		v := valueOut[0]
		out.Value = &v
	}
	if p.logStd != nil {
		out.LogStd = append([]float32(nil), p.logStd...)
	}
	return out, nil
}

// SampleAction draws a stochastic action: a one-hot categorical sample
// over a softmax of the logits for discrete policies, or a
// tanh-squashed Gaussian sample for continuous ones, each paired with
// its log probability under the sampling distribution.
func (p *MLPPolicy) SampleAction(observation []float32) ([]float32, float32, error) {
	out, err := p.Forward(observation)
	if err != nil {
		return nil, 0, err
	}

	if !p.cfg.Continuous {
		return p.sampleDiscrete(out.ActionOutput)
	}
	return p.sampleContinuous(out.ActionOutput, out.LogStd)
}

func (p *MLPPolicy) sampleDiscrete(logits []float32) ([]float32, float32, error) {
	maxLogit := float32(math.Inf(-1))
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}
	probs := make([]float32, len(logits))
	var sumExp float32
	for i, l := range logits {
		e := float32(math.Exp(float64(l - maxLogit)))
		probs[i] = e
		sumExp += e
	}
	for i := range probs {
		probs[i] /= sumExp
	}

	sample := p.rng.Float32()
	var cumsum float32
	actionIdx := 0
	for i, pr := range probs {
		cumsum += pr
		actionIdx = i
		if sample < cumsum {
			break
		}
	}

	action := make([]float32, len(logits))
	action[actionIdx] = 1.0
	logProb := float32(math.Log(float64(probs[actionIdx])))
	return action, logProb, nil
}

func (p *MLPPolicy) sampleContinuous(mean, logStd []float32) ([]float32, float32, error) {
	action := make([]float32, len(mean))
	var logProb float32
	raw := make([]float32, len(mean))

	for i := range mean {
		std := float32(math.Exp(float64(logStd[i])))
		sample := mean[i] + std*float32(p.rng.NormFloat64())
		raw[i] = sample
		diff := sample - mean[i]
		logProb += float32(-0.5*math.Log(2*math.Pi)) - logStd[i] - 0.5*(diff*diff)/(std*std)
	}

	var adjustment float32
	for i, x := range raw {
		tanhX := float32(math.Tanh(float64(x)))
		action[i] = tanhX
		adjustment += float32(math.Log(float64(1 - tanhX*tanhX + 1e-6)))
	}

	return action, logProb - adjustment, nil
}

// Update applies a fixed-learning-rate gradient step to every weight,
// bias, value-head, and log-std parameter in flat-parameter order —
// the same ordering GetParameters/SetParameters use — so a
// caller-computed gradient vector (e.g. from PPO's loss) lines up
// element for element.
func (p *MLPPolicy) Update(gradients []float32) error {
	idx := 0
	next := func() float32 {
		if idx >= len(gradients) {
			return 0
		}
		g := gradients[idx]
		idx++
		return g
	}

	for i := range p.weights {
		for j := range p.weights[i] {
			p.weights[i][j] -= mlpUpdateLR * next()
		}
		for j := range p.biases[i] {
			p.biases[i][j] -= mlpUpdateLR * next()
		}
	}
	for i := range p.valueWeights {
		p.valueWeights[i] -= mlpUpdateLR * next()
	}
	for i := range p.valueBias {
		p.valueBias[i] -= mlpUpdateLR * next()
	}
	for i := range p.logStd {
		p.logStd[i] -= mlpUpdateLR * next()
	}
	return nil
}

// GetParameters flattens every weight, bias, value-head, and log-std
// parameter into a single vector in a fixed order.
func (p *MLPPolicy) GetParameters() []float32 {
	var params []float32
	for i := range p.weights {
		params = append(params, p.weights[i]...)
		params = append(params, p.biases[i]...)
	}
	params = append(params, p.valueWeights...)
	params = append(params, p.valueBias...)
	params = append(params, p.logStd...)
	return params
}

// SetParameters restores a flat parameter vector in the same order
// GetParameters produces it, failing if it's short for the policy's
// shape rather than silently truncating.
func (p *MLPPolicy) SetParameters(params []float32) error {
	need := 0
	for i := range p.weights {
		need += len(p.weights[i]) + len(p.biases[i])
	}
	need += len(p.valueWeights) + len(p.valueBias) + len(p.logStd)
	if len(params) < need {
		return fmt.Errorf("rl: parameter vector has %d elements, policy needs %d", len(params), need)
	}

	idx := 0
	for i := range p.weights {
		copy(p.weights[i], params[idx:idx+len(p.weights[i])])
		idx += len(p.weights[i])
		copy(p.biases[i], params[idx:idx+len(p.biases[i])])
		idx += len(p.biases[i])
	}
	if len(p.valueWeights) > 0 {
		copy(p.valueWeights, params[idx:idx+len(p.valueWeights)])
		idx += len(p.valueWeights)
		copy(p.valueBias, params[idx:idx+len(p.valueBias)])
		idx += len(p.valueBias)
	}
	if len(p.logStd) > 0 {
		copy(p.logStd, params[idx:idx+len(p.logStd)])
	}
	return nil
}

// Clone returns a deep copy sharing no mutable state with the original.
func (p *MLPPolicy) Clone() PolicyNetwork {
	clone := NewMLPPolicy(p.cfg, p.rng.Int63())
	_ = clone.SetParameters(p.GetParameters())
	return clone
}
