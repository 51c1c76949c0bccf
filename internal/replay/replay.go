// Package replay implements a fixed-capacity experience buffer with
// optional prioritized sampling, the training signal source for the RL
// trainer between trace emission and policy update.
package replay

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/mscrnt/sentientos/internal/metrics"
)

// Experience is one (state, action, reward, next_state, done) transition.
type Experience struct {
	State      []float32      `json:"state"`
	Action     []float32      `json:"action"`
	Reward     float32        `json:"reward"`
	NextState  []float32      `json:"next_state"`
	Done       bool           `json:"done"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Config controls buffer capacity and, when Prioritized is true, the
// exponents of the prioritized-replay weighting scheme.
type Config struct {
	MaxSize       int
	BatchSize     int
	Prioritized   bool
	Alpha         float64 // priority exponent
	Beta          float64 // importance-sampling exponent
	BetaIncrement float64
	Epsilon       float64 // priority floor
}

// DefaultConfig matches the reference trainer's tuned defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize:       100_000,
		BatchSize:     32,
		Prioritized:   true,
		Alpha:         0.6,
		Beta:          0.4,
		BetaIncrement: 0.001,
		Epsilon:       1e-6,
	}
}

// Sample is one experience drawn from the buffer, alongside its
// importance-sampling weight and buffer index (the index is opaque to
// callers except as an UpdatePriorities argument).
type Sample struct {
	Experience Experience
	Weight     float32
	Index      int
}

var ErrNotEnough = errors.New("replay: not enough experiences in buffer")

// Buffer is a ring of experiences plus, when prioritized, a parallel
// priority array kept consistent under a single mutex: every field that
// participates in sampling (buffer, priorities, totalPriority) is read or
// mutated together, so a single lock is simpler and cheap enough given the
// buffer's in-memory, CPU-bound access pattern.
type Buffer struct {
	mu            sync.Mutex
	cfg           Config
	experiences   []Experience
	priorities    []float64
	totalPriority float64
	maxPriority   float64
	rng           *rand.Rand
}

// New creates an empty buffer.
func New(cfg Config) *Buffer {
	return &Buffer{
		cfg:         cfg,
		experiences: make([]Experience, 0, cfg.MaxSize),
		priorities:  make([]float64, 0, cfg.MaxSize),
		maxPriority: 1.0,
		rng:         rand.New(rand.NewSource(1)),
	}
}

// Add appends an experience, evicting the oldest when at capacity. New
// experiences are given the current max priority so they are sampled at
// least once before their TD error is known.
func (b *Buffer) Add(e Experience) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.experiences) >= b.cfg.MaxSize {
		b.experiences = b.experiences[1:]
		if b.cfg.Prioritized {
			b.totalPriority -= b.priorities[0]
			b.priorities = b.priorities[1:]
		}
	}

	b.experiences = append(b.experiences, e)
	if b.cfg.Prioritized {
		b.priorities = append(b.priorities, b.maxPriority)
		b.totalPriority += b.maxPriority
	}
	metrics.ReplayBufferSize.Set(float64(len(b.experiences)))
}

// Len returns the current occupancy.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.experiences)
}

// Clear empties the buffer and resets priority bookkeeping.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.experiences = b.experiences[:0]
	b.priorities = b.priorities[:0]
	b.totalPriority = 0
	b.maxPriority = 1.0
	metrics.ReplayBufferSize.Set(0)
}

// Sample draws batchSize experiences, using batchSize=0 to mean the
// configured default. Prioritized buffers sample proportionally to
// priority within equal-width cumulative-priority segments (stratified
// sampling, one draw per segment) and return weights normalised so the
// maximum weight in the batch is 1; uniform buffers sample without
// replacement and return a weight of 1 for every experience.
func (b *Buffer) Sample(batchSize int) ([]Sample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if batchSize <= 0 {
		batchSize = b.cfg.BatchSize
	}
	n := len(b.experiences)
	if n < batchSize {
		return nil, ErrNotEnough
	}

	batch := make([]Sample, 0, batchSize)

	if b.cfg.Prioritized {
		segment := b.totalPriority / float64(batchSize)
		for i := 0; i < batchSize; i++ {
			start := float64(i) * segment
			end := float64(i+1) * segment
			point := start + b.rng.Float64()*(end-start)

			idx := 0
			cumsum := 0.0
			for j, p := range b.priorities {
				cumsum += p
				if cumsum >= point {
					idx = j
					break
				}
				idx = j
			}

			prob := b.priorities[idx] / b.totalPriority
			weight := math.Pow(float64(n)*prob, -b.cfg.Beta)
			batch = append(batch, Sample{Experience: b.experiences[idx], Weight: float32(weight), Index: idx})
		}

		maxWeight := 0.0
		for _, s := range batch {
			if float64(s.Weight) > maxWeight {
				maxWeight = float64(s.Weight)
			}
		}
		if maxWeight > 0 {
			for i := range batch {
				batch[i].Weight = float32(float64(batch[i].Weight) / maxWeight)
			}
		}
	} else {
		indices := b.rng.Perm(n)[:batchSize]
		for _, idx := range indices {
			batch = append(batch, Sample{Experience: b.experiences[idx], Weight: 1, Index: idx})
		}
	}

	return batch, nil
}

// UpdatePriorities sets new priorities from TD errors, following
// p_i = (|td_i| + epsilon) ^ alpha. A no-op on uniform buffers.
func (b *Buffer) UpdatePriorities(indices []int, tdErrors []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cfg.Prioritized {
		return
	}
	for i, idx := range indices {
		if idx < 0 || idx >= len(b.priorities) {
			continue
		}
		newPriority := math.Pow(math.Abs(tdErrors[i])+b.cfg.Epsilon, b.cfg.Alpha)
		b.totalPriority = b.totalPriority - b.priorities[idx] + newPriority
		b.priorities[idx] = newPriority
		if newPriority > b.maxPriority {
			b.maxPriority = newPriority
		}
	}
}

// UpdateBeta anneals beta toward 1, reducing importance-sampling bias
// correction as training progresses. increment of 0 uses the configured
// BetaIncrement.
func (b *Buffer) UpdateBeta(increment float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if increment == 0 {
		increment = b.cfg.BetaIncrement
	}
	b.cfg.Beta = math.Min(b.cfg.Beta+increment, 1.0)
}

// Save gzip-compresses a JSON encoding of the buffer's experiences to path.
func (b *Buffer) Save(path string) error {
	b.mu.Lock()
	experiences := make([]Experience, len(b.experiences))
	copy(experiences, b.experiences)
	b.mu.Unlock()

	data, err := json.Marshal(experiences)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Load replaces the buffer's contents with experiences decompressed and
// decoded from path, re-adding each one through Add so priority
// bookkeeping stays consistent.
func (b *Buffer) Load(path string) error {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	defer gr.Close()

	data, err := io.ReadAll(gr)
	if err != nil {
		return err
	}

	var experiences []Experience
	if err := json.Unmarshal(data, &experiences); err != nil {
		return err
	}

	b.Clear()
	for _, e := range experiences {
		b.Add(e)
	}
	return nil
}
