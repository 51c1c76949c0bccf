package replay

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkExperience(i int) Experience {
	return Experience{
		State:     []float32{float32(i)},
		Action:    []float32{float32(i)},
		Reward:    float32(i),
		NextState: []float32{float32(i + 1)},
		Timestamp: time.Unix(int64(i), 0),
	}
}

func TestAddEvictsOldestAtCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 3
	cfg.Prioritized = false
	b := New(cfg)

	for i := 0; i < 5; i++ {
		b.Add(mkExperience(i))
	}
	assert.Equal(t, 3, b.Len())
}

func TestSampleUniformWithoutReplacement(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 10
	cfg.Prioritized = false
	b := New(cfg)
	for i := 0; i < 5; i++ {
		b.Add(mkExperience(i))
	}

	batch, err := b.Sample(3)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	seen := make(map[int]bool)
	for _, s := range batch {
		assert.False(t, seen[s.Index], "sampled same index twice")
		seen[s.Index] = true
		assert.Equal(t, float32(1), s.Weight)
	}
}

func TestSampleNotEnoughExperiences(t *testing.T) {
	b := New(DefaultConfig())
	b.Add(mkExperience(0))

	_, err := b.Sample(5)
	assert.ErrorIs(t, err, ErrNotEnough)
}

func TestPrioritizedSampleAndUpdatePriorities(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 10
	cfg.Prioritized = true
	b := New(cfg)
	for i := 0; i < 5; i++ {
		b.Add(mkExperience(i))
	}

	batch, err := b.Sample(3)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	indices := make([]int, len(batch))
	tdErrors := make([]float64, len(batch))
	for i, s := range batch {
		indices[i] = s.Index
		tdErrors[i] = 1.0
	}
	b.UpdatePriorities(indices, tdErrors)

	maxWeight := 0.0
	for _, s := range batch {
		if float64(s.Weight) > maxWeight {
			maxWeight = float64(s.Weight)
		}
	}
	assert.InDelta(t, 1.0, maxWeight, 0.001)
}

func TestUpdateBetaAnnealsTowardOneAndCaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Beta = 0.999
	cfg.BetaIncrement = 0.01
	b := New(cfg)

	b.UpdateBeta(0)
	assert.LessOrEqual(t, b.cfg.Beta, 1.0)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 10
	b := New(cfg)
	for i := 0; i < 4; i++ {
		b.Add(mkExperience(i))
	}

	path := filepath.Join(t.TempDir(), "buffer.bin.gz")
	require.NoError(t, b.Save(path))

	loaded := New(cfg)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, b.Len(), loaded.Len())
}

func TestClearResetsOccupancyAndPriorities(t *testing.T) {
	b := New(DefaultConfig())
	b.Add(mkExperience(0))
	b.Clear()
	assert.Equal(t, 0, b.Len())
}
