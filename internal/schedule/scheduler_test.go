package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objones25/oncoclip/internal/schedule"
)

type fakeTarget struct {
	applied []float64
}

func (f *fakeTarget) SetLR(lr float64) { f.applied = append(f.applied, lr) }

func runAll(t *testing.T, s *schedule.Scheduler) []float64 {
	t.Helper()
	out := make([]float64, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		lr, err := s.Step()
		require.NoError(t, err)
		out = append(out, lr)
	}
	return out
}

func TestSchedulerShape(t *testing.T) {
	target := &fakeTarget{}
	s, err := schedule.New(target, schedule.Config{
		WarmupEpochs:  2,
		WarmupLR:      0.0,
		Epochs:        10,
		BaseLR:        1.0,
		FinalLR:       0.0,
		ItersPerEpoch: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 500, s.Len())

	seq := runAll(t, s)
	warmup := seq[:100]
	decay := seq[100:]

	// warmup endpoints and monotone non-decreasing ramp
	assert.InDelta(t, 0.0, warmup[0], 1e-12)
	assert.InDelta(t, 1.0, warmup[len(warmup)-1], 1e-12)
	for i := 1; i < len(warmup); i++ {
		assert.GreaterOrEqual(t, warmup[i], warmup[i-1])
	}

	// decay starts at base, is monotone non-increasing, ends near final
	assert.InDelta(t, 1.0, decay[0], 1e-12)
	for i := 1; i < len(decay); i++ {
		assert.LessOrEqual(t, decay[i], decay[i-1])
	}
	assert.Less(t, decay[len(decay)-1], 0.01)

	assert.Equal(t, 500, len(target.applied))
	assert.Equal(t, seq[len(seq)-1], s.LR())
}

func TestSchedulerFlatWarmup(t *testing.T) {
	s, err := schedule.New(&fakeTarget{}, schedule.Config{
		WarmupEpochs:  2,
		WarmupLR:      0.25,
		Epochs:        4,
		BaseLR:        1.0,
		FinalLR:       0.0,
		ItersPerEpoch: 10,
		FlatWarmup:    true,
	})
	require.NoError(t, err)

	seq := runAll(t, s)
	for i := 0; i < 20; i++ {
		assert.Equal(t, 0.25, seq[i])
	}
	assert.InDelta(t, 1.0, seq[20], 1e-12)
}

func TestSchedulerExhaustion(t *testing.T) {
	s, err := schedule.New(&fakeTarget{}, schedule.Config{
		WarmupEpochs:  0,
		Epochs:        1,
		BaseLR:        0.1,
		FinalLR:       0.0,
		ItersPerEpoch: 3,
	})
	require.NoError(t, err)

	runAll(t, s)
	_, err = s.Step()
	assert.ErrorIs(t, err, schedule.ErrExhausted)

	// deterministic: stays failed
	_, err = s.Step()
	assert.ErrorIs(t, err, schedule.ErrExhausted)
	assert.Equal(t, 0, s.Remaining())
}

func TestSchedulerConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  schedule.Config
	}{
		{name: "zero epochs", cfg: schedule.Config{Epochs: 0, ItersPerEpoch: 10}},
		{name: "zero iters", cfg: schedule.Config{Epochs: 10, ItersPerEpoch: 0}},
		{name: "warmup exceeds total", cfg: schedule.Config{WarmupEpochs: 11, Epochs: 10, ItersPerEpoch: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schedule.New(&fakeTarget{}, tt.cfg)
			assert.ErrorIs(t, err, schedule.ErrBadConfig)
		})
	}

	_, err := schedule.New(nil, schedule.Config{Epochs: 1, ItersPerEpoch: 1})
	assert.ErrorIs(t, err, schedule.ErrBadConfig)
}
