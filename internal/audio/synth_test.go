package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

func TestSynthesizeLength(t *testing.T) {
	tests := []struct {
		name       string
		durationMs int
		expected   int
	}{
		{name: "default_tone", durationMs: 200, expected: 8820},
		{name: "one_second", durationMs: 1000, expected: 44100},
		{name: "odd_duration_rounds", durationMs: 333, expected: 14685}, // round(44100 * 0.333)
		{name: "one_ms", durationMs: 1, expected: 44},                   // round(44.1)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, shape := range []types.Waveform{types.WaveSine, types.WaveSquare, types.WaveSaw} {
				samples := Synthesize(shape, 1000, tt.durationMs, 50)
				assert.Len(t, samples, tt.expected, "shape %s", shape)
			}
		})
	}
}

func TestSynthesizeVolume(t *testing.T) {
	t.Run("zero_volume_is_silent", func(t *testing.T) {
		samples := Synthesize(types.WaveSquare, 1000, 50, 0)
		for _, s := range samples {
			require.Zero(t, s)
		}
	})

	t.Run("scales_linearly", func(t *testing.T) {
		full := Synthesize(types.WaveSine, 1000, 50, 100)
		half := Synthesize(types.WaveSine, 1000, 50, 50)
		require.Len(t, half, len(full))
		for i := range full {
			assert.InDelta(t, float64(full[i])/2, float64(half[i]), 1.0)
		}
	})

	t.Run("peak_within_int16", func(t *testing.T) {
		samples := Synthesize(types.WaveSquare, 1000, 100, 100)
		var peak int16
		for _, s := range samples {
			if s > peak {
				peak = s
			}
		}
		assert.Equal(t, int16(32767), peak)
	})

	t.Run("out_of_range_volume_is_clamped", func(t *testing.T) {
		over := Synthesize(types.WaveSine, 1000, 50, 150)
		full := Synthesize(types.WaveSine, 1000, 50, 100)
		assert.Equal(t, full, over)

		under := Synthesize(types.WaveSine, 1000, 50, -10)
		for _, s := range under {
			require.Zero(t, s)
		}
	})
}

func TestSynthesizeShapes(t *testing.T) {
	t.Run("square_snaps_to_rails", func(t *testing.T) {
		amp := int16(16383) // 50% of 32767
		samples := Synthesize(types.WaveSquare, 1000, 50, 50)
		for _, s := range samples {
			require.Contains(t, []int16{-amp, 0, amp}, s)
		}
	})

	t.Run("saw_starts_at_zero_and_ramps", func(t *testing.T) {
		samples := Synthesize(types.WaveSaw, 100, 50, 100)
		require.NotEmpty(t, samples)
		assert.Zero(t, samples[0])
		// A quarter period into a 100 Hz saw the ramp sits at half amplitude.
		quarter := SynthSampleRate / 100 / 4
		assert.InDelta(t, 32767.0/2, float64(samples[quarter]), 100)
	})

	t.Run("sine_crosses_zero_each_period", func(t *testing.T) {
		samples := Synthesize(types.WaveSine, 441, 100, 100)
		period := SynthSampleRate / 441
		assert.InDelta(t, 0, float64(samples[0]), 1)
		assert.InDelta(t, 0, float64(samples[period]), 100)
	})

	t.Run("unknown_shape_falls_back_to_sine", func(t *testing.T) {
		sine := Synthesize(types.WaveSine, 1000, 50, 50)
		other := Synthesize(types.Waveform("triangle"), 1000, 50, 50)
		assert.Equal(t, sine, other)
	})
}

func TestSynthesizeFrequencyClamp(t *testing.T) {
	// Frequencies outside the audible/representable range are bounded rather
	// than rejected.
	low := Synthesize(types.WaveSine, 0, 50, 50)
	atFloor := Synthesize(types.WaveSine, 20, 50, 50)
	assert.Equal(t, atFloor, low)

	high := Synthesize(types.WaveSine, 1e9, 50, 50)
	atNyquist := Synthesize(types.WaveSine, SynthSampleRate/2.0, 50, 50)
	assert.Equal(t, atNyquist, high)
}

func TestSynthesizeDurationClamp(t *testing.T) {
	samples := Synthesize(types.WaveSine, 1000, 0, 50)
	assert.Len(t, samples, int(math.Round(SynthSampleRate*0.001)))
}
