package audio

import (
	"math"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// SynthSampleRate is the fixed sample rate for alert tone synthesis in Hz.
const SynthSampleRate = 44100

// Synthesis clamps. Callers are allowed to push out-of-range values; the
// synthesizer bounds them here instead of failing.
const (
	maxAmplitude     = 32767
	minToneFrequency = 20.0
	maxToneFrequency = SynthSampleRate / 2.0
	minToneDuration  = 1
	maxToneDuration  = 60000
)

// Synthesize produces a mono 16-bit alert waveform at SynthSampleRate.
// Amplitude scales linearly with volume (0-100%). Unknown shapes fall back
// to sine. The output length in samples is round(rate * durationMs / 1000).
func Synthesize(shape types.Waveform, freqHz float64, durationMs, volumePct int) []int16 {
	freqHz = min(max(freqHz, minToneFrequency), maxToneFrequency)
	durationMs = min(max(durationMs, minToneDuration), maxToneDuration)
	volumePct = min(max(volumePct, 0), 100)

	n := int(math.Round(SynthSampleRate * float64(durationMs) / 1000.0))
	amplitude := float64(volumePct) / 100.0 * maxAmplitude

	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / SynthSampleRate
		var w float64
		switch shape {
		case types.WaveSquare:
			// Sign of the sine: +1/0/-1 mapped to full scale.
			s := math.Sin(2 * math.Pi * freqHz * t)
			if s > 0 {
				w = 1
			} else if s < 0 {
				w = -1
			}
		case types.WaveSaw:
			// Linear ramp repeating at period 1/f.
			w = 2 * (freqHz*t - math.Floor(0.5+freqHz*t))
		default:
			w = math.Sin(2 * math.Pi * freqHz * t)
		}
		samples[i] = int16(w * amplitude)
	}
	return samples
}
