// Package audio provides the signal-processing core of the monitor:
// loudness estimation, alert tone synthesis, peak tracking, noise episode
// detection, and miniaudio-backed capture, playback and device listing.
package audio

import (
	"math"
)

const (
	// MaxSampleValue is the largest magnitude a 16-bit signed sample takes.
	MaxSampleValue = 32768.0
	// LevelSentinelDB marks "no measurement yet" and sits far below anything
	// a real capture can produce.
	LevelSentinelDB = -100.0
	// rmsEpsilon keeps the log finite on an all-zero buffer. An all-silent
	// capture estimates to 20*log10(epsilon) = -200 dB instead of -Inf.
	rmsEpsilon = 1e-10
)

// ClampSamples bounds every sample to [-1.0, 1.0] in place.
func ClampSamples(samples []float64) {
	for i, s := range samples {
		if s > 1.0 {
			samples[i] = 1.0
		} else if s < -1.0 {
			samples[i] = -1.0
		}
	}
}

// RMS returns the root-mean-square magnitude of the buffer.
// An empty buffer has zero magnitude.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += s * s
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// LevelDB converts a capture buffer of samples in [-1.0, 1.0] into loudness
// in dB relative to full scale. The result is finite for every input: full
// silence lands near -200 dB rather than -Inf, and callers must tolerate
// such very negative values instead of assuming a floor.
func LevelDB(samples []float64) float64 {
	return 20 * math.Log10(RMS(samples)+rmsEpsilon)
}

// SamplesToFloat converts signed 16-bit PCM to amplitudes in [-1.0, 1.0].
func SamplesToFloat(pcm []int16) []float64 {
	out := make([]float64, len(pcm))
	for i, s := range pcm {
		out[i] = float64(s) / MaxSampleValue
	}
	return out
}

// AllZero reports whether every sample in the buffer is exactly zero.
// An empty buffer counts as all-zero.
func AllZero(pcm []int16) bool {
	for _, s := range pcm {
		if s != 0 {
			return false
		}
	}
	return true
}
