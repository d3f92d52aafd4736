package audio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// constantCapture returns a capture function that fills the buffer with a
// fixed sample value.
func constantCapture(value int16) CaptureFunc {
	return func(_ context.Context, _ string, _, frames int) ([]int16, error) {
		samples := make([]int16, frames)
		for i := range samples {
			samples[i] = value
		}
		return samples, nil
	}
}

func TestCalibrateSuggestsThresholdAboveAmbient(t *testing.T) {
	// Constant half-scale input measures -6.02 dB; the suggestion sits a
	// rounded 10 dB above that.
	result, err := Calibrate(context.Background(), constantCapture(16384), "")
	require.NoError(t, err)

	assert.InDelta(t, -6.02, result.AmbientDB, 0.01)
	assert.InDelta(t, 4.0, result.SuggestedDB, 1e-9)
}

func TestCalibrateClampsQuietRooms(t *testing.T) {
	// One LSB of signal is around -90 dB; the suggestion is clamped so it
	// never chases electrical noise.
	result, err := Calibrate(context.Background(), constantCapture(1), "")
	require.NoError(t, err)

	assert.Less(t, result.AmbientDB, -80.0)
	assert.InDelta(t, types.MinSuggestedThresholdDB, result.SuggestedDB, 1e-9)
}

func TestCalibrateRejectsDeadInput(t *testing.T) {
	_, err := Calibrate(context.Background(), constantCapture(0), "")
	require.ErrorIs(t, err, ErrInsufficientSignal)
}

func TestCalibrateCaptureParameters(t *testing.T) {
	var gotDevice string
	var gotRate, gotFrames int
	capture := func(_ context.Context, device string, sampleRate, frames int) ([]int16, error) {
		gotDevice = device
		gotRate = sampleRate
		gotFrames = frames
		return []int16{100, -100}, nil
	}

	_, err := Calibrate(context.Background(), capture, "USB Microphone")
	require.NoError(t, err)

	assert.Equal(t, "USB Microphone", gotDevice)
	assert.Equal(t, SynthSampleRate, gotRate)
	// Two seconds of ambient at the synthesis rate.
	assert.Equal(t, 88200, gotFrames)
}

func TestCalibratePropagatesCaptureErrors(t *testing.T) {
	captureErr := errors.New("device unplugged")
	capture := func(context.Context, string, int, int) ([]int16, error) {
		return nil, captureErr
	}

	_, err := Calibrate(context.Background(), capture, "")
	require.ErrorIs(t, err, captureErr)
}
