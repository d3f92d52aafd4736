package audio

import (
	"context"
	"errors"
	"math"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// ErrInsufficientSignal is returned when a calibration capture contains no
// signal at all, which almost always means the wrong input device is
// selected or the microphone is muted.
var ErrInsufficientSignal = errors.New("no signal detected, check the input device")

// CaptureFunc matches Capture and exists so calibration can be exercised
// without real hardware.
type CaptureFunc func(ctx context.Context, device string, sampleRate, frames int) ([]int16, error)

// Calibrate samples ambient room noise for a couple of seconds and suggests
// an alert threshold a comfortable margin above it. It never touches monitor
// state; the caller decides whether to apply the suggestion.
func Calibrate(ctx context.Context, capture CaptureFunc, device string) (types.CalibrationResult, error) {
	frames := int(math.Round(SynthSampleRate * types.CalibrationSeconds))

	samples, err := capture(ctx, device, SynthSampleRate, frames)
	if err != nil {
		return types.CalibrationResult{}, err
	}
	if AllZero(samples) {
		return types.CalibrationResult{}, ErrInsufficientSignal
	}

	floats := SamplesToFloat(samples)
	ClampSamples(floats)
	ambient := LevelDB(floats)

	suggested := math.Round(ambient + types.CalibrationMarginDB)
	suggested = math.Max(suggested, types.MinSuggestedThresholdDB)
	if math.IsNaN(suggested) || math.IsInf(suggested, 0) {
		suggested = types.FallbackThresholdDB
	}

	return types.CalibrationResult{AmbientDB: ambient, SuggestedDB: suggested}, nil
}
