package speech

import "context"

const (
	// speechRate is the speaking speed in words per minute, passed to
	// engines that accept one.
	speechRate = 150
	// speechAmplitude is the espeak output amplitude (0-200).
	speechAmplitude = 180
)

// Engine speaks text out loud. Speak blocks until the utterance finishes.
type Engine interface {
	// Name identifies the engine in logs.
	Name() string
	// Available reports whether the engine binary can be found right now.
	// Checked per utterance: installing the engine while the service runs
	// takes effect without a restart.
	Available() bool
	// Speak synthesizes and plays the utterance.
	Speak(ctx context.Context, text string) error
}

// NewEngine returns the speech engine for the current platform.
func NewEngine() Engine {
	return platformEngine()
}
