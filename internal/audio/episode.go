package audio

import (
	"sync"
	"time"
)

// EpisodeConfig holds the configurable thresholds for noise episode tracking.
type EpisodeConfig struct {
	ThresholdDB   float64 // dB level above which audio counts as noise
	MinDurationMs int64   // milliseconds of sustained noise before an episode is confirmed (0 = immediate)
	QuietMs       int64   // milliseconds at or below threshold before the episode ends
}

// EpisodeEvent represents the result of a noise tracking update.
type EpisodeEvent struct {
	Active     bool    // Currently in a confirmed noise episode
	DurationMs int64   // Current episode duration in ms (0 outside episodes)
	LevelDB    float64 // Level that produced this update

	// Edge flags, set on at most one update per episode.
	JustStarted     bool  // True on the update when an episode is first confirmed
	JustEnded       bool  // True on the update when the quiet window completes
	TotalDurationMs int64 // Total episode duration in ms (only set when JustEnded)
}

// EpisodeTracker turns per-cycle loudness readings into edge-triggered noise
// episodes. The alert tone fires every loud cycle regardless; the tracker
// exists so notifications fire once per episode instead of once per cycle.
// It is safe for concurrent use.
type EpisodeTracker struct {
	mu              sync.Mutex
	noiseStart      time.Time // when the current loud period started
	quietStart      time.Time // when audio dropped back under the threshold
	active          bool      // currently in a confirmed episode
	noiseDurationMs int64     // tracks duration in ms for end reporting
}

// NewEpisodeTracker creates a new noise episode tracker.
func NewEpisodeTracker() *EpisodeTracker {
	return &EpisodeTracker{}
}

// Update feeds the latest level and returns the current episode state.
func (t *EpisodeTracker) Update(db float64, cfg EpisodeConfig, now time.Time) EpisodeEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	loud := db > cfg.ThresholdDB

	event := EpisodeEvent{LevelDB: db}

	if loud {
		t.quietStart = time.Time{}

		if t.noiseStart.IsZero() {
			t.noiseStart = now
		}

		durationMs := now.Sub(t.noiseStart).Milliseconds()
		t.noiseDurationMs = durationMs

		if t.active {
			event.Active = true
			event.DurationMs = durationMs
		} else if durationMs >= cfg.MinDurationMs {
			// Crossed the confirmation window - episode begins.
			t.active = true
			event.Active = true
			event.DurationMs = durationMs
			event.JustStarted = true
		}
	} else {
		// Level is back at or below threshold - keep the start time while a
		// confirmed episode waits out its quiet window.
		if !t.active {
			t.noiseStart = time.Time{}
		}

		if t.active {
			if t.quietStart.IsZero() {
				t.quietStart = now
			}

			quietMs := now.Sub(t.quietStart).Milliseconds()

			if quietMs >= cfg.QuietMs {
				event.JustEnded = true
				event.TotalDurationMs = t.noiseDurationMs

				t.active = false
				t.noiseDurationMs = 0
				t.noiseStart = time.Time{}
				t.quietStart = time.Time{}
			} else {
				// Quiet window still running - episode is considered live.
				event.Active = true
				event.DurationMs = t.noiseDurationMs
			}
		}
	}

	return event
}

// Reset clears the episode tracking state.
func (t *EpisodeTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.noiseStart = time.Time{}
	t.quietStart = time.Time{}
	t.active = false
	t.noiseDurationMs = 0
}
