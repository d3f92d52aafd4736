package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var episodeCfg = EpisodeConfig{
	ThresholdDB:   -30,
	MinDurationMs: 1000,
	QuietMs:       500,
}

func TestEpisodeTrackerFullCycle(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewEpisodeTracker()

	// Loud but not yet past the confirmation window.
	ev := tr.Update(-20, episodeCfg, base)
	assert.False(t, ev.Active)
	assert.False(t, ev.JustStarted)

	ev = tr.Update(-20, episodeCfg, base.Add(500*time.Millisecond))
	assert.False(t, ev.Active)

	// Confirmation window crossed.
	ev = tr.Update(-20, episodeCfg, base.Add(1000*time.Millisecond))
	assert.True(t, ev.Active)
	assert.True(t, ev.JustStarted)
	assert.Equal(t, int64(1000), ev.DurationMs)

	// Still loud: active but no repeated start edge.
	ev = tr.Update(-15, episodeCfg, base.Add(1500*time.Millisecond))
	assert.True(t, ev.Active)
	assert.False(t, ev.JustStarted)
	assert.Equal(t, int64(1500), ev.DurationMs)

	// Drops quiet: the episode stays live while the quiet window runs.
	ev = tr.Update(-45, episodeCfg, base.Add(1600*time.Millisecond))
	assert.True(t, ev.Active)
	assert.False(t, ev.JustEnded)

	ev = tr.Update(-45, episodeCfg, base.Add(1900*time.Millisecond))
	assert.True(t, ev.Active)

	// Quiet window complete: single end edge with the total duration.
	ev = tr.Update(-45, episodeCfg, base.Add(2200*time.Millisecond))
	assert.False(t, ev.Active)
	assert.True(t, ev.JustEnded)
	assert.Equal(t, int64(1500), ev.TotalDurationMs)

	// Quiet after the episode is inert.
	ev = tr.Update(-45, episodeCfg, base.Add(2300*time.Millisecond))
	assert.False(t, ev.Active)
	assert.False(t, ev.JustEnded)
}

func TestEpisodeTrackerShortBlipIgnored(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewEpisodeTracker()

	tr.Update(-20, episodeCfg, base)
	// Back under threshold before the confirmation window: no episode.
	ev := tr.Update(-45, episodeCfg, base.Add(200*time.Millisecond))
	assert.False(t, ev.Active)
	assert.False(t, ev.JustEnded)

	// The next loud stretch starts counting from scratch.
	ev = tr.Update(-20, episodeCfg, base.Add(300*time.Millisecond))
	assert.False(t, ev.Active)
	ev = tr.Update(-20, episodeCfg, base.Add(1200*time.Millisecond))
	assert.False(t, ev.Active, "900ms since restart, below the 1000ms window")
	ev = tr.Update(-20, episodeCfg, base.Add(1300*time.Millisecond))
	assert.True(t, ev.JustStarted)
}

func TestEpisodeTrackerLevelAtThresholdIsQuiet(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewEpisodeTracker()

	ev := tr.Update(episodeCfg.ThresholdDB, episodeCfg, base)
	assert.False(t, ev.Active)
	ev = tr.Update(episodeCfg.ThresholdDB, episodeCfg, base.Add(2*time.Second))
	assert.False(t, ev.Active)
	assert.False(t, ev.JustStarted)
}

func TestEpisodeTrackerZeroMinDuration(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := EpisodeConfig{ThresholdDB: -30, MinDurationMs: 0, QuietMs: 500}
	tr := NewEpisodeTracker()

	// An episode is confirmed on the very first loud reading.
	ev := tr.Update(-20, cfg, base)
	assert.True(t, ev.Active)
	assert.True(t, ev.JustStarted)
}

func TestEpisodeTrackerLoudDuringQuietWindowResumes(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewEpisodeTracker()

	tr.Update(-20, episodeCfg, base)
	tr.Update(-20, episodeCfg, base.Add(1000*time.Millisecond))

	// Quiet, but noise returns before the quiet window completes.
	tr.Update(-45, episodeCfg, base.Add(1100*time.Millisecond))
	ev := tr.Update(-20, episodeCfg, base.Add(1400*time.Millisecond))
	assert.True(t, ev.Active)
	assert.False(t, ev.JustStarted, "same episode, not a new edge")

	// The quiet clock restarted, so the episode is still live 400ms later.
	ev = tr.Update(-45, episodeCfg, base.Add(1800*time.Millisecond))
	assert.True(t, ev.Active)
	assert.False(t, ev.JustEnded)
}

func TestEpisodeTrackerReset(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewEpisodeTracker()

	tr.Update(-20, episodeCfg, base)
	tr.Update(-20, episodeCfg, base.Add(1200*time.Millisecond))
	tr.Reset()

	// After a reset the tracker behaves as if freshly created.
	ev := tr.Update(-20, episodeCfg, base.Add(1300*time.Millisecond))
	assert.False(t, ev.Active)
	assert.False(t, ev.JustStarted)
}
