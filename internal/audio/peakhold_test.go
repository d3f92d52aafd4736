package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeakMarkerHoldAndDecay(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := NewPeakMarker()

	// First reading replaces the sentinel.
	assert.InDelta(t, -40.0, p.Update(-40, base), 1e-9)

	// Quieter readings inside the hold window leave the peak alone.
	assert.InDelta(t, -40.0, p.Update(-60, base.Add(500*time.Millisecond)), 1e-9)
	assert.InDelta(t, -40.0, p.Update(-60, base.Add(1000*time.Millisecond)), 1e-9)

	// Once the window expires the peak falls by a fixed step per update.
	assert.InDelta(t, -40.5, p.Update(-60, base.Add(1100*time.Millisecond)), 1e-9)
	assert.InDelta(t, -41.0, p.Update(-60, base.Add(1200*time.Millisecond)), 1e-9)

	// Decay never drops below the current level.
	assert.InDelta(t, -41.2, p.Update(-41.2, base.Add(1300*time.Millisecond)), 1e-9)

	// A louder reading replaces the peak and restarts the hold.
	assert.InDelta(t, -20.0, p.Update(-20, base.Add(1400*time.Millisecond)), 1e-9)
	assert.InDelta(t, -20.0, p.Update(-60, base.Add(2300*time.Millisecond)), 1e-9)
}

func TestPeakMarkerValue(t *testing.T) {
	p := NewPeakMarker()
	assert.InDelta(t, LevelSentinelDB, p.Value(), 1e-9)

	p.Update(-33, time.Now())
	assert.InDelta(t, -33.0, p.Value(), 1e-9)
}

func TestPeakMarkerReset(t *testing.T) {
	p := NewPeakMarker()
	p.Update(-10, time.Now())
	p.Reset()
	assert.InDelta(t, LevelSentinelDB, p.Value(), 1e-9)
}

func TestPeakMarkerSetHoldDuration(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := NewPeakMarker()
	p.SetHoldDuration(100 * time.Millisecond)

	p.Update(-30, base)
	// Window shortened, so decay starts much sooner.
	assert.InDelta(t, -30.5, p.Update(-60, base.Add(150*time.Millisecond)), 1e-9)
}
