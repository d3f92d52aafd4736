package audio

import (
	"sync"
	"time"
)

const (
	// DefaultPeakHoldDuration is how long a peak value is held before it
	// starts decaying toward the current level.
	DefaultPeakHoldDuration = 1000 * time.Millisecond
	// peakDecayDB is how far the held peak falls per update once the hold
	// window has expired.
	peakDecayDB = 0.5
)

// PeakMarker tracks the decaying maximum of the current level for VU-style
// displays. It is not authoritative for alerting.
// It is safe for concurrent use.
type PeakMarker struct {
	mu           sync.Mutex
	held         float64
	heldAt       time.Time
	holdDuration time.Duration
}

// NewPeakMarker creates a peak marker initialized to the level sentinel.
func NewPeakMarker() *PeakMarker {
	return &PeakMarker{
		held:         LevelSentinelDB,
		holdDuration: DefaultPeakHoldDuration,
	}
}

// Update feeds the latest level and returns the current held peak.
// A level at or above the held peak replaces it and restarts the hold
// window; once the window expires the peak decays toward the current level.
func (p *PeakMarker) Update(db float64, now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db >= p.held {
		p.held = db
		p.heldAt = now
		return p.held
	}
	if now.Sub(p.heldAt) > p.holdDuration {
		p.held = max(p.held-peakDecayDB, db)
	}
	return p.held
}

// Value returns the held peak without feeding a new level.
func (p *PeakMarker) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held
}

// SetHoldDuration changes how long a peak sticks before decaying.
func (p *PeakMarker) SetHoldDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holdDuration = d
}

// Reset clears the held peak back to the level sentinel.
func (p *PeakMarker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = LevelSentinelDB
	p.heldAt = time.Time{}
}
