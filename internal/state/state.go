// Package state holds the mutable monitoring state shared between the web
// layer and the monitor loop. HTTP handlers and WebSocket commands mutate
// it; the loop reads it and publishes level readings back through it.
package state

import (
	"sync"

	"github.com/oszuidwest/zwfm-noisewatch/internal/audio"
	"github.com/oszuidwest/zwfm-noisewatch/internal/speech"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// State is the shared coordination point. All methods are safe for
// concurrent use.
type State struct {
	mu          sync.RWMutex
	thresholdDB float64
	monitoring  bool
	currentDB   float64

	// start and stop are one-slot edge flags: a request parks in its
	// channel until the control poller consumes it, and repeat requests
	// while one is parked collapse into it.
	start chan struct{}
	stop  chan struct{}

	speech *speech.Queue
}

// New returns a State with the given initial threshold. The level reading
// sits at the sentinel until the first capture cycle publishes a real one.
func New(thresholdDB float64, queue *speech.Queue) *State {
	return &State{
		thresholdDB: thresholdDB,
		currentDB:   audio.LevelSentinelDB,
		start:       make(chan struct{}, 1),
		stop:        make(chan struct{}, 1),
		speech:      queue,
	}
}

// Get returns a consistent snapshot of the remotely visible fields.
func (s *State) Get() types.StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.StateSnapshot{
		ThresholdDB:  s.thresholdDB,
		IsMonitoring: s.monitoring,
		CurrentDB:    s.currentDB,
	}
}

// SetThreshold replaces the alert threshold. The loop picks it up on its
// next capture cycle.
func (s *State) SetThreshold(db float64) {
	s.mu.Lock()
	s.thresholdDB = db
	s.mu.Unlock()
}

// Threshold returns the current alert threshold.
func (s *State) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholdDB
}

// SetMonitoring records whether the loop is armed. Only the monitor loop
// writes this; the flag reflects actual state, not intent.
func (s *State) SetMonitoring(on bool) {
	s.mu.Lock()
	s.monitoring = on
	s.mu.Unlock()
}

// Monitoring reports whether the loop is armed.
func (s *State) Monitoring() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.monitoring
}

// SetCurrentDB publishes the most recent level measurement.
func (s *State) SetCurrentDB(db float64) {
	s.mu.Lock()
	s.currentDB = db
	s.mu.Unlock()
}

// CurrentDB returns the most recent level measurement.
func (s *State) CurrentDB() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentDB
}

// RequestStart records a start request. Requests are edge flags, not a
// queue: asking twice before the loop reacts is the same as asking once.
func (s *State) RequestStart() {
	select {
	case s.start <- struct{}{}:
	default:
	}
}

// RequestStop records a stop request, collapsing repeats like RequestStart.
func (s *State) RequestStop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

// ConsumeRequests returns and clears any pending start and stop requests.
// Each request is observed exactly once; concurrent consumers never see
// the same request twice.
func (s *State) ConsumeRequests() (start, stop bool) {
	select {
	case <-s.start:
		start = true
	default:
	}
	select {
	case <-s.stop:
		stop = true
	default:
	}
	return start, stop
}

// EnqueueSpeech hands text to the announcement queue without blocking.
// Validation happens at the web boundary, not here.
func (s *State) EnqueueSpeech(text string) {
	s.speech.Enqueue(text)
}

// SpeechPending returns the number of queued announcements.
func (s *State) SpeechPending() int {
	return s.speech.Pending()
}
