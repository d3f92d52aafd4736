package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oszuidwest/zwfm-noisewatch/internal/speech"
)

func newTestState() *State {
	return New(-30, speech.NewQueue())
}

func TestNewDefaults(t *testing.T) {
	s := newTestState()

	snap := s.Get()
	assert.InDelta(t, -30.0, snap.ThresholdDB, 1e-9)
	assert.False(t, snap.IsMonitoring)
	// No capture has happened yet, so the level sits at the sentinel.
	assert.InDelta(t, -100.0, snap.CurrentDB, 1e-9)
}

func TestThresholdRoundTrip(t *testing.T) {
	s := newTestState()

	s.SetThreshold(-42.5)
	assert.InDelta(t, -42.5, s.Threshold(), 1e-9)
	assert.InDelta(t, -42.5, s.Get().ThresholdDB, 1e-9)
}

func TestMonitoringFlag(t *testing.T) {
	s := newTestState()

	s.SetMonitoring(true)
	assert.True(t, s.Monitoring())
	assert.True(t, s.Get().IsMonitoring)

	s.SetMonitoring(false)
	assert.False(t, s.Monitoring())
}

func TestCurrentDB(t *testing.T) {
	s := newTestState()

	s.SetCurrentDB(-18.3)
	assert.InDelta(t, -18.3, s.CurrentDB(), 1e-9)
	assert.InDelta(t, -18.3, s.Get().CurrentDB, 1e-9)
}

func TestConsumeRequestsExactlyOnce(t *testing.T) {
	s := newTestState()

	s.RequestStart()
	start, stop := s.ConsumeRequests()
	assert.True(t, start)
	assert.False(t, stop)

	// The request was consumed; nothing is pending now.
	start, stop = s.ConsumeRequests()
	assert.False(t, start)
	assert.False(t, stop)
}

func TestRepeatedRequestsCollapse(t *testing.T) {
	s := newTestState()

	// Asking three times before the loop reacts is the same as asking once.
	s.RequestStart()
	s.RequestStart()
	s.RequestStart()

	start, _ := s.ConsumeRequests()
	assert.True(t, start)
	start, _ = s.ConsumeRequests()
	assert.False(t, start)
}

func TestStartAndStopAreIndependent(t *testing.T) {
	s := newTestState()

	s.RequestStart()
	s.RequestStop()

	start, stop := s.ConsumeRequests()
	assert.True(t, start)
	assert.True(t, stop)
}

func TestConsumeRequestsEmpty(t *testing.T) {
	s := newTestState()

	start, stop := s.ConsumeRequests()
	assert.False(t, start)
	assert.False(t, stop)
}

func TestSpeechQueueWiring(t *testing.T) {
	s := newTestState()

	assert.Zero(t, s.SpeechPending())

	s.EnqueueSpeech("please close the studio door")
	s.EnqueueSpeech("second announcement")
	assert.Equal(t, 2, s.SpeechPending())
}
