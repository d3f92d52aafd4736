package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	logger, err := NewLogger(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}

func TestLoggerWritesAndReadsBack(t *testing.T) {
	logger := newTestLogger(t)

	require.NoError(t, logger.LogMonitor(MonitorStarted, "USB Microphone", "monitoring started", "", 0))
	require.NoError(t, logger.LogNoiseStart(-12.5, -30))
	require.NoError(t, logger.LogNoiseEnd(2500, -12.5, -8.0, -30, "", "", 0, ""))
	require.NoError(t, logger.LogSpeech(SpeechSpoken, "studio noise", "espeak", "", 0))
	require.NoError(t, logger.LogCalibration(-48.2, -38))

	events, hasMore, err := ReadLast(logger.Path(), 10, 0, FilterAll)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, events, 5)

	// Newest first.
	assert.Equal(t, Calibration, events[0].Type)
	assert.Equal(t, SpeechSpoken, events[1].Type)
	assert.Equal(t, NoiseEnd, events[2].Type)
	assert.Equal(t, NoiseStart, events[3].Type)
	assert.Equal(t, MonitorStarted, events[4].Type)

	for _, e := range events {
		assert.False(t, e.Timestamp.IsZero())
	}

	details, ok := events[2].Details.(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 2500, details["duration_ms"], 1e-9)
	assert.InDelta(t, -8.0, details["peak_db"], 1e-9)
}

func TestReadLastPagination(t *testing.T) {
	logger := newTestLogger(t)
	for i := range 7 {
		require.NoError(t, logger.LogMonitor(MonitorStarted, "", fmt.Sprintf("msg-%d", i), "", 0))
	}

	page, hasMore, err := ReadLast(logger.Path(), 3, 0, FilterAll)
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, page, 3)
	assert.Equal(t, "msg-6", page[0].Message)
	assert.Equal(t, "msg-4", page[2].Message)

	page, hasMore, err = ReadLast(logger.Path(), 3, 3, FilterAll)
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, page, 3)
	assert.Equal(t, "msg-3", page[0].Message)

	page, hasMore, err = ReadLast(logger.Path(), 3, 6, FilterAll)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, page, 1)
	assert.Equal(t, "msg-0", page[0].Message)
}

func TestReadLastFilters(t *testing.T) {
	logger := newTestLogger(t)
	require.NoError(t, logger.LogMonitor(MonitorStarted, "", "started", "", 0))
	require.NoError(t, logger.LogNoiseStart(-10, -30))
	require.NoError(t, logger.LogSpeech(SpeechDropped, "text", "", "engine unavailable", 0))
	require.NoError(t, logger.LogClip(ClipSaved, "clip.wav", "local", "", "", 0, 0, ""))

	tests := []struct {
		name     string
		filter   TypeFilter
		wantType EventType
	}{
		{name: "monitor", filter: FilterMonitor, wantType: MonitorStarted},
		{name: "noise", filter: FilterNoise, wantType: NoiseStart},
		{name: "speech", filter: FilterSpeech, wantType: SpeechDropped},
		{name: "clip", filter: FilterClip, wantType: ClipSaved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, _, err := ReadLast(logger.Path(), 10, 0, tt.filter)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, tt.wantType, events[0].Type)
		})
	}

	all, _, err := ReadLast(logger.Path(), 10, 0, FilterAll)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestReadLastSkipsMalformedLines(t *testing.T) {
	logger := newTestLogger(t)
	require.NoError(t, logger.LogMonitor(MonitorStarted, "", "first", "", 0))
	require.NoError(t, logger.LogMonitor(MonitorStopped, "", "second", "", 1))
	require.NoError(t, logger.Close())

	f, err := os.OpenFile(logger.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("this is not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, _, err := ReadLast(logger.Path(), 10, 0, FilterAll)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "second", events[0].Message)
	assert.Equal(t, "first", events[1].Message)
}

func TestReadLastMissingFile(t *testing.T) {
	events, hasMore, err := ReadLast(filepath.Join(t.TempDir(), "absent.jsonl"), 10, 0, FilterAll)
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Empty(t, events)
}

func TestReadLastCapsLimit(t *testing.T) {
	logger := newTestLogger(t)
	for i := range MaxReadLimit + 5 {
		require.NoError(t, logger.LogMonitor(MonitorStarted, "", fmt.Sprintf("msg-%d", i), "", 0))
	}

	events, hasMore, err := ReadLast(logger.Path(), MaxReadLimit+100, 0, FilterAll)
	require.NoError(t, err)
	assert.True(t, hasMore)
	assert.Len(t, events, MaxReadLimit)

	events, hasMore, err = ReadLast(logger.Path(), 0, 0, FilterAll)
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Empty(t, events)
}

func TestEventFamilyPredicates(t *testing.T) {
	tests := []struct {
		eventType EventType
		monitor   bool
		noise     bool
		speech    bool
		clip      bool
	}{
		{eventType: MonitorStarted, monitor: true},
		{eventType: MonitorStopped, monitor: true},
		{eventType: MonitorError, monitor: true},
		{eventType: Calibration, monitor: true},
		{eventType: NoiseStart, noise: true},
		{eventType: NoiseEnd, noise: true},
		{eventType: SpeechSpoken, speech: true},
		{eventType: SpeechDropped, speech: true},
		{eventType: ClipSaved, clip: true},
		{eventType: UploadAbandoned, clip: true},
		{eventType: CleanupCompleted, clip: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.monitor, IsMonitorEvent(tt.eventType))
			assert.Equal(t, tt.noise, IsNoiseEvent(tt.eventType))
			assert.Equal(t, tt.speech, IsSpeechEvent(tt.eventType))
			assert.Equal(t, tt.clip, IsClipEvent(tt.eventType))
		})
	}
}
