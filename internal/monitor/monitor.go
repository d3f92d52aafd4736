// Package monitor runs the noise monitoring loop. It owns the Idle/Armed
// state machine: arming starts a capture session that repeatedly measures
// loudness, plays the alert tone on loud cycles, tracks noise episodes and
// feeds the clip recorder. Start and stop requests arrive edge-triggered
// through the shared state and are consumed by a control poller.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/audio"
	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/notify"
	"github.com/oszuidwest/zwfm-noisewatch/internal/state"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// Sentinel errors for monitor operations.
var (
	ErrAlreadyMonitoring = errors.New("monitoring already active")
	ErrMonitorArmed      = errors.New("monitor is running, stop it before calibrating")
)

// Capturer records one buffer of PCM from an input device. The device is
// opened for the call and closed before it returns.
type Capturer func(ctx context.Context, device string, sampleRate, frames int) ([]int16, error)

// Player plays a PCM buffer on an output device and returns when playback
// has drained.
type Player func(ctx context.Context, device string, sampleRate int, pcm []int16) error

// episodeEnd holds the stats of a finished noise episode while its clip is
// still being recorded.
type episodeEnd struct {
	durationMs  int64
	levelDB     float64
	peakDB      float64
	thresholdDB float64
}

// Engine owns the monitoring loop and its session lifecycle.
type Engine struct {
	config    *config.Config
	state     *state.State
	notifier  *notify.NoiseNotifier
	events    *eventlog.Logger
	clipStore *clips.Store

	// Capture and playback backends, replaceable in tests.
	capture Capturer
	play    Player

	mu          sync.RWMutex
	loopState   types.MonitorState
	stopChan    chan struct{}
	doneChan    chan struct{}
	sessionStop context.CancelFunc
	lastError   string
	startTime   time.Time
	cycles      uint64
	alertActive bool

	// Newest-wins settings hand-off to the running loop.
	settingsCh chan types.MonitorSettings

	peak    *audio.PeakMarker
	tracker *audio.EpisodeTracker

	// Clip recording for the current session. capturer is nil when clips
	// are disabled; pendingEnds holds episode stats until their clip
	// finishes encoding.
	capturer    *clips.Capturer
	clipDir     string
	pendingEnds []episodeEnd
}

// New creates a monitor engine. events and clipStore may be nil.
func New(cfg *config.Config, st *state.State, notifier *notify.NoiseNotifier, events *eventlog.Logger, clipStore *clips.Store) *Engine {
	return &Engine{
		config:     cfg,
		state:      st,
		notifier:   notifier,
		events:     events,
		clipStore:  clipStore,
		capture:    audio.Capture,
		play:       audio.Play,
		loopState:  types.StateIdle,
		settingsCh: make(chan types.MonitorSettings, 1),
		peak:       audio.NewPeakMarker(),
		tracker:    audio.NewEpisodeTracker(),
	}
}

// Run consumes start/stop requests until ctx is cancelled. It is the only
// goroutine that arms or disarms the monitor, so requests arriving in any
// order resolve to a single well-defined session transition per poll.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(types.ControlPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.stopSession()
			return
		case <-ticker.C:
			start, stop := e.state.ConsumeRequests()
			if stop {
				e.stopSession()
			}
			if start {
				if err := e.startSession(ctx); err != nil && !errors.Is(err, ErrAlreadyMonitoring) {
					slog.Error("failed to start monitoring", "error", err)
				}
			}
		}
	}
}

// State returns the current loop state.
func (e *Engine) State() types.MonitorState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loopState
}

// Status returns a summary of the monitor's operational state.
func (e *Engine) Status() types.MonitorStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	uptime := ""
	if e.loopState == types.StateArmed {
		uptime = time.Since(e.startTime).Truncate(time.Second).String()
	}

	return types.MonitorStatus{
		State:     e.loopState,
		Uptime:    uptime,
		LastError: e.lastError,
		Cycles:    e.cycles,
	}
}

// Levels returns the live loudness reading pushed to websocket clients.
func (e *Engine) Levels() types.LevelReading {
	e.mu.RLock()
	alertActive := e.alertActive
	monitoring := e.loopState == types.StateArmed
	e.mu.RUnlock()

	return types.LevelReading{
		CurrentDB:   e.state.CurrentDB(),
		PeakDB:      e.peak.Value(),
		ThresholdDB: e.state.Threshold(),
		Monitoring:  monitoring,
		AlertActive: alertActive,
	}
}

// PushSettings hands a new settings snapshot to the running loop. The slot
// holds only the newest value; an unconsumed older snapshot is discarded.
func (e *Engine) PushSettings(s types.MonitorSettings) {
	for {
		select {
		case e.settingsCh <- s:
			return
		default:
			select {
			case <-e.settingsCh:
			default:
			}
		}
	}
}

// RefreshSettings rebuilds the settings snapshot from config and shared
// state and pushes it to the loop. Call after any settings change.
func (e *Engine) RefreshSettings() {
	e.PushSettings(e.buildSettings())
}

// buildSettings assembles the loop settings from persisted config plus the
// live threshold.
func (e *Engine) buildSettings() types.MonitorSettings {
	snap := e.config.Snapshot()
	return snap.MonitorSettings(e.state.Threshold())
}

// startSession arms the monitor and launches the capture loop.
func (e *Engine) startSession(ctx context.Context) error {
	settings := e.buildSettings()
	snap := e.config.Snapshot()

	e.mu.Lock()
	if e.loopState != types.StateIdle {
		e.mu.Unlock()
		return ErrAlreadyMonitoring
	}

	sessionCtx, cancel := context.WithCancel(ctx)

	e.loopState = types.StateArmed
	e.stopChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	e.sessionStop = cancel
	e.lastError = ""
	e.startTime = time.Now()
	e.cycles = 0
	e.alertActive = false
	e.pendingEnds = nil
	e.peak.Reset()
	e.tracker.Reset()
	e.notifier.Reset()

	if snap.ClipsEnabled {
		e.clipDir = snap.ClipsDirectory
		e.capturer = clips.NewCapturer(settings.SampleRate, snap.ClipsDirectory, e.onClipReady)
	} else {
		e.clipDir = ""
		e.capturer = nil
	}

	stopChan := e.stopChan
	doneChan := e.doneChan
	e.mu.Unlock()

	e.state.SetMonitoring(true)
	slog.Info("monitoring started",
		"threshold_db", settings.ThresholdDB,
		"sample_rate", settings.SampleRate,
		"input", settings.InputDevice,
		"clips", snap.ClipsEnabled)
	e.logMonitorEvent(eventlog.MonitorStarted, settings.InputDevice, "monitoring started", "")

	go e.runLoop(sessionCtx, settings, stopChan, doneChan)

	return nil
}

// stopSession disarms the monitor. The running cycle is allowed to finish;
// if the loop does not exit within the shutdown timeout its context is
// cancelled to abort a stuck capture.
func (e *Engine) stopSession() {
	e.mu.Lock()
	if e.loopState != types.StateArmed {
		e.mu.Unlock()
		return
	}
	e.loopState = types.StateStopping
	close(e.stopChan)
	doneChan := e.doneChan
	cancel := e.sessionStop
	e.mu.Unlock()

	select {
	case <-doneChan:
	case <-time.After(types.ShutdownTimeout):
		slog.Warn("monitor loop did not stop in time, cancelling capture")
		cancel()
		<-doneChan
	}
	cancel()

	e.mu.Lock()
	cycles := e.cycles
	e.mu.Unlock()

	slog.Info("monitoring stopped", "cycles", cycles)
	e.logMonitorEvent(eventlog.MonitorStopped, "", "monitoring stopped", "")
}

// Calibrate measures ambient loudness and suggests an alert threshold. It
// refuses while a session is armed so the measurement does not fight the
// loop for the capture device, and never changes the active threshold.
// An empty device measures on the configured input.
func (e *Engine) Calibrate(ctx context.Context, device string) (types.CalibrationResult, error) {
	e.mu.RLock()
	busy := e.loopState != types.StateIdle
	e.mu.RUnlock()
	if busy {
		return types.CalibrationResult{}, ErrMonitorArmed
	}

	if device == "" {
		device = e.config.AudioInput()
	}

	result, err := audio.Calibrate(ctx, audio.CaptureFunc(e.capture), device)
	if err != nil {
		return types.CalibrationResult{}, err
	}

	if e.events != nil {
		if logErr := e.events.LogCalibration(result.AmbientDB, result.SuggestedDB); logErr != nil {
			slog.Warn("failed to log calibration event", "error", logErr)
		}
	}
	return result, nil
}

// PlayTestTone plays the configured alert tone once on the output device.
func (e *Engine) PlayTestTone(ctx context.Context) error {
	settings := e.buildSettings()
	tone := audio.Synthesize(settings.Shape, settings.FrequencyHz, settings.DurationMs, settings.VolumePct)
	return e.play(ctx, settings.OutputDevice, audio.SynthSampleRate, tone)
}

// logMonitorEvent writes a monitor lifecycle event, tolerating a nil logger.
func (e *Engine) logMonitorEvent(eventType eventlog.EventType, inputDevice, message, errMsg string) {
	if e.events == nil {
		return
	}
	e.mu.RLock()
	cycles := int64(e.cycles)
	e.mu.RUnlock()
	if err := e.events.LogMonitor(eventType, inputDevice, message, errMsg, cycles); err != nil {
		slog.Warn("failed to log monitor event", "error", err)
	}
}
