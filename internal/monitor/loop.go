package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/audio"
	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// runLoop is one monitoring session: capture, estimate, alert, repeat.
// It exits when stopChan closes, ctx is cancelled, or a capture fails.
// Capture failures end the session; there is no automatic retry because a
// vanished input device needs operator attention, not a reconnect storm.
func (e *Engine) runLoop(ctx context.Context, settings types.MonitorSettings, stopChan, doneChan chan struct{}) {
	defer func() {
		e.mu.Lock()
		e.loopState = types.StateIdle
		e.alertActive = false
		capturer := e.capturer
		e.capturer = nil
		pending := e.pendingEnds
		e.pendingEnds = nil
		e.mu.Unlock()

		e.state.SetMonitoring(false)

		// Episodes whose clip never finished still get their recovery
		// notifications, just without audio.
		for i := range pending {
			end := pending[i]
			e.notifier.HandleEnd(end.durationMs, end.levelDB, end.peakDB, end.thresholdDB, nil)
			e.logNoiseEndEvent(&end, nil)
		}
		if capturer != nil {
			capturer.Reset()
		}

		close(doneChan)
	}()

	for {
		select {
		case <-stopChan:
			return
		default:
		}

		settings = e.applySettings(settings)

		samples, err := e.capture(ctx, settings.InputDevice, settings.SampleRate, settings.CaptureFrames())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.failSession(settings, err)
			return
		}

		now := time.Now()
		floats := audio.SamplesToFloat(samples)
		audio.ClampSamples(floats)
		db := audio.LevelDB(floats)

		e.state.SetCurrentDB(db)
		e.peak.Update(db, now)

		e.mu.Lock()
		e.cycles++
		capturer := e.capturer
		e.mu.Unlock()

		if capturer != nil {
			capturer.WriteAudio(samples)
		}

		e.trackEpisode(db, settings, now, capturer)

		// The tone fires on every loud cycle; episode tracking only gates
		// notifications. Playback blocks the loop, which is what makes the
		// alert audible before the next measurement starts.
		if db > settings.ThresholdDB {
			tone := audio.Synthesize(settings.Shape, settings.FrequencyHz, settings.DurationMs, settings.VolumePct)
			if err := e.play(ctx, settings.OutputDevice, audio.SynthSampleRate, tone); err != nil {
				slog.Warn("alert tone playback failed", "error", err)
			}
		}

		delay := time.Duration(settings.CycleDelay * float64(time.Second))
		if delay > 0 {
			select {
			case <-stopChan:
				return
			case <-time.After(delay):
			}
		}
	}
}

// applySettings drains the settings slot and returns the newest snapshot.
// A sample rate change rebuilds the clip ring, since its positions are
// meaningless at a different rate.
func (e *Engine) applySettings(current types.MonitorSettings) types.MonitorSettings {
	next := current
	for {
		select {
		case s := <-e.settingsCh:
			next = s
			continue
		default:
		}
		break
	}

	if next.SampleRate != current.SampleRate {
		e.mu.Lock()
		if e.capturer != nil {
			e.capturer.Reset()
			e.capturer = clips.NewCapturer(next.SampleRate, e.clipDir, e.onClipReady)
		}
		e.mu.Unlock()
	}

	return next
}

// trackEpisode feeds the tracker and fires edge notifications.
func (e *Engine) trackEpisode(db float64, settings types.MonitorSettings, now time.Time, capturer *clips.Capturer) {
	event := e.tracker.Update(db, audio.EpisodeConfig{
		ThresholdDB:   settings.ThresholdDB,
		MinDurationMs: settings.NoiseMinDurationMs,
		QuietMs:       settings.NoiseQuietMs,
	}, now)

	e.mu.Lock()
	e.alertActive = event.Active
	e.mu.Unlock()

	if event.JustStarted {
		slog.Warn("noise episode started",
			"level_db", db, "threshold_db", settings.ThresholdDB)
		if capturer != nil {
			capturer.OnNoiseStart()
		}
		e.notifier.HandleStart(db, settings.ThresholdDB)
		if e.events != nil {
			if err := e.events.LogNoiseStart(db, settings.ThresholdDB); err != nil {
				slog.Warn("failed to log noise start", "error", err)
			}
		}
	}

	if event.JustEnded {
		end := episodeEnd{
			durationMs:  event.TotalDurationMs,
			levelDB:     db,
			peakDB:      e.peak.Value(),
			thresholdDB: settings.ThresholdDB,
		}
		slog.Info("noise episode ended",
			"duration_ms", end.durationMs, "peak_db", end.peakDB)

		if capturer != nil {
			// Recovery notifications wait for the clip so they can carry
			// the audio. The capturer calls onClipReady once the after
			// window is recorded and encoding finishes.
			e.mu.Lock()
			e.pendingEnds = append(e.pendingEnds, end)
			e.mu.Unlock()
			capturer.OnNoiseEnd(
				time.Duration(end.durationMs)*time.Millisecond,
				time.Duration(settings.NoiseQuietMs)*time.Millisecond,
			)
		} else {
			e.notifier.HandleEnd(end.durationMs, end.levelDB, end.peakDB, end.thresholdDB, nil)
			e.logNoiseEndEvent(&end, nil)
		}
	}
}

// onClipReady pairs a finished clip with the episode stats that were parked
// for it, then hands the clip to storage. Runs on the capturer's encode
// goroutine.
func (e *Engine) onClipReady(result *clips.ClipResult) {
	e.mu.Lock()
	var end *episodeEnd
	if len(e.pendingEnds) > 0 {
		popped := e.pendingEnds[0]
		e.pendingEnds = e.pendingEnds[1:]
		end = &popped
	}
	e.mu.Unlock()

	if end != nil {
		e.notifier.HandleEnd(end.durationMs, end.levelDB, end.peakDB, end.thresholdDB, result)
		e.logNoiseEndEvent(end, result)
	}

	if e.clipStore != nil {
		e.clipStore.HandleClip(result)
	}
}

// failSession records a fatal capture error. The deferred cleanup in
// runLoop performs the actual transition back to idle.
func (e *Engine) failSession(settings types.MonitorSettings, err error) {
	msg := err.Error()
	slog.Error("capture failed, monitoring stopped", "error", msg, "input", settings.InputDevice)

	e.mu.Lock()
	e.lastError = msg
	e.mu.Unlock()

	e.logMonitorEvent(eventlog.MonitorError, settings.InputDevice, "capture failed, monitoring stopped", msg)
}

// logNoiseEndEvent writes the noise_end event, tolerating a nil logger.
func (e *Engine) logNoiseEndEvent(end *episodeEnd, clip *clips.ClipResult) {
	if e.events == nil {
		return
	}
	var clipPath, clipFilename, clipError string
	var clipSize int64
	if clip != nil {
		clipPath = clip.FilePath
		clipFilename = clip.Filename
		clipSize = clip.FileSize
		if clip.Error != nil {
			clipError = clip.Error.Error()
		}
	}
	if err := e.events.LogNoiseEnd(end.durationMs, end.levelDB, end.peakDB, end.thresholdDB,
		clipPath, clipFilename, clipSize, clipError); err != nil {
		slog.Warn("failed to log noise end", "error", err)
	}
}
