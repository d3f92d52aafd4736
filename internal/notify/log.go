package notify

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// LogNoiseStart appends a noise_start entry to the alert log.
func LogNoiseStart(logPath string, levelDB, thresholdDB float64) error {
	return appendLogEntry(logPath, types.AlertLogEntry{
		Timestamp:   timestampUTC(),
		Event:       "noise_start",
		LevelDB:     levelDB,
		ThresholdDB: thresholdDB,
	})
}

// LogNoiseEndWithClip appends a noise_end entry to the alert log, including
// clip details when a recording was made.
func LogNoiseEndWithClip(logPath string, durationMs int64, levelDB, peakDB, thresholdDB float64, clip *clips.ClipResult) error {
	entry := types.AlertLogEntry{
		Timestamp:   timestampUTC(),
		Event:       "noise_end",
		LevelDB:     levelDB,
		PeakDB:      peakDB,
		ThresholdDB: thresholdDB,
		DurationMs:  durationMs,
	}
	if clip != nil {
		entry.ClipPath = clip.FilePath
		entry.ClipFilename = clip.Filename
		entry.ClipSizeBytes = clip.FileSize
		if clip.Error != nil {
			entry.ClipError = clip.Error.Error()
		}
	}
	return appendLogEntry(logPath, entry)
}

// WriteTestLog appends a test entry so operators can verify the log path.
func WriteTestLog(logPath string, thresholdDB float64) error {
	return appendLogEntry(logPath, types.AlertLogEntry{
		Timestamp:   timestampUTC(),
		Event:       "test",
		ThresholdDB: thresholdDB,
	})
}

// appendLogEntry writes one JSON line to the alert log. An empty path is
// silently skipped so callers do not need to check configuration.
func appendLogEntry(logPath string, entry types.AlertLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return util.WrapError("create log directory", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open alert log", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close alert log", "error", err)
		}
	}()

	line, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return util.WrapError("write log entry", err)
	}
	return nil
}
