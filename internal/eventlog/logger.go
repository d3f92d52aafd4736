// Package eventlog provides unified event logging for the noise monitor.
// It captures monitor lifecycle events, noise episodes, speech delivery and
// clip handling in a single JSON lines file.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// EventType names a kind of log entry.
type EventType string

// Monitor lifecycle event types.
const (
	MonitorStarted EventType = "monitor_started"
	MonitorStopped EventType = "monitor_stopped"
	MonitorError   EventType = "monitor_error"
	Calibration    EventType = "calibration"
)

// Noise episode event types.
const (
	NoiseStart EventType = "noise_start"
	NoiseEnd   EventType = "noise_end"
)

// Speech delivery event types.
const (
	SpeechSpoken  EventType = "speech_spoken"
	SpeechDropped EventType = "speech_dropped"
)

// Clip handling event types.
const (
	ClipSaved        EventType = "clip_saved"
	UploadQueued     EventType = "upload_queued"
	UploadCompleted  EventType = "upload_completed"
	UploadFailed     EventType = "upload_failed"
	UploadRetry      EventType = "upload_retry"
	UploadAbandoned  EventType = "upload_abandoned"
	CleanupCompleted EventType = "cleanup_completed"
)

// Event is one log line. Details carries the type-specific payload.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// MonitorDetails contains monitor-lifecycle event details.
type MonitorDetails struct {
	InputDevice string `json:"input_device,omitempty"`
	Error       string `json:"error,omitempty"`
	Cycles      int64  `json:"cycles,omitempty"`
}

// NoiseDetails contains noise-episode event details.
type NoiseDetails struct {
	LevelDB       float64 `json:"level_db"`
	PeakDB        float64 `json:"peak_db,omitempty"`
	ThresholdDB   float64 `json:"threshold_db"`
	DurationMs    int64   `json:"duration_ms,omitempty"`
	ClipPath      string  `json:"clip_path,omitempty"`
	ClipFilename  string  `json:"clip_filename,omitempty"`
	ClipSizeBytes int64   `json:"clip_size_bytes,omitempty"`
	ClipError     string  `json:"clip_error,omitempty"`
}

// SpeechDetails contains speech-delivery event details.
type SpeechDetails struct {
	Text    string `json:"text,omitempty"`
	Engine  string `json:"engine,omitempty"`
	Error   string `json:"error,omitempty"`
	Pending int    `json:"pending,omitempty"`
}

// CalibrationDetails contains calibration measurement details.
type CalibrationDetails struct {
	AmbientDB   float64 `json:"ambient_db"`
	SuggestedDB float64 `json:"suggested_db"`
}

// ClipDetails contains clip storage and upload event details.
type ClipDetails struct {
	Filename     string `json:"filename,omitempty"`
	StorageMode  string `json:"storage_mode,omitempty"`
	S3Key        string `json:"s3_key,omitempty"`
	Error        string `json:"error,omitempty"`
	RetryCount   int    `json:"retry,omitempty"`
	FilesDeleted int    `json:"files_deleted,omitempty"`
	StorageType  string `json:"storage_type,omitempty"` // "local" or "s3" for cleanup
}

// Logger appends events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// DefaultLogPath returns the log file location for this platform.
func DefaultLogPath() string {
	if runtime.GOOS == "windows" {
		base := os.Getenv("PROGRAMDATA")
		if base == "" {
			base = `C:\ProgramData`
		}
		return filepath.Join(base, "noisewatch", "logs", "noisewatch.jsonl")
	}
	return filepath.Join("/var/log/noisewatch", "noisewatch.jsonl")
}

// NewLogger creates a new event logger at the given path, creating the
// parent directory when needed. The file is opened in append mode.
func NewLogger(filePath string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log appends one event, stamping the time when unset.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogMonitor logs a monitor lifecycle event.
func (l *Logger) LogMonitor(eventType EventType, inputDevice, message, errMsg string, cycles int64) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Message:   message,
		Details: &MonitorDetails{
			InputDevice: inputDevice,
			Error:       errMsg,
			Cycles:      cycles,
		},
	})
}

// LogNoiseStart logs the beginning of a noise episode.
func (l *Logger) LogNoiseStart(level, threshold float64) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      NoiseStart,
		Details: &NoiseDetails{
			LevelDB:     level,
			ThresholdDB: threshold,
		},
	})
}

// LogNoiseEnd logs the end of a noise episode with optional clip info.
func (l *Logger) LogNoiseEnd(durationMs int64, level, peak, threshold float64, clipPath, clipFilename string, clipSize int64, clipError string) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      NoiseEnd,
		Details: &NoiseDetails{
			LevelDB:       level,
			PeakDB:        peak,
			ThresholdDB:   threshold,
			DurationMs:    durationMs,
			ClipPath:      clipPath,
			ClipFilename:  clipFilename,
			ClipSizeBytes: clipSize,
			ClipError:     clipError,
		},
	})
}

// LogSpeech logs a speech delivery event.
func (l *Logger) LogSpeech(eventType EventType, text, engine, errMsg string, pending int) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details: &SpeechDetails{
			Text:    text,
			Engine:  engine,
			Error:   errMsg,
			Pending: pending,
		},
	})
}

// LogCalibration logs a calibration measurement.
func (l *Logger) LogCalibration(ambient, suggested float64) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      Calibration,
		Details: &CalibrationDetails{
			AmbientDB:   ambient,
			SuggestedDB: suggested,
		},
	})
}

// LogClip logs a clip storage or upload event.
func (l *Logger) LogClip(eventType EventType, filename, storageMode, s3Key, errMsg string, retryCount, filesDeleted int, storageType string) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details: &ClipDetails{
			Filename:     filename,
			StorageMode:  storageMode,
			S3Key:        s3Key,
			Error:        errMsg,
			RetryCount:   retryCount,
			FilesDeleted: filesDeleted,
			StorageType:  storageType,
		},
	})
}

// Close releases the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the log file location.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter selects an event family when reading.
type TypeFilter string

// Filters accepted by ReadLast.
const (
	FilterAll     TypeFilter = ""
	FilterMonitor TypeFilter = "monitor"
	FilterNoise   TypeFilter = "noise"
	FilterSpeech  TypeFilter = "speech"
	FilterClip    TypeFilter = "clip"
)

// MaxReadLimit caps how many events a single read returns.
const MaxReadLimit = 500

// matchesFilter reports whether an event type belongs to the filter family.
func matchesFilter(t EventType, filter TypeFilter) bool {
	switch filter {
	case FilterAll:
		return true
	case FilterMonitor:
		return IsMonitorEvent(t)
	case FilterNoise:
		return IsNoiseEvent(t)
	case FilterSpeech:
		return IsSpeechEvent(t)
	case FilterClip:
		return IsClipEvent(t)
	default:
		return false
	}
}

// readLines returns every line of the file at filePath. A missing file
// yields no lines and no error.
func readLines(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// ReadLast returns up to n events matching filter, newest first, skipping
// offset matching events from the tail. The second return value reports
// whether more matching events exist beyond the returned page. n is capped
// at MaxReadLimit.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}

	lines, err := readLines(filePath)
	if err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	skipped := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // malformed line
		}
		if !matchesFilter(event.Type, filter) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) >= n {
			return events, true, nil
		}
		events = append(events, event)
	}

	return events, false, nil
}

// IsMonitorEvent returns true if the event type is a monitor lifecycle event.
func IsMonitorEvent(t EventType) bool {
	return t == MonitorStarted || t == MonitorStopped || t == MonitorError || t == Calibration
}

// IsNoiseEvent returns true if the event type is a noise episode event.
func IsNoiseEvent(t EventType) bool {
	return t == NoiseStart || t == NoiseEnd
}

// IsSpeechEvent returns true if the event type is a speech delivery event.
func IsSpeechEvent(t EventType) bool {
	return t == SpeechSpoken || t == SpeechDropped
}

// IsClipEvent returns true if the event type is a clip handling event.
func IsClipEvent(t EventType) bool {
	return t == ClipSaved || t == UploadQueued || t == UploadCompleted ||
		t == UploadFailed || t == UploadRetry || t == UploadAbandoned ||
		t == CleanupCompleted
}
