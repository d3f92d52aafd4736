// Package types provides shared type definitions used across the monitor.
package types

import (
	"time"
)

// MonitorState represents the current state of the monitor loop.
type MonitorState string

const (
	// StateIdle indicates no monitoring session is active.
	StateIdle MonitorState = "idle"
	// StateArmed indicates the monitor is actively cycling.
	StateArmed MonitorState = "armed"
	// StateStopping indicates a stop was requested and the current cycle is finishing.
	StateStopping MonitorState = "stopping"
)

// Waveform identifies an alert tone shape.
type Waveform string

// Supported alert waveforms.
const (
	WaveSine   Waveform = "sine"
	WaveSquare Waveform = "square"
	WaveSaw    Waveform = "saw"
)

// Valid reports whether w names a supported waveform.
func (w Waveform) Valid() bool {
	switch w {
	case WaveSine, WaveSquare, WaveSaw:
		return true
	}
	return false
}

// Default audio parameters. These match the values the monitor ships with
// and are applied by the config layer when a field is missing.
const (
	// DefaultSampleRate is the capture and synthesis sample rate in Hz.
	DefaultSampleRate = 44100
	// DefaultCaptureSeconds is the length of one capture cycle.
	DefaultCaptureSeconds = 0.1
	// DefaultCycleDelay is the pause between capture cycles in seconds.
	DefaultCycleDelay = 0.02
	// DefaultThresholdDB is the alert threshold applied on first run.
	DefaultThresholdDB = -30.0
	// DefaultToneFrequency is the alert tone frequency in Hz.
	DefaultToneFrequency = 1000.0
	// DefaultToneDurationMs is the alert tone length in milliseconds.
	DefaultToneDurationMs = 200
	// DefaultToneVolume is the alert tone volume in percent.
	DefaultToneVolume = 50
)

const (
	// ControlPollInterval is how often edge-triggered start/stop requests are consumed.
	ControlPollInterval = 100 * time.Millisecond
	// ShutdownTimeout bounds the wait for the loop to finish its last cycle.
	ShutdownTimeout = 3000 * time.Millisecond
	// CalibrationSeconds is the length of the ambient measurement capture.
	CalibrationSeconds = 2.0
	// CalibrationMarginDB is how far above ambient the suggested threshold sits.
	CalibrationMarginDB = 10.0
	// MinSuggestedThresholdDB is the floor for calibration suggestions; anything
	// lower tends to chase electrical noise rather than room noise.
	MinSuggestedThresholdDB = -50.0
	// FallbackThresholdDB replaces a non-finite calibration suggestion.
	FallbackThresholdDB = -30.0
	// MaxMessageLength is the longest accepted spoken-message text.
	MaxMessageLength = 500
)

// MonitorSettings is the complete configuration snapshot the monitor loop
// acts on. It is replaced wholesale on every push; the loop never sees a
// partially updated value.
type MonitorSettings struct {
	ThresholdDB        float64  `json:"threshold_db"`          // Alert threshold in dB
	CaptureSeconds     float64  `json:"capture_seconds"`       // Capture buffer length
	SampleRate         int      `json:"sample_rate"`           // Capture sample rate in Hz
	Shape              Waveform `json:"shape"`                 // Alert waveform
	FrequencyHz        float64  `json:"frequency_hz"`          // Alert tone frequency
	DurationMs         int      `json:"duration_ms"`           // Alert tone length
	VolumePct          int      `json:"volume_pct"`            // Alert tone volume (0-100)
	InputDevice        string   `json:"input_device"`          // Capture device name ("" = system default)
	OutputDevice       string   `json:"output_device"`         // Playback device name ("" = system default)
	CycleDelay         float64  `json:"cycle_delay"`           // Inter-cycle pause in seconds
	NoiseMinDurationMs int64    `json:"noise_min_duration_ms"` // Sustained noise before an episode is confirmed
	NoiseQuietMs       int64    `json:"noise_quiet_ms"`        // Quiet needed before an episode ends
}

// CaptureFrames returns the number of samples one capture cycle fills.
func (s *MonitorSettings) CaptureFrames() int {
	return int(float64(s.SampleRate)*s.CaptureSeconds + 0.5)
}

// StateSnapshot is the consistent view of the shared monitoring state
// returned to control surfaces.
type StateSnapshot struct {
	ThresholdDB  float64 `json:"threshold"`      // Current alert threshold in dB
	IsMonitoring bool    `json:"is_monitoring"`  // True while the loop is armed
	CurrentDB    float64 `json:"current_db"`     // Loudness of the last completed cycle
}

// MonitorStatus contains a summary of the monitor's operational state.
type MonitorStatus struct {
	State     MonitorState `json:"state"`                // Current loop state
	Uptime    string       `json:"uptime,omitzero"`      // Time since the session was armed
	LastError string       `json:"last_error,omitzero"`  // Most recent session-fatal error
	Cycles    uint64       `json:"cycles,omitzero"`      // Completed capture cycles this session
}

// LevelReading is the per-tick loudness sample pushed to live clients.
type LevelReading struct {
	CurrentDB   float64 `json:"current_db"`             // Latest estimated loudness
	PeakDB      float64 `json:"peak_db"`                // Decaying peak marker
	ThresholdDB float64 `json:"threshold"`              // Active threshold
	Monitoring  bool    `json:"monitoring"`             // True while armed
	AlertActive bool    `json:"alert_active,omitzero"`  // True during a noise episode
}

// AudioDevice represents an audio input or output device.
type AudioDevice struct {
	ID      string `json:"id"`                // Backend device identifier
	Name    string `json:"name"`              // Human-readable device name
	Default bool   `json:"default,omitzero"`  // True for the system default device
}

// DeviceList groups enumerated devices by direction.
type DeviceList struct {
	Inputs  []AudioDevice `json:"inputs"`
	Outputs []AudioDevice `json:"outputs"`
}

// CalibrationResult is returned by the ambient-noise calibration routine.
type CalibrationResult struct {
	AmbientDB   float64 `json:"ambient_db"`          // Measured ambient loudness
	SuggestedDB float64 `json:"suggested_threshold"` // Recommended alert threshold
}

// ClipStorage determines where alert clips are kept.
type ClipStorage string

// Supported clip storage modes.
const (
	ClipStorageLocal ClipStorage = "local" // Save only to the local clips directory
	ClipStorageS3    ClipStorage = "s3"    // Upload only to S3
	ClipStorageBoth  ClipStorage = "both"  // Save locally AND upload to S3
)

// DefaultClipRetentionDays is the default number of days to keep alert clips.
const DefaultClipRetentionDays = 7

// AlertLogEntry represents a single entry in the operator-facing alert log.
type AlertLogEntry struct {
	Timestamp   string  `json:"timestamp"`             // RFC3339 timestamp
	Event       string  `json:"event"`                 // noise_start or noise_end
	LevelDB     float64 `json:"level_db"`              // Loudness at the edge
	PeakDB      float64 `json:"peak_db,omitempty"`     // Loudest frame of the episode (noise_end only)
	ThresholdDB float64 `json:"threshold_db"`          // Threshold in effect
	DurationMs  int64   `json:"duration_ms,omitempty"` // Episode length (noise_end only)

	// Clip fields (noise_end only).
	ClipPath      string `json:"clip_path,omitempty"`       // Full path to the WAV clip
	ClipFilename  string `json:"clip_filename,omitempty"`   // Clip filename
	ClipSizeBytes int64  `json:"clip_size_bytes,omitempty"` // Clip file size in bytes
	ClipError     string `json:"clip_error,omitempty"`      // Error message if clip encoding failed
}

// GraphConfig carries the Graph credentials and recipients for alert email.
type GraphConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`     // Azure AD tenant ID
	ClientID     string `json:"client_id,omitempty"`     // App registration client ID
	ClientSecret string `json:"client_secret,omitempty"` // App registration client secret
	FromAddress  string `json:"from_address,omitempty"`  // Shared mailbox address (sender)
	Recipients   string `json:"recipients,omitempty"`    // Comma-separated recipients
}

// ZabbixConfig identifies the trapper endpoint and item for alert pushes.
type ZabbixConfig struct {
	Server    string `json:"server,omitempty"`
	Port      int    `json:"port,omitempty"`
	Host      string `json:"host,omitempty"`
	Key       string `json:"key,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// SecretExpiryInfo reports when the app registration secret lapses.
type SecretExpiryInfo struct {
	ExpiresAt   string `json:"expires_at,omitempty"`   // RFC3339 expiration timestamp
	ExpiresSoon bool   `json:"expires_soon,omitempty"` // True if expires within 30 days
	DaysLeft    int    `json:"days_left,omitempty"`    // Days until expiration
	Error       string `json:"error,omitempty"`        // Error message if check failed
}

// VersionInfo compares the running build against the newest release.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}

// WSLevelsResponse is sent to clients with live loudness updates.
type WSLevelsResponse struct {
	Type   string       `json:"type"`   // Message type identifier
	Levels LevelReading `json:"levels"` // Current loudness reading
}

// WSStatusResponse is sent to clients with full monitor status.
type WSStatusResponse struct {
	Type          string           `json:"type"`                    // Message type identifier
	Monitor       MonitorStatus    `json:"monitor"`                 // Loop status
	Settings      MonitorSettings  `json:"settings"`                // Active settings snapshot
	Devices       DeviceList       `json:"devices"`                 // Available audio devices
	SpeechPending int              `json:"speech_pending"`          // Messages waiting in the speech queue
	SpeechEngine  string           `json:"speech_engine,omitempty"` // Platform TTS engine name
	WebhookURL    string           `json:"webhook_url"`             // Configured alert webhook
	AlertLogPath  string           `json:"alert_log_path"`          // Configured alert log file
	ZabbixServer  string           `json:"zabbix_server,omitempty"` // Zabbix server address
	ZabbixPort    int              `json:"zabbix_port,omitempty"`   // Zabbix server port
	ZabbixHost    string           `json:"zabbix_host,omitempty"`   // Zabbix host name
	ZabbixKey     string           `json:"zabbix_key,omitempty"`    // Zabbix item key
	GraphTenantID string           `json:"graph_tenant_id"`         // Azure AD tenant ID
	GraphClientID string           `json:"graph_client_id"`         // App registration client ID
	GraphFrom     string           `json:"graph_from_address"`      // Shared mailbox address
	GraphTo       string           `json:"graph_recipients"`        // Comma-separated recipients
	GraphExpiry   SecretExpiryInfo `json:"graph_secret_expiry"`     // Client secret expiration info
	Clips         ClipSettings     `json:"clips"`                   // Alert clip configuration
	Platform      string           `json:"platform"`                // Operating system platform
	Version       VersionInfo      `json:"version"`                 // Version information
}

// ClipSettings is the clip sub-object in status responses.
type ClipSettings struct {
	Enabled       bool        `json:"enabled"`        // Whether clip capture is active
	Directory     string      `json:"directory"`      // Local clips directory
	RetentionDays int         `json:"retention_days"` // Days to keep clips
	Storage       ClipStorage `json:"storage"`        // local, s3, or both
}
