// Package config stores and serves the persisted monitor settings.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// Defaults applied to zero-value fields on load.
const (
	DefaultWebPort            = 8080
	DefaultStationName        = "ZuidWest FM"
	DefaultNoiseMinDurationMs = 2000 // sustained noise before an episode is confirmed
	DefaultNoiseQuietMs       = 5000 // quiet time before an episode is considered over
)

// stationNamePattern rejects control characters; the name ends up in email
// headers.
var stationNamePattern = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)

// SystemConfig holds settings that only take effect after a restart.
type SystemConfig struct {
	Port   int    `json:"port"`    // HTTP server port
	APIKey string `json:"api_key"` // API key for control endpoints (empty = open access)
}

// WebConfig holds station identity settings.
type WebConfig struct {
	StationName string `json:"station_name"` // Station display name, used in notifications
}

// AudioConfig holds audio device and capture timing settings.
type AudioConfig struct {
	Input             string  `json:"input"`               // Capture device name ("" = system default)
	Output            string  `json:"output"`              // Playback device name ("" = system default)
	SampleRate        int     `json:"sample_rate"`         // Capture sample rate in Hz
	CaptureSeconds    float64 `json:"capture_seconds"`     // Length of one capture cycle
	CycleDelaySeconds float64 `json:"cycle_delay_seconds"` // Pause between capture cycles
}

// AlertConfig holds the noise threshold, alert tone and episode timing.
type AlertConfig struct {
	ThresholdDB        float64        `json:"threshold_db"`          // Noise threshold in dB
	Shape              types.Waveform `json:"shape"`                 // Alert tone waveform
	FrequencyHz        float64        `json:"frequency_hz"`          // Alert tone frequency
	DurationMs         int            `json:"duration_ms"`           // Alert tone length
	VolumePct          int            `json:"volume_pct"`            // Alert tone volume (0-100)
	NoiseMinDurationMs int64          `json:"noise_min_duration_ms"` // Sustained noise before episode notifications fire
	NoiseQuietMs       int64          `json:"noise_quiet_ms"`        // Quiet time before an episode ends
}

// WebhookConfig holds the alert webhook settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for noise alerts
}

// LogConfig holds the alert log file settings.
type LogConfig struct {
	Path string `json:"path"` // Log file path for noise events
}

// EmailConfig holds the Microsoft Graph credentials for alert email.
type EmailConfig struct {
	TenantID     string `json:"tenant_id"`     // Azure AD tenant ID
	ClientID     string `json:"client_id"`     // App registration client ID
	ClientSecret string `json:"client_secret"` // App registration client secret
	FromAddress  string `json:"from_address"`  // Shared mailbox sender address
	Recipients   string `json:"recipients"`    // Comma-separated recipient addresses
}

// ZabbixConfig holds Zabbix trapper notification settings.
type ZabbixConfig struct {
	Server string `json:"server"` // Zabbix server address
	Port   int    `json:"port"`   // Zabbix trapper port
	Host   string `json:"host"`   // Monitored host name as known to Zabbix
	Key    string `json:"key"`    // Trapper item key
}

// NotificationsConfig groups the notification channels.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"` // Webhook settings
	Log     LogConfig     `json:"log"`     // Log file settings
	Email   EmailConfig   `json:"email"`   // Email settings
	Zabbix  ZabbixConfig  `json:"zabbix"`  // Zabbix settings
}

// ClipsConfig holds alert clip storage settings.
type ClipsConfig struct {
	Enabled           bool              `json:"enabled"`              // Whether episode clips are saved
	Directory         string            `json:"directory"`            // Local clips directory
	StorageMode       types.ClipStorage `json:"storage_mode"`         // local, s3 or both
	RetentionDays     int               `json:"retention_days"`       // Days to keep clips
	S3Endpoint        string            `json:"s3_endpoint"`          // Custom S3 endpoint (empty = AWS)
	S3Bucket          string            `json:"s3_bucket"`            // S3 bucket name
	S3AccessKeyID     string            `json:"s3_access_key_id"`     // S3 access key
	S3SecretAccessKey string            `json:"s3_secret_access_key"` // S3 secret key
}

// Config is the persisted application configuration. Safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Web           WebConfig           `json:"web"`
	Audio         AudioConfig         `json:"audio"`
	Alert         AlertConfig         `json:"alert"`
	Notifications NotificationsConfig `json:"notifications"`
	Clips         ClipsConfig         `json:"clips"`

	mu       sync.RWMutex
	filePath string
}

// New returns a Config that will persist to filePath.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port: DefaultWebPort,
		},
		Web: WebConfig{
			StationName: DefaultStationName,
		},
		Audio:         AudioConfig{},
		Alert:         AlertConfig{},
		Notifications: NotificationsConfig{},
		Clips:         ClipsConfig{},
		filePath:      filePath,
	}
}

// Load reads the config file, writing a default one on first run.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	if err := c.validate(); err != nil {
		return err
	}

	return nil
}

// validate rejects values that would break the alert tone, notifications or
// clip storage.
func (c *Config) validate() error {
	name := c.Web.StationName
	if name == "" || len(name) > 30 || !stationNamePattern.MatchString(name) {
		return fmt.Errorf("invalid station_name %q: must be 1-30 printable characters", name)
	}
	if c.Alert.Shape != "" && !c.Alert.Shape.Valid() {
		return fmt.Errorf("invalid alert shape %q: must be sine, square or saw", c.Alert.Shape)
	}
	if c.Alert.VolumePct < 0 || c.Alert.VolumePct > 100 {
		return fmt.Errorf("invalid alert volume %d: must be 0-100", c.Alert.VolumePct)
	}
	if m := c.Clips.StorageMode; m != "" &&
		m != types.ClipStorageLocal && m != types.ClipStorageS3 && m != types.ClipStorageBoth {
		return fmt.Errorf("invalid clip storage_mode %q: must be local, s3 or both", m)
	}
	return nil
}

// applyDefaults fills zero-value fields after a parse.
func (c *Config) applyDefaults() {
	// System defaults
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	// Web defaults
	if c.Web.StationName == "" {
		c.Web.StationName = DefaultStationName
	}
	// Alert defaults
	if c.Alert.Shape == "" {
		c.Alert.Shape = types.WaveSine
	}
	// Clip defaults
	if c.Clips.StorageMode == "" {
		c.Clips.StorageMode = types.ClipStorageLocal
	}
	if c.Clips.RetentionDays == 0 {
		c.Clips.RetentionDays = types.DefaultClipRetentionDays
	}
}

// saveLocked writes the config to disk. Caller holds c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Field accessors ---

// AudioInput returns the configured capture device.
func (c *Config) AudioInput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.Input
}

// AudioOutput returns the configured playback device.
func (c *Config) AudioOutput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.Output
}

// LogPath returns the configured alert log file path.
func (c *Config) LogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.Log.Path
}

// GraphConfig returns the current Graph credentials as a copy.
func (c *Config) GraphConfig() types.GraphConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.GraphConfig{
		TenantID:     c.Notifications.Email.TenantID,
		ClientID:     c.Notifications.Email.ClientID,
		ClientSecret: c.Notifications.Email.ClientSecret,
		FromAddress:  c.Notifications.Email.FromAddress,
		Recipients:   c.Notifications.Email.Recipients,
	}
}

// ZabbixConfig returns a copy of the current Zabbix configuration.
func (c *Config) ZabbixConfig() types.ZabbixConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.ZabbixConfig{
		Server: c.Notifications.Zabbix.Server,
		Port:   c.Notifications.Zabbix.Port,
		Host:   c.Notifications.Zabbix.Host,
		Key:    c.Notifications.Zabbix.Key,
	}
}

// APIKey returns the control API key. Empty means open access.
func (c *Config) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.APIKey
}

// --- Field updates, each saves immediately ---

// SetAudioDevices updates the capture and playback devices and saves.
func (c *Config) SetAudioDevices(input, output string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.Input = input
	c.Audio.Output = output
	return c.saveLocked()
}

// SetAudioTiming updates the sample rate and capture pacing and saves.
func (c *Config) SetAudioTiming(sampleRate int, captureSeconds, cycleDelaySeconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.SampleRate = sampleRate
	c.Audio.CaptureSeconds = captureSeconds
	c.Audio.CycleDelaySeconds = cycleDelaySeconds
	return c.saveLocked()
}

// SetAlertThreshold updates the noise threshold and saves.
func (c *Config) SetAlertThreshold(threshold float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Alert.ThresholdDB = threshold
	return c.saveLocked()
}

// SetTone updates the alert tone parameters and saves.
func (c *Config) SetTone(shape types.Waveform, frequencyHz float64, durationMs, volumePct int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Alert.Shape = shape
	c.Alert.FrequencyHz = frequencyHz
	c.Alert.DurationMs = durationMs
	c.Alert.VolumePct = volumePct
	return c.saveLocked()
}

// SetNoiseTiming updates the episode confirmation and quiet windows and saves.
func (c *Config) SetNoiseTiming(minDurationMs, quietMs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Alert.NoiseMinDurationMs = minDurationMs
	c.Alert.NoiseQuietMs = quietMs
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetLogPath updates the alert log file path and saves.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// SetGraphConfig replaces the Graph credentials and saves.
func (c *Config) SetGraphConfig(tenantID, clientID, clientSecret, fromAddress, recipients string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email.TenantID = tenantID
	c.Notifications.Email.ClientID = clientID
	c.Notifications.Email.ClientSecret = clientSecret
	c.Notifications.Email.FromAddress = fromAddress
	c.Notifications.Email.Recipients = recipients
	return c.saveLocked()
}

// SetZabbixConfig replaces the Zabbix settings and saves.
func (c *Config) SetZabbixConfig(server string, port int, host, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Zabbix.Server = server
	c.Notifications.Zabbix.Port = port
	c.Notifications.Zabbix.Host = host
	c.Notifications.Zabbix.Key = key
	return c.saveLocked()
}

// SetClips replaces the clip storage settings and saves.
func (c *Config) SetClips(clips ClipsConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Clips = clips
	if c.Clips.StorageMode == "" {
		c.Clips.StorageMode = types.ClipStorageLocal
	}
	if c.Clips.RetentionDays == 0 {
		c.Clips.RetentionDays = types.DefaultClipRetentionDays
	}
	return c.saveLocked()
}

// SetAPIKey updates the control API key and saves.
func (c *Config) SetAPIKey(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.System.APIKey = key
	return c.saveLocked()
}

// --- Snapshot ---

// Snapshot is an immutable copy of the configuration, taken under the lock.
type Snapshot struct {
	// System
	WebPort int
	APIKey  string

	// Station identity
	StationName string

	// Audio
	AudioInput        string
	AudioOutput       string
	SampleRate        int
	CaptureSeconds    float64
	CycleDelaySeconds float64

	// Alert
	AlertThreshold     float64
	ToneShape          types.Waveform
	ToneFrequencyHz    float64
	ToneDurationMs     int
	ToneVolumePct      int
	NoiseMinDurationMs int64
	NoiseQuietMs       int64

	// Notifications
	WebhookURL        string
	LogPath           string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string
	ZabbixServer      string
	ZabbixPort        int
	ZabbixHost        string
	ZabbixKey         string

	// Clips
	ClipsEnabled      bool
	ClipsDirectory    string
	ClipsStorageMode  types.ClipStorage
	ClipRetentionDays int
	S3Endpoint        string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Snapshot copies the full configuration in one locked read.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// System
		WebPort: c.System.Port,
		APIKey:  c.System.APIKey,

		// Station identity
		StationName: c.Web.StationName,

		// Audio (with defaults)
		AudioInput:        c.Audio.Input,
		AudioOutput:       c.Audio.Output,
		SampleRate:        cmp.Or(c.Audio.SampleRate, types.DefaultSampleRate),
		CaptureSeconds:    cmp.Or(c.Audio.CaptureSeconds, types.DefaultCaptureSeconds),
		CycleDelaySeconds: cmp.Or(c.Audio.CycleDelaySeconds, types.DefaultCycleDelay),

		// Alert (with defaults)
		AlertThreshold:     cmp.Or(c.Alert.ThresholdDB, types.DefaultThresholdDB),
		ToneShape:          cmp.Or(c.Alert.Shape, types.WaveSine),
		ToneFrequencyHz:    cmp.Or(c.Alert.FrequencyHz, types.DefaultToneFrequency),
		ToneDurationMs:     cmp.Or(c.Alert.DurationMs, types.DefaultToneDurationMs),
		ToneVolumePct:      cmp.Or(c.Alert.VolumePct, types.DefaultToneVolume),
		NoiseMinDurationMs: cmp.Or(c.Alert.NoiseMinDurationMs, int64(DefaultNoiseMinDurationMs)),
		NoiseQuietMs:       cmp.Or(c.Alert.NoiseQuietMs, int64(DefaultNoiseQuietMs)),

		// Notifications
		WebhookURL:        c.Notifications.Webhook.URL,
		LogPath:           c.Notifications.Log.Path,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,
		ZabbixServer:      c.Notifications.Zabbix.Server,
		ZabbixPort:        c.Notifications.Zabbix.Port,
		ZabbixHost:        c.Notifications.Zabbix.Host,
		ZabbixKey:         c.Notifications.Zabbix.Key,

		// Clips
		ClipsEnabled:      c.Clips.Enabled,
		ClipsDirectory:    c.Clips.Directory,
		ClipsStorageMode:  cmp.Or(c.Clips.StorageMode, types.ClipStorageLocal),
		ClipRetentionDays: cmp.Or(c.Clips.RetentionDays, types.DefaultClipRetentionDays),
		S3Endpoint:        c.Clips.S3Endpoint,
		S3Bucket:          c.Clips.S3Bucket,
		S3AccessKeyID:     c.Clips.S3AccessKeyID,
		S3SecretAccessKey: c.Clips.S3SecretAccessKey,
	}
}

// MonitorSettings assembles the settings bundle the monitor loop acts on.
// The live threshold is owned by shared state, so the caller passes it in.
func (s *Snapshot) MonitorSettings(thresholdDB float64) types.MonitorSettings {
	return types.MonitorSettings{
		ThresholdDB:        thresholdDB,
		CaptureSeconds:     s.CaptureSeconds,
		SampleRate:         s.SampleRate,
		Shape:              s.ToneShape,
		FrequencyHz:        s.ToneFrequencyHz,
		DurationMs:         s.ToneDurationMs,
		VolumePct:          s.ToneVolumePct,
		InputDevice:        s.AudioInput,
		OutputDevice:       s.AudioOutput,
		CycleDelay:         s.CycleDelaySeconds,
		NoiseMinDurationMs: s.NoiseMinDurationMs,
		NoiseQuietMs:       s.NoiseQuietMs,
	}
}

// HasWebhook reports whether the webhook channel is set up.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether every Graph field needed for email is set.
func (s *Snapshot) HasGraph() bool {
	return s.GraphTenantID != "" && s.GraphClientID != "" && s.GraphClientSecret != "" &&
		s.GraphFromAddress != "" && s.GraphRecipients != ""
}

// HasLogPath reports whether an alert log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasZabbix reports whether Zabbix notifications are configured.
func (s *Snapshot) HasZabbix() bool {
	return s.ZabbixServer != "" && s.ZabbixHost != "" && s.ZabbixKey != ""
}

// HasS3 reports whether S3 clip storage is fully configured.
func (s *Snapshot) HasS3() bool {
	return s.S3Bucket != "" && s.S3AccessKeyID != "" && s.S3SecretAccessKey != ""
}

// --- Helpers ---

// GenerateAPIKey returns a fresh 32-character alphanumeric key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}
